// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ci

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	runsJSON = `{"total_count": 2, "workflow_runs": [
		{"id": 6, "head_sha": "bbbb", "status": "completed", "conclusion": "success"},
		{"id": 7, "head_sha": "aaaa", "status": "completed", "conclusion": "success"}
	]}`
	artifactsJSON = `{"total_count": 2, "artifacts": [
		{"id": 70, "name": "game-windows-x86_64", "archive_download_url": "https://example.com/70.zip", "expired": false},
		{"id": 71, "name": "game-linux-x86_64", "archive_download_url": "https://example.com/71.zip", "expired": false}
	]}`
)

func newTestServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/game/actions/workflows/build.yml/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "success", r.URL.Query().Get("status"))
		fmt.Fprint(w, runsJSON)
	})
	mux.HandleFunc("/repos/owner/game/actions/runs/7/artifacts", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, artifactsJSON)
	})
	mux.HandleFunc("/repos/owner/game/actions/runs/6/artifacts", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total_count": 0, "artifacts": []}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestGitHub_FindArtifact(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name     string
		commit   string
		artifact string
		token    string
		want     Artifact
		wantErr  assert.ErrorAssertionFunc
	}{
		{
			name:     "found",
			commit:   "aaaa",
			artifact: "game-linux-x86_64",
			token:    "secret",
			want: Artifact{
				ID:          71,
				RunID:       7,
				Name:        "game-linux-x86_64",
				DownloadURL: "https://example.com/71.zip",
				Headers:     map[string]string{"Authorization": "Bearer secret"},
			},
			wantErr: assert.NoError,
		},
		{
			name:     "no run",
			commit:   "cccc",
			artifact: "game-linux-x86_64",
			wantErr: func(t assert.TestingT, err error, i ...interface{}) bool {
				return assert.ErrorIs(t, err, ErrNoRun, i...)
			},
		},
		{
			name:     "no artifact",
			commit:   "bbbb",
			artifact: "game-linux-x86_64",
			wantErr: func(t assert.TestingT, err error, i ...interface{}) bool {
				return assert.ErrorIs(t, err, ErrNoArtifact, i...)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewGitHub(context.Background(), Config{
				Repository: "owner/game",
				Workflow:   "build.yml",
				Token:      tt.token,
				HTTPClient: server.Client(),
				BaseURL:    server.URL,
			})
			require.NoError(t, err)

			got, err := client.FindArtifact(context.Background(), tt.commit, tt.artifact)
			if !tt.wantErr(t, err) {
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewGitHub_InvalidRepository(t *testing.T) {
	_, err := NewGitHub(context.Background(), Config{Repository: "game"})
	assert.Error(t, err)
}
