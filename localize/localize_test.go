// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package localize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestCatalog_Localize(t *testing.T) {
	tests := []struct {
		name string
		tag  language.Tag
		key  string
		args []interface{}
		want string
	}{
		{
			name: "english",
			tag:  language.English,
			key:  SourceBranch,
			args: []interface{}{"feature-x"},
			want: "Branch feature-x",
		},
		{
			name: "fallback",
			tag:  language.German,
			key:  SourceMultiple,
			args: []interface{}{3},
			want: "3 merged sources",
		},
		{
			name: "no arguments",
			tag:  language.English,
			key:  SourceLatestRelease,
			want: "Latest release",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog, err := New(tt.tag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, catalog.Localize(tt.key, tt.args...))
		})
	}
}
