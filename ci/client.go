// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ci

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v50/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	perPage  = 50
	maxPages = 4

	conclusionSuccess = "success"
)

var (
	ErrNoRun      = errors.New("no successful workflow run for commit")
	ErrNoArtifact = errors.New("artifact not found")
)

// Artifact is a downloadable build output of a workflow run.
type Artifact struct {
	ID          int64
	RunID       int64
	Name        string
	DownloadURL string
	// Headers must be sent with the download request.
	Headers map[string]string
}

type Client interface {
	// FindArtifact returns the named artifact of the newest successful run of
	// the configured workflow for commit.
	FindArtifact(ctx context.Context, commit string, name string) (Artifact, error)
}

type Config struct {
	// Repository is the owner/name pair hosting the workflow.
	Repository string
	// Workflow is the workflow file name, e.g. build.yml.
	Workflow string
	Token    string
	Log      *zap.Logger
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
	// BaseURL overrides the API endpoint, mostly for tests.
	BaseURL string
}

var _ Client = &GitHub{}

type GitHub struct {
	client   *github.Client
	owner    string
	repo     string
	workflow string
	token    string
	log      *zap.Logger
}

func NewGitHub(ctx context.Context, config Config) (*GitHub, error) {
	owner, repo, ok := strings.Cut(config.Repository, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("invalid repository %q, expected owner/name", config.Repository)
	}

	httpClient := config.HTTPClient
	if httpClient == nil && config.Token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.Token}))
	}
	client := github.NewClient(httpClient)
	if config.BaseURL != "" {
		baseURL, err := url.Parse(strings.TrimSuffix(config.BaseURL, "/") + "/")
		if err != nil {
			return nil, err
		}
		client.BaseURL = baseURL
	}

	log := config.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &GitHub{
		client:   client,
		owner:    owner,
		repo:     repo,
		workflow: config.Workflow,
		token:    config.Token,
		log:      log,
	}, nil
}

func (g *GitHub) FindArtifact(ctx context.Context, commit string, name string) (Artifact, error) {
	run, err := g.findRun(ctx, commit)
	if err != nil {
		return Artifact{}, err
	}

	opts := &github.ListOptions{PerPage: perPage}
	for page := 0; page < maxPages; page++ {
		list, resp, err := g.client.Actions.ListWorkflowRunArtifacts(ctx, g.owner, g.repo, run.GetID(), opts)
		if err != nil {
			return Artifact{}, fmt.Errorf("listing artifacts of run %d: %w", run.GetID(), err)
		}
		for _, a := range list.Artifacts {
			if a.GetName() != name || a.GetExpired() {
				continue
			}
			return Artifact{
				ID:          a.GetID(),
				RunID:       run.GetID(),
				Name:        a.GetName(),
				DownloadURL: a.GetArchiveDownloadURL(),
				Headers:     g.headers(),
			}, nil
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return Artifact{}, fmt.Errorf("%w: %s in run %d", ErrNoArtifact, name, run.GetID())
}

// findRun pages through recent runs of the workflow and picks the newest
// successful one built from commit.
func (g *GitHub) findRun(ctx context.Context, commit string) (*github.WorkflowRun, error) {
	opts := &github.ListWorkflowRunsOptions{
		Status:      conclusionSuccess,
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for page := 0; page < maxPages; page++ {
		runs, resp, err := g.client.Actions.ListWorkflowRunsByFileName(ctx, g.owner, g.repo, g.workflow, opts)
		if err != nil {
			return nil, fmt.Errorf("listing runs of %s: %w", g.workflow, err)
		}
		for _, run := range runs.WorkflowRuns {
			if run.GetHeadSHA() == commit && run.GetConclusion() == conclusionSuccess {
				g.log.Debug("found workflow run",
					zap.Int64("run", run.GetID()),
					zap.String("commit", commit),
				)
				return run, nil
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return nil, fmt.Errorf("%w: %s", ErrNoRun, commit)
}

func (g *GitHub) headers() map[string]string {
	if g.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + g.token}
}
