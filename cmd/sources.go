// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cmd

import (
	"fmt"
	"strings"

	"github.com/gim-launcher/gim/git"
	"github.com/gim-launcher/gim/source"
)

const (
	specDownload      = "download"
	specLocal         = "local"
	specRelease       = "release"
	specLatestRelease = "latest-release"
	specPRBuild       = "pr-build"
	specBranch        = "branch"
	specTag           = "tag"
	specLatestTag     = "latest-tag"
	specCommit        = "commit"
	specPR            = "pr"
	specRefs          = "refs"
)

// parseSources turns kind:target flags into sources. A lone source takes the
// instance's name, merged ones are named after their target.
func parseSources(
	name string,
	remote string,
	specs []string,
	strategy git.MergeStrategy,
	content git.ContentStrategy,
) ([]source.Source, error) {
	sources := make([]source.Source, 0, len(specs))
	for _, spec := range specs {
		kind, target, _ := strings.Cut(spec, ":")
		sourceName := name
		if len(specs) > 1 {
			sourceName = childName(kind, target)
		}

		s, err := parseSource(sourceName, remote, kind, target, strategy, content)
		if err != nil {
			return nil, fmt.Errorf("parsing source %q: %w", spec, err)
		}
		sources = append(sources, s)
	}
	return sources, nil
}

func childName(kind, target string) string {
	switch kind {
	case specPR, specPRBuild:
		return "#" + target
	case specLatestRelease, specLatestTag:
		return "latest"
	case specCommit:
		if len(target) > 7 {
			return target[:7]
		}
	}
	return target
}

func parseSource(
	name string,
	remote string,
	kind string,
	target string,
	strategy git.MergeStrategy,
	content git.ContentStrategy,
) (source.Source, error) {
	switch kind {
	case specDownload:
		return source.NewFileSource(name, source.DirectDownload, target)
	case specLocal:
		return source.NewFileSource(name, source.LocalExecutable, target)
	case specRelease:
		return source.NewReleaseSource(name, source.Release, remote, target)
	case specLatestRelease:
		return source.NewReleaseSource(name, source.LatestRelease, remote, "")
	case specPRBuild:
		return source.NewPullRequestSource(name, remote, target)
	case specBranch:
		return source.NewGitSource(name, source.Branch, remote, target)
	case specTag:
		return source.NewGitSource(name, source.Release, remote, target)
	case specLatestTag:
		return source.NewGitSource(name, source.LatestRelease, remote, "")
	case specCommit:
		return source.NewGitSource(name, source.Commit, remote, target)
	case specPR:
		return source.NewGitSource(name, source.PullRequest, remote, target)
	case specRefs:
		return source.NewDynamicRefSource(name, remote, target, strategy, content)
	}
	return nil, fmt.Errorf("unknown source kind %q", kind)
}
