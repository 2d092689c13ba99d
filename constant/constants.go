// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package constant

const (
	AppName = "gim"

	// UpstreamURL is the repository every git-backed source is cloned from
	// unless overridden by configuration.
	UpstreamURL = "https://github.com/gim-launcher/game.git"
	// UpstreamRepository is the owner/name pair used for release downloads and
	// CI artifact lookups.
	UpstreamRepository = "gim-launcher/game"
	TrunkBranch        = "master"
	ProjectName        = "game"
	// CIWorkflow is the workflow whose runs publish pull request builds.
	CIWorkflow = "build.yml"

	CommitterName  = "gim"
	CommitterEmail = "gim@localhost"
)
