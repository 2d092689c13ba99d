// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package git

import (
	"crypto/md5"
	"encoding/base32"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

const (
	upstreamRemote = "origin"
	trackingPrefix = "refs/sources/"
	fallbackBranch = "source"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// BranchBaseName is the branch name proposed for a source display name. The
// encoding keeps any display name a valid ref name.
func BranchBaseName(displayName string) string {
	name := strings.ToLower(encoding.EncodeToString([]byte(strings.TrimSpace(displayName))))
	if name == "" {
		return fallbackBranch
	}
	return name
}

// remoteName is the local name of the remote for uri.
func remoteName(uri string) string {
	sum := md5.Sum([]byte(uri))
	return "src-" + strings.ToLower(encoding.EncodeToString(sum[:]))
}

// trackingRef records the ref id last fetched into branch, before annotated
// tags are peeled.
func trackingRef(branch string) plumbing.ReferenceName {
	return plumbing.ReferenceName(trackingPrefix + branch)
}
