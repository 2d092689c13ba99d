// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package localize

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Localizer turns a message key and its arguments into display text.
type Localizer interface {
	Localize(key string, args ...interface{}) string
}

const (
	SourceBranch          = "source.name.branch"
	SourcePullRequest     = "source.name.pull_request"
	SourceRelease         = "source.name.release"
	SourceLatestRelease   = "source.name.latest_release"
	SourceCommit          = "source.name.commit"
	SourceDirectDownload  = "source.name.direct_download"
	SourceLocalExecutable = "source.name.local_executable"
	SourceMultiple        = "source.name.multiple_sources"
	SourceDynamicRefs     = "source.name.dynamic_refs"

	VersionRelease = "source.version.release"
	VersionCommit  = "source.version.commit"
	VersionContent = "source.version.content"
	VersionMerged  = "source.version.merged"

	InstanceUpToDate = "instance.up_to_date"
	InstanceUpdated  = "instance.updated"
	InstanceCreated  = "instance.created"
	InstanceRemoved  = "instance.removed"
	InstanceFailed   = "instance.failed_update"

	ShutdownWaiting = "shutdown.waiting"
)

var english = map[string]string{
	SourceBranch:          "Branch %s",
	SourcePullRequest:     "Pull request #%s",
	SourceRelease:         "Release %s",
	SourceLatestRelease:   "Latest release",
	SourceCommit:          "Commit %s",
	SourceDirectDownload:  "Download from %s",
	SourceLocalExecutable: "Local executable %s",
	SourceMultiple:        "%d merged sources",
	SourceDynamicRefs:     "Refs matching %s",

	VersionRelease: "%s",
	VersionCommit:  "%s (%s)",
	VersionContent: "sha256 %s",
	VersionMerged:  "%s, %d of %d merged",

	InstanceUpToDate: "%s is already up to date",
	InstanceUpdated:  "%s updated to %s",
	InstanceCreated:  "%s created at %s",
	InstanceRemoved:  "%s removed",
	InstanceFailed:   "The last update of %s failed; the instance may be out of date",

	ShutdownWaiting: "Interrupted, waiting for running operations to finish",
}

var _ Localizer = &Catalog{}

// Catalog is a Localizer backed by an x/text message catalog.
type Catalog struct {
	printer *message.Printer
}

// New returns a catalog printing in tag, falling back to English for any
// message without a translation.
func New(tag language.Tag) (*Catalog, error) {
	builder := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, msg := range english {
		if err := builder.SetString(language.English, key, msg); err != nil {
			return nil, err
		}
	}

	return &Catalog{
		printer: message.NewPrinter(tag, message.Catalog(builder)),
	}, nil
}

func (c *Catalog) Localize(key string, args ...interface{}) string {
	return c.printer.Sprintf(key, args...)
}
