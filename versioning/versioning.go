// Copyright (C) 2019-2022, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package versioning

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	// Continuous is the rolling tag published from trunk.
	Continuous = "continuous"

	tagPrefix = "refs/tags/"
)

var standardTag = regexp.MustCompile(`^v?\d+(\.\d+)*$`)

// Name strips the refs/tags/ prefix, if any.
func Name(tag string) string {
	return strings.TrimPrefix(tag, tagPrefix)
}

// IsStandardTag reports whether tag is a dotted numeric release, optionally
// prefixed with "v", or the continuous tag. Both bare names and full
// refs/tags/ names are accepted.
func IsStandardTag(tag string) bool {
	name := Name(tag)
	return name == Continuous || standardTag.MatchString(name)
}

// IsContinuous reports whether tag names the continuous release.
func IsContinuous(tag string) bool {
	return Name(tag) == Continuous
}

type release struct {
	head *semver.Version
	tail []uint64
}

func parse(tag string) (release, error) {
	name := Name(tag)
	if !standardTag.MatchString(name) {
		return release{}, fmt.Errorf("%q is not a numeric release tag", tag)
	}

	parts := strings.Split(strings.TrimPrefix(name, "v"), ".")
	components := make([]uint64, len(parts))
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return release{}, fmt.Errorf("invalid component %q in %q: %w", part, tag, err)
		}
		components[i] = n
	}
	for len(components) < 3 {
		components = append(components, 0)
	}

	tail := components[3:]
	for len(tail) > 0 && tail[len(tail)-1] == 0 {
		tail = tail[:len(tail)-1]
	}
	return release{
		head: semver.New(components[0], components[1], components[2], "", ""),
		tail: tail,
	}, nil
}

func (r release) compare(o release) int {
	if c := r.head.Compare(o.head); c != 0 {
		return c
	}
	for i := 0; i < len(r.tail) || i < len(o.tail); i++ {
		var a, b uint64
		if i < len(r.tail) {
			a = r.tail[i]
		}
		if i < len(o.tail) {
			b = o.tail[i]
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

const (
	rankOther = iota
	rankContinuous
	rankNumeric
)

func rank(tag string) (int, release) {
	if IsContinuous(tag) {
		return rankContinuous, release{}
	}
	r, err := parse(tag)
	if err != nil {
		return rankOther, release{}
	}
	return rankNumeric, r
}

// OldestFirst orders tags ascending: unrecognised tags first, then
// continuous, then numeric releases by version. Ties are broken by the raw
// tag so the order is total.
func OldestFirst(a, b string) int {
	rankA, relA := rank(a)
	rankB, relB := rank(b)
	switch {
	case rankA < rankB:
		return -1
	case rankA > rankB:
		return 1
	}
	if rankA == rankNumeric {
		if c := relA.compare(relB); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

// LatestFirst is the exact reverse of OldestFirst. Numeric releases come
// first, newest to oldest, and continuous sorts after all of them.
func LatestFirst(a, b string) int {
	return -OldestFirst(a, b)
}

// IsSameRelease reports whether two tags name the same release. Trailing zero
// components and a leading "v" are not significant.
func IsSameRelease(a, b string) bool {
	if IsContinuous(a) || IsContinuous(b) {
		return IsContinuous(a) && IsContinuous(b)
	}
	relA, err := parse(a)
	if err != nil {
		return false
	}
	relB, err := parse(b)
	if err != nil {
		return false
	}
	return relA.compare(relB) == 0
}

// IsNewerRelease reports whether candidate is a later numeric release than
// current. Continuous is newer than every numeric release.
func IsNewerRelease(current, candidate string) bool {
	if IsContinuous(candidate) {
		return !IsContinuous(current)
	}
	if IsContinuous(current) {
		return false
	}
	relCurrent, err := parse(current)
	if err != nil {
		return false
	}
	relCandidate, err := parse(candidate)
	if err != nil {
		return false
	}
	return relCandidate.compare(relCurrent) > 0
}
