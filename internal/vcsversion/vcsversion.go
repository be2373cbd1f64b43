// SPDX-License-Identifier: MPL-2.0

// Package vcsversion derives a package version from git history, for
// descriptors that omit project.version. A tagged HEAD resolves to the
// tag itself; an untagged HEAD resolves to a PEP 440 development version
// counting commits since the nearest reachable tag.
package vcsversion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"golang.org/x/exp/slices"
)

// ErrNoVersion indicates the directory has no usable version history:
// not a repository, no commits, or no reachable tags.
var ErrNoVersion = errors.New("no version found in repository history")

// shortHashLen matches the abbreviated hash length in dev versions.
const shortHashLen = 7

// Resolve returns the version for the repository containing dir. An
// exact tag on HEAD yields that tag with any leading "v" stripped;
// otherwise the nearest tag yields `<tag>.dev<distance>+g<short-hash>`.
func Resolve(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("%s is not inside a git repository: %w", dir, errors.Join(err, ErrNoVersion))
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("repository has no commits: %w", errors.Join(err, ErrNoVersion))
	}

	tags, err := tagsByCommit(repo)
	if err != nil {
		return "", fmt.Errorf("failed to read tags: %w", err)
	}
	if names, ok := tags[head.Hash()]; ok {
		return tagVersion(names), nil
	}

	base, distance, err := nearestTag(repo, head.Hash(), tags)
	if err != nil {
		return "", err
	}
	short := head.Hash().String()[:shortHashLen]
	return fmt.Sprintf("%s.dev%d+g%s", base, distance, short), nil
}

// tagsByCommit maps commit hashes to the tag names pointing at them,
// dereferencing annotated tags to their target commits.
func tagsByCommit(repo *git.Repository) (map[plumbing.Hash][]string, error) {
	iter, err := repo.Tags()
	if err != nil {
		return nil, err
	}
	tags := make(map[plumbing.Hash][]string)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		hash := ref.Hash()
		if tagObj, err := repo.TagObject(hash); err == nil {
			// Annotated tag: the version belongs to the commit it targets.
			hash = tagObj.Target
		}
		tags[hash] = append(tags[hash], ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, names := range tags {
		slices.Sort(names)
	}
	return tags, nil
}

// nearestTag walks history from head and returns the first tagged
// commit's version and its distance in commits.
func nearestTag(repo *git.Repository, head plumbing.Hash, tags map[plumbing.Hash][]string) (string, int, error) {
	iter, err := repo.Log(&git.LogOptions{From: head})
	if err != nil {
		return "", 0, fmt.Errorf("failed to walk history: %w", err)
	}

	var base string
	distance := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if names, ok := tags[c.Hash]; ok && distance > 0 {
			base = tagVersion(names)
			return storer.ErrStop
		}
		distance++
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to walk history: %w", err)
	}
	if base == "" {
		return "", 0, fmt.Errorf("no tag reachable from HEAD: %w", ErrNoVersion)
	}
	return base, distance, nil
}

// tagVersion picks the first name in sorted order (stable when several
// tags share a commit) and strips the conventional "v" prefix.
func tagVersion(names []string) string {
	return strings.TrimPrefix(names[0], "v")
}
