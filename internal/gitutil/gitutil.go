// Package gitutil answers lightweight questions about the git state of a
// project directory. Everything degrades to empty answers outside a
// repository, so callers never need to care whether git is present.
package gitutil

import (
	git "github.com/go-git/go-git/v5"
)

// CurrentBranch returns the branch name HEAD points at, searching upward
// from dir for the repository root. It returns "" when dir is not inside a
// repository or HEAD is detached.
func CurrentBranch(dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	if !head.Name().IsBranch() {
		return ""
	}
	return head.Name().Short()
}

// HeadCommit returns the abbreviated commit hash HEAD points at, or "" when
// dir is not inside a repository.
func HeadCommit(dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()[:12]
}
