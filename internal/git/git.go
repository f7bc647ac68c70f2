// Package git resolves release versions from the repository being packaged.
package git

import (
	"context"
	"errors"
	"fmt"
	"sort"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Common Git errors
var (
	ErrNotAGitRepo = errors.New("not a git repository")
	ErrNoCommits   = errors.New("repository has no commits")
	ErrNoTag       = errors.New("no tag points at HEAD")
)

// shortHashLen matches `git rev-parse --short`.
const shortHashLen = 7

// Repo is the read-only view of a repository that release versioning needs.
type Repo interface {
	HeadCommit(ctx context.Context) (string, error)
	TagAtHead(ctx context.Context) (string, error)
}

// Client implements Repo on top of go-git.
type Client struct {
	open func() (*gogit.Repository, error)
}

// NewClient returns a client for the repository containing path. Parent
// directories are searched for .git.
func NewClient(path string) *Client {
	return &Client{open: func() (*gogit.Repository, error) {
		return gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	}}
}

// FromRepository wraps an already opened repository.
func FromRepository(repo *gogit.Repository) *Client {
	return &Client{open: func() (*gogit.Repository, error) { return repo, nil }}
}

func (c *Client) repo(ctx context.Context) (*gogit.Repository, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	repo, err := c.open()
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		return nil, ErrNotAGitRepo
	}
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return repo, nil
}

func head(repo *gogit.Repository) (*plumbing.Reference, error) {
	ref, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, ErrNoCommits
	}
	if err != nil {
		return nil, fmt.Errorf("get HEAD: %w", err)
	}
	return ref, nil
}

// HeadCommit returns the full commit hash of HEAD.
func (c *Client) HeadCommit(ctx context.Context) (string, error) {
	repo, err := c.repo(ctx)
	if err != nil {
		return "", err
	}
	ref, err := head(repo)
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}

// TagAtHead returns the name of a tag pointing at HEAD, lightweight or
// annotated. With several candidates the lexically greatest wins.
func (c *Client) TagAtHead(ctx context.Context) (string, error) {
	repo, err := c.repo(ctx)
	if err != nil {
		return "", err
	}
	ref, err := head(repo)
	if err != nil {
		return "", err
	}

	tags, err := repo.Tags()
	if err != nil {
		return "", fmt.Errorf("list tags: %w", err)
	}
	defer tags.Close()

	var names []string
	err = tags.ForEach(func(tag *plumbing.Reference) error {
		target := tag.Hash()
		if obj, err := repo.TagObject(target); err == nil {
			commit, err := obj.Commit()
			if err != nil {
				return nil
			}
			target = commit.Hash
		}
		if target == ref.Hash() {
			names = append(names, tag.Name().Short())
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk tags: %w", err)
	}
	if len(names) == 0 {
		return "", ErrNoTag
	}
	sort.Strings(names)
	return names[len(names)-1], nil
}

// Version returns the tag at HEAD, or the short HEAD hash when HEAD is
// untagged.
func Version(ctx context.Context, r Repo) (string, error) {
	tag, err := r.TagAtHead(ctx)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, ErrNoTag) {
		return "", err
	}
	commit, err := r.HeadCommit(ctx)
	if err != nil {
		return "", err
	}
	if len(commit) > shortHashLen {
		commit = commit[:shortHashLen]
	}
	return commit, nil
}
