package gitrepos

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
)

// GoGitCloner clones in-process with go-git, without requiring a git binary.
type GoGitCloner struct{}

// NewGoGitCloner creates a GoGitCloner.
func NewGoGitCloner() *GoGitCloner {
	return &GoGitCloner{}
}

// Clone performs a shallow, single branch clone of the repository.
func (c *GoGitCloner) Clone(ctx context.Context, url, destDir string) error {
	_, err := git.PlainCloneContext(ctx, destDir, false, &git.CloneOptions{
		URL:          url,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	})
	if err != nil {
		return fmt.Errorf("go-git clone failed: %w", err)
	}
	return nil
}

// HeadCommit returns the current HEAD commit SHA.
func (c *GoGitCloner) HeadCommit(_ context.Context, repoDir string) (string, error) {
	repo, err := git.PlainOpen(repoDir)
	if err != nil {
		return "", fmt.Errorf("failed to open repository: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// NewCloner returns the Cloner for backend: "cli" (default) or "go-git".
func NewCloner(backend string) (Cloner, error) {
	switch backend {
	case "", BackendCLI:
		return NewGitClient(), nil
	case BackendGoGit:
		return NewGoGitCloner(), nil
	default:
		return nil, fmt.Errorf("unknown git backend: %s", backend)
	}
}

// Git backend names accepted by NewCloner.
const (
	BackendCLI   = "cli"
	BackendGoGit = "go-git"
)
