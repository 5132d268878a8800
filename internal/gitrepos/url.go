package gitrepos

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrInvalidRepositoryURL indicates the URL is not a recognized git remote URL
	ErrInvalidRepositoryURL = errors.New("invalid repository URL")

	// Matches: https://github.com/org/repo.git or http://host/org/sub/repo
	httpsPattern = regexp.MustCompile(`^https?://(?:[^@/]+@)?([^/:]+)(?::\d+)?/(.+?)(?:\.git)?/?$`)

	// Matches: git@github.com:org/repo.git or git@github.com:org/subgroup/repo.git
	sshScpPattern = regexp.MustCompile(`^git@([^:]+):(.+?)(?:\.git)?$`)

	// Matches: ssh://git@github.com/org/repo.git
	sshURLPattern = regexp.MustCompile(`^ssh://git@([^/:]+)(?::\d+)?/(.+?)(?:\.git)?$`)
)

// Repository identifies a remote repository.
type Repository struct {
	// URL is the trimmed URL the repository was parsed from, used for cloning.
	URL string

	// Host is the git server host, e.g. github.com.
	Host string

	// Path is the repository path on the host, e.g. org/repo or group/sub/repo.
	Path string
}

// ID returns the repository identity used in status records and document ids:
// the path for github.com (org/repo) and host/path elsewhere
// (gitlab.com/group/repo), so equal paths on different hosts stay distinct.
func (r Repository) ID() string {
	if r.IsGitHub() {
		return r.Path
	}
	return r.Host + "/" + r.Path
}

// Owner returns the first path segment.
func (r Repository) Owner() string {
	owner, _, _ := strings.Cut(r.Path, "/")
	return owner
}

// Name returns the last path segment.
func (r Repository) Name() string {
	return extractRepoName(r.Path)
}

// IsGitHub reports whether the repository is hosted on github.com.
func (r Repository) IsGitHub() bool {
	return strings.EqualFold(r.Host, "github.com")
}

// ParseRepositoryURL parses an HTTPS, SCP-style or SSH git URL.
//
// Examples:
//   - https://github.com/org/repo.git -> host: github.com, path: org/repo
//   - git@gitlab.com:group/sub/repo.git -> host: gitlab.com, path: group/sub/repo
//   - ssh://git@github.com/org/repo.git -> host: github.com, path: org/repo
func ParseRepositoryURL(url string) (Repository, error) {
	url = strings.TrimSpace(url)

	for _, pattern := range []*regexp.Regexp{httpsPattern, sshScpPattern, sshURLPattern} {
		matches := pattern.FindStringSubmatch(url)
		if matches == nil {
			continue
		}
		path := strings.Trim(matches[2], "/")
		if !validPath(path) {
			break
		}
		return Repository{URL: url, Host: strings.ToLower(matches[1]), Path: path}, nil
	}

	return Repository{}, fmt.Errorf("%w: %q", ErrInvalidRepositoryURL, url)
}

// validPath requires at least owner/name and rejects traversal segments.
func validPath(path string) bool {
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return false
		}
	}
	return true
}

// extractRepoName extracts the repository name from a path.
// For "org/repo" returns "repo", for "group/sub/repo" returns "repo".
func extractRepoName(path string) string {
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}

// IsValidRepositoryURL checks if the given URL can be parsed.
func IsValidRepositoryURL(url string) bool {
	_, err := ParseRepositoryURL(url)
	return err == nil
}

// CloneDir returns the directory a repository is cloned into under baseDir.
func CloneDir(baseDir string, repo Repository) string {
	return filepath.Join(baseDir, "repos", repo.Host, filepath.FromSlash(repo.Path))
}

// LockPath returns the per-repository lock file path under baseDir.
func LockPath(baseDir string, repo Repository) string {
	return filepath.Join(baseDir, "locks", sanitizeForFilesystem(repo.Host+"/"+repo.Path)+".lock")
}

// sanitizeForFilesystem converts a string to a filesystem-safe format.
// Replaces slashes, colons, and @ symbols with underscores.
func sanitizeForFilesystem(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, "@", "_")
	return s
}
