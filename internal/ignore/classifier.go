// Package ignore decides which repository paths are left out of summarization.
package ignore

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns lists the paths excluded from summarization: lockfiles, VCS
// internals, editor metadata, bytecode caches and binary/media/document assets.
// Patterns are doublestar globs matched against the lower-cased, slash separated path.
var DefaultPatterns = []string{
	// Lockfiles
	"**/*.lock", "**/*-lock.yaml", "**/package-lock.json", "**/yarn.lock",

	// VCS, editor and cache directories (the directory itself and anything below it)
	"**/.git", "**/.git/**",
	"**/.vscode", "**/.vscode/**",
	"**/__pycache__", "**/__pycache__/**",

	// Images
	"**/*.ico", "**/*.png", "**/*.jpg", "**/*.jpeg", "**/*.gif", "**/*.svg",

	// Documents and data
	"**/*.pdf", "**/*.doc", "**/*.docx", "**/*.xls", "**/*.xlsx", "**/*.ppt", "**/*.pptx",
	"**/*.csv", "**/*.tsv", "**/*.dat",
	"**/*.db", "**/*.db-shm", "**/*.db-wal",

	// Archives, installers and binaries
	"**/*.zip", "**/*.tar", "**/*.gz", "**/*.bz2", "**/*.rar", "**/*.7z",
	"**/*.exe", "**/*.dmg", "**/*.apk", "**/*.jar", "**/*.war", "**/*.deb", "**/*.rpm",
	"**/*.msi", "**/*.img", "**/*.iso", "**/*.bin", "**/*.class",

	// Fonts
	"**/*.sf3", "**/*.sfd", "**/*.woff", "**/*.woff2", "**/*.eot", "**/*.ttf", "**/*.otf",

	// Flash, video and audio
	"**/*.swf", "**/*.fla", "**/*.flv", "**/*.wmv", "**/*.avi", "**/*.mov", "**/*.mpg",
	"**/*.mpeg", "**/*.mkv", "**/*.webm", "**/*.m4v", "**/*.m4a", "**/*.m4p", "**/*.m4b",
	"**/*.m4r", "**/*.3gp", "**/*.aac", "**/*.opus", "**/*.ogg", "**/*.oga", "**/*.ogv",
	"**/*.ogx", "**/*.ogm", "**/*.mp3", "**/*.mp4", "**/*.wav",

	// Subtitles
	"**/*.srt", "**/*.vtt", "**/*.ass", "**/*.ssa",
}

// Classifier decides whether a path is excluded from processing.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	patterns []string
}

// NewClassifier creates a Classifier with DefaultPatterns plus any extra patterns.
func NewClassifier(extra ...string) (*Classifier, error) {
	patterns := make([]string, 0, len(DefaultPatterns)+len(extra))
	patterns = append(patterns, DefaultPatterns...)
	for _, p := range extra {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern: %q", p)
		}
		patterns = append(patterns, p)
	}
	return &Classifier{patterns: patterns}, nil
}

// Default returns a Classifier with DefaultPatterns only.
func Default() *Classifier {
	return &Classifier{patterns: DefaultPatterns}
}

// ShouldIgnore reports whether path matches any pattern. The path may be relative to
// the repository root or absolute; it never fails.
func (c *Classifier) ShouldIgnore(path string) bool {
	normalized := normalize(path)
	if normalized == "" {
		return false
	}

	for _, pattern := range c.patterns {
		if matched, _ := doublestar.Match(pattern, normalized); matched {
			return true
		}
	}
	return false
}

// Patterns returns the active patterns.
func (c *Classifier) Patterns() []string {
	return c.patterns
}

func normalize(path string) string {
	path = filepath.ToSlash(path)
	path = strings.TrimLeft(path, "/")
	path = strings.TrimPrefix(path, "./")
	return strings.ToLower(path)
}

// IsBinary checks if the content appears to be binary by looking for null bytes
// in the first 512 bytes. This is a heuristic used by git and other tools.
func IsBinary(content []byte) bool {
	checkLen := min(len(content), 512)

	for i := range checkLen {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
