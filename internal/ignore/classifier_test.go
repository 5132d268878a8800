package ignore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifier_ShouldIgnore(t *testing.T) {
	c := Default()

	tests := []struct {
		path   string
		ignore bool
	}{
		// Lockfiles
		{"package-lock.json", true},
		{"web/package-lock.json", true},
		{"yarn.lock", true},
		{"Cargo.lock", true},
		{"pnpm-lock.yaml", true},
		{"data/app.db.lock", true},

		// VCS and editor directories
		{".git", true},
		{".git/config", true},
		{"sub/.git/HEAD", true},
		{".vscode", true},
		{".vscode/settings.json", true},
		{"pkg/__pycache__", true},
		{"pkg/__pycache__/mod.cpython-311.pyc", true},

		// Assets
		{"img.png", true},
		{"assets/logo.SVG", true},
		{"docs/manual.pdf", true},
		{"dist/app.tar", true},
		{"fonts/inter.woff2", true},
		{"media/clip.mp4", true},
		{"subs/en.srt", true},
		{"build/Main.class", true},
		{"data.csv", true},
		{"state.db-wal", true},

		// Source files pass
		{"a.txt", false},
		{"main.go", false},
		{"src/app.js", false},
		{"README.md", false},
		{".github/workflows/ci.yml", false},
		{".gitignore", false},
		{"lockfile.go", false},
		{"png.go", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.ignore, c.ShouldIgnore(tt.path))
		})
	}
}

func TestClassifier_ShouldIgnore_RootIsNeverIgnored(t *testing.T) {
	c := Default()
	assert.False(t, c.ShouldIgnore(""))
	assert.False(t, c.ShouldIgnore("/"))
	assert.False(t, c.ShouldIgnore("."))
}

func TestClassifier_ShouldIgnore_AbsoluteAndDotPaths(t *testing.T) {
	c := Default()
	assert.True(t, c.ShouldIgnore("/tmp/repos/org/repo/.git/config"))
	assert.True(t, c.ShouldIgnore("./img.png"))
	assert.False(t, c.ShouldIgnore("/tmp/repos/org/repo/main.go"))
}

func TestClassifier_ShouldIgnore_Pure(t *testing.T) {
	c := Default()
	for range 3 {
		assert.True(t, c.ShouldIgnore("img.png"))
		assert.False(t, c.ShouldIgnore("a.txt"))
	}
}

func TestNewClassifier_ExtraPatterns(t *testing.T) {
	c, err := NewClassifier("**/node_modules/**", "  ", "**/*.MIN.JS")
	require.NoError(t, err)

	assert.True(t, c.ShouldIgnore("web/node_modules/react/index.js"))
	assert.True(t, c.ShouldIgnore("static/app.min.js"))
	assert.True(t, c.ShouldIgnore("img.png"), "defaults are kept")
	assert.Len(t, c.Patterns(), len(DefaultPatterns)+2)
}

func TestNewClassifier_InvalidPattern(t *testing.T) {
	_, err := NewClassifier("[unclosed")
	assert.Error(t, err)
}

func TestIsBinary(t *testing.T) {
	assert.False(t, IsBinary([]byte("hello world")))
	assert.False(t, IsBinary(nil))
	assert.True(t, IsBinary([]byte{'a', 0, 'b'}))

	// Null bytes beyond the first 512 bytes are not inspected
	late := make([]byte, 600)
	for i := range late {
		late[i] = 'x'
	}
	late[599] = 0
	assert.False(t, IsBinary(late))
}
