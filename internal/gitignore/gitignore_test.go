package gitignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchBasicPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		{"extension glob", "*.log", "error.log", false, true},
		{"extension glob nested", "*.log", "logs/error.log", false, true},
		{"extension glob miss", "*.log", "error.txt", false, false},
		{"exact name", "Makefile", "Makefile", false, true},
		{"exact name nested", "Makefile", "sub/Makefile", false, true},
		{"question mark", "file?.go", "file1.go", false, true},
		{"question mark no slash", "file?.go", "filex/a.go", false, false},
		{"character class", "file[0-9].go", "file7.go", false, true},
		{"character class miss", "file[0-9].go", "filex.go", false, false},
		{"dir only matches dir", "build/", "build", true, true},
		{"dir only skips file", "build/", "build", false, false},
		{"dir only matches contents", "build/", "build/out.bin", false, true},
		{"anchored root", "/build", "build", true, true},
		{"anchored root misses nested", "/build", "sub/build", true, false},
		{"slash anchors", "doc/frotz", "doc/frotz", false, true},
		{"slash anchors misses nested", "doc/frotz", "a/doc/frotz", false, false},
		{"double star prefix", "**/logs", "a/b/logs", true, true},
		{"double star infix", "a/**/b", "a/x/y/b", false, true},
		{"escaped hash", `\#notes`, "#notes", false, true},
		{"literal dot", "v1.2", "v102", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.AddPattern(tt.pattern)
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatchNegation(t *testing.T) {
	m := New()
	m.AddPattern("*.log")
	m.AddPattern("!important.log")

	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("important.log", false))
}

func TestMatchLastRuleWins(t *testing.T) {
	m := New()
	m.AddPattern("!keep.log")
	m.AddPattern("*.log")

	assert.True(t, m.Match("keep.log", false))
}

func TestMatchCommentsAndBlanksIgnored(t *testing.T) {
	m := New()
	m.AddPattern("# a comment")
	m.AddPattern("")
	m.AddPattern("   ")

	assert.False(t, m.Match("anything", false))
}

func TestMatchWithBase(t *testing.T) {
	m := New()
	m.AddPatternWithBase("*.tmp", "sub")

	assert.True(t, m.Match("sub/scratch.tmp", false))
	assert.True(t, m.Match("sub/deep/scratch.tmp", false))
	assert.False(t, m.Match("scratch.tmp", false))
	assert.False(t, m.Match("other/scratch.tmp", false))
}

func TestAddFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("*.log\n# comment\n\n!keep.log\nbuild/\n"), 0o644))

	m := New()
	require.NoError(t, m.AddFromFile(path, ""))

	assert.True(t, m.Match("x.log", false))
	assert.False(t, m.Match("keep.log", false))
	assert.True(t, m.Match("build/a.go", false))
}

func TestAddFromFileMissing(t *testing.T) {
	m := New()
	err := m.AddFromFile(filepath.Join(t.TempDir(), "nope"), "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
