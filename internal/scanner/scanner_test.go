package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// collect drains a scan into sorted relative paths, failing on stream errors.
func collect(t *testing.T, results <-chan Result) []string {
	t.Helper()
	var paths []string
	for r := range results {
		require.NoError(t, r.Err)
		paths = append(paths, r.File.Path)
	}
	return paths
}

func TestScanFindsSourceFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "internal/api/handler.go", "package api\n")
	writeFile(t, root, "docs/readme.md", "# readme\n")

	results, err := New().Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)

	paths := collect(t, results)
	assert.ElementsMatch(t, []string{"main.go", "internal/api/handler.go", "docs/readme.md"}, paths)
}

func TestScanReportsLanguageAndMetadata(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib/util.py", "def f():\n    pass\n")

	results, err := New().Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)

	var files []*FileInfo
	for r := range results {
		require.NoError(t, r.Err)
		files = append(files, r.File)
	}
	require.Len(t, files, 1)

	f := files[0]
	assert.Equal(t, "lib/util.py", f.Path)
	assert.Equal(t, "python", f.Language)
	assert.Equal(t, filepath.Join(root, "lib", "util.py"), f.AbsPath)
	assert.Equal(t, int64(len("def f():\n    pass\n")), f.Size)
	assert.False(t, f.ModTime.IsZero())
}

func TestScanSkipsExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, ".git/config", "[core]\n")
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = {}\n")
	writeFile(t, root, "vendor/dep/dep.go", "package dep\n")
	writeFile(t, root, "deep/node_modules/x.js", "x\n")

	results, err := New().Scan(context.Background(), &Options{
		Root:    root,
		Exclude: []string{"node_modules", "vendor"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"main.go"}, collect(t, results))
}

func TestScanExcludeFilePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.js", "let a = 1\n")
	writeFile(t, root, "app.min.js", "let a=1\n")
	writeFile(t, root, "gen/schema.go", "package gen\n")

	results, err := New().Scan(context.Background(), &Options{
		Root:    root,
		Exclude: []string{"*.min.js", "gen/**"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"app.js"}, collect(t, results))
}

func TestScanIncludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b.py", "pass\n")
	writeFile(t, root, "sub/c.go", "package c\n")

	results, err := New().Scan(context.Background(), &Options{
		Root:    root,
		Include: []string{"*.go"},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a.go", "sub/c.go"}, collect(t, results))
}

func TestScanSizeCap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.go", "package small\n")
	writeFile(t, root, "big.go", "package big\n"+strings.Repeat("// padding\n", 200))

	results, err := New().Scan(context.Background(), &Options{
		Root:        root,
		MaxFileSize: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"small.go"}, collect(t, results))
}

func TestScanSkipsBinaryFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "text.go", "package text\n")
	binPath := filepath.Join(root, "blob.bin")
	require.NoError(t, os.WriteFile(binPath, []byte{0x7f, 'E', 'L', 'F', 0x00, 0x01, 0x02}, 0o644))

	results, err := New().Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)

	assert.Equal(t, []string{"text.go"}, collect(t, results))
}

func TestScanRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\nbuild/\n")
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "debug.log", "trace\n")
	writeFile(t, root, "build/out.go", "package out\n")
	writeFile(t, root, "sub/.gitignore", "secret.txt\n")
	writeFile(t, root, "sub/secret.txt", "hidden\n")
	writeFile(t, root, "sub/ok.go", "package sub\n")

	results, err := New().Scan(context.Background(), &Options{
		Root:             root,
		RespectGitignore: true,
	})
	require.NoError(t, err)

	paths := collect(t, results)
	assert.ElementsMatch(t, []string{".gitignore", "main.go", "sub/.gitignore", "sub/ok.go"}, paths)
}

func TestScanGitignoreDisabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\n")
	writeFile(t, root, "debug.log", "trace\n")

	results, err := New().Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)

	assert.Contains(t, collect(t, results), "debug.log")
}

func TestScanSubtree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "top.go", "package top\n")
	writeFile(t, root, "internal/api/handler.go", "package api\n")
	writeFile(t, root, "internal/api/handler_test.go", "package api\n")
	writeFile(t, root, "internal/store/store.go", "package store\n")

	results, err := New().ScanSubtree(context.Background(), &Options{Root: root}, "internal/api")
	require.NoError(t, err)

	paths := collect(t, results)
	assert.ElementsMatch(t, []string{"internal/api/handler.go", "internal/api/handler_test.go"}, paths)
}

func TestScanSubtreeHonorsRootGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.tmp\n")
	writeFile(t, root, "sub/keep.go", "package sub\n")
	writeFile(t, root, "sub/scratch.tmp", "x\n")

	results, err := New().ScanSubtree(context.Background(), &Options{
		Root:             root,
		RespectGitignore: true,
	}, "sub")
	require.NoError(t, err)

	assert.Equal(t, []string{"sub/keep.go"}, collect(t, results))
}

func TestScanSymlinksNotFollowed(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.go", "package real\n")
	if err := os.Symlink(filepath.Join(root, "real.go"), filepath.Join(root, "link.go")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	results, err := New().Scan(context.Background(), &Options{Root: root})
	require.NoError(t, err)

	assert.Equal(t, []string{"real.go"}, collect(t, results))
}

func TestScanCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, root, filepath.Join("pkg", "file"+string(rune('a'+i%26))+".go"), "package pkg\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	results, err := New().Scan(ctx, &Options{Root: root})
	require.NoError(t, err)
	cancel()

	// The stream must terminate after cancellation.
	for range results {
	}
}

func TestScanMissingRoot(t *testing.T) {
	_, err := New().Scan(context.Background(), &Options{Root: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)

	_, err = New().Scan(context.Background(), &Options{})
	assert.Error(t, err)
}

func TestScanSubtreeMissing(t *testing.T) {
	root := t.TempDir()
	_, err := New().ScanSubtree(context.Background(), &Options{Root: root}, "missing/dir")
	assert.Error(t, err)
}
