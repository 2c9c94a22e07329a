// Package scanner discovers indexable source files under a project root.
//
// Scan streams results over a channel so large trees never need to be held
// in memory at once. Directory and file exclusions, .gitignore patterns,
// a size cap, and a binary sniff all run during the walk, so consumers only
// ever see files worth indexing.
package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/semidx/semidx/internal/chunk"
	"github.com/semidx/semidx/internal/gitignore"
)

// alwaysExcludeDirs are skipped regardless of configuration.
var alwaysExcludeDirs = []string{".git", ".semidx"}

// alwaysExcludeFiles keeps the tool's own artifacts out of the index.
var alwaysExcludeFiles = []string{".semidx.yaml", ".semidx.yml"}

// Scanner walks a directory tree and reports indexable files.
type Scanner struct{}

// New creates a Scanner.
func New() *Scanner {
	return &Scanner{}
}

// Scan walks opts.Root and streams discovered files. The returned channel is
// closed when the walk completes or ctx is cancelled. Walk errors for
// individual entries are delivered as Result.Err; the walk continues past
// them.
func (s *Scanner) Scan(ctx context.Context, opts *Options) (<-chan Result, error) {
	return s.ScanSubtree(ctx, opts, "")
}

// ScanSubtree walks only the given subtree of opts.Root. Paths in results
// remain relative to the root, and .gitignore files on the path from the
// root down to the subtree still apply. An empty subtree scans the whole
// root.
func (s *Scanner) ScanSubtree(ctx context.Context, opts *Options, subtree string) (<-chan Result, error) {
	if opts == nil || opts.Root == "" {
		return nil, fmt.Errorf("scan root is required")
	}

	absRoot, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving scan root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", opts.Root)
	}

	start := absRoot
	if subtree != "" {
		start = filepath.Join(absRoot, filepath.FromSlash(subtree))
		if _, err := os.Stat(start); err != nil {
			return nil, fmt.Errorf("stat subtree: %w", err)
		}
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var ignore *gitignore.Matcher
	if opts.RespectGitignore {
		ignore = gitignore.New()
		// Pick up .gitignore files above the subtree before walking it.
		loadAncestorGitignores(ignore, absRoot, start)
	}

	out := make(chan Result, 64)
	go func() {
		defer close(out)

		_ = filepath.WalkDir(start, func(path string, d fs.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if walkErr != nil {
				select {
				case out <- Result{Err: fmt.Errorf("walking %s: %w", path, walkErr)}:
				case <-ctx.Done():
					return ctx.Err()
				}
				return nil
			}

			rel, err := filepath.Rel(absRoot, path)
			if err != nil || rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if excludeDir(rel, opts.Exclude) {
					return filepath.SkipDir
				}
				if ignore != nil {
					if ignore.Match(rel, true) {
						return filepath.SkipDir
					}
					_ = loadGitignore(ignore, path, rel)
				}
				return nil
			}

			// Symlinks are never followed.
			if d.Type()&fs.ModeSymlink != 0 {
				return nil
			}

			fi, err := d.Info()
			if err != nil {
				return nil
			}
			if fi.Size() > maxSize {
				return nil
			}
			if excludeFile(rel, opts.Exclude) {
				return nil
			}
			if ignore != nil && ignore.Match(rel, false) {
				return nil
			}
			if len(opts.Include) > 0 && !matchAny(rel, opts.Include) {
				return nil
			}
			if isBinary(path) {
				return nil
			}

			result := Result{File: &FileInfo{
				Path:     rel,
				AbsPath:  path,
				Size:     fi.Size(),
				ModTime:  fi.ModTime(),
				Language: chunk.DetectLanguage(rel),
			}}
			select {
			case out <- result:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}()

	return out, nil
}

// loadAncestorGitignores loads .gitignore files from root down to (but not
// including) the walk start directory, with bases relative to root.
func loadAncestorGitignores(m *gitignore.Matcher, root, start string) {
	rel, err := filepath.Rel(root, start)
	if err != nil || rel == "." {
		_ = loadGitignore(m, root, "")
		return
	}

	dir := root
	base := ""
	_ = loadGitignore(m, dir, base)
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if part == "" {
			continue
		}
		dir = filepath.Join(dir, part)
		if dir == start {
			break
		}
		base = strings.TrimPrefix(base+"/"+part, "/")
		_ = loadGitignore(m, dir, base)
	}
}

func loadGitignore(m *gitignore.Matcher, dir, base string) error {
	err := m.AddFromFile(filepath.Join(dir, ".gitignore"), base)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// excludeDir reports whether a directory should be skipped entirely.
func excludeDir(rel string, patterns []string) bool {
	for _, p := range alwaysExcludeDirs {
		if matchSegment(rel, p) {
			return true
		}
	}
	for _, p := range patterns {
		if matchSegment(rel, strings.TrimSuffix(p, "/")) {
			return true
		}
	}
	return false
}

// excludeFile reports whether a file matches any exclude pattern.
func excludeFile(rel string, patterns []string) bool {
	base := rel[strings.LastIndex(rel, "/")+1:]
	for _, p := range alwaysExcludeFiles {
		if base == p {
			return true
		}
	}
	for _, p := range patterns {
		if matchPattern(rel, p) {
			return true
		}
	}
	return false
}

func matchAny(rel string, patterns []string) bool {
	for _, p := range patterns {
		if matchPattern(rel, p) {
			return true
		}
	}
	return false
}

// matchSegment reports whether any path segment of rel equals name, or the
// whole path matches it as a glob.
func matchSegment(rel, name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if part == name {
			return true
		}
		if ok, _ := filepath.Match(name, part); ok {
			return true
		}
	}
	return false
}

// matchPattern matches rel against a single exclude or include pattern.
// Supported forms: bare names and globs matched against every path segment
// and the basename, "dir/**" prefixes, and "**/x" suffixes.
func matchPattern(rel, pattern string) bool {
	pattern = strings.TrimSuffix(pattern, "/")
	if pattern == "" {
		return false
	}

	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return rel == prefix || strings.HasPrefix(rel, prefix+"/")
	}
	if strings.HasPrefix(pattern, "**/") {
		pattern = strings.TrimPrefix(pattern, "**/")
	}

	base := rel[strings.LastIndex(rel, "/")+1:]
	if ok, _ := filepath.Match(pattern, base); ok {
		return true
	}
	if ok, _ := filepath.Match(pattern, rel); ok {
		return true
	}
	return matchSegment(rel, pattern)
}

// isBinary sniffs the first 512 bytes for a null byte.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
