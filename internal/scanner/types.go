package scanner

import "time"

// DefaultMaxFileSize is the size cap applied when Options.MaxFileSize is zero.
const DefaultMaxFileSize = 1024 * 1024 // 1 MiB

// FileInfo describes a single discovered source file.
type FileInfo struct {
	// Path is the slash-separated path relative to the scan root.
	Path string

	// AbsPath is the absolute filesystem path.
	AbsPath string

	Size     int64
	ModTime  time.Time
	Language string
}

// Result is one item on the scan stream. Exactly one of File and Err is set.
type Result struct {
	File *FileInfo
	Err  error
}

// Options controls a scan.
type Options struct {
	// Root is the directory to walk. Required.
	Root string

	// Include restricts discovery to files matching at least one pattern.
	// Empty means all files pass.
	Include []string

	// Exclude drops files and directories matching any pattern, in
	// addition to the built-in exclusions.
	Exclude []string

	// MaxFileSize skips files larger than this many bytes. Zero applies
	// DefaultMaxFileSize.
	MaxFileSize int64

	// RespectGitignore honors .gitignore files found during the walk.
	RespectGitignore bool
}
