// Package store persists indexed chunks across three backends: SQLite
// for chunk metadata, Bleve for BM25 keyword search, and an HNSW graph
// for vector search. The Store facade keeps the three consistent.
package store

import (
	"path/filepath"
	"strings"
	"time"
)

// Chunk is a retrievable unit of indexed content.
type Chunk struct {
	ID        string            // opaque, assigned at commit time
	Path      string            // relative to project root, slash-separated
	Content   string            `json:",omitempty"`
	StartLine int               // 1-indexed
	EndLine   int               // inclusive
	ChunkType string            // function, class, method, interface, type, section, paragraph, block
	Name      string            // symbol or section title, may be empty
	Language  string
	Branch    string            // git branch at index time, may be empty
	FileHash  string            // content hash of the source file
	IndexedAt time.Time
	Metadata  map[string]string `json:",omitempty"`
}

// FileRecord tracks an indexed file.
type FileRecord struct {
	Path      string
	Hash      string // sha256 of content
	Size      int64
	ModTime   time.Time
	Language  string
	IndexedAt time.Time
}

// IndexStats summarizes the index contents.
type IndexStats struct {
	TotalFiles     int            `json:"total_files"`
	TotalChunks    int            `json:"total_chunks"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	Languages      map[string]int `json:"languages"` // language -> chunk count
	LastIndexed    time.Time      `json:"last_indexed"`
}

// Filter narrows search results by chunk metadata. Empty fields match
// everything. Filters are applied before result truncation so a
// filtered search still returns up to the requested limit.
type Filter struct {
	Extensions  []string // file extensions including the dot, e.g. ".go"
	Directories []string // path prefixes relative to project root
	ChunkTypes  []string
	Languages   []string
	PathPrefix  string
	Branch      string
}

// IsZero reports whether the filter matches everything.
func (f *Filter) IsZero() bool {
	if f == nil {
		return true
	}
	return len(f.Extensions) == 0 && len(f.Directories) == 0 &&
		len(f.ChunkTypes) == 0 && len(f.Languages) == 0 &&
		f.PathPrefix == "" && f.Branch == ""
}

// Match reports whether a chunk passes the filter.
func (f *Filter) Match(c *Chunk) bool {
	if f.IsZero() {
		return true
	}

	if len(f.Extensions) > 0 {
		ext := filepath.Ext(c.Path)
		if !containsFold(f.Extensions, ext) {
			return false
		}
	}

	if len(f.Directories) > 0 {
		matched := false
		for _, dir := range f.Directories {
			if underDir(c.Path, dir) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(f.ChunkTypes) > 0 && !containsFold(f.ChunkTypes, c.ChunkType) {
		return false
	}

	if len(f.Languages) > 0 && !containsFold(f.Languages, c.Language) {
		return false
	}

	if f.PathPrefix != "" && !strings.HasPrefix(c.Path, f.PathPrefix) {
		return false
	}

	if f.Branch != "" && c.Branch != f.Branch {
		return false
	}

	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}

// underDir reports whether path is dir itself or inside it.
func underDir(path, dir string) bool {
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" || dir == "." {
		return true
	}
	return path == dir || strings.HasPrefix(path, dir+"/")
}

// KeywordResult is a single BM25 search hit.
type KeywordResult struct {
	ID           string
	Score        float64
	MatchedTerms []string
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID       string
	Distance float32 // cosine distance, 0 (identical) to 2 (opposite)
	Score    float32 // normalized similarity in [0, 1]
}

// Meta keys recorded in SQLite so an index can detect when it was
// built with a different embedding setup.
const (
	MetaKeyEmbedModel      = "embed_model"
	MetaKeyEmbedDimensions = "embed_dimensions"
)
