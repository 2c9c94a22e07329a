package chunk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractor_DispatchByLanguage(t *testing.T) {
	e := NewExtractor(Options{SmallFileBytes: 1})
	defer e.Close()
	ctx := context.Background()

	// Go goes through the AST path.
	goChunks, err := e.Extract(ctx, &FileInput{
		Path:     "a.go",
		Content:  []byte("package a\n\n// F does nothing.\nfunc F() {}\n"),
		Language: "go",
	})
	require.NoError(t, err)
	require.Len(t, goChunks, 1)
	assert.Equal(t, TypeFunction, goChunks[0].Type)

	// Markdown goes through the header path.
	mdChunks, err := e.Extract(ctx, &FileInput{
		Path:     "a.md",
		Content:  []byte("# Title\n\nBody text.\n"),
		Language: "markdown",
	})
	require.NoError(t, err)
	require.Len(t, mdChunks, 1)
	assert.Equal(t, TypeSection, mdChunks[0].Type)

	// Unregistered languages fall to the paragraph strategy.
	txtChunks, err := e.Extract(ctx, &FileInput{
		Path:     "main.rs",
		Content:  []byte("fn main() {\n    println!(\"hi\");\n}\n"),
		Language: "rust",
	})
	require.NoError(t, err)
	require.Len(t, txtChunks, 1)
	assert.Equal(t, TypeParagraph, txtChunks[0].Type)
}

func TestExtractor_LineRangesWithinFileBounds(t *testing.T) {
	e := NewExtractor(Options{SmallFileBytes: 1})
	defer e.Close()

	inputs := []*FileInput{
		{Path: "a.go", Language: "go", Content: []byte("package a\n\nfunc F() {}\n\nfunc G() {}\n")},
		{Path: "b.md", Language: "markdown", Content: []byte("# A\n\ntext\n\n## B\n\nmore\n")},
		{Path: "c.txt", Language: "text", Content: []byte("para one\n\npara two\n")},
	}

	for _, in := range inputs {
		chunks, err := e.Extract(context.Background(), in)
		require.NoError(t, err, in.Path)

		lineCount := len(strings.Split(strings.TrimRight(string(in.Content), "\n"), "\n"))
		for _, c := range chunks {
			assert.GreaterOrEqual(t, c.StartLine, 1, in.Path)
			assert.LessOrEqual(t, c.StartLine, c.EndLine, in.Path)
			assert.LessOrEqual(t, c.EndLine, lineCount, in.Path)
		}
	}
}

// largeGoSource builds a Go file above the small-file threshold so it
// goes through the AST parser instead of the whole-file shortcut.
func largeGoSource() []byte {
	var b strings.Builder
	b.WriteString("package gen\n\n")
	for i := 0; b.Len() < 2*DefaultSmallFileBytes; i++ {
		fmt.Fprintf(&b, "// Handler%d validates the request and writes the response.\n"+
			"func Handler%d(w io.Writer) error {\n"+
			"\tif w == nil {\n\t\treturn errNilWriter\n\t}\n"+
			"\t_, err := w.Write([]byte(\"ok\"))\n\treturn err\n}\n\n", i, i)
	}
	return []byte(b.String())
}

func largePythonSource() []byte {
	var b strings.Builder
	for i := 0; b.Len() < 2*DefaultSmallFileBytes; i++ {
		fmt.Fprintf(&b, "def handler_%d(request):\n"+
			"    \"\"\"Validate the request body.\"\"\"\n"+
			"    if request is None:\n        raise ValueError(\"no request\")\n"+
			"    return request.body\n\n", i)
	}
	return []byte(b.String())
}

func TestExtractor_ConcurrentExtract(t *testing.T) {
	e := NewExtractor(Options{})
	defer e.Close()

	// The indexer drives one extractor from a pool of workers, so
	// parallel Extract calls on parser-sized files must be safe.
	files := []*FileInput{
		{Path: "gen.go", Content: largeGoSource(), Language: "go"},
		{Path: "gen.py", Content: largePythonSource(), Language: "python"},
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				file := files[(worker+j)%len(files)]
				chunks, err := e.Extract(context.Background(), file)
				if err != nil {
					t.Errorf("extract %s: %v", file.Path, err)
					return
				}
				if len(chunks) < 2 {
					t.Errorf("extract %s: got %d chunks, want one per definition", file.Path, len(chunks))
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"app.py", "python"},
		{"index.js", "javascript"},
		{"comp.jsx", "jsx"},
		{"lib.ts", "typescript"},
		{"view.tsx", "tsx"},
		{"README.md", "markdown"},
		{"config.yaml", "yaml"},
		{"data.json", "json"},
		{"notes.txt", "text"},
		{"Makefile", "text"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.path), tt.path)
	}
}
