package chunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageConfig describes how definitions are recognized for one language.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// DefinitionTypes maps top-level AST node types to the chunk type they
	// produce.
	DefinitionTypes map[string]Type

	// WrapperTypes are node types that wrap a definition (python's
	// decorated_definition). The wrapper's span is used so decorators stay
	// attached to the chunk.
	WrapperTypes []string

	// LineComment is the language's line comment prefix, used to pull
	// leading documentation comments into a definition's chunk.
	LineComment string
}

// LanguageRegistry manages supported languages and their configurations.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a registry with the default language set.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.registerGo()
	r.registerPython()
	r.registerJavaScript()
	r.registerTypeScript()

	return r
}

// GetByName returns the language configuration by name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, ok := r.configs[name]
	return config, ok
}

// GetByExtension returns the language configuration for a file extension.
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	langName, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}

	config, ok := r.configs[langName]
	return config, ok
}

// GetTreeSitterLanguage returns the tree-sitter language for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// Supports reports whether the named language has an AST configuration.
func (r *LanguageRegistry) Supports(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.configs[name]
	return ok
}

func (r *LanguageRegistry) registerLanguage(config *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[config.Name] = config
	r.tsLanguages[config.Name] = tsLang

	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

func (r *LanguageRegistry) registerGo() {
	config := &LanguageConfig{
		Name:       "go",
		Extensions: []string{".go"},
		DefinitionTypes: map[string]Type{
			"function_declaration": TypeFunction,
			"method_declaration":   TypeMethod,
			"type_declaration":     TypeTypeDef,
		},
		LineComment: "//",
	}
	r.registerLanguage(config, golang.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	config := &LanguageConfig{
		Name:       "python",
		Extensions: []string{".py"},
		DefinitionTypes: map[string]Type{
			"function_definition": TypeFunction,
			"class_definition":    TypeClass,
		},
		WrapperTypes: []string{"decorated_definition"},
		LineComment:  "#",
	}
	r.registerLanguage(config, python.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	jsConfig := &LanguageConfig{
		Name:       "javascript",
		Extensions: []string{".js", ".mjs"},
		DefinitionTypes: map[string]Type{
			"function_declaration": TypeFunction,
			"class_declaration":    TypeClass,
			"method_definition":    TypeMethod,
		},
		LineComment: "//",
	}
	r.registerLanguage(jsConfig, javascript.GetLanguage())

	// JSX uses the same grammar.
	jsxConfig := &LanguageConfig{
		Name:            "jsx",
		Extensions:      []string{".jsx"},
		DefinitionTypes: jsConfig.DefinitionTypes,
		LineComment:     jsConfig.LineComment,
	}
	r.registerLanguage(jsxConfig, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	tsConfig := &LanguageConfig{
		Name:       "typescript",
		Extensions: []string{".ts"},
		DefinitionTypes: map[string]Type{
			"function_declaration":   TypeFunction,
			"class_declaration":      TypeClass,
			"method_definition":      TypeMethod,
			"interface_declaration":  TypeInterface,
			"type_alias_declaration": TypeTypeDef,
		},
		LineComment: "//",
	}
	r.registerLanguage(tsConfig, typescript.GetLanguage())

	tsxConfig := &LanguageConfig{
		Name:            "tsx",
		Extensions:      []string{".tsx"},
		DefinitionTypes: tsConfig.DefinitionTypes,
		LineComment:     tsConfig.LineComment,
	}
	r.registerLanguage(tsxConfig, tsx.GetLanguage())
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the process-wide language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
