package codeindex

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/context-fabric/contextfabric/internal/model"
)

// LanguageTier classifies how much symbol extraction a language gets
// (spec §4.8).
type LanguageTier int

const (
	// TierChunksOnly languages get line-based chunks but no symbol
	// extraction.
	TierChunksOnly LanguageTier = iota
	// TierFunctionsAndClasses covers Java, C#, Ruby, C/C++: functions and
	// classes only.
	TierFunctionsAndClasses
	// TierFull covers TypeScript/JavaScript/Python/Rust/Go: functions,
	// classes, interfaces, types, enums, consts, exports, methods, doc
	// comments.
	TierFull
)

// LanguageConfig describes one supported language's tree-sitter grammar and
// the node types that define each kind of symbol, grounded on the teacher's
// internal/chunk/languages.go LanguageConfig.
type LanguageConfig struct {
	Name           string
	Extensions     []string
	Tier           LanguageTier
	FunctionTypes  []string
	ClassTypes     []string
	InterfaceTypes []string
	MethodTypes    []string
	TypeDefTypes   []string
	ConstantTypes  []string
	EnumTypes      []string
	ExportTypes    []string
}

// LanguageRegistry maps file extensions and language names to their
// tree-sitter grammar and symbol-extraction configuration.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry builds a registry covering every tier-1 and tier-2
// language named in spec §4.8.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}
	r.registerGo()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerPython()
	r.registerRust()
	r.registerJava()
	r.registerCSharp()
	r.registerRuby()
	r.registerCPP()
	return r
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the process-wide language registry.
func DefaultRegistry() *LanguageRegistry { return defaultRegistry }

func (r *LanguageRegistry) register(cfg *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
	r.tsLanguages[cfg.Name] = tsLang
	for _, ext := range cfg.Extensions {
		r.extToLang[ext] = cfg.Name
	}
}

// GetByExtension returns the language config for a file extension (with or
// without the leading dot).
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	cfg, ok := r.configs[name]
	return cfg, ok
}

// GetByName returns the language config by name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	return cfg, ok
}

// GetTreeSitterLanguage returns the tree-sitter grammar for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[name]
	return lang, ok
}

func (r *LanguageRegistry) registerGo() {
	r.register(&LanguageConfig{
		Name:          "go",
		Extensions:    []string{".go"},
		Tier:          TierFull,
		FunctionTypes: []string{"function_declaration"},
		MethodTypes:   []string{"method_declaration"},
		TypeDefTypes:  []string{"type_declaration"},
		ConstantTypes: []string{"const_declaration"},
	}, golang.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	ts := &LanguageConfig{
		Name:           "typescript",
		Extensions:     []string{".ts"},
		Tier:           TierFull,
		FunctionTypes:  []string{"function_declaration"},
		MethodTypes:    []string{"method_definition"},
		ClassTypes:     []string{"class_declaration"},
		InterfaceTypes: []string{"interface_declaration"},
		TypeDefTypes:   []string{"type_alias_declaration"},
		ConstantTypes:  []string{"lexical_declaration"},
		EnumTypes:      []string{"enum_declaration"},
		ExportTypes:    []string{"export_statement"},
	}
	r.register(ts, typescript.GetLanguage())

	tsxCfg := *ts
	tsxCfg.Name = "tsx"
	tsxCfg.Extensions = []string{".tsx"}
	r.register(&tsxCfg, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	js := &LanguageConfig{
		Name:          "javascript",
		Extensions:    []string{".js", ".mjs"},
		Tier:          TierFull,
		FunctionTypes: []string{"function_declaration", "function"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration"},
		ConstantTypes: []string{"lexical_declaration"},
		ExportTypes:   []string{"export_statement"},
	}
	r.register(js, javascript.GetLanguage())

	jsxCfg := *js
	jsxCfg.Name = "jsx"
	jsxCfg.Extensions = []string{".jsx"}
	r.register(&jsxCfg, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	r.register(&LanguageConfig{
		Name:          "python",
		Extensions:    []string{".py"},
		Tier:          TierFull,
		FunctionTypes: []string{"function_definition"},
		ClassTypes:    []string{"class_definition"},
	}, python.GetLanguage())
}

func (r *LanguageRegistry) registerRust() {
	r.register(&LanguageConfig{
		Name:           "rust",
		Extensions:     []string{".rs"},
		Tier:           TierFull,
		FunctionTypes:  []string{"function_item"},
		ClassTypes:     []string{"struct_item"},
		InterfaceTypes: []string{"trait_item"},
		TypeDefTypes:   []string{"type_item"},
		ConstantTypes:  []string{"const_item"},
		EnumTypes:      []string{"enum_item"},
	}, rust.GetLanguage())
}

func (r *LanguageRegistry) registerJava() {
	r.register(&LanguageConfig{
		Name:          "java",
		Extensions:    []string{".java"},
		Tier:          TierFunctionsAndClasses,
		FunctionTypes: []string{"method_declaration"},
		ClassTypes:    []string{"class_declaration"},
	}, java.GetLanguage())
}

func (r *LanguageRegistry) registerCSharp() {
	r.register(&LanguageConfig{
		Name:          "csharp",
		Extensions:    []string{".cs"},
		Tier:          TierFunctionsAndClasses,
		FunctionTypes: []string{"method_declaration"},
		ClassTypes:    []string{"class_declaration"},
	}, csharp.GetLanguage())
}

func (r *LanguageRegistry) registerRuby() {
	r.register(&LanguageConfig{
		Name:          "ruby",
		Extensions:    []string{".rb"},
		Tier:          TierFunctionsAndClasses,
		FunctionTypes: []string{"method"},
		ClassTypes:    []string{"class"},
	}, ruby.GetLanguage())
}

func (r *LanguageRegistry) registerCPP() {
	cfg := &LanguageConfig{
		Name:          "cpp",
		Extensions:    []string{".cpp", ".cc", ".cxx", ".hpp", ".h", ".c"},
		Tier:          TierFunctionsAndClasses,
		FunctionTypes: []string{"function_definition"},
		ClassTypes:    []string{"struct_specifier", "class_specifier"},
	}
	r.register(cfg, cpp.GetLanguage())
}

// LanguageForPath returns the registered language name for a file path's
// extension, or "" when the extension is not registered (the index skips
// such files).
func LanguageForPath(path string) string {
	cfg, ok := DefaultRegistry().GetByExtension(extOf(path))
	if !ok {
		return ""
	}
	return cfg.Name
}

func extOf(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return path[idx:]
}

// symbolKindFor maps a matched node-type category to the shared
// model.SymbolKind enum.
func symbolKindFor(category string) model.SymbolKind {
	switch category {
	case "function":
		return model.SymbolFunction
	case "method":
		return model.SymbolMethod
	case "class":
		return model.SymbolClass
	case "interface":
		return model.SymbolInterface
	case "type":
		return model.SymbolType
	case "const":
		return model.SymbolConst
	case "enum":
		return model.SymbolEnum
	case "export":
		return model.SymbolExport
	default:
		return model.SymbolType
	}
}
