package codeindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageForPath(t *testing.T) {
	cases := map[string]string{
		"main.go":              "go",
		"src/app.ts":           "typescript",
		"src/app.tsx":          "tsx",
		"lib/util.js":          "javascript",
		"lib/util.jsx":         "jsx",
		"scripts/run.py":       "python",
		"core/lib.rs":          "rust",
		"App.java":             "java",
		"Program.cs":           "csharp",
		"app.rb":                "ruby",
		"engine.cpp":           "cpp",
		"README.md":            "",
		"noextension":          "",
	}
	for path, want := range cases {
		assert.Equal(t, want, LanguageForPath(path), "path=%s", path)
	}
}

func TestRegistryTiers(t *testing.T) {
	reg := DefaultRegistry()

	full := []string{"go", "typescript", "javascript", "python", "rust"}
	for _, lang := range full {
		cfg, ok := reg.GetByName(lang)
		require.True(t, ok, lang)
		assert.Equal(t, TierFull, cfg.Tier, lang)
	}

	functionsAndClasses := []string{"java", "csharp", "ruby", "cpp"}
	for _, lang := range functionsAndClasses {
		cfg, ok := reg.GetByName(lang)
		require.True(t, ok, lang)
		assert.Equal(t, TierFunctionsAndClasses, cfg.Tier, lang)
	}
}

func TestGetByExtension(t *testing.T) {
	reg := DefaultRegistry()
	cfg, ok := reg.GetByExtension(".go")
	require.True(t, ok)
	assert.Equal(t, "go", cfg.Name)

	_, ok = reg.GetByExtension(".unknown")
	assert.False(t, ok)
}

func TestGetTreeSitterLanguage(t *testing.T) {
	reg := DefaultRegistry()
	lang, ok := reg.GetTreeSitterLanguage("go")
	require.True(t, ok)
	assert.NotNil(t, lang)

	_, ok = reg.GetTreeSitterLanguage("not-a-language")
	assert.False(t, ok)
}
