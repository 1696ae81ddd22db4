// Package lang implements the language detector (spec.md §4.2,
// component C2): a pure function from a file path to a grammar tag.
package lang

import (
	"bufio"
	"bytes"
	"strings"
)

// PlainText is the tag returned for any path lang cannot classify.
// Returning it is always safe: it forces the chunker's fallback path.
const PlainText = ""

// astable is the closed set of grammars the chunker can walk with
// tree-sitter (internal/chunk's LanguageRegistry). Every other
// recognised language still gets a name for display/filtering
// purposes, but chunk falls back to the line-window chunker for it.
var astable = map[string]bool{
	"go":         true,
	"typescript": true,
	"tsx":        true,
	"javascript": true,
	"jsx":        true,
	"python":     true,
}

// ASTAble reports whether the chunker has a grammar registered for tag.
func ASTAble(tag string) bool {
	return astable[tag]
}

// extByName maps an extension or bare filename to a language tag.
var extByName = map[string]string{
	".go":         "go",
	".js":         "javascript",
	".jsx":        "jsx",
	".mjs":        "javascript",
	".cjs":        "javascript",
	".ts":         "typescript",
	".tsx":        "tsx",
	".py":         "python",
	".pyw":        "python",
	".pyi":        "python",
	".html":       "html",
	".htm":        "html",
	".css":        "css",
	".scss":       "scss",
	".sass":       "sass",
	".less":       "less",
	".json":       "json",
	".yaml":       "yaml",
	".yml":        "yaml",
	".toml":       "toml",
	".xml":        "xml",
	".ini":        "ini",
	".conf":       "config",
	".properties": "properties",
	".md":         "markdown",
	".mdx":        "markdown",
	".markdown":   "markdown",
	".rst":        "rst",
	".txt":        "text",
	".sh":         "shell",
	".bash":       "shell",
	".zsh":        "shell",
	".fish":       "fish",
	".rb":         "ruby",
	".rake":       "ruby",
	".erb":        "erb",
	".rs":         "rust",
	".java":       "java",
	".kt":         "kotlin",
	".kts":        "kotlin",
	".c":          "c",
	".h":          "c",
	".cpp":        "cpp",
	".hpp":        "cpp",
	".cc":         "cpp",
	".cxx":        "cpp",
	".cs":         "csharp",
	".swift":      "swift",
	".php":        "php",
	".scala":      "scala",
	".ex":         "elixir",
	".exs":        "elixir",
	".erl":        "erlang",
	".hs":         "haskell",
	".lua":        "lua",
	".r":          "r",
	".sql":        "sql",
	".vue":        "vue",
	".svelte":     "svelte",
	".graphql":    "graphql",
	".gql":        "graphql",
	".proto":      "protobuf",
	"Dockerfile":  "dockerfile",
	"Makefile":    "makefile",
	"makefile":    "makefile",
	"GNUmakefile": "makefile",
}

// shebangLangs maps the first path component after "#!" to a tag,
// used when a file has no recognised extension (spec.md §4.2: "small
// content sniffs (e.g. shebang) where extensions are ambiguous").
var shebangLangs = map[string]string{
	"python":  "python",
	"python3": "python",
	"node":    "javascript",
	"bash":    "shell",
	"sh":      "shell",
	"zsh":     "shell",
	"ruby":    "ruby",
	"perl":    "perl",
}

// Detect maps a file path to a language tag, using extension first
// and falling back to a shebang sniff of content if provided.
// Returning PlainText is always safe.
func Detect(path string, content []byte) string {
	base := baseName(path)
	if t, ok := extByName[base]; ok {
		return t
	}

	ext := extension(path)
	if t, ok := extByName[ext]; ok {
		return t
	}

	if len(content) > 0 {
		if t := sniffShebang(content); t != PlainText {
			return t
		}
	}

	return PlainText
}

func sniffShebang(content []byte) string {
	if !bytes.HasPrefix(content, []byte("#!")) {
		return PlainText
	}
	scanner := bufio.NewScanner(bytes.NewReader(content))
	if !scanner.Scan() {
		return PlainText
	}
	line := scanner.Text()
	fields := strings.Fields(line)
	for _, f := range fields {
		f = strings.TrimPrefix(f, "#!")
		name := baseName(f)
		if name == "env" {
			continue
		}
		if lang, ok := shebangLangs[name]; ok {
			return lang
		}
	}
	return PlainText
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

func extension(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' || path[i] == '\\' {
			break
		}
	}
	return ""
}
