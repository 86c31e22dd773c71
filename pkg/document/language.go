package document

import (
	"path/filepath"
	"strings"
)

var languages = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".json":  "json",
	".java":  "java",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".c":     "c",
	".h":     "c",
	".cs":    "csharp",
	".rb":    "ruby",
	".go":    "go",
	".rs":    "rust",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".xml":   "xml",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".md":    "markdown",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
}

// LanguageFromExt maps a file extension (with or without the dot) to a
// language name, falling back to "text".
func LanguageFromExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if lang, ok := languages[ext]; ok {
		return lang
	}
	return "text"
}

// LanguageFromPath is LanguageFromExt applied to the path's extension.
func LanguageFromPath(path string) string {
	return LanguageFromExt(filepath.Ext(path))
}
