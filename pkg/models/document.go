package models

// Metadata keys attached to every loaded document
const (
	MetaFilename  = "filename"
	MetaSource    = "source"
	MetaPath      = "path"
	MetaLanguage  = "language"
	MetaExtension = "extension"
	MetaSize      = "size"
	MetaHash      = "hash"
	MetaGitHubURL = "github_url"
	MetaGitHubRef = "github_ref"
	// MetaKey is the source-qualified path that identifies a document
	// across every ingested root.
	MetaKey = "key"
)

// Document is a decoded source file with its path metadata
type Document struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"page_content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Path returns the root-relative path of the document.
func (d Document) Path() string {
	if p, ok := d.Metadata[MetaPath].(string); ok {
		return p
	}
	return d.ID
}

// Key returns the source-qualified key of the document, falling back to
// the relative path for documents built outside the loader.
func (d Document) Key() string {
	if k, ok := d.Metadata[MetaKey].(string); ok && k != "" {
		return k
	}
	return d.Path()
}

// Chunk is a slice of a document sized for embedding
type Chunk struct {
	ID         string                 `json:"id"`
	DocumentID string                 `json:"document_id"`
	Index      int                    `json:"index"`
	Text       string                 `json:"text"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// ScoredChunk is a similarity search hit
type ScoredChunk struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// ContextItem is one retrieved snippet returned to callers
type ContextItem struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}
