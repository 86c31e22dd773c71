package document

import (
	"fmt"

	"github.com/fastctx/fastctx/pkg/models"
	"github.com/tmc/langchaingo/textsplitter"
)

var (
	defaultSeparators = []string{"\n\n", "\n", " ", ""}
	pythonSeparators  = []string{"\nclass ", "\ndef ", "\n\tdef ", "\n\n", "\n", " ", ""}
	cStyleSeparators  = []string{
		"\nfunction ", "\nclass ", "\ninterface ",
		"\npublic ", "\nprivate ", "\nprotected ",
		"\nfunc ", "\ntype ",
		"\n\n", "\n", " ", "",
	}
	markdownSeparators = []string{
		"\n# ", "\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ",
		"\n\n", "\n", " ", "",
	}
)

func separatorsFor(language string) []string {
	switch language {
	case "markdown":
		return markdownSeparators
	case "python":
		return pythonSeparators
	case "javascript", "typescript", "java", "c", "cpp", "csharp", "rust", "go", "php", "swift", "kotlin", "scala":
		return cStyleSeparators
	default:
		return defaultSeparators
	}
}

// Splitter cuts documents into overlapping chunks
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

// NewSplitter creates a splitter; 1000/200 is the usual setting.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

func (s *Splitter) splitterFor(language string) textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.chunkSize),
		textsplitter.WithChunkOverlap(s.chunkOverlap),
		textsplitter.WithSeparators(separatorsFor(language)),
	)
}

// Split returns the chunks of doc. Chunk IDs are "<document id>:<index>".
func (s *Splitter) Split(doc models.Document) ([]models.Chunk, error) {
	language, _ := doc.Metadata[models.MetaLanguage].(string)

	texts, err := s.splitterFor(language).SplitText(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", doc.Path(), err)
	}

	chunks := make([]models.Chunk, 0, len(texts))
	for _, text := range texts {
		if text == "" {
			continue
		}
		idx := len(chunks)
		chunks = append(chunks, models.Chunk{
			ID:         fmt.Sprintf("%s:%d", doc.ID, idx),
			DocumentID: doc.ID,
			Index:      idx,
			Text:       text,
			Metadata: map[string]interface{}{
				models.MetaPath:     doc.Path(),
				models.MetaLanguage: language,
				"chunk_index":       idx,
			},
		})
	}
	return chunks, nil
}

// SplitAll splits every document, failing on the first error.
func (s *Splitter) SplitAll(docs []models.Document) ([]models.Chunk, error) {
	var all []models.Chunk
	for _, doc := range docs {
		chunks, err := s.Split(doc)
		if err != nil {
			return nil, err
		}
		all = append(all, chunks...)
	}
	return all, nil
}
