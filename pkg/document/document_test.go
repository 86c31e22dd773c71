package document_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fastctx/fastctx/pkg/document"
	"github.com/fastctx/fastctx/pkg/models"
	"github.com/fastctx/fastctx/pkg/source"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = zerolog.New(os.Stdout).Level(zerolog.Disabled)

func newLoader() *document.Loader {
	return document.NewLoader(document.LoaderConfig{
		MaxFileSize: 1024,
		Concurrency: 4,
		Walk:        source.DefaultWalkOptions(),
	}, testLogger)
}

func TestLoadFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "pkg", "main.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("\xEF\xBB\xBFpackage main\n"), 0644))

	doc, err := newLoader().LoadFile(context.Background(), root, path)
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, "package main\n", doc.Content, "BOM is stripped")
	assert.Equal(t, "main.go", doc.Metadata[models.MetaFilename])
	assert.Equal(t, "pkg/main.go", doc.Metadata[models.MetaPath])
	assert.Equal(t, "go", doc.Metadata[models.MetaLanguage])
	key := document.DocumentKey(document.Origin(root, nil), "pkg/main.go")
	assert.Equal(t, key, doc.Metadata[models.MetaKey])
	assert.Equal(t, document.DocumentID(key), doc.ID)
	assert.Len(t, doc.Metadata[models.MetaHash], 64)
}

func TestLoadFile_SkipsInvalidUTF8(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "latin1.txt")
	require.NoError(t, os.WriteFile(path, []byte{'c', 'a', 'f', 0xE9}, 0644))

	doc, err := newLoader().LoadFile(context.Background(), root, path)
	assert.NoError(t, err)
	assert.Nil(t, doc)
}

func TestLoadFile_SkipsLargeFiles(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "big.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", 2048)), 0644))

	doc, err := newLoader().LoadFile(context.Background(), root, path)
	assert.NoError(t, err)
	assert.Nil(t, doc)
}

func TestLoadDir(t *testing.T) {
	root := t.TempDir()
	files := map[string][]byte{
		"a.py":        []byte("import os\n"),
		"b/c.ts":      []byte("export const x = 1;\n"),
		"bad.txt":     {0xff, 0xfe, 0x00},
		".git/config": []byte("[core]"),
	}
	for name, data := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, data, 0644))
	}

	result, err := newLoader().LoadDir(context.Background(), root, map[string]interface{}{
		models.MetaGitHubURL: "https://github.com/acme/widgets",
	})
	require.NoError(t, err)

	require.Len(t, result.Documents, 2)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "a.py", result.Documents[0].Path())
	assert.Equal(t, "b/c.ts", result.Documents[1].Path())
	assert.Equal(t, "https://github.com/acme/widgets", result.Documents[1].Metadata[models.MetaGitHubURL])
}

func TestLoadDir_MissingRoot(t *testing.T) {
	result, err := newLoader().LoadDir(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Documents)
}

func TestLoadDir_Cancelled(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newLoader().LoadDir(ctx, root, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitter(t *testing.T) {
	doc := models.Document{
		ID:      "doc1",
		Content: strings.Repeat("func handler() {\n\treturn nil\n}\n\n", 40),
		Metadata: map[string]interface{}{
			models.MetaPath:     "server.go",
			models.MetaLanguage: "go",
		},
	}

	chunks, err := document.NewSplitter(200, 40).Split(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "doc1", c.DocumentID)
		assert.True(t, strings.HasPrefix(c.ID, "doc1:"))
		assert.LessOrEqual(t, len(c.Text), 200)
		assert.Equal(t, "server.go", c.Metadata[models.MetaPath])
	}
}

func TestSplitter_ShortDocument(t *testing.T) {
	doc := models.Document{ID: "d", Content: "# Title\n\nshort", Metadata: map[string]interface{}{models.MetaLanguage: "markdown"}}

	chunks, err := document.NewSplitter(1000, 200).SplitAll([]models.Document{doc})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "d:0", chunks[0].ID)
}

func TestLanguageFromExt(t *testing.T) {
	assert.Equal(t, "python", document.LanguageFromExt(".py"))
	assert.Equal(t, "typescript", document.LanguageFromExt("TSX"))
	assert.Equal(t, "text", document.LanguageFromExt(".weird"))
	assert.Equal(t, "go", document.LanguageFromPath("cmd/main.go"))
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "https://github.com/o/r@main", document.Origin("/tmp/x", map[string]interface{}{
		models.MetaGitHubURL: "https://github.com/o/r",
		models.MetaGitHubRef: "main",
	}))
	assert.Equal(t, "https://github.com/o/r", document.Origin("/tmp/x", map[string]interface{}{
		models.MetaGitHubURL: "https://github.com/o/r",
	}))

	root := t.TempDir()
	assert.Equal(t, filepath.ToSlash(root), document.Origin(root+"/./", nil))
}

func TestLoadDir_KeysAreSourceQualified(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	for _, root := range []string{first, second} {
		require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# "+filepath.Base(root)+"\n"), 0644))
	}

	a, err := newLoader().LoadDir(context.Background(), first, nil)
	require.NoError(t, err)
	b, err := newLoader().LoadDir(context.Background(), second, nil)
	require.NoError(t, err)
	require.Len(t, a.Documents, 1)
	require.Len(t, b.Documents, 1)

	assert.Equal(t, a.Documents[0].Path(), b.Documents[0].Path())
	assert.NotEqual(t, a.Documents[0].Key(), b.Documents[0].Key())
	assert.NotEqual(t, a.Documents[0].ID, b.Documents[0].ID)

	gh, err := newLoader().LoadDir(context.Background(), first, map[string]interface{}{
		models.MetaGitHubURL: "https://github.com/o/r",
		models.MetaGitHubRef: "main",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/o/r@main#README.md", gh.Documents[0].Key())
}
