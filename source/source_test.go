package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestStripMarkup(t *testing.T) {
	raw := `<!DOCTYPE html>
<html><head><title>10-K</title><style>p { color: red }</style></head>
<body>
<script>var x = 1;</script>
<!-- cover page -->
<p>Apple&nbsp;Inc. &amp; Subsidiaries</p>
<div>Revenue was <b>$4.49B</b> in fiscal 2024.</div>
<table><tr><td>EPS</td><td>6.11</td></tr></table>
</body></html>`

	text := stripMarkup(raw)

	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "color")
	assert.NotContains(t, text, "cover page")
	assert.NotContains(t, text, "<")
	assert.Contains(t, text, "Apple Inc. & Subsidiaries")
	assert.Contains(t, text, "Revenue was $4.49B in fiscal 2024.")
	assert.Contains(t, text, "EPS 6.11")
	assert.Contains(t, text, "\n\n", "block elements should become paragraph breaks")
	assert.NotContains(t, text, "\n\n\n")
}

func TestNormalizeWhitespace(t *testing.T) {
	got := normalizeWhitespace("  a   b \r\n\r\n\r\n\r\n c\t\td  ")
	assert.Equal(t, "a b\n\nc d", got)
}

func TestLoader_Discover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "aapl-10k.htm", "<p>a</p>")
	writeFile(t, root, "nested/msft-10k.html", "<p>b</p>")
	writeFile(t, root, "nested/notes.TXT", "c")
	writeFile(t, root, "image.png", "x")
	writeFile(t, root, ".cache/hidden.txt", "x")

	l, err := NewLoader()
	require.NoError(t, err)

	files, err := l.Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"aapl-10k.htm", "nested/msft-10k.html", "nested/notes.TXT"}, files)

	l, err = NewLoader(WithExtensions("txt"))
	require.NoError(t, err)
	files, err = l.Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"nested/notes.TXT"}, files)
}

func TestLoader_DiscoverErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file.txt", "x")

	l, err := NewLoader()
	require.NoError(t, err)

	_, err = l.Discover(filepath.Join(root, "file.txt"))
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = l.Discover(filepath.Join(root, "missing"))
	assert.Error(t, err)

	_, err = NewLoader(WithExtensions(".exe"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoader_Load(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "gdpr.md", "# GDPR\n\nApplies to **all** controllers.\n\n- fines up to 4%\n")
	writeFile(t, root, "plain.txt", "Line one.\n\n\n\nLine   two.")
	writeFile(t, root, "edgar.txt", "<SEC-DOCUMENT>\n<html><p>Item 1. Business</p></html>")
	writeFile(t, root, "latin1.txt", "Soci\xe9t\xe9 G\xe9n\xe9rale")

	l, err := NewLoader()
	require.NoError(t, err)

	doc, err := l.Load(root, "gdpr.md")
	require.NoError(t, err)
	assert.Equal(t, "gdpr.md", doc.FileName)
	assert.Contains(t, doc.Text, "GDPR")
	assert.Contains(t, doc.Text, "Applies to all controllers.")
	assert.Contains(t, doc.Text, "fines up to 4%")

	doc, err = l.Load(root, "plain.txt")
	require.NoError(t, err)
	assert.Equal(t, "Line one.\n\nLine two.", doc.Text)

	doc, err = l.Load(root, "edgar.txt")
	require.NoError(t, err)
	assert.Equal(t, "Item 1. Business", doc.Text)

	doc, err = l.Load(root, "latin1.txt")
	require.NoError(t, err)
	assert.Equal(t, "Société Générale", doc.Text)

	_, err = l.Load(root, "report.xls")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoader_LoadAll(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.html", "<p>Alpha</p>")
	writeFile(t, root, "b.pdf", "not really a pdf")
	writeFile(t, root, "c.txt", "Gamma")

	l, err := NewLoader()
	require.NoError(t, err)

	docs, err := l.LoadAll(context.Background(), root)
	require.Error(t, err, "the broken pdf should be reported")
	assert.Contains(t, err.Error(), "b.pdf")
	require.Len(t, docs, 2)
	assert.Equal(t, "a.html", docs[0].FileName)
	assert.Equal(t, "Alpha", docs[0].Text)
	assert.Equal(t, "c.txt", docs[1].FileName)
}
