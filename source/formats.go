package source

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// readText returns the file as UTF-8, decoding Latin-1 when the bytes are not
// valid UTF-8.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes), nil
}

func loadMarkup(path string) (string, error) {
	raw, err := readText(path)
	if err != nil {
		return "", err
	}
	return stripMarkup(raw), nil
}

func loadPlain(path string) (string, error) {
	raw, err := readText(path)
	if err != nil {
		return "", err
	}
	// Some EDGAR .txt submissions embed the HTML document
	if looksLikeMarkup(raw) {
		return stripMarkup(raw), nil
	}
	return normalizeWhitespace(raw), nil
}

func looksLikeMarkup(raw string) bool {
	head := strings.ToLower(strings.TrimSpace(raw))
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.HasPrefix(head, "<?xml") ||
		strings.HasPrefix(head, "<!doctype") ||
		strings.HasPrefix(head, "<html") ||
		strings.Contains(head, "<sec-document>") ||
		strings.Contains(head, "<document>")
}

func loadMarkdown(path string) (string, error) {
	raw, err := readText(path)
	if err != nil {
		return "", err
	}
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert([]byte(raw), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return stripMarkup(buf.String()), nil
}

func loadPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return normalizeWhitespace(strings.Join(pages, "\n\n")), nil
}

func loadDOCX(path string) (string, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer r.Close()

	return stripMarkup(r.Editable().GetContent()), nil
}
