// Package ingest turns raw uploads into indexed documents: it extracts
// plain text from the supported formats and feeds an async worker that
// embeds and inserts the result into the similarity index.
package ingest

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// maxExtractedBytes caps extracted text at 1MB.
const maxExtractedBytes = 1 << 20

// Supported source formats.
const (
	FormatText = "text"
	FormatHTML = "html"
	FormatPDF  = "pdf"
)

// DetectFormat sniffs the format from content when the caller did not
// name one. PDF is recognized by magic bytes, HTML by a leading tag.
func DetectFormat(data []byte) string {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return FormatPDF
	}
	trimmed := bytes.TrimLeftFunc(data, unicode.IsSpace)
	if bytes.HasPrefix(trimmed, []byte("<")) {
		lower := bytes.ToLower(trimmed)
		if bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html")) {
			return FormatHTML
		}
	}
	return FormatText
}

// ExtractText returns the plain text of data in the given format. Empty
// format triggers detection.
func ExtractText(data []byte, format string) (string, error) {
	if format == "" {
		format = DetectFormat(data)
	}
	switch format {
	case FormatText:
		return truncate(strings.TrimSpace(string(data))), nil
	case FormatHTML:
		return extractHTML(data)
	case FormatPDF:
		return extractPDF(data)
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}

// extractHTML walks the parsed tree collecting text nodes, skipping
// script and style subtrees.
func extractHTML(data []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return truncate(sb.String()), nil
}

// extractPDF extracts the plain text of every page. Pages that fail
// extraction are skipped rather than failing the document.
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	if reader.NumPage() == 0 {
		return "", fmt.Errorf("pdf has no pages")
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(normalizeWhitespace(text))
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(text)
		if sb.Len() > maxExtractedBytes {
			break
		}
	}
	return truncate(sb.String()), nil
}

func normalizeWhitespace(text string) string {
	var sb strings.Builder
	lastWasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) && r != '\n' {
			if !lastWasSpace {
				sb.WriteByte(' ')
			}
			lastWasSpace = true
			continue
		}
		sb.WriteRune(r)
		lastWasSpace = false
	}
	return sb.String()
}

func truncate(text string) string {
	if len(text) <= maxExtractedBytes {
		return text
	}
	// Back off to a rune boundary so the cap never leaves invalid UTF-8.
	cut := maxExtractedBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
