package document

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

// docxDocumentXMLPath is the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

var (
	// paragraphRe matches a whole <w:p ...>...</w:p> element, attributes included.
	paragraphRe = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)

	// textRunRe matches <w:t>text</w:t> with any attributes.
	textRunRe = regexp.MustCompile(`<w:t(?:\s[^>]*)?>([^<]*)</w:t>`)

	// tabOrBreakRe matches tabs and line breaks inside a paragraph.
	tabOrBreakRe = regexp.MustCompile(`<w:(?:tab|br)\s*/>`)
)

// extractDOCX returns the document text with one line per paragraph.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != docxDocumentXMLPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("extract DOCX: open %s: %w", f.Name, err)
		}
		docXML, err = io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("extract DOCX: read %s: %w", f.Name, err)
		}
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", docxDocumentXMLPath)
	}

	var lines []string
	for _, para := range paragraphRe.FindAllString(string(docXML), -1) {
		para = tabOrBreakRe.ReplaceAllString(para, "<w:t> </w:t>")
		var b strings.Builder
		for _, m := range textRunRe.FindAllStringSubmatch(para, -1) {
			b.WriteString(html.UnescapeString(m[1]))
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
