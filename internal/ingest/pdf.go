package ingest

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// ExtractPDF pulls plain text from a PDF document and reports the page count.
func ExtractPDF(data []byte) (text string, pages int, err error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("opening pdf: %w", err)
	}

	pages = r.NumPage()
	var buf strings.Builder
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			// Pages that fail extraction are skipped rather than
			// failing the whole document.
			continue
		}
		buf.WriteString(content)
		buf.WriteString("\n")
	}

	text = normalizeWhitespace(buf.String())
	if text == "" {
		return "", pages, fmt.Errorf("no extractable text in pdf")
	}
	return text, pages, nil
}

var (
	spaceRuns   = regexp.MustCompile(`[ \t\r\f\v]+`)
	newlineRuns = regexp.MustCompile(`\n+`)
)

func normalizeWhitespace(s string) string {
	s = spaceRuns.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "\u00A0", " ")
	s = newlineRuns.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
