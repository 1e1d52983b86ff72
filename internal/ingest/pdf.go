package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	rpdf "rsc.io/pdf"
)

// maxPDFPages bounds how much of an attachment is read.
const maxPDFPages = 40

// extractPDFText returns the text of a PDF, one line per page. The rsc.io/pdf
// reader panics on some malformed files; those surface as errors.
func extractPDFText(content []byte) (text string, err error) {
	if !bytes.HasPrefix(bytes.TrimSpace(content), []byte("%PDF")) {
		return "", errors.New("not a pdf document")
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	pages := reader.NumPage()
	if pages > maxPDFPages {
		pages = maxPDFPages
	}

	lines := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		words := make([]string, 0, len(page.Content().Text))
		for _, fragment := range page.Content().Text {
			words = append(words, fragment.S)
		}
		if line := normalizeSpace(strings.Join(words, " ")); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "", errors.New("pdf has no extractable text")
	}
	return strings.Join(lines, "\n"), nil
}
