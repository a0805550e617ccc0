package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor pulls raw text blocks out of a downloaded document file.
type Extractor interface {
	ExtractText(path string) ([]string, error)
}

// PDFExtractor extracts one text block per PDF page. Files without a .pdf
// extension are read as plain text, one block for the whole file.
type PDFExtractor struct{}

func (PDFExtractor) ExtractText(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return extractPDF(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return []string{string(data)}, nil
}

func extractPDF(path string) ([]string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var blocks []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		if strings.TrimSpace(text) != "" {
			blocks = append(blocks, text)
		}
	}
	return blocks, nil
}
