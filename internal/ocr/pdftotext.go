package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

func (p *PdfToText) args(pdfPath string, maxPages int) []string {
	args := []string{"-layout"}
	if maxPages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(maxPages))
	}
	return append(args, pdfPath, "-")
}

// ExtractText runs pdftotext -layout on the first maxPages pages and
// returns stdout.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string, maxPages int) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, p.args(pdfPath, maxPages)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &ExtractionError{Provider: "pdftotext", Path: pdfPath, Err: eris.Wrapf(err, "pdftotext: %s", strings.TrimSpace(stderr.String()))}
	}

	return Sanitize(stdout.String()), nil
}
