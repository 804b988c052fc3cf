package ocr

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
)

func relaxedConf() *pdfmodel.Configuration {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages in a PDF.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), relaxedConf())
	if err != nil {
		return 0, eris.Wrap(err, "ocr: read pdf page count")
	}
	return n, nil
}

// LoadPages reads the PDF at path and, when it has more than maxPages pages,
// returns a copy trimmed to the first maxPages. The second value is the page
// count of the returned document.
func LoadPages(path string, maxPages int) ([]byte, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "ocr: read pdf %s", path)
	}
	pages, err := PageCount(data)
	if err != nil {
		return nil, 0, err
	}
	if pages == 0 {
		return nil, 0, eris.Errorf("ocr: pdf %s has no pages", path)
	}
	if maxPages <= 0 || pages <= maxPages {
		return data, pages, nil
	}

	var buf bytes.Buffer
	selected := []string{fmt.Sprintf("1-%d", maxPages)}
	if err := api.Trim(bytes.NewReader(data), &buf, selected, relaxedConf()); err != nil {
		return nil, 0, eris.Wrapf(err, "ocr: trim pdf %s to %d pages", path, maxPages)
	}
	return buf.Bytes(), maxPages, nil
}
