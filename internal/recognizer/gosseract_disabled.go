//go:build !gosseract

package recognizer

import (
	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/errors"
)

func newGosseractExtractor(conf.OCRSettings) (TextExtractor, error) {
	return nil, errors.Newf("ocr engine %q requires a build with -tags gosseract", EngineGosseract).
		Component("recognizer").
		Category(errors.CategoryConfiguration).
		Build()
}
