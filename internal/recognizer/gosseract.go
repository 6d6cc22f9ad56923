//go:build gosseract

package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"

	"github.com/platewatch/platewatch/internal/conf"
)

// GosseractExtractor calls libtesseract in process through cgo.
type GosseractExtractor struct {
	language string
	psm      gosseract.PageSegMode
}

func newGosseractExtractor(settings conf.OCRSettings) (TextExtractor, error) {
	language := settings.Language
	if language == "" {
		language = "eng"
	}
	psm := settings.PSM
	if psm == 0 {
		psm = defaultPSM
	}
	return &GosseractExtractor{language: language, psm: gosseract.PageSegMode(psm)}, nil
}

// Extract runs recognition on its own client. libtesseract cannot be
// interrupted, so a cancelled ctx returns early and the call finishes in the background.
func (g *GosseractExtractor) Extract(ctx context.Context, img *image.Gray) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encoding image for tesseract: %w", err)
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		client := gosseract.NewClient()
		defer client.Close()

		if err := client.SetLanguage(g.language); err != nil {
			done <- result{err: err}
			return
		}
		if err := client.SetPageSegMode(g.psm); err != nil {
			done <- result{err: err}
			return
		}
		if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
			done <- result{err: err}
			return
		}
		text, err := client.Text()
		done <- result{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
