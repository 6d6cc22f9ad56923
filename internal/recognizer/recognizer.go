// Package recognizer turns a frame into a license plate candidate.
package recognizer

import (
	"context"
	"image"
	"image/draw"
	"strings"
	"time"

	"golang.org/x/text/width"

	"github.com/platewatch/platewatch/internal/capture"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
)

// DefaultMinPlateLength is the shortest text accepted as a plate
const DefaultMinPlateLength = 5

// Candidate is normalized plate text: uppercase ASCII letters and digits.
type Candidate string

// TextExtractor reads a single line of text from a grayscale image.
type TextExtractor interface {
	Extract(ctx context.Context, img *image.Gray) (string, error)
}

// Recognizer converts frames to candidates. It keeps no state between calls.
type Recognizer struct {
	extractor TextExtractor
	minLength int
	timeout   time.Duration
	log       logger.Logger
}

// New creates a Recognizer. minLength <= 0 selects DefaultMinPlateLength and
// a zero timeout leaves the extraction call unbounded.
func New(extractor TextExtractor, minLength int, timeout time.Duration) *Recognizer {
	if minLength <= 0 {
		minLength = DefaultMinPlateLength
	}
	return &Recognizer{
		extractor: extractor,
		minLength: minLength,
		timeout:   timeout,
		log:       logger.Global().Module("recognizer"),
	}
}

// Recognize returns the plate candidate in frame, if any. ok is false when the
// extracted text is too short. An extraction that outlives the timeout is
// reported as a timeout error.
func (r *Recognizer) Recognize(ctx context.Context, frame *capture.Frame) (candidate Candidate, ok bool, err error) {
	if frame == nil || frame.Image == nil {
		return "", false, errors.Newf("frame has no image").
			Component("recognizer").
			Category(errors.CategoryValidation).
			Build()
	}

	gray := ToGray(frame.Image)

	extractCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := r.extractor.Extract(extractCtx, gray)
	if err != nil {
		return "", false, r.extractionError(ctx, extractCtx, frame.SourceID, err, time.Since(start))
	}

	candidate, ok = Normalize(text, r.minLength)
	r.log.Trace("text extracted",
		logger.Int("source_id", int(frame.SourceID)),
		logger.String("raw", strings.TrimSpace(text)),
		logger.String("candidate", string(candidate)),
		logger.Bool("accepted", ok),
		logger.Duration("elapsed", time.Since(start)))
	return candidate, ok, nil
}

func (r *Recognizer) extractionError(parent, extractCtx context.Context, sourceID uint, err error, elapsed time.Duration) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	category := errors.CategoryRecognition
	if errors.Is(extractCtx.Err(), context.DeadlineExceeded) {
		category = errors.CategoryTimeout
	}
	return errors.New(err).
		Component("recognizer").
		Category(category).
		Context("source_id", sourceID).
		Timing("extract_text", elapsed).
		Build()
}

// Normalize keeps ASCII letters and digits, uppercases them, and accepts the
// result when it has at least minLength characters. Full-width forms are
// folded to ASCII first.
func Normalize(text string, minLength int) (Candidate, bool) {
	text = width.Fold.String(text)
	var b strings.Builder
	b.Grow(len(text))
	for _, c := range text {
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c >= 'a' && c <= 'z':
			b.WriteRune(c - 'a' + 'A')
		}
	}
	s := b.String()
	if len(s) < minLength {
		return Candidate(s), false
	}
	return Candidate(s), true
}

// ToGray converts img to a single channel intensity image.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}
