package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/errors"
)

// Supported OCR engines
const (
	EngineTesseract = "tesseract"
	EngineGosseract = "gosseract"
)

// defaultPSM treats the image as a single word
const defaultPSM = 8

// NewExtractor builds the TextExtractor selected by settings.Engine.
func NewExtractor(settings conf.OCRSettings) (TextExtractor, error) {
	switch settings.Engine {
	case "", EngineTesseract:
		return NewTesseractCLI(settings)
	case EngineGosseract:
		return newGosseractExtractor(settings)
	default:
		return nil, errors.Newf("unknown OCR engine %q", settings.Engine).
			Component("recognizer").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// runFunc executes a command reading stdin; see TesseractCLI.
type runFunc func(ctx context.Context, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) error

func execRun(ctx context.Context, name string, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second
	return cmd.Run()
}

// TesseractCLI is a TextExtractor backed by the tesseract command line tool
type TesseractCLI struct {
	path     string
	language string
	psm      int
	run      runFunc
}

// NewTesseractCLI creates the extractor. An empty TesseractPath is resolved from PATH.
func NewTesseractCLI(settings conf.OCRSettings) (*TesseractCLI, error) {
	path := settings.TesseractPath
	if path == "" {
		found, err := exec.LookPath("tesseract")
		if err != nil {
			return nil, errors.New(err).
				Component("recognizer").
				Category(errors.CategoryConfiguration).
				Context("binary", "tesseract").
				Build()
		}
		path = found
	}
	language := settings.Language
	if language == "" {
		language = "eng"
	}
	psm := settings.PSM
	if psm == 0 {
		psm = defaultPSM
	}
	return &TesseractCLI{path: path, language: language, psm: psm, run: execRun}, nil
}

func (t *TesseractCLI) args() []string {
	return []string{"stdin", "stdout", "--psm", strconv.Itoa(t.psm), "-l", t.language}
}

// Extract pipes img to tesseract as PNG and returns its text output.
func (t *TesseractCLI) Extract(ctx context.Context, img *image.Gray) (string, error) {
	var in bytes.Buffer
	if err := png.Encode(&in, img); err != nil {
		return "", fmt.Errorf("encoding image for tesseract: %w", err)
	}

	var out, stderr bytes.Buffer
	if err := t.run(ctx, t.path, t.args(), &in, &out, &stderr); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", errors.New(err).
			Component("recognizer").
			Category(errors.CategoryCommand).
			Context("stderr", strings.TrimSpace(stderr.String())).
			Build()
	}
	return out.String(), nil
}
