package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/platewatch/platewatch/internal/capture"
	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/errors"
)

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, img *image.Gray) (string, error) {
	args := m.Called(ctx, img)
	return args.String(0), args.Error(1)
}

func testFrame() *capture.Frame {
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	img.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	return &capture.Frame{Image: img, SourceID: 7}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Candidate
		ok   bool
	}{
		{"ABC123", "ABC123", true},
		{" abc-123\n", "ABC123", true},
		{"XY9", "XY9", false},
		{"AB 12", "AB12", false},
		{"ÄBC1234", "BC1234", true},
		{"ＡＢＣ１２３", "ABC123", true},
		{"", "", false},
		{"..//--", "", false},
	}
	for _, tt := range tests {
		got, ok := Normalize(tt.in, DefaultMinPlateLength)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
	}
}

func TestRecognizeConvertsToGrayAndFilters(t *testing.T) {
	t.Parallel()

	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.MatchedBy(func(g *image.Gray) bool {
		return g.Bounds().Dx() == 3 && g.GrayAt(0, 0).Y == 255
	})).Return("abc 123\n", nil).Once()

	r := New(ext, 0, time.Second)
	candidate, ok, err := r.Recognize(context.Background(), testFrame())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Candidate("ABC123"), candidate)
	ext.AssertExpectations(t)
}

func TestRecognizeShortTextIsNoCandidate(t *testing.T) {
	t.Parallel()

	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return("XY9", nil)

	_, ok, err := New(ext, 5, 0).Recognize(context.Background(), testFrame())
	require.NoError(t, err)
	assert.False(t, ok)
}

type blockingExtractor struct{}

func (blockingExtractor) Extract(ctx context.Context, _ *image.Gray) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRecognizeTimeout(t *testing.T) {
	t.Parallel()

	r := New(blockingExtractor{}, 5, 20*time.Millisecond)
	_, ok, err := r.Recognize(context.Background(), testFrame())
	assert.False(t, ok)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTimeout))
}

func TestRecognizeParentCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := New(blockingExtractor{}, 5, time.Second).Recognize(ctx, testFrame())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecognizeExtractorFailure(t *testing.T) {
	t.Parallel()

	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return("", fmt.Errorf("engine crashed"))

	_, _, err := New(ext, 5, time.Second).Recognize(context.Background(), testFrame())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryRecognition))
}

func TestRecognizeNilFrame(t *testing.T) {
	t.Parallel()

	_, _, err := New(&mockExtractor{}, 5, 0).Recognize(context.Background(), nil)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestToGrayPassesThroughGray(t *testing.T) {
	t.Parallel()

	g := image.NewGray(image.Rect(0, 0, 2, 2))
	assert.Same(t, g, ToGray(g))
}

func TestTesseractCLIExtract(t *testing.T) {
	t.Parallel()

	tc := &TesseractCLI{path: "/usr/bin/tesseract", language: "eng", psm: 8}
	tc.run = func(_ context.Context, name string, args []string, stdin io.Reader, stdout, _ io.Writer) error {
		assert.Equal(t, "/usr/bin/tesseract", name)
		assert.Equal(t, []string{"stdin", "stdout", "--psm", "8", "-l", "eng"}, args)
		data, err := io.ReadAll(stdin)
		require.NoError(t, err)
		_, err = png.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		_, err = io.WriteString(stdout, "ABC123\n")
		return err
	}

	text, err := tc.Extract(context.Background(), image.NewGray(image.Rect(0, 0, 2, 2)))
	require.NoError(t, err)
	assert.Equal(t, "ABC123\n", text)
}

func TestTesseractCLIFailure(t *testing.T) {
	t.Parallel()

	tc := &TesseractCLI{path: "tesseract", language: "eng", psm: 8}
	tc.run = func(_ context.Context, _ string, _ []string, _ io.Reader, _, stderr io.Writer) error {
		_, _ = io.WriteString(stderr, "Error opening data file")
		return fmt.Errorf("exit status 1")
	}

	_, err := tc.Extract(context.Background(), image.NewGray(image.Rect(0, 0, 1, 1)))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCommand))
}

func TestNewExtractorRejectsUnknownEngine(t *testing.T) {
	t.Parallel()

	_, err := NewExtractor(conf.OCRSettings{Engine: "paddle"})
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
