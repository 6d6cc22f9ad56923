package capture

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/datastore"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
)

// processWaitDelay bounds how long a killed ffmpeg may hold its pipes open
const processWaitDelay = 2 * time.Second

// runFunc executes name with args, wiring the given stdout and stderr.
type runFunc func(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error

func execRun(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = processWaitDelay
	return cmd.Run()
}

// FFmpegAcquirer grabs one PNG frame per call through an ffmpeg subprocess.
type FFmpegAcquirer struct {
	ffmpegPath string
	transport  string
	timeout    time.Duration
	run        runFunc
	now        func() time.Time
	log        logger.Logger
}

// NewFFmpegAcquirer creates an acquirer. An empty FfmpegPath is resolved from PATH.
func NewFFmpegAcquirer(settings conf.CaptureSettings) (*FFmpegAcquirer, error) {
	path := settings.FfmpegPath
	if path == "" {
		found, err := exec.LookPath("ffmpeg")
		if err != nil {
			return nil, errors.New(err).
				Component("capture").
				Category(errors.CategoryConfiguration).
				Context("binary", "ffmpeg").
				Build()
		}
		path = found
	}

	transport := settings.Transport
	if transport == "" {
		transport = "tcp"
	}

	return &FFmpegAcquirer{
		ffmpegPath: path,
		transport:  transport,
		timeout:    settings.Timeout,
		run:        execRun,
		now:        time.Now,
		log:        GetLogger(),
	}, nil
}

func (a *FFmpegAcquirer) args(uri string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-rtsp_transport", a.transport,
		"-i", uri,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
}

// Acquire returns exactly one frame from cam. Failures to open the stream or
// decode its output wrap ErrNoFrame; a cancelled ctx returns ctx.Err().
func (a *FFmpegAcquirer) Acquire(ctx context.Context, cam datastore.Camera) (*Frame, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	var stdout bytes.Buffer
	stderr := newTailWriter(stderrTailSize)

	runErr := a.run(ctx, a.ffmpegPath, a.args(BuildURI(cam)), &stdout, stderr)
	elapsed := time.Since(start)

	if runErr != nil || stdout.Len() == 0 {
		return nil, a.openFailure(ctx, cam, runErr, stderr.String(), elapsed)
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, errors.New(errors.Join(ErrNoFrame, err)).
			Component("capture").
			Category(errors.CategoryFrameDecode).
			Context("source_id", cam.ID).
			Build()
	}

	a.log.Trace("frame acquired",
		logger.Int("source_id", int(cam.ID)),
		logger.Int("width", img.Bounds().Dx()),
		logger.Int("height", img.Bounds().Dy()),
		logger.Duration("elapsed", elapsed))

	return &Frame{
		Image:     img,
		SourceID:  cam.ID,
		GrabbedAt: a.now(),
	}, nil
}

// openFailure classifies a failed or empty ffmpeg run.
func (a *FFmpegAcquirer) openFailure(ctx context.Context, cam datastore.Camera, runErr error, stderr string, elapsed time.Duration) error {
	if parentErr := context.Cause(ctx); parentErr != nil && !errors.Is(parentErr, context.DeadlineExceeded) {
		return parentErr
	}

	category := errors.CategoryRTSP
	reason := diagnose(stderr)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		category = errors.CategoryTimeout
		reason = reasonTimeout
	}

	cause := runErr
	if cause == nil {
		cause = errors.NewStd("ffmpeg produced no output")
	}

	return errors.New(errors.Join(ErrNoFrame, cause)).
		Component("capture").
		Category(category).
		Context("source_id", cam.ID).
		Context("source_name", cam.Name).
		Context("reason", reason).
		Context("stderr", errors.ScrubCredentials(strings.TrimSpace(stderr))).
		Timing("acquire", elapsed).
		Build()
}
