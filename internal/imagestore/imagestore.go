// Package imagestore writes recognition snapshots to disk.
package imagestore

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/errors"
	"github.com/platewatch/platewatch/internal/logger"
)

const (
	// maxNameAttempts bounds the search for a free file name
	maxNameAttempts = 1000
	defaultQuality  = 90
	bytesPerMB      = 1024 * 1024
)

// Store writes each image once under a name derived from the plate and a
// microsecond timestamp. Existing files are never overwritten.
type Store struct {
	dir          string
	quality      int
	minFreeBytes uint64
	now          func() time.Time
	freeSpace    func(path string) (uint64, error)
	log          logger.Logger
}

// New creates the image directory if needed and returns a Store writing to it.
func New(settings conf.StorageSettings) (*Store, error) {
	if err := os.MkdirAll(settings.ImageDir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("imagestore").
			Category(errors.CategoryFileIO).
			Context("dir", settings.ImageDir).
			Build()
	}
	quality := settings.JPEGQuality
	if quality < 1 || quality > 100 {
		quality = defaultQuality
	}
	return &Store{
		dir:          settings.ImageDir,
		quality:      quality,
		minFreeBytes: settings.MinFreeMB * bytesPerMB,
		now:          time.Now,
		freeSpace:    diskFree,
		log:          logger.Global().Module("imagestore"),
	}, nil
}

func diskFree(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// FileName returns the artifact name for plate captured at t:
// {plate}_{yyyyMMdd_HHmmss_ffffff}.jpg
func FileName(plate string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%06d.jpg", sanitize(plate), t.Format("20060102_150405"), t.Nanosecond()/1000)
}

// sanitize keeps only characters safe in a file name
func sanitize(plate string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return -1
		}
	}, plate)
	if clean == "" {
		return "UNKNOWN"
	}
	return clean
}

// Save encodes img as JPEG and returns the path of the new file.
func (s *Store) Save(ctx context.Context, plate string, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.checkFreeSpace(); err != nil {
		return "", err
	}

	f, path, err := s.create(plate)
	if err != nil {
		return "", err
	}

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: s.quality}); err != nil {
		f.Close()
		os.Remove(path)
		return "", s.fileError(err, "encode", path)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", s.fileError(err, "close", path)
	}

	s.log.Debug("image saved", logger.String("path", path))
	return path, nil
}

// create opens a new file exclusively, moving the timestamp forward one
// microsecond on each collision.
func (s *Store) create(plate string) (*os.File, string, error) {
	t := s.now()
	for range maxNameAttempts {
		path := filepath.Join(s.dir, FileName(plate, t))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !os.IsExist(err) {
			return nil, "", s.fileError(err, "create", path)
		}
		t = t.Add(time.Microsecond)
	}
	return nil, "", s.fileError(errors.NewStd("no free file name"), "create", plate)
}

func (s *Store) checkFreeSpace() error {
	if s.minFreeBytes == 0 {
		return nil
	}
	free, err := s.freeSpace(s.dir)
	if err != nil {
		s.log.Warn("free space check failed", logger.String("dir", s.dir), logger.Error(err))
		return nil
	}
	if free < s.minFreeBytes {
		return errors.Newf("free space %d MB below minimum %d MB", free/bytesPerMB, s.minFreeBytes/bytesPerMB).
			Component("imagestore").
			Category(errors.CategoryDiskUsage).
			Priority(errors.PriorityHigh).
			Context("dir", s.dir).
			Build()
	}
	return nil
}

func (s *Store) fileError(err error, operation, path string) error {
	return errors.New(err).
		Component("imagestore").
		Category(errors.CategoryFileIO).
		Context("operation", operation).
		Context("path", path).
		Build()
}
