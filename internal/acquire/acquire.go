package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-hclog"

	"github.com/amanullahtanweer/chapter-transcriber/internal/events"
	"github.com/amanullahtanweer/chapter-transcriber/internal/media"
)

// Status messages emitted around a remote download.
const (
	StatusDownloading = "Downloading..."
	StatusComplete    = "Download complete"
)

// Backend fetches remote media.
type Backend interface {
	FetchMetadata(ctx context.Context, url string) (media.Metadata, error)
	Download(ctx context.Context, url, destDir, stem string, onProgress func(float64)) (string, error)
}

// DurationProber measures audio length in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Result is acquired media ready for transcription.
type Result struct {
	Path     string
	Filename string
	Metadata media.Metadata
}

// Acquirer materializes a job's audio on local disk.
type Acquirer struct {
	backend  Backend
	prober   DurationProber
	readTags func(path string) (media.EmbeddedTags, error)
	logger   hclog.Logger
}

// New returns an Acquirer downloading through backend and probing with prober.
func New(backend Backend, prober DurationProber, logger hclog.Logger) *Acquirer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Acquirer{backend: backend, prober: prober, readTags: media.ReadTags, logger: logger.Named("acquire")}
}

// Remote downloads url into workDir. It publishes a status event, progress
// events with non-decreasing percentages and a final status event. A publish
// error means the consumer is gone; it stops the download and is returned as is.
func (a *Acquirer) Remote(ctx context.Context, url, workDir string, publish func(events.Event) error) (Result, error) {
	if err := publish(events.Status(StatusDownloading)); err != nil {
		return Result{}, err
	}

	meta, err := a.backend.FetchMetadata(ctx, url)
	if err != nil {
		return Result{}, err
	}
	stem := media.StemOrDefault(meta.Title)
	a.logger.Debug("metadata fetched", "title", meta.Title, "chapters", len(meta.Chapters), "duration", meta.Duration)

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create work dir: %w", err)
	}

	dlCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	var publishErr error
	last := -1.0
	onProgress := func(pct float64) {
		if publishErr != nil || pct <= last {
			return
		}
		last = pct
		if err := publish(events.Progress(pct)); err != nil {
			publishErr = err
			cancel(err)
		}
	}

	path, err := a.backend.Download(dlCtx, url, workDir, stem, onProgress)
	if publishErr != nil {
		removeIfExists(path)
		return Result{}, publishErr
	}
	if err != nil {
		removeIfExists(path)
		return Result{}, err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		removeIfExists(path)
		return Result{}, fmt.Errorf("downloaded audio missing at %s", path)
	}
	a.logger.Info("download complete", "path", path, "size", humanize.Bytes(uint64(info.Size())))

	if err := publish(events.Status(StatusComplete)); err != nil {
		return Result{}, err
	}
	return Result{Path: path, Filename: stem, Metadata: meta}, nil
}

// Local stores an uploaded file under workDir and reads what it can about it.
// Probing and tag reading are best effort; only failing to store the bytes is an error.
func (a *Acquirer) Local(ctx context.Context, upload media.Upload, workDir string) (Result, error) {
	if len(upload.Data) == 0 {
		return Result{}, errors.New("upload is empty")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create work dir: %w", err)
	}

	stem := media.StemOrDefault(upload.Filename)
	ext := strings.ToLower(filepath.Ext(upload.Filename))
	if !validExt(ext) {
		ext = ".audio"
	}
	path := filepath.Join(workDir, stem+ext)
	if err := os.WriteFile(path, upload.Data, 0o644); err != nil {
		removeIfExists(path)
		return Result{}, fmt.Errorf("store upload: %w", err)
	}
	a.logger.Info("upload stored", "path", path, "size", humanize.Bytes(uint64(len(upload.Data))))

	meta := media.Metadata{Title: strings.TrimSuffix(upload.Filename, filepath.Ext(upload.Filename))}
	if tags, err := a.readTags(path); err == nil {
		if tags.Title != "" {
			meta.Title = tags.Title
		}
		meta.Tags = tags.Keywords()
		meta.Description = tags.Description
		meta.ChannelName = tags.Artist
	} else {
		a.logger.Debug("no embedded tags", "path", path, "error", err)
	}

	if a.prober != nil {
		if d, err := a.prober.Duration(ctx, path); err == nil {
			meta.Duration = d
		} else {
			a.logger.Warn("probe failed, duration unknown", "path", path, "error", err)
		}
	}
	return Result{Path: path, Filename: stem, Metadata: meta}, nil
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 6 {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

func removeIfExists(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
