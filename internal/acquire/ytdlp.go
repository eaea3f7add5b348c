package acquire

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/amanullahtanweer/chapter-transcriber/internal/command"
	"github.com/amanullahtanweer/chapter-transcriber/internal/media"
)

const progressPrefix = "[progress]"

// progressTemplate makes yt-dlp print machine-readable byte counts, one per line.
const progressTemplate = "download:" + progressPrefix + " %(progress.downloaded_bytes)s %(progress.total_bytes)s %(progress.total_bytes_estimate)s"

// YtDlp fetches metadata and audio with the yt-dlp CLI.
type YtDlp struct {
	runner      command.Runner
	binary      string
	ffmpegPath  string
	audioFormat string
	logger      hclog.Logger
}

// NewYtDlp returns a backend running binary. Audio is extracted to audioFormat.
func NewYtDlp(runner command.Runner, binary, ffmpegPath, audioFormat string, logger hclog.Logger) *YtDlp {
	if binary == "" {
		binary = "yt-dlp"
	}
	if audioFormat == "" {
		audioFormat = "mp3"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &YtDlp{runner: runner, binary: binary, ffmpegPath: ffmpegPath, audioFormat: audioFormat, logger: logger.Named("ytdlp")}
}

type ytInfo struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags"`
	Duration    float64         `json:"duration"`
	Chapters    []media.Chapter `json:"chapters"`
	Channel     string          `json:"channel"`
	Uploader    string          `json:"uploader"`
	UploaderID  string          `json:"uploader_id"`
	UploadDate  string          `json:"upload_date"`
}

// FetchMetadata reads the video's info JSON without downloading it.
func (y *YtDlp) FetchMetadata(ctx context.Context, url string) (media.Metadata, error) {
	args := []string{"-J", "--no-playlist", "--no-warnings", "--", url}
	res, err := y.runner.Run(ctx, y.binary, args, nil)
	if err != nil {
		return media.Metadata{}, fmt.Errorf("yt-dlp metadata: %w", err)
	}
	var info ytInfo
	if err := json.Unmarshal([]byte(res.Stdout), &info); err != nil {
		return media.Metadata{}, fmt.Errorf("yt-dlp metadata: parse: %w", err)
	}
	channel := info.Channel
	if channel == "" {
		channel = info.Uploader
	}
	return media.Metadata{
		Title:       info.Title,
		Description: info.Description,
		Tags:        info.Tags,
		Duration:    info.Duration,
		Chapters:    info.Chapters,
		ChannelName: channel,
		UploadDate:  info.UploadDate,
		UploaderID:  info.UploaderID,
	}, nil
}

// Download extracts mono 16kHz audio into destDir/<stem>.<format> and reports
// progress in percent as yt-dlp prints it.
func (y *YtDlp) Download(ctx context.Context, url, destDir, stem string, onProgress func(float64)) (string, error) {
	args := []string{
		"-f", "bestaudio/best",
		"-x", "--audio-format", y.audioFormat,
		"--postprocessor-args", "ffmpeg:-ar 16000 -ac 1",
		"--no-playlist", "--no-warnings",
		"--newline",
		"--progress-template", progressTemplate,
		"-o", filepath.Join(destDir, stem+".%(ext)s"),
	}
	if y.ffmpegPath != "" && y.ffmpegPath != "ffmpeg" {
		args = append(args, "--ffmpeg-location", y.ffmpegPath)
	}
	args = append(args, "--", url)

	onLine := func(line string) {
		if pct, ok := ParseProgress(line); ok && onProgress != nil {
			onProgress(pct)
		}
	}
	if _, err := y.runner.Run(ctx, y.binary, args, onLine); err != nil {
		return "", fmt.Errorf("yt-dlp download: %w", err)
	}
	return filepath.Join(destDir, stem+"."+y.audioFormat), nil
}

// ParseProgress reads a progress template line. Totals yt-dlp does not know
// are printed as "NA"; the estimate is used when the exact total is missing.
func ParseProgress(line string) (float64, bool) {
	if !strings.HasPrefix(line, progressPrefix) {
		return 0, false
	}
	fields := strings.Fields(strings.TrimPrefix(line, progressPrefix))
	if len(fields) < 2 {
		return 0, false
	}
	downloaded, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	total := parseCount(fields[1])
	if total <= 0 && len(fields) > 2 {
		total = parseCount(fields[2])
	}
	if total <= 0 {
		return 0, false
	}
	pct := math.Min(100, downloaded/total*100)
	return math.Round(pct*10) / 10, true
}

func parseCount(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return v
}
