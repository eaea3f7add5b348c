package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/amanullahtanweer/chapter-transcriber/internal/command"
)

// FFmpeg cuts and converts audio with the ffmpeg binary.
type FFmpeg struct {
	runner command.Runner
	binary string
}

// NewFFmpeg returns an FFmpeg running binary (ffmpeg when empty).
func NewFFmpeg(runner command.Runner, binary string) *FFmpeg {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{runner: runner, binary: binary}
}

// Extract writes [startMs, endMs) of src into a fresh mono 16kHz WAV under dir
// and returns its path. The caller removes the file.
func (f *FFmpeg) Extract(ctx context.Context, src string, startMs, endMs int64, dir string) (string, error) {
	if endMs <= startMs {
		return "", fmt.Errorf("ffmpeg extract: empty range %d-%d ms", startMs, endMs)
	}
	if dir == "" {
		dir = os.TempDir()
	}
	tmp, err := os.CreateTemp(dir, "segment-*.wav")
	if err != nil {
		return "", fmt.Errorf("ffmpeg extract: %w", err)
	}
	out := tmp.Name()
	tmp.Close()

	// ffmpeg -y -ss start -t dur -i input -ac 1 -ar 16000 -f wav output
	args := []string{
		"-y", "-v", "error",
		"-ss", msToSeconds(startMs),
		"-t", msToSeconds(endMs - startMs),
		"-i", src,
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		out,
	}
	if _, err := f.runner.Run(ctx, f.binary, args, nil); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("ffmpeg extract: %w", err)
	}
	return out, nil
}

// ToPCM converts src to 16-bit little-endian mono WAV at sampleRate and
// returns the new file's path. The caller removes the file.
func (f *FFmpeg) ToPCM(ctx context.Context, src string, sampleRate int) (string, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	out := filepath.Join(filepath.Dir(src), fmt.Sprintf("%s_pcm_%d.wav", base, sampleRate))

	args := []string{
		"-y", "-v", "error",
		"-i", src,
		"-ac", "1", "-ar", strconv.Itoa(sampleRate),
		"-acodec", "pcm_s16le",
		"-f", "wav",
		out,
	}
	if _, err := f.runner.Run(ctx, f.binary, args, nil); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("ffmpeg convert: %w", err)
	}
	return out, nil
}

func msToSeconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', 3, 64)
}
