package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/amanullahtanweer/chapter-transcriber/internal/command"
)

// ProbeResult is the subset of ffprobe output the pipeline consumes.
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream describes one stream in the container.
type ProbeStream struct {
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// ProbeFormat captures container-level metadata.
type ProbeFormat struct {
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	FormatName string            `json:"format_name"`
	Tags       map[string]string `json:"tags"`
}

// DurationSeconds returns the container duration, or 0 when unknown.
func (r ProbeResult) DurationSeconds() float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(r.Format.Duration), 64)
	if err != nil || math.IsNaN(d) || d < 0 {
		return 0
	}
	return d
}

// AudioStreamCount returns the number of audio streams.
func (r ProbeResult) AudioStreamCount() int {
	n := 0
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "audio") {
			n++
		}
	}
	return n
}

// Prober inspects media files with ffprobe.
type Prober struct {
	runner command.Runner
	binary string
}

// NewProber returns a Prober running binary (ffprobe when empty).
func NewProber(runner command.Runner, binary string) *Prober {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	return &Prober{runner: runner, binary: binary}
}

// Probe runs ffprobe against path and decodes its JSON report.
func (p *Prober) Probe(ctx context.Context, path string) (ProbeResult, error) {
	if strings.TrimSpace(path) == "" {
		return ProbeResult{}, errors.New("ffprobe: empty path")
	}
	args := []string{"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path}
	res, err := p.runner.Run(ctx, p.binary, args, nil)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe inspect: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal([]byte(res.Stdout), &result); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// Duration returns the probed duration of path in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	result, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return result.DurationSeconds(), nil
}
