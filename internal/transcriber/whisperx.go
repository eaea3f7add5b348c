package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/amanullahtanweer/chapter-transcriber/internal/command"
	"github.com/amanullahtanweer/chapter-transcriber/internal/config"
)

// WhisperX settings passed on every invocation.
const (
	WhisperXDefaultModel = "large-v3"
	CUDAIndexURL         = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL         = "https://pypi.org/simple"
	BatchSize            = "4"
	CPUDevice            = "cpu"
	CUDADevice           = "cuda"
	CPUComputeType       = "float32"
)

// WhisperX runs the whisperx CLI through uvx and reads its JSON output.
type WhisperX struct {
	cfg    config.WhisperX
	runner command.Runner
	logger hclog.Logger
}

// NewWhisperX returns a recognizer that runs whisperx through uvx.
func NewWhisperX(cfg config.WhisperX, runner command.Runner, logger hclog.Logger) *WhisperX {
	if cfg.UVXPath == "" {
		cfg.UVXPath = "uvx"
	}
	return &WhisperX{cfg: cfg, runner: runner, logger: logger.Named("whisperx")}
}

func (w *WhisperX) Name() string { return config.ProviderWhisperX }

// Recognize transcribes req.AudioPath into a scratch directory next to it.
func (w *WhisperX) Recognize(ctx context.Context, req Request) (string, error) {
	if req.AudioPath == "" {
		return "", fmt.Errorf("whisperx: source path required")
	}
	outputDir, err := os.MkdirTemp(filepath.Dir(req.AudioPath), "whisperx-*")
	if err != nil {
		return "", fmt.Errorf("whisperx: output dir: %w", err)
	}
	defer os.RemoveAll(outputDir)

	args := w.buildArgs(req, outputDir)
	w.logger.Debug("running whisperx", "source", req.AudioPath, "model", req.Model, "precision", req.Precision)
	if _, err := w.runner.Run(ctx, w.cfg.UVXPath, args, nil); err != nil {
		return "", fmt.Errorf("whisperx: %w", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(req.AudioPath), filepath.Ext(req.AudioPath))
	return loadTranscriptText(filepath.Join(outputDir, baseName+".json"))
}

func (w *WhisperX) buildArgs(req Request, outputDir string) []string {
	args := make([]string, 0, 24)
	if w.cfg.CUDAEnabled {
		args = append(args, "--index-url", CUDAIndexURL, "--extra-index-url", PypiIndexURL)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	model := req.Model
	if model == "" {
		model = WhisperXDefaultModel
	}
	args = append(args,
		"whisperx",
		req.AudioPath,
		"--model", model,
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", "json",
	)
	if req.Language != "" {
		args = append(args, "--language", req.Language)
	}

	if w.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
		if req.Precision != "" {
			args = append(args, "--compute_type", req.Precision)
		}
	} else {
		// float16 is GPU-only
		precision := req.Precision
		if precision == "" || precision == "float16" {
			precision = CPUComputeType
		}
		args = append(args, "--device", CPUDevice, "--compute_type", precision)
	}
	return args
}

type whisperXSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func loadTranscriptText(jsonPath string) (string, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return "", fmt.Errorf("whisperx: read output: %w", err)
	}
	var payload struct {
		Segments []whisperXSegment `json:"segments"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("parse whisperx json: %w", err)
	}
	parts := make([]string, 0, len(payload.Segments))
	for _, seg := range payload.Segments {
		parts = append(parts, seg.Text)
	}
	return joinText(parts), nil
}
