package transcriber

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/amanullahtanweer/chapter-transcriber/internal/command"
	"github.com/amanullahtanweer/chapter-transcriber/internal/config"
)

// Request is one recognition call.
type Request struct {
	AudioPath string
	Model     string
	Precision string
	Language  string
}

// Recognizer turns an audio file into text. Recognize blocks until the backend
// answers and must return promptly once ctx is cancelled.
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, req Request) (string, error)
}

// Converter produces a mono 16-bit PCM WAV copy of an audio file at the given
// sample rate. The caller removes the returned file.
type Converter interface {
	ToPCM(ctx context.Context, src string, sampleRate int) (string, error)
}

// TranscriptionResult is one message from a streaming backend.
type TranscriptionResult struct {
	Text    string
	IsFinal bool
}

// New returns the recognizer selected by cfg.Provider.
func New(cfg config.Recognition, runner command.Runner, converter Converter, logger hclog.Logger) (Recognizer, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	switch cfg.Provider {
	case config.ProviderWhisperX, "":
		return NewWhisperX(cfg.WhisperX, runner, logger), nil
	case config.ProviderVosk:
		return NewVosk(cfg.Vosk, converter, logger), nil
	case config.ProviderAssemblyAI:
		r, err := NewAssemblyAI(cfg.AssemblyAI, converter, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.ProviderOpenAI:
		r, err := NewOpenAI(cfg.OpenAI, nil, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// joinText concatenates transcript pieces with single spaces.
func joinText(parts []string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
