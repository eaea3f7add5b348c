package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Default profile names.
const (
	DefaultQualityProfile = "default"
	DefaultComputeProfile = "default"
)

// Failure policies for a segment that cannot be transcribed.
const (
	FailurePolicyAbort = "abort"
	FailurePolicySkip  = "skip"
)

// Recognition providers.
const (
	ProviderWhisperX   = "whisperx"
	ProviderVosk       = "vosk"
	ProviderAssemblyAI = "assemblyai"
	ProviderOpenAI     = "openai"
)

// DefaultQualityProfiles maps quality profile names to model names.
func DefaultQualityProfiles() map[string]string {
	return map[string]string{
		"default": "distil-large-v3",
		"tiny":    "tiny",
		"base":    "base",
		"small":   "small",
		"medium":  "medium",
		"large":   "large-v3",
	}
}

// DefaultComputeProfiles maps compute profile names to numeric precisions.
func DefaultComputeProfiles() map[string]string {
	return map[string]string{
		"default": "float16",
		"float16": "float16",
		"float32": "float32",
		"int8":    "int8",
	}
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills empty fields with defaults and trims string values.
func (c *Config) Normalize() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.StreamBuffer <= 0 {
		c.Server.StreamBuffer = 64
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = 512
	}

	a := &c.Acquisition
	a.YtDlpPath = orDefault(a.YtDlpPath, "yt-dlp")
	a.FFmpegPath = orDefault(a.FFmpegPath, "ffmpeg")
	a.FFprobePath = orDefault(a.FFprobePath, "ffprobe")
	a.AudioFormat = strings.ToLower(orDefault(a.AudioFormat, "mp3"))
	if strings.TrimSpace(a.WorkDir) == "" {
		a.WorkDir = filepath.Join(os.TempDir(), "chapter-transcriber")
	}
	a.WorkDir = expandHome(a.WorkDir)

	r := &c.Recognition
	r.Provider = strings.ToLower(orDefault(r.Provider, ProviderWhisperX))
	r.Language = strings.TrimSpace(r.Language)
	r.WhisperX.UVXPath = orDefault(r.WhisperX.UVXPath, "uvx")
	r.Vosk.ServerURL = orDefault(r.Vosk.ServerURL, "ws://localhost:2700")
	if r.Vosk.SampleRate == 0 {
		r.Vosk.SampleRate = 16000
	}
	r.AssemblyAI.URL = orDefault(r.AssemblyAI.URL, "wss://streaming.assemblyai.com/v3/ws")
	if r.AssemblyAI.APIKey == "" {
		r.AssemblyAI.APIKey = os.Getenv("ASSEMBLYAI_API_KEY")
	}
	r.OpenAI.BaseURL = strings.TrimRight(orDefault(r.OpenAI.BaseURL, "https://api.openai.com/v1"), "/")
	r.OpenAI.Model = orDefault(r.OpenAI.Model, "whisper-1")
	if r.OpenAI.APIKey == "" {
		r.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if len(c.Profiles.Quality) == 0 {
		c.Profiles.Quality = DefaultQualityProfiles()
	}
	if len(c.Profiles.Compute) == 0 {
		c.Profiles.Compute = DefaultComputeProfiles()
	}
	c.Profiles.DefaultCompute = orDefault(c.Profiles.DefaultCompute, DefaultComputeProfile)

	c.Pipeline.FailurePolicy = strings.ToLower(orDefault(c.Pipeline.FailurePolicy, FailurePolicyAbort))

	if c.Transcription.OutputDir != "" {
		c.Transcription.OutputDir = expandHome(c.Transcription.OutputDir)
	}

	c.Redis.Prefix = orDefault(c.Redis.Prefix, "transcriber:")
	if c.Redis.TTLSeconds <= 0 {
		c.Redis.TTLSeconds = 86400
	}

	c.Logging.Level = strings.ToLower(orDefault(c.Logging.Level, "info"))
	c.Logging.Format = strings.ToLower(orDefault(c.Logging.Format, "text"))
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
