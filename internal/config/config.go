package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server        Server        `yaml:"server" toml:"server"`
	Acquisition   Acquisition   `yaml:"acquisition" toml:"acquisition"`
	Recognition   Recognition   `yaml:"recognition" toml:"recognition"`
	Profiles      Profiles      `yaml:"profiles" toml:"profiles"`
	Pipeline      Pipeline      `yaml:"pipeline" toml:"pipeline"`
	Transcription Transcription `yaml:"transcription" toml:"transcription"`
	Redis         Redis         `yaml:"redis" toml:"redis"`
	Logging       Logging       `yaml:"logging" toml:"logging"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
	// StreamBuffer is the event channel capacity between the driver and the transport.
	StreamBuffer int `yaml:"stream_buffer" toml:"stream_buffer"`
	// MaxUploadMB bounds multipart uploads.
	MaxUploadMB int `yaml:"max_upload_mb" toml:"max_upload_mb"`
}

// Acquisition configures the external download and media tools.
type Acquisition struct {
	YtDlpPath   string `yaml:"ytdlp_path" toml:"ytdlp_path"`
	FFmpegPath  string `yaml:"ffmpeg_path" toml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path" toml:"ffprobe_path"`
	WorkDir     string `yaml:"work_dir" toml:"work_dir"`
	AudioFormat string `yaml:"audio_format" toml:"audio_format"`
}

// Recognition selects and configures the speech recognition backend.
type Recognition struct {
	Provider   string     `yaml:"provider" toml:"provider"` // whisperx, vosk, assemblyai or openai
	Language   string     `yaml:"language" toml:"language"`
	WhisperX   WhisperX   `yaml:"whisperx" toml:"whisperx"`
	Vosk       Vosk       `yaml:"vosk" toml:"vosk"`
	AssemblyAI AssemblyAI `yaml:"assemblyai" toml:"assemblyai"`
	OpenAI     OpenAI     `yaml:"openai" toml:"openai"`
}

// WhisperX configures the uvx-launched whisperx CLI.
type WhisperX struct {
	UVXPath     string `yaml:"uvx_path" toml:"uvx_path"`
	CUDAEnabled bool   `yaml:"cuda_enabled" toml:"cuda_enabled"`
}

// Vosk configures a Vosk websocket server.
type Vosk struct {
	ServerURL  string `yaml:"server_url" toml:"server_url"`
	SampleRate int    `yaml:"sample_rate" toml:"sample_rate"`
}

// AssemblyAI configures the AssemblyAI streaming API.
type AssemblyAI struct {
	APIKey string `yaml:"api_key" toml:"api_key"`
	URL    string `yaml:"url" toml:"url"`
}

// OpenAI configures an OpenAI-compatible transcription endpoint.
type OpenAI struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Model   string `yaml:"model" toml:"model"`
}

// Profiles maps user-facing profile names to backend values.
type Profiles struct {
	Quality        map[string]string `yaml:"quality" toml:"quality"`
	Compute        map[string]string `yaml:"compute" toml:"compute"`
	DefaultCompute string            `yaml:"default_compute" toml:"default_compute"`
}

// Pipeline configures job orchestration.
type Pipeline struct {
	// FailurePolicy is "abort" or "skip".
	FailurePolicy string `yaml:"failure_policy" toml:"failure_policy"`
}

// Transcription configures optional artifacts written after each job.
type Transcription struct {
	OutputDir       string `yaml:"output_dir" toml:"output_dir"`
	SaveTranscripts bool   `yaml:"save_transcripts" toml:"save_transcripts"`
	SaveEventLog    bool   `yaml:"save_event_log" toml:"save_event_log"`
}

// Redis configures the optional job mirror. Empty Addr disables it.
type Redis struct {
	Addr       string `yaml:"addr" toml:"addr"`
	Password   string `yaml:"password" toml:"password"`
	DB         int    `yaml:"db" toml:"db"`
	Prefix     string `yaml:"prefix" toml:"prefix"`
	TTLSeconds int    `yaml:"ttl_seconds" toml:"ttl_seconds"`
}

// Logging configures the root logger.
type Logging struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"`
}

// Load reads the configuration file at path, choosing the decoder by extension.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse toml config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
