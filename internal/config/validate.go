package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}

	switch c.Recognition.Provider {
	case ProviderWhisperX, ProviderVosk:
	case ProviderAssemblyAI:
		if c.Recognition.AssemblyAI.APIKey == "" {
			problems = append(problems, "recognition.assemblyai.api_key is required for the assemblyai provider")
		}
	case ProviderOpenAI:
		if c.Recognition.OpenAI.APIKey == "" {
			problems = append(problems, "recognition.openai.api_key is required for the openai provider")
		}
	default:
		problems = append(problems, fmt.Sprintf("recognition.provider unsupported: %q", c.Recognition.Provider))
	}

	switch c.Acquisition.AudioFormat {
	case "mp3", "wav", "m4a", "flac", "opus":
	default:
		problems = append(problems, fmt.Sprintf("acquisition.audio_format unsupported: %q", c.Acquisition.AudioFormat))
	}

	if _, ok := c.Profiles.Quality[DefaultQualityProfile]; !ok {
		problems = append(problems, "profiles.quality must define a \"default\" profile")
	}
	if _, ok := c.Profiles.Compute[c.Profiles.DefaultCompute]; !ok {
		problems = append(problems, fmt.Sprintf("profiles.default_compute %q is not a defined compute profile", c.Profiles.DefaultCompute))
	}

	switch c.Pipeline.FailurePolicy {
	case FailurePolicyAbort, FailurePolicySkip:
	default:
		problems = append(problems, fmt.Sprintf("pipeline.failure_policy must be abort or skip, got %q", c.Pipeline.FailurePolicy))
	}

	if c.Transcription.SaveTranscripts && c.Transcription.OutputDir == "" {
		problems = append(problems, "transcription.output_dir is required when save_transcripts is enabled")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// QualityModel returns the model name for a quality profile.
func (p Profiles) QualityModel(profile string) (string, bool) {
	model, ok := p.Quality[profile]
	return model, ok
}

// ComputePrecision returns the precision for a compute profile.
func (p Profiles) ComputePrecision(profile string) (string, bool) {
	precision, ok := p.Compute[profile]
	return precision, ok
}

// QualityNames returns the quality profile names in sorted order.
func (p Profiles) QualityNames() []string {
	return sortedKeys(p.Quality)
}

// ComputeNames returns the compute profile names in sorted order.
func (p Profiles) ComputeNames() []string {
	return sortedKeys(p.Compute)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
