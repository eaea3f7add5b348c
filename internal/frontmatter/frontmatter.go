package frontmatter

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Delimiter opens and closes the block.
const Delimiter = "---\n"

// Fields are the front-matter values in their emitted order.
type Fields struct {
	SourceURL         string  `yaml:"source url"`
	Filename          string  `yaml:"filename"`
	Tags              string  `yaml:"tags"`
	Description       string  `yaml:"description"`
	Duration          string  `yaml:"duration"`
	AudioQuality      string  `yaml:"audio quality"`
	ComputeType       string  `yaml:"compute type"`
	TranscriptionTime Seconds `yaml:"transcription time"`
	ChannelName       string  `yaml:"channel name"`
	UploadDate        string  `yaml:"upload date"`
	UploaderID        string  `yaml:"uploader id"`
}

// Seconds is emitted as a float with one decimal.
type Seconds float64

// MarshalYAML renders s rounded to one decimal, always with the decimal point.
func (s Seconds) MarshalYAML() (interface{}, error) {
	v := float64(s)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("frontmatter: transcription time is not finite")
	}
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!float",
		Value: strconv.FormatFloat(math.Round(v*10)/10, 'f', 1, 64),
	}, nil
}

// Render serializes f as a delimited key: value block.
func Render(f Fields) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return "", fmt.Errorf("frontmatter: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("frontmatter: encode: %w", err)
	}
	return Delimiter + buf.String() + Delimiter, nil
}

// FormatDuration renders seconds as "<H>h <M>m <S>s", rounded to whole
// seconds. Unknown durations (<= 0) render as "".
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || seconds <= 0 {
		return ""
	}
	total := int64(math.Round(seconds))
	return fmt.Sprintf("%dh %dm %ds", total/3600, (total%3600)/60, total%60)
}

// FormatTags prefixes each tag with '#', replaces inner spaces with '-' and
// joins them with a single space.
func FormatTags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		out = append(out, "#"+strings.Join(strings.Fields(tag), "-"))
	}
	return strings.Join(out, " ")
}

// CollapseNewlines replaces every CRLF, CR or LF with a single space.
func CollapseNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
