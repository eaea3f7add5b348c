package frontmatter

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRenderKeepsKeyOrder(t *testing.T) {
	out, err := Render(Fields{
		SourceURL:         "https://video/x",
		Filename:          "My_Talk",
		Tags:              FormatTags([]string{"go", "machine learning"}),
		Description:       CollapseNewlines("line one\r\nline two\nline three"),
		Duration:          FormatDuration(3725),
		AudioQuality:      "small",
		ComputeType:       "default",
		TranscriptionTime: 12.345,
	})
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(out, "---\n"))
	require.True(t, strings.HasSuffix(out, "---\n"))

	keys := []string{"source url:", "filename:", "tags:", "description:", "duration:",
		"audio quality:", "compute type:", "transcription time:", "channel name:", "upload date:", "uploader id:"}
	last := -1
	for _, k := range keys {
		idx := strings.Index(out, "\n"+k)
		require.Greater(t, idx, last, "key %q out of order in\n%s", k, out)
		last = idx
	}

	assert.Contains(t, out, "audio quality: small\n")
	assert.Contains(t, out, "duration: 1h 2m 5s\n")
	assert.Contains(t, out, "transcription time: 12.3\n")
	assert.Contains(t, out, "description: line one line two line three\n")
}

func TestRenderParsesBack(t *testing.T) {
	out, err := Render(Fields{Tags: "#go #machine-learning", Description: `she said "hi" @ home: yes`})
	require.NoError(t, err)

	body := strings.TrimSuffix(strings.TrimPrefix(out, Delimiter), Delimiter)
	var parsed map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(body), &parsed))

	assert.Equal(t, "#go #machine-learning", parsed["tags"])
	assert.Equal(t, `she said "hi" @ home: yes`, parsed["description"])
	assert.Equal(t, "", parsed["source url"])
	assert.Equal(t, 0.0, parsed["transcription time"])
}

func TestRenderRejectsNonFiniteTime(t *testing.T) {
	_, err := Render(Fields{TranscriptionTime: Seconds(math.NaN())})
	assert.Error(t, err)
}

func TestFormatDuration(t *testing.T) {
	cases := map[float64]string{
		0:       "",
		-5:      "",
		59.4:    "0h 0m 59s",
		59.6:    "0h 1m 0s",
		3600:    "1h 0m 0s",
		86399.9: "24h 0m 0s",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatDuration(in), "seconds %v", in)
	}
}

func TestFormatTags(t *testing.T) {
	assert.Equal(t, "", FormatTags(nil))
	assert.Equal(t, "#a #b-c #d", FormatTags([]string{"a", "b  c", " ", "d"}))
}
