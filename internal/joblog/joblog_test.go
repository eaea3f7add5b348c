package joblog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amanullahtanweer/chapter-transcriber/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]interface{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	l, err := New(dir, "0123456789abcdef", started)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20240501_103000_job_01234567.jsonl"), l.Path())

	l.LogJobStart("0123456789abcdef", "remote", "small", "default", started)

	progress := events.Progress(0)
	progress.JobID = "0123456789abcdef"
	l.Handle(progress)

	chapter := events.Chapter(1, "Intro", "  hello world \n")
	chapter.Seq = 2
	l.Handle(chapter)

	l.Handle(events.Done(strings.Repeat("x", 42), "talk"))
	l.LogJobEnd("0123456789abcdef", started.Add(time.Minute), "done")
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	lines := readLines(t, l.Path())
	require.Len(t, lines, 5)
	assert.Equal(t, "job_start", lines[0]["event"])
	assert.Equal(t, "progress", lines[1]["event"])
	assert.Equal(t, 0.0, lines[1]["percent"])
	assert.Equal(t, "hello world", lines[2]["text"])
	assert.Equal(t, "42", lines[3]["details"].(map[string]interface{})["document_bytes"])
	assert.Equal(t, "done", lines[4]["details"].(map[string]interface{})["outcome"])
}

func TestHandleAfterCloseIsIgnored(t *testing.T) {
	l, err := New(t.TempDir(), "job", time.Now())
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l.Handle(events.Status("late"))
	assert.Empty(t, readLines(t, l.Path()))
}
