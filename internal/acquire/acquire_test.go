package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amanullahtanweer/chapter-transcriber/internal/command"
	"github.com/amanullahtanweer/chapter-transcriber/internal/events"
	"github.com/amanullahtanweer/chapter-transcriber/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	meta        media.Metadata
	metaErr     error
	progress    []float64
	writeFile   bool
	downloadErr error
	gotDir      string
	gotStem     string
}

func (f *fakeBackend) FetchMetadata(ctx context.Context, url string) (media.Metadata, error) {
	return f.meta, f.metaErr
}

func (f *fakeBackend) Download(ctx context.Context, url, destDir, stem string, onProgress func(float64)) (string, error) {
	f.gotDir, f.gotStem = destDir, stem
	for _, p := range f.progress {
		if ctx.Err() != nil {
			return "", context.Cause(ctx)
		}
		onProgress(p)
	}
	path := filepath.Join(destDir, stem+".mp3")
	if f.writeFile {
		if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
			return "", err
		}
	}
	return path, f.downloadErr
}

type fakeProber struct {
	seconds float64
	err     error
}

func (p fakeProber) Duration(ctx context.Context, path string) (float64, error) {
	return p.seconds, p.err
}

func collect(out *[]events.Event) func(events.Event) error {
	return func(e events.Event) error {
		*out = append(*out, e)
		return nil
	}
}

func TestRemoteEmitsStatusAndMonotonicProgress(t *testing.T) {
	backend := &fakeBackend{
		meta:      media.Metadata{Title: "My Talk: Part 1", Chapters: []media.Chapter{{Start: 0, End: 10, Title: "Intro"}}},
		progress:  []float64{5, 40, 30, 40, 100},
		writeFile: true,
	}
	dir := t.TempDir()
	var got []events.Event

	res, err := New(backend, nil, nil).Remote(context.Background(), "https://video/x", dir, collect(&got))
	require.NoError(t, err)

	assert.Equal(t, "My_Talk__Part_1", res.Filename)
	assert.Equal(t, filepath.Join(dir, "My_Talk__Part_1.mp3"), res.Path)
	assert.Len(t, res.Metadata.Chapters, 1)

	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, events.Status(StatusDownloading).Message, got[0].Message)
	assert.Equal(t, StatusComplete, got[len(got)-1].Message)

	var pct []float64
	for _, e := range got[1 : len(got)-1] {
		require.Equal(t, events.TypeProgress, e.Type)
		pct = append(pct, e.Percent)
	}
	assert.Equal(t, []float64{5, 40, 100}, pct)
}

func TestRemoteMetadataFailure(t *testing.T) {
	backend := &fakeBackend{metaErr: errors.New("video unavailable")}
	var got []events.Event

	res, err := New(backend, nil, nil).Remote(context.Background(), "https://video/x", t.TempDir(), collect(&got))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "video unavailable")
	assert.Empty(t, res.Path)
	require.Len(t, got, 1)
	assert.Equal(t, StatusDownloading, got[0].Message)
}

func TestRemoteDownloadFailureLeavesNoFile(t *testing.T) {
	backend := &fakeBackend{meta: media.Metadata{Title: "clip"}, writeFile: true, downloadErr: errors.New("http 403")}
	dir := t.TempDir()

	res, err := New(backend, nil, nil).Remote(context.Background(), "https://video/x", dir, collect(new([]events.Event)))
	require.Error(t, err)
	assert.Empty(t, res.Path)
	_, statErr := os.Stat(filepath.Join(dir, "clip.mp3"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRemoteMissingOutputIsAnError(t *testing.T) {
	backend := &fakeBackend{meta: media.Metadata{Title: "clip"}}

	_, err := New(backend, nil, nil).Remote(context.Background(), "https://video/x", t.TempDir(), collect(new([]events.Event)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestRemoteStopsWhenPublishFails(t *testing.T) {
	gone := errors.New("client gone")
	backend := &fakeBackend{meta: media.Metadata{Title: "clip"}, progress: []float64{1, 2, 3}, writeFile: true}
	calls := 0
	publish := func(e events.Event) error {
		calls++
		if e.Type == events.TypeProgress {
			return gone
		}
		return nil
	}

	_, err := New(backend, nil, nil).Remote(context.Background(), "https://video/x", t.TempDir(), publish)
	assert.ErrorIs(t, err, gone)
	assert.Equal(t, 2, calls)
}

func TestRemoteEmptyTitleFallsBack(t *testing.T) {
	backend := &fakeBackend{meta: media.Metadata{Title: "???"}, writeFile: true}

	res, err := New(backend, nil, nil).Remote(context.Background(), "https://video/x", t.TempDir(), collect(new([]events.Event)))
	require.NoError(t, err)
	assert.Equal(t, "transcript", res.Filename)
	assert.Equal(t, "transcript", backend.gotStem)
}

func TestLocalStoresUploadAndProbes(t *testing.T) {
	dir := t.TempDir()
	a := New(nil, fakeProber{seconds: 42.5}, nil)
	a.readTags = func(string) (media.EmbeddedTags, error) {
		return media.EmbeddedTags{Title: "Song", Artist: "Band", Genre: "Jazz", Description: "live"}, nil
	}

	res, err := a.Local(context.Background(), media.Upload{Filename: "my song.MP3", Data: []byte("bytes")}, dir)
	require.NoError(t, err)

	assert.Equal(t, "my_song", res.Filename)
	assert.Equal(t, filepath.Join(dir, "my_song.mp3"), res.Path)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(data))

	assert.Equal(t, 42.5, res.Metadata.Duration)
	assert.Equal(t, "Song", res.Metadata.Title)
	assert.Equal(t, []string{"Band", "Jazz"}, res.Metadata.Tags)
	assert.Equal(t, "live", res.Metadata.Description)
}

func TestLocalToleratesProbeAndTagFailures(t *testing.T) {
	a := New(nil, fakeProber{err: errors.New("ffprobe missing")}, nil)
	a.readTags = func(string) (media.EmbeddedTags, error) { return media.EmbeddedTags{}, errors.New("no tags") }

	res, err := a.Local(context.Background(), media.Upload{Filename: "talk.wav", Data: []byte("x")}, t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, res.Metadata.Duration)
	assert.Equal(t, "talk", res.Metadata.Title)
	assert.Empty(t, res.Metadata.Tags)
}

func TestLocalRejectsEmptyUpload(t *testing.T) {
	_, err := New(nil, nil, nil).Local(context.Background(), media.Upload{Filename: "a.mp3"}, t.TempDir())
	assert.Error(t, err)
}

func TestParseProgress(t *testing.T) {
	cases := []struct {
		line string
		want float64
		ok   bool
	}{
		{"[progress] 50 200 NA", 25, true},
		{"[progress] 1 3 NA", 33.3, true},
		{"[progress] 10 NA 40", 25, true},
		{"[progress] 500 100 NA", 100, true},
		{"[progress] 10 NA NA", 0, false},
		{"[download] 10.0% of 3MiB", 0, false},
		{"[progress] NA 100 NA", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseProgress(tc.line)
		assert.Equal(t, tc.ok, ok, tc.line)
		assert.Equal(t, tc.want, got, tc.line)
	}
}

func TestYtDlpFetchMetadata(t *testing.T) {
	var gotArgs []string
	runner := command.RunnerFunc(func(ctx context.Context, name string, args []string, onLine func(string)) (command.Result, error) {
		gotArgs = args
		return command.Result{Stdout: `{"title":"T","tags":["a b"],"duration":61.5,"uploader":"Up","upload_date":"20240102",
			"chapters":[{"start_time":0,"end_time":30.5,"title":"One"},{"start_time":30.5,"end_time":61.5,"title":"Two"}]}`}, nil
	})

	meta, err := NewYtDlp(runner, "", "", "", nil).FetchMetadata(context.Background(), "https://video/x")
	require.NoError(t, err)
	assert.Equal(t, []string{"-J", "--no-playlist", "--no-warnings", "--", "https://video/x"}, gotArgs)
	assert.Equal(t, "T", meta.Title)
	assert.Equal(t, "Up", meta.ChannelName)
	assert.Equal(t, "20240102", meta.UploadDate)
	assert.Equal(t, 61.5, meta.Duration)
	require.Len(t, meta.Chapters, 2)
	assert.Equal(t, media.Chapter{Start: 30.5, End: 61.5, Title: "Two"}, meta.Chapters[1])
}

func TestYtDlpDownloadStreamsProgress(t *testing.T) {
	var gotName string
	var gotArgs []string
	runner := command.RunnerFunc(func(ctx context.Context, name string, args []string, onLine func(string)) (command.Result, error) {
		gotName, gotArgs = name, args
		for _, l := range []string{"[info] starting", "[progress] 25 100 NA", "[progress] 100 100 NA"} {
			onLine(l)
		}
		return command.Result{}, nil
	})

	var pct []float64
	path, err := NewYtDlp(runner, "/opt/yt-dlp", "/opt/ffmpeg", "m4a", nil).
		Download(context.Background(), "https://video/x", "/work", "clip", func(p float64) { pct = append(pct, p) })
	require.NoError(t, err)

	assert.Equal(t, "/opt/yt-dlp", gotName)
	assert.Equal(t, filepath.Join("/work", "clip.m4a"), path)
	assert.Equal(t, []float64{25, 100}, pct)
	joined := strings.Join(gotArgs, " ")
	assert.Contains(t, joined, "--audio-format m4a")
	assert.Contains(t, joined, "ffmpeg:-ar 16000 -ac 1")
	assert.Contains(t, joined, "--ffmpeg-location /opt/ffmpeg")
	assert.Equal(t, "https://video/x", gotArgs[len(gotArgs)-1])
}

func TestYtDlpDownloadFailure(t *testing.T) {
	runner := command.RunnerFunc(func(ctx context.Context, name string, args []string, onLine func(string)) (command.Result, error) {
		return command.Result{ExitCode: 1}, &command.Error{Name: name, Result: command.Result{ExitCode: 1, Stderr: "ERROR: private video"}, Err: errors.New("exit status 1")}
	})

	_, err := NewYtDlp(runner, "", "", "", nil).Download(context.Background(), "https://video/x", "/work", "clip", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yt-dlp download")
}
