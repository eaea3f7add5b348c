package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/amanullahtanweer/chapter-transcriber/internal/events"
	"github.com/amanullahtanweer/chapter-transcriber/internal/media"
	"github.com/amanullahtanweer/chapter-transcriber/internal/pipeline"
)

func newTranscribeCommand(configFlag *string) *cobra.Command {
	var quality, compute, output string

	cmd := &cobra.Command{
		Use:   "transcribe <url|file>",
		Short: "Transcribe one video URL or audio file without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			req, err := buildRequest(args[0])
			if err != nil {
				return err
			}
			req.Quality, req.Compute = quality, compute

			if _, err := a.service.Submit(ctx, req); err != nil {
				return err
			}
			done, err := runJob(ctx, a.service, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			if output == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), done.Document)
				return err
			}
			if info, statErr := os.Stat(output); statErr == nil && info.IsDir() {
				output = filepath.Join(output, done.Filename+".md")
			}
			if err := os.WriteFile(output, []byte(done.Document), 0o644); err != nil {
				return fmt.Errorf("failed to write transcript: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Transcript written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&quality, "quality", "", "Audio quality profile")
	cmd.Flags().StringVar(&compute, "compute", "", "Compute type profile")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the document to this file or directory instead of stdout")
	return cmd
}

// buildRequest treats an existing path as an upload and anything else as a URL.
func buildRequest(arg string) (pipeline.SubmitRequest, error) {
	info, err := os.Stat(arg)
	if err != nil || info.IsDir() {
		if strings.Contains(arg, "://") {
			return pipeline.SubmitRequest{RemoteURL: arg}, nil
		}
		return pipeline.SubmitRequest{}, fmt.Errorf("%q is neither a readable file nor a URL", arg)
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return pipeline.SubmitRequest{}, fmt.Errorf("failed to read %s: %w", arg, err)
	}
	return pipeline.SubmitRequest{Upload: &media.Upload{Filename: filepath.Base(arg), Data: data}}, nil
}

// runJob drives the submitted job and renders its events to w. It returns the
// done event, or the job failure.
func runJob(ctx context.Context, service *pipeline.Service, w io.Writer) (events.Event, error) {
	interactive := false
	if f, ok := w.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd())
	}

	var bar *progressbar.ProgressBar
	var rows [][]string
	var final events.Event

	for e := range service.Stream(ctx) {
		switch e.Type {
		case events.TypeStatus:
			if bar != nil {
				_ = bar.Finish()
				bar = nil
			}
			fmt.Fprintln(w, e.Message)
		case events.TypeProgress:
			if !interactive {
				continue
			}
			if bar == nil {
				bar = progressbar.NewOptions(100,
					progressbar.OptionSetWriter(w),
					progressbar.OptionSetDescription("download"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			_ = bar.Set(int(e.Percent))
		case events.TypeChapter:
			title := e.Title
			if title == "" {
				title = "(full recording)"
			}
			rows = append(rows, []string{strconv.Itoa(e.Index), title, chapterSpan(e.Text)})
			if !interactive {
				fmt.Fprintf(w, "chapter %d: %s\n", e.Index, title)
			}
		case events.TypeError, events.TypeDone:
			final = e
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable([]string{"#", "Chapter", "Span"}, rows, []columnAlignment{alignRight, alignLeft, alignLeft}))
	}

	switch final.Type {
	case events.TypeDone:
		return final, nil
	case events.TypeError:
		return final, fmt.Errorf("%s: %s", final.ErrorKind, final.Message)
	}
	if err := ctx.Err(); err != nil {
		return final, err
	}
	return final, errors.New("job ended without a result")
}

// chapterSpan pulls the "HH:MM:SS - HH:MM:SS" line out of a chapter section.
func chapterSpan(section string) string {
	lines := strings.SplitN(section, "\n", 3)
	if len(lines) < 3 || len(lines[1]) != len("00:00:00 - 00:00:00") || !strings.Contains(lines[1], " - ") {
		return ""
	}
	return lines[1]
}
