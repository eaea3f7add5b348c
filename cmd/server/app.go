package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/amanullahtanweer/chapter-transcriber/internal/acquire"
	"github.com/amanullahtanweer/chapter-transcriber/internal/command"
	"github.com/amanullahtanweer/chapter-transcriber/internal/config"
	"github.com/amanullahtanweer/chapter-transcriber/internal/logging"
	"github.com/amanullahtanweer/chapter-transcriber/internal/media"
	"github.com/amanullahtanweer/chapter-transcriber/internal/pipeline"
	"github.com/amanullahtanweer/chapter-transcriber/internal/session"
	"github.com/amanullahtanweer/chapter-transcriber/internal/statestore"
	"github.com/amanullahtanweer/chapter-transcriber/internal/transcriber"
)

// app is the wired service graph shared by the serve and transcribe commands.
type app struct {
	cfg     *config.Config
	logger  hclog.Logger
	logFile io.Closer
	service *pipeline.Service
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger, logFile, err := logging.New(logging.Options{
		Name:   "transcriber",
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}

	runner := command.NewExecRunner()
	ffmpeg := media.NewFFmpeg(runner, cfg.Acquisition.FFmpegPath)
	prober := media.NewProber(runner, cfg.Acquisition.FFprobePath)

	recognizer, err := transcriber.New(cfg.Recognition, runner, ffmpeg, logger)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to create recognizer: %w", err)
	}

	backend := acquire.NewYtDlp(runner, cfg.Acquisition.YtDlpPath, cfg.Acquisition.FFmpegPath, cfg.Acquisition.AudioFormat, logger)
	acquirer := acquire.New(backend, prober, logger)
	engine := pipeline.NewEngine(recognizer, ffmpeg, pipeline.FailurePolicy(cfg.Pipeline.FailurePolicy), cfg.Recognition.Language, logger)

	var store statestore.Store = statestore.Nop{}
	if cfg.Redis.Addr != "" {
		rs, err := statestore.NewRedis(ctx, statestore.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      time.Duration(cfg.Redis.TTLSeconds) * time.Second,
		}, logger)
		if err != nil {
			logger.Warn("redis mirror disabled", "error", err)
		} else {
			store = rs
			logger.Info("mirroring jobs to redis", "addr", cfg.Redis.Addr)
		}
	}

	service := pipeline.NewService(session.New(), acquirer, engine, store, pipeline.Options{
		WorkDir:         cfg.Acquisition.WorkDir,
		OutputDir:       cfg.Transcription.OutputDir,
		SaveTranscripts: cfg.Transcription.SaveTranscripts,
		SaveEventLog:    cfg.Transcription.SaveEventLog,
		Profiles:        cfg.Profiles,
		Provider:        recognizer.Name(),
		StreamBuffer:    cfg.Server.StreamBuffer,
	}, logger)

	return &app{cfg: cfg, logger: logger, logFile: logFile, service: service}, nil
}

func (a *app) Close() error {
	err := a.service.Close()
	a.logFile.Close()
	return err
}
