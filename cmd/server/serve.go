package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amanullahtanweer/chapter-transcriber/internal/server"
)

func newServeCommand(configFlag *string) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP transcription service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.logFile.Close()

			srv, err := server.New(server.Config{
				Host:        cfg.Server.Host,
				Port:        cfg.Server.Port,
				WorkDir:     cfg.Acquisition.WorkDir,
				MaxUploadMB: cfg.Server.MaxUploadMB,
				Provider:    cfg.Recognition.Provider,
			}, a.service, a.logger)
			if err != nil {
				return err
			}

			// Start server in background
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			// Wait for interrupt signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			select {
			case err := <-errCh:
				srv.Stop()
				return err
			case <-sigChan:
			}

			a.logger.Info("shutting down server")
			srv.Stop()
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Override server.host")
	cmd.Flags().IntVar(&port, "port", 0, "Override server.port")
	return cmd
}
