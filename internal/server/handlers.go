package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/amanullahtanweer/chapter-transcriber/internal/media"
	"github.com/amanullahtanweer/chapter-transcriber/internal/pipeline"
	"github.com/amanullahtanweer/chapter-transcriber/internal/statestore"
)

// handleSubmit accepts a multipart form with youtube_url or file, plus an
// optional audio_quality and compute_type.
func (s *Server) handleSubmit(c *gin.Context) {
	limit := int64(s.config.MaxUploadMB) << 20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	req := pipeline.SubmitRequest{
		RemoteURL: c.PostForm("youtube_url"),
		Quality:   c.PostForm("audio_quality"),
		Compute:   c.PostForm("compute_type"),
	}

	header, err := c.FormFile("file")
	switch {
	case err == nil:
		f, err := header.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open uploaded file"})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
			return
		}
		req.Upload = &media.Upload{Filename: header.Filename, Data: data}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds " + humanize.IBytes(uint64(limit))})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ack, err := s.service.Submit(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error(), "kind": string(pipeline.KindOf(err))})
		return
	}
	c.JSON(http.StatusOK, ack)
}

// handleSSE streams the current job as server-sent events, one JSON event per message.
func (s *Server) handleSSE(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for e := range s.service.Stream(c.Request.Context()) {
		c.SSEvent(string(e.Type), e)
		c.Writer.Flush()
	}
}

// handleWebSocket streams the current job as JSON text frames and closes
// after the terminal event.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// The client only sends control frames; a read error means it left.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	failed := false
	for e := range s.service.Stream(ctx) {
		if failed {
			continue
		}
		if err := conn.WriteJSON(e); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			failed = true
			cancel()
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) handleStatus(c *gin.Context) {
	st := s.service.Status()
	if st.ID == "" {
		c.JSON(http.StatusOK, gin.H{"id": "", "error": pipeline.ErrNoJob.Error()})
		return
	}
	fields := statestore.JobFields(st)
	fields["driving"] = st.Driving
	if st.UploadBytes > 0 {
		fields["upload_size"] = humanize.Bytes(uint64(st.UploadBytes))
	}
	c.JSON(http.StatusOK, fields)
}

// handleHealth reports work directory disk space and host memory.
func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	body := gin.H{"status": "ok", "provider": s.config.Provider}

	if s.config.WorkDir != "" {
		if usage, err := disk.UsageWithContext(ctx, s.config.WorkDir); err != nil {
			body["status"] = "degraded"
			body["disk_error"] = err.Error()
		} else {
			body["disk"] = gin.H{
				"path":         s.config.WorkDir,
				"free":         humanize.Bytes(usage.Free),
				"total":        humanize.Bytes(usage.Total),
				"used_percent": usage.UsedPercent,
			}
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		body["memory_error"] = err.Error()
	} else {
		body["memory"] = gin.H{
			"available":    humanize.Bytes(vm.Available),
			"total":        humanize.Bytes(vm.Total),
			"used_percent": vm.UsedPercent,
		}
	}
	c.JSON(http.StatusOK, body)
}
