package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/amanullahtanweer/chapter-transcriber/internal/audio"
	"github.com/amanullahtanweer/chapter-transcriber/internal/config"
)

const (
	AssemblyAIWebSocketURL = "wss://streaming.assemblyai.com/v3/ws"
	AssemblyAISampleRate   = 16000
	// AssemblyAI requires chunks between 50ms and 1000ms
	MinChunkDuration = 50 * time.Millisecond
	MaxChunkDuration = 950 * time.Millisecond
)

// AssemblyAI streams audio to the AssemblyAI v3 realtime API.
type AssemblyAI struct {
	apiKey    string
	url       string
	converter Converter
	dialer    *websocket.Dialer
	// pace is the minimum gap between chunks; zero disables it.
	pace   time.Duration
	logger hclog.Logger
}

// AssemblyAI message types
type AssemblyAIMessage struct {
	Type               string  `json:"type"`
	ID                 string  `json:"id,omitempty"`
	ExpiresAt          int64   `json:"expires_at,omitempty"`
	Transcript         string  `json:"transcript,omitempty"`
	TurnIsFormatted    bool    `json:"turn_is_formatted,omitempty"`
	AudioDurationSec   float64 `json:"audio_duration_seconds,omitempty"`
	SessionDurationSec float64 `json:"session_duration_seconds,omitempty"`
	Error              string  `json:"error,omitempty"`
}

// NewAssemblyAI returns a streaming client. It fails without an API key.
func NewAssemblyAI(cfg config.AssemblyAI, converter Converter, logger hclog.Logger) (*AssemblyAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AssemblyAI API key is required")
	}
	endpoint := cfg.URL
	if endpoint == "" {
		endpoint = AssemblyAIWebSocketURL
	}
	return &AssemblyAI{
		apiKey:    cfg.APIKey,
		url:       endpoint,
		converter: converter,
		dialer:    websocket.DefaultDialer,
		pace:      MinChunkDuration,
		logger:    logger.Named("assemblyai"),
	}, nil
}

func (at *AssemblyAI) Name() string { return config.ProviderAssemblyAI }

// Recognize streams the file and returns the formatted turns.
func (at *AssemblyAI) Recognize(ctx context.Context, req Request) (string, error) {
	pcm, cleanup, err := loadPCM(ctx, at.converter, req.AudioPath, AssemblyAISampleRate)
	if err != nil {
		return "", fmt.Errorf("assemblyai: %w", err)
	}
	defer cleanup()

	u, err := url.Parse(at.url)
	if err != nil {
		return "", fmt.Errorf("assemblyai: bad url: %w", err)
	}
	q := u.Query()
	q.Set("sample_rate", fmt.Sprint(AssemblyAISampleRate))
	q.Set("format_turns", "true")
	if req.Language != "" && !strings.HasPrefix(req.Language, "en") {
		q.Set("speech_model", "universal-streaming-multilingual")
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Add("Authorization", at.apiKey)
	conn, _, err := at.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return "", fmt.Errorf("failed to connect to AssemblyAI: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var (
		mu    sync.Mutex
		turns []string
	)
	readErr := make(chan error, 1)
	go func() {
		readErr <- at.handleResults(conn, func(r TranscriptionResult) {
			if r.IsFinal {
				mu.Lock()
				turns = append(turns, r.Text)
				mu.Unlock()
			}
		})
	}()

	if err := at.sendAudio(ctx, conn, pcm); err != nil {
		conn.Close()
		<-readErr
		if ctx.Err() != nil {
			return "", context.Cause(ctx)
		}
		return "", fmt.Errorf("failed to send audio to AssemblyAI: %w", err)
	}

	err = <-readErr
	if ctx.Err() != nil {
		return "", context.Cause(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("assemblyai: %w", err)
	}
	mu.Lock()
	defer mu.Unlock()
	return joinText(turns), nil
}

// sendAudio sends the samples in chunks inside AssemblyAI's duration limits,
// then asks the server to terminate the session.
func (at *AssemblyAI) sendAudio(ctx context.Context, conn *websocket.Conn, pcm audio.PCM) error {
	minChunk := pcm.ChunkBytes(MinChunkDuration)
	maxChunk := pcm.ChunkBytes(MaxChunkDuration)
	if maxChunk <= 0 {
		maxChunk = len(pcm.Data)
	}

	var ticker *time.Ticker
	if at.pace > 0 {
		ticker = time.NewTicker(at.pace)
		defer ticker.Stop()
	}

	data := pcm.Data
	for len(data) > 0 {
		size := len(data)
		if size > maxChunk {
			size = maxChunk
		}
		// never leave a tail shorter than the minimum
		if rest := len(data) - size; rest > 0 && rest < minChunk {
			size = len(data) - minChunk
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data[:size]); err != nil {
			return err
		}
		data = data[size:]

		if ticker != nil && len(data) > 0 {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return context.Cause(ctx)
			}
		}
	}

	msgBytes, err := json.Marshal(AssemblyAIMessage{Type: "Terminate"})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, msgBytes)
}

// handleResults reads until the Termination message or the socket closes.
func (at *AssemblyAI) handleResults(conn *websocket.Conn, onResult func(TranscriptionResult)) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var msg AssemblyAIMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			at.logger.Warn("failed to parse AssemblyAI message", "error", err)
			continue
		}

		switch msg.Type {
		case "Begin":
			at.logger.Debug("session started", "session_id", msg.ID)
		case "Turn":
			if msg.Transcript != "" {
				onResult(TranscriptionResult{Text: msg.Transcript, IsFinal: msg.TurnIsFormatted})
			}
		case "Termination":
			at.logger.Debug("session terminated",
				"audio_duration_s", msg.AudioDurationSec, "session_duration_s", msg.SessionDurationSec)
			return nil
		case "Error":
			return fmt.Errorf("server error: %s", msg.Error)
		}
	}
}
