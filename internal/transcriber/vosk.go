package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/amanullahtanweer/chapter-transcriber/internal/audio"
	"github.com/amanullahtanweer/chapter-transcriber/internal/config"
)

// voskChunk is how much audio goes into one websocket frame.
const voskChunk = 200 * time.Millisecond

// Vosk streams audio to a Vosk websocket server.
type Vosk struct {
	serverURL  string
	sampleRate int
	converter  Converter
	dialer     *websocket.Dialer
	logger     hclog.Logger
}

type VoskResult struct {
	Text   string `json:"text"`
	Result []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Conf  float64 `json:"conf"`
	} `json:"result"`
	Partial string `json:"partial"`
}

// NewVosk returns a client for the Vosk server at cfg.ServerURL.
func NewVosk(cfg config.Vosk, converter Converter, logger hclog.Logger) *Vosk {
	rate := cfg.SampleRate
	if rate == 0 {
		rate = 16000
	}
	return &Vosk{
		serverURL:  strings.TrimRight(cfg.ServerURL, "/"),
		sampleRate: rate,
		converter:  converter,
		dialer:     websocket.DefaultDialer,
		logger:     logger.Named("vosk"),
	}
}

func (v *Vosk) Name() string { return config.ProviderVosk }

// Recognize converts the file to PCM, streams it and collects final results.
func (v *Vosk) Recognize(ctx context.Context, req Request) (string, error) {
	pcm, cleanup, err := loadPCM(ctx, v.converter, req.AudioPath, v.sampleRate)
	if err != nil {
		return "", fmt.Errorf("vosk: %w", err)
	}
	defer cleanup()

	url := fmt.Sprintf("%s/ws?sample_rate=%d", v.serverURL, v.sampleRate)
	conn, _, err := v.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to connect to Vosk server: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	results := make(chan TranscriptionResult, 100)
	readErr := make(chan error, 1)
	go func() { readErr <- v.handleResults(conn, results) }()

	var parts []string
	var collect sync.WaitGroup
	collect.Add(1)
	go func() {
		defer collect.Done()
		for r := range results {
			if r.IsFinal {
				parts = append(parts, r.Text)
			}
		}
	}()

	sendErr := v.send(conn, pcm)
	if sendErr != nil {
		conn.Close()
	}
	err = <-readErr
	collect.Wait()

	if ctx.Err() != nil {
		return "", context.Cause(ctx)
	}
	if sendErr != nil {
		return "", fmt.Errorf("failed to send audio to Vosk: %w", sendErr)
	}
	// some servers drop the socket right after the final result
	if err != nil && !websocket.IsCloseError(err, websocket.CloseAbnormalClosure) {
		return "", fmt.Errorf("vosk: %w", err)
	}
	return joinText(parts), nil
}

func (v *Vosk) send(conn *websocket.Conn, pcm audio.PCM) error {
	chunk := pcm.ChunkBytes(voskChunk)
	if chunk <= 0 {
		chunk = len(pcm.Data)
	}
	for i := 0; i < len(pcm.Data); i += chunk {
		end := i + chunk
		if end > len(pcm.Data) {
			end = len(pcm.Data)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm.Data[i:end]); err != nil {
			return err
		}
	}
	// Send EOF to Vosk to get final results
	return conn.WriteMessage(websocket.TextMessage, []byte(`{"eof" : 1}`))
}

// handleResults reads until the server closes the connection after EOF.
func (v *Vosk) handleResults(conn *websocket.Conn, results chan<- TranscriptionResult) error {
	defer close(results)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		var result VoskResult
		if err := json.Unmarshal(message, &result); err != nil {
			v.logger.Warn("failed to parse Vosk result", "error", err)
			continue
		}
		if result.Partial != "" {
			results <- TranscriptionResult{Text: result.Partial}
		}
		if result.Text != "" {
			results <- TranscriptionResult{Text: result.Text, IsFinal: true}
		}
	}
}

// loadPCM converts src with converter and reads the samples.
func loadPCM(ctx context.Context, converter Converter, src string, sampleRate int) (audio.PCM, func(), error) {
	if converter == nil {
		return audio.PCM{}, nil, errors.New("no audio converter configured")
	}
	path, err := converter.ToPCM(ctx, src, sampleRate)
	if err != nil {
		return audio.PCM{}, nil, err
	}
	cleanup := func() { os.Remove(path) }
	pcm, err := audio.ReadWAV(path)
	if err != nil {
		cleanup()
		return audio.PCM{}, nil, err
	}
	return pcm, cleanup, nil
}
