package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

// PCM is raw little-endian sample data read from a WAV file.
type PCM struct {
	Data          []byte
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Duration returns the playback length of the samples.
func (p PCM) Duration() time.Duration {
	bytesPerSecond := p.SampleRate * p.Channels * p.BitsPerSample / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(float64(len(p.Data)) / float64(bytesPerSecond) * float64(time.Second))
}

// ChunkBytes returns the byte length of d of audio in whole frames.
func (p PCM) ChunkBytes(d time.Duration) int {
	frame := p.Channels * p.BitsPerSample / 8
	if frame == 0 {
		return 0
	}
	frames := int(math.Round(float64(p.SampleRate) * d.Seconds()))
	return frames * frame
}

// ReadWAV reads a WAV file and returns its PCM data.
func ReadWAV(path string) (PCM, error) {
	file, err := os.Open(path)
	if err != nil {
		return PCM{}, err
	}
	defer file.Close()
	return DecodeWAV(file)
}

// DecodeWAV walks the RIFF chunks of r and returns the fmt and data contents.
func DecodeWAV(r io.Reader) (PCM, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return PCM{}, fmt.Errorf("failed to read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return PCM{}, errors.New("not a valid WAV file")
	}

	var pcm PCM
	haveFmt := false
	chunk := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, chunk); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return PCM{}, errors.New("WAV file has no data chunk")
			}
			return PCM{}, fmt.Errorf("failed to read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return PCM{}, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return PCM{}, errors.New("fmt chunk too short")
			}
			if format := binary.LittleEndian.Uint16(body[0:2]); format != 1 {
				return PCM{}, fmt.Errorf("unsupported WAV encoding %d, want PCM", format)
			}
			pcm.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			pcm.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			pcm.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true
			if size%2 == 1 {
				if _, err := io.CopyN(io.Discard, r, 1); err != nil {
					return PCM{}, fmt.Errorf("failed to skip padding: %w", err)
				}
			}
		case "data":
			if !haveFmt {
				return PCM{}, errors.New("data chunk before fmt chunk")
			}
			data, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return PCM{}, fmt.Errorf("failed to read data chunk: %w", err)
			}
			pcm.Data = data
			return pcm, nil
		default:
			skip := size + size%2
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return PCM{}, fmt.Errorf("failed to skip %q chunk: %w", id, err)
			}
		}
	}
}

// EncodeWAV writes p as a canonical 44-byte-header WAV stream.
func EncodeWAV(w io.Writer, p PCM) error {
	blockAlign := p.Channels * p.BitsPerSample / 8
	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(p.Data)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], uint16(p.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(p.SampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(p.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(p.BitsPerSample))
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(p.Data)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(p.Data)
	return err
}
