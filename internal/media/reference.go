package media

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidInput marks a submission that cannot be classified.
var ErrInvalidInput = errors.New("invalid input")

// Kind classifies where a job's media comes from.
type Kind int

const (
	KindNone Kind = iota
	KindRemote
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindRemote:
		return "remote"
	case KindLocal:
		return "local"
	default:
		return "none"
	}
}

// Reference is a resolved media source. Locator is the URL for remote media
// and the original upload filename for local media.
type Reference struct {
	Kind    Kind
	Locator string
}

// IsZero reports whether the reference was never resolved.
func (r Reference) IsZero() bool { return r.Kind == KindNone }

// Upload is an audio file sent directly by the client.
type Upload struct {
	Filename string
	Data     []byte
}

// Resolve classifies a submission. Exactly one of remoteURL and upload must be present.
func Resolve(remoteURL string, upload *Upload) (Reference, error) {
	remoteURL = strings.TrimSpace(remoteURL)
	hasRemote := remoteURL != ""
	hasUpload := upload != nil && len(upload.Data) > 0

	switch {
	case hasRemote && hasUpload:
		return Reference{}, fmt.Errorf("%w: provide either a url or a file, not both", ErrInvalidInput)
	case !hasRemote && !hasUpload:
		return Reference{}, fmt.Errorf("%w: a url or a file is required", ErrInvalidInput)
	case hasRemote:
		u, err := url.Parse(remoteURL)
		if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return Reference{}, fmt.Errorf("%w: %q is not an http(s) url", ErrInvalidInput, remoteURL)
		}
		return Reference{Kind: KindRemote, Locator: remoteURL}, nil
	default:
		name := strings.TrimSpace(upload.Filename)
		if name == "" {
			name = "upload"
		}
		return Reference{Kind: KindLocal, Locator: name}, nil
	}
}
