package media

import (
	"fmt"
	"os"
	"strings"

	"github.com/dhowden/tag"
)

// EmbeddedTags is descriptive metadata stored inside an audio file.
type EmbeddedTags struct {
	Title       string
	Artist      string
	Album       string
	Genre       string
	Comment     string
	Year        int
	FileType    string
	Description string
}

// Keywords returns the non-empty artist, album and genre values.
func (t EmbeddedTags) Keywords() []string {
	var out []string
	for _, v := range []string{t.Artist, t.Album, t.Genre} {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ReadTags extracts ID3/MP4/FLAC/Ogg tags from the file at path.
func ReadTags(path string) (EmbeddedTags, error) {
	file, err := os.Open(path)
	if err != nil {
		return EmbeddedTags{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		return EmbeddedTags{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	out := EmbeddedTags{
		Title:    metadata.Title(),
		Artist:   metadata.Artist(),
		Album:    metadata.Album(),
		Genre:    metadata.Genre(),
		Comment:  metadata.Comment(),
		Year:     metadata.Year(),
		FileType: string(metadata.FileType()),
	}
	out.Description = out.Comment
	if lyrics := strings.TrimSpace(metadata.Lyrics()); out.Description == "" && lyrics != "" {
		out.Description = lyrics
	}
	return out, nil
}
