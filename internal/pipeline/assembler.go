package pipeline

import (
	"math"
	"strings"

	"github.com/amanullahtanweer/chapter-transcriber/internal/frontmatter"
	"github.com/amanullahtanweer/chapter-transcriber/internal/media"
)

// DocumentInput is what the assembler merges into the final document.
type DocumentInput struct {
	SourceURL            string
	Filename             string
	Metadata             media.Metadata
	Quality              string
	Compute              string
	TranscriptionSeconds float64
	Body                 string
}

// Assemble builds the front matter and appends the body. Front matter that
// cannot be serialized is replaced field by field with empty values; the
// returned error reports that substitution and never means the document is
// missing.
func Assemble(in DocumentInput) (string, error) {
	fields := frontmatter.Fields{
		SourceURL:         clean(in.SourceURL),
		Filename:          clean(in.Filename),
		Tags:              clean(frontmatter.FormatTags(in.Metadata.Tags)),
		Description:       clean(frontmatter.CollapseNewlines(in.Metadata.Description)),
		Duration:          frontmatter.FormatDuration(in.Metadata.Duration),
		AudioQuality:      clean(in.Quality),
		ComputeType:       clean(in.Compute),
		TranscriptionTime: frontmatter.Seconds(in.TranscriptionSeconds),
		ChannelName:       clean(in.Metadata.ChannelName),
		UploadDate:        clean(in.Metadata.UploadDate),
		UploaderID:        clean(in.Metadata.UploaderID),
	}

	header, err := frontmatter.Render(fields)
	if err == nil {
		return header + in.Body, nil
	}
	failure := stageError(KindSerialization, "assemble", err, "front matter fell back to empty values")

	t := float64(fields.TranscriptionTime)
	if math.IsNaN(t) || math.IsInf(t, 0) {
		fields.TranscriptionTime = 0
	}
	if header, err = frontmatter.Render(fields); err == nil {
		return header + in.Body, failure
	}
	if header, err = frontmatter.Render(frontmatter.Fields{}); err == nil {
		return header + in.Body, failure
	}
	return frontmatter.Delimiter + frontmatter.Delimiter + in.Body, failure
}

// clean makes s safe for a single-line scalar.
func clean(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' {
			return -1
		}
		return r
	}, s)
}
