package media

// Chapter is a titled time range of the source, in seconds.
type Chapter struct {
	Start float64 `json:"start_time"`
	End   float64 `json:"end_time"`
	Title string  `json:"title"`
}

// Metadata describes acquired media. Zero values mean unknown.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	Duration    float64
	Chapters    []Chapter
	ChannelName string
	UploadDate  string
	UploaderID  string
}

// Clone returns a deep copy.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	if m.Chapters != nil {
		out.Chapters = append([]Chapter(nil), m.Chapters...)
	}
	return out
}
