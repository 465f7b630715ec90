package models

type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// VideoMetadata is what a metadata fetcher resolves a video URL to.
type VideoMetadata struct {
	Title         string      `json:"title"`
	VideoID       string      `json:"videoId"`
	VideoURL      string      `json:"video_url"`
	LengthSeconds string      `json:"lengthSeconds"`
	Thumbnails    []Thumbnail `json:"thumbnails"`
}

// PreviewURL returns the first thumbnail, or "" when there is none.
func (m *VideoMetadata) PreviewURL() string {
	if len(m.Thumbnails) == 0 {
		return ""
	}
	return m.Thumbnails[0].URL
}
