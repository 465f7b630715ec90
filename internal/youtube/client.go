// Package youtube implements metadata lookup and audio download against
// YouTube itself, without the remote conversion service.
package youtube

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"

	"github.com/romariotrain/audio-queue/internal/queue/models"
)

const watchURL = "https://www.youtube.com/watch?v="

type videoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

type Backend struct {
	client videoClient
	logger zerolog.Logger
}

func NewBackend(logger zerolog.Logger) *Backend {
	return &Backend{
		client: &youtube.Client{},
		logger: logger.With().Str("component", "youtube").Logger(),
	}
}

func (b *Backend) FetchMetadata(ctx context.Context, url string) (*models.VideoMetadata, error) {
	video, err := b.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	if video == nil || video.ID == "" {
		return nil, nil
	}

	meta := &models.VideoMetadata{
		Title:         video.Title,
		VideoID:       video.ID,
		VideoURL:      watchURL + video.ID,
		LengthSeconds: strconv.Itoa(int(video.Duration.Seconds())),
		Thumbnails:    make([]models.Thumbnail, 0, len(video.Thumbnails)),
	}
	for _, th := range video.Thumbnails {
		meta.Thumbnails = append(meta.Thumbnails, models.Thumbnail{
			URL:    th.URL,
			Width:  int(th.Width),
			Height: int(th.Height),
		})
	}
	return meta, nil
}

// DownloadMedia streams the best audio-only format of the video.
func (b *Backend) DownloadMedia(ctx context.Context, url string) (io.ReadCloser, error) {
	video, err := b.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}

	format := bestAudioFormat(video.Formats)
	if format == nil {
		return nil, fmt.Errorf("video %s: no audio format", video.ID)
	}

	stream, size, err := b.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	b.logger.Debug().
		Str("video_id", video.ID).
		Int("itag", format.ItagNo).
		Str("mime", format.MimeType).
		Int64("bytes", size).
		Msg("audio stream opened")
	return stream, nil
}

// bestAudioFormat prefers audio-only mp4 formats, then the highest bitrate.
func bestAudioFormat(formats youtube.FormatList) *youtube.Format {
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if !strings.HasPrefix(f.MimeType, "audio/") {
			continue
		}
		if best == nil || betterAudio(f, best) {
			best = f
		}
	}
	return best
}

func betterAudio(f, than *youtube.Format) bool {
	fMP4 := strings.Contains(f.MimeType, "mp4")
	thanMP4 := strings.Contains(than.MimeType, "mp4")
	if fMP4 != thanMP4 {
		return fMP4
	}
	return f.Bitrate > than.Bitrate
}
