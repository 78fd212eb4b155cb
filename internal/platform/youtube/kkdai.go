package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	kkdai "github.com/kkdai/youtube/v2"

	"kabutune/internal/logger"
	"kabutune/internal/network"
	"kabutune/internal/platform"
)

// videoClient is the subset of the kkdai client the extractor uses.
type videoClient interface {
	GetVideoContext(ctx context.Context, id string) (*kkdai.Video, error)
	GetStreamContext(ctx context.Context, video *kkdai.Video, format *kkdai.Format) (io.ReadCloser, int64, error)
}

// Extractor is the primary AudioSource. It talks to YouTube's player API
// directly, so it honors the requested header profile.
type Extractor struct {
	httpClient *http.Client
	headers    map[string]string
	log        logger.Logger
	newClient  func(*http.Client) videoClient
}

func NewExtractor(httpClient *http.Client, opts Options, log logger.Logger) *Extractor {
	return &Extractor{
		httpClient: httpClient,
		headers:    opts.Headers,
		log:        log.WithField("source", "kkdai"),
		newClient: func(c *http.Client) videoClient {
			return &kkdai.Client{HTTPClient: c}
		},
	}
}

func (e *Extractor) Name() string {
	return "kkdai"
}

func (e *Extractor) Open(ctx context.Context, videoID string, profile network.HeaderProfile) (*platform.Audio, error) {
	if err := ValidateID(videoID); err != nil {
		return nil, err
	}
	client := e.newClient(network.WithProfile(e.httpClient, profile.With(e.headers)))

	video, err := client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, platform.Classify(fmt.Errorf("get video: %w", err))
	}

	format := bestAudioFormat(video.Formats)
	if format == nil {
		return nil, fmt.Errorf("%w: %s has no audio-only formats", platform.ErrNotFound, videoID)
	}

	body, size, err := client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, platform.Classify(fmt.Errorf("get stream: %w", err))
	}

	contentType := platform.BaseContentType(format.MimeType)
	e.log.WithFields(logger.Fields{
		"video_id": videoID,
		"itag":     format.ItagNo,
		"bitrate":  format.Bitrate,
		"mime":     contentType,
		"profile":  profile.Name,
	}).Debug("Opened audio stream")

	return &platform.Audio{
		Body:        body,
		ContentType: contentType,
		Ext:         platform.ExtForContentType(format.MimeType),
		Size:        size,
	}, nil
}

// bestAudioFormat picks the audio-only format with the highest bitrate.
// Formats that carry a video track are never chosen.
func bestAudioFormat(formats kkdai.FormatList) *kkdai.Format {
	var best *kkdai.Format
	for i := range formats {
		f := &formats[i]
		if !strings.HasPrefix(f.MimeType, "audio/") {
			continue
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	return best
}
