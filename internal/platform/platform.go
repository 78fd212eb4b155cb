// Package platform defines the capabilities an audio provider exposes to the
// streaming proxy and the error taxonomy shared by every provider.
package platform

import (
	"context"
	"io"
	"mime"
	"strings"

	"kabutune/internal/network"
)

// Audio is an open upstream audio byte stream.
type Audio struct {
	Body        io.ReadCloser
	ContentType string
	// Ext is the container extension used for download filenames.
	Ext string
	// Size is the body length in bytes, or 0 when unknown.
	Size int64
}

// AudioSource opens an audio-only stream for a video id. Implementations
// that do not speak HTTP themselves may ignore the header profile.
type AudioSource interface {
	Name() string
	Open(ctx context.Context, videoID string, profile network.HeaderProfile) (*Audio, error)
}

// DirectResolver resolves a video id to a URL the client can fetch itself.
type DirectResolver interface {
	Name() string
	ResolveURL(ctx context.Context, videoID string) (string, error)
}

// Registry holds the configured audio sources and direct resolvers in
// registration order.
type Registry struct {
	sources   []AudioSource
	resolvers []DirectResolver
}

func NewRegistry() *Registry {
	return &Registry{
		sources:   make([]AudioSource, 0),
		resolvers: make([]DirectResolver, 0),
	}
}

func (r *Registry) Register(source AudioSource) {
	r.sources = append(r.sources, source)
}

func (r *Registry) RegisterResolver(resolver DirectResolver) {
	r.resolvers = append(r.resolvers, resolver)
}

// Source finds a source by name.
func (r *Registry) Source(name string) AudioSource {
	for _, src := range r.sources {
		if src.Name() == name {
			return src
		}
	}
	return nil
}

func (r *Registry) Resolvers() []DirectResolver {
	return append([]DirectResolver(nil), r.resolvers...)
}

// ListPlatforms returns the names of every registered source and resolver.
func (r *Registry) ListPlatforms() []string {
	names := make([]string, 0, len(r.sources)+len(r.resolvers))
	for _, src := range r.sources {
		names = append(names, src.Name())
	}
	for _, res := range r.resolvers {
		names = append(names, res.Name()+" (direct)")
	}
	return names
}

// ContentTypeForExt maps a container extension to the Content-Type served
// to clients.
func ContentTypeForExt(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "mp3":
		return "audio/mpeg"
	case "aac":
		return "audio/aac"
	case "m4a", "mp4":
		return "audio/mp4"
	case "ogg", "opus":
		return "audio/ogg"
	default:
		return "audio/webm"
	}
}

// ExtForContentType is the inverse of ContentTypeForExt. Codec parameters
// such as `audio/webm; codecs="opus"` are ignored.
func ExtForContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	switch strings.ToLower(mediaType) {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/aac":
		return "aac"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/ogg":
		return "ogg"
	default:
		return "webm"
	}
}

// BaseContentType strips codec parameters from a MIME type.
func BaseContentType(contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	return ContentTypeForExt(ExtForContentType(contentType))
}
