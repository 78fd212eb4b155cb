// Package stream turns a video id into an audio response by walking a fixed
// fallback chain of audio providers.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"kabutune/internal/logger"
	"kabutune/internal/network"
	"kabutune/internal/platform"
	"kabutune/internal/platform/youtube"
)

const (
	stepPrimary   = "primary"
	stepAlternate = "alternate"
	stepDirect    = "direct"
	stepSecondary = "secondary"

	cacheStream   = "public, max-age=3600"
	cacheRedirect = "public, max-age=600"
	cacheDownload = "no-cache"

	copyBufferSize = 32 * 1024
)

// Transcoder re-encodes an audio stream, e.g. to mp3 for downloads.
type Transcoder interface {
	Transcode(ctx context.Context, src io.Reader, format string) (io.ReadCloser, error)
}

// Request is one stream or download call.
type Request struct {
	VideoID  string
	Title    string
	Format   string
	Download bool
}

// attemptState is scoped to one request. It remembers which failure kinds
// have already been retried and every failed attempt.
type attemptState struct {
	retried  map[FailureKind]bool
	attempts []AttemptError
}

func newAttemptState() *attemptState {
	return &attemptState{retried: make(map[FailureKind]bool)}
}

func (s *attemptState) record(step, source, profile string, err error) FailureKind {
	kind := kindOf(err)
	s.attempts = append(s.attempts, AttemptError{
		Step:    step,
		Source:  source,
		Profile: profile,
		Kind:    kind,
		Err:     err,
	})
	return kind
}

// retryOnce reports whether kind may be retried and marks it as retried.
// Only rate limits are retried, once per request.
func (s *attemptState) retryOnce(kind FailureKind) bool {
	if kind != KindRateLimited || s.retried[kind] {
		return false
	}
	s.retried[kind] = true
	return true
}

func (s *attemptState) exhausted() *ExhaustedError {
	return &ExhaustedError{Attempts: s.attempts}
}

type Proxy struct {
	primary    platform.AudioSource
	secondary  platform.AudioSource
	resolvers  []platform.DirectResolver
	transcoder Transcoder
	log        logger.Logger
}

// New builds the chain. secondary and resolvers may be nil.
func New(primary, secondary platform.AudioSource, resolvers []platform.DirectResolver, log logger.Logger) *Proxy {
	return &Proxy{
		primary:   primary,
		secondary: secondary,
		resolvers: resolvers,
		log:       log.WithField("component", "stream"),
	}
}

func (p *Proxy) WithTranscoder(t Transcoder) *Proxy {
	p.transcoder = t
	return p
}

// Serve answers req on w. It returns nil once the audio was fully sent or a
// redirect was issued. Errors wrapping ErrResponseStarted mean the status
// line is already out; for any other error nothing has been written and the
// caller answers with StatusOf and MessageOf.
func (p *Proxy) Serve(w http.ResponseWriter, r *http.Request, req Request) error {
	if err := youtube.ValidateID(req.VideoID); err != nil {
		return err
	}
	ctx := r.Context()
	rw := newResponseWriter(w)
	state := newAttemptState()
	log := p.log.WithFields(logger.Fields{"video_id": req.VideoID, "download": req.Download})

	// Primary extractor, then one retry with the alternate header profile
	// on a rate limit.
	if p.primary != nil {
		audio, err := p.open(ctx, p.primary, req.VideoID, network.DefaultProfile)
		if err == nil {
			return p.send(rw, r, req, audio, log.WithField("step", stepPrimary))
		}
		kind := state.record(stepPrimary, p.primary.Name(), network.DefaultProfile.Name, err)
		log.WithError(err).WithField("kind", kind.String()).Warn("Primary extractor failed")

		if state.retryOnce(kind) {
			if err := p.checkTransition(ctx, rw, state); err != nil {
				return err
			}
			audio, err := p.open(ctx, p.primary, req.VideoID, network.AlternateProfile)
			if err == nil {
				return p.send(rw, r, req, audio, log.WithField("step", stepAlternate))
			}
			kind := state.record(stepAlternate, p.primary.Name(), network.AlternateProfile.Name, err)
			log.WithError(err).WithField("kind", kind.String()).Warn("Alternate profile retry failed")
		}
	}

	// A redirect cannot carry Content-Disposition, so downloads skip it.
	if !req.Download {
		for _, resolver := range p.resolvers {
			if err := p.checkTransition(ctx, rw, state); err != nil {
				return err
			}
			target, err := resolver.ResolveURL(ctx, req.VideoID)
			if err == nil && target != "" {
				rw.Header().Set("Location", target)
				rw.Header().Set("Cache-Control", cacheRedirect)
				rw.WriteHeader(http.StatusFound)
				log.WithFields(logger.Fields{"step": stepDirect, "resolver": resolver.Name()}).Info("Redirecting to direct URL")
				return nil
			}
			if err == nil {
				err = fmt.Errorf("%w: empty URL", platform.ErrNotFound)
			}
			kind := state.record(stepDirect, resolver.Name(), "", err)
			log.WithError(err).WithFields(logger.Fields{"resolver": resolver.Name(), "kind": kind.String()}).Warn("Direct URL resolution failed")
		}
	}

	if p.secondary != nil {
		if err := p.checkTransition(ctx, rw, state); err != nil {
			return err
		}
		audio, err := p.open(ctx, p.secondary, req.VideoID, network.DefaultProfile)
		if err == nil {
			return p.send(rw, r, req, audio, log.WithField("step", stepSecondary))
		}
		kind := state.record(stepSecondary, p.secondary.Name(), "", err)
		log.WithError(err).WithField("kind", kind.String()).Warn("Secondary extractor failed")
	}

	exhausted := state.exhausted()
	log.WithError(exhausted).WithField("status", exhausted.Status()).Error("All audio sources failed")
	return exhausted
}

// checkTransition is consulted before every fallback step. A started
// response or a departed client ends the chain.
func (p *Proxy) checkTransition(ctx context.Context, rw *responseWriter, state *attemptState) error {
	if rw.started() {
		return fmt.Errorf("%w: state %s", ErrResponseStarted, rw.state)
	}
	if err := ctx.Err(); err != nil {
		state.record("transition", "client", "", err)
		return fmt.Errorf("client went away: %w", err)
	}
	return nil
}

func (p *Proxy) open(ctx context.Context, src platform.AudioSource, videoID string, profile network.HeaderProfile) (*platform.Audio, error) {
	audio, err := src.Open(ctx, videoID, profile)
	if err != nil {
		return nil, err
	}
	if audio == nil || audio.Body == nil {
		return nil, fmt.Errorf("%w: %s returned no body", platform.ErrUpstream, src.Name())
	}
	if err := prime(audio); err != nil {
		return nil, fmt.Errorf("%s first read: %w", src.Name(), err)
	}
	return audio, nil
}

// primedBody serves the buffered head before the rest of the upstream body.
type primedBody struct {
	*bufio.Reader
	io.Closer
}

// prime blocks until the body yields its first byte, so sources that only
// reach the media server on the first Read fail before headers are sent.
func prime(audio *platform.Audio) error {
	br := bufio.NewReaderSize(audio.Body, copyBufferSize)
	if _, err := br.Peek(1); err != nil {
		audio.Body.Close()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty audio stream", platform.ErrUpstream)
		}
		return platform.Classify(err)
	}
	audio.Body = primedBody{Reader: br, Closer: audio.Body}
	return nil
}

func (p *Proxy) send(rw *responseWriter, r *http.Request, req Request, audio *platform.Audio, log logger.Logger) error {
	defer audio.Body.Close()

	body := io.Reader(audio.Body)
	contentType, ext, size := audio.ContentType, audio.Ext, audio.Size
	if contentType == "" {
		contentType = platform.ContentTypeForExt(ext)
	}
	if ext == "" {
		ext = platform.ExtForContentType(contentType)
	}

	if req.Download && p.transcoder != nil && req.Format != "" && !strings.EqualFold(req.Format, ext) {
		transcoded, err := p.transcoder.Transcode(r.Context(), audio.Body, req.Format)
		if err != nil {
			return fmt.Errorf("transcode to %s: %w", req.Format, err)
		}
		defer transcoded.Close()
		body = transcoded
		ext = strings.ToLower(req.Format)
		contentType = platform.ContentTypeForExt(ext)
		size = 0
	}

	h := rw.Header()
	h.Set("Content-Type", contentType)
	h.Set("Accept-Ranges", "bytes")
	if size > 0 {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if req.Download {
		h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, SanitizeTitle(req.Title), ext))
		h.Set("Cache-Control", cacheDownload)
	} else {
		h.Set("Cache-Control", cacheStream)
	}
	rw.WriteHeader(http.StatusOK)

	written, err := copyFlush(rw, body)
	if err != nil {
		rw.close()
		if errors.Is(r.Context().Err(), context.Canceled) {
			log.WithField("bytes", written).Debug("Client disconnected mid-stream")
		} else {
			log.WithError(err).WithField("bytes", written).Warn("Stream failed after headers were sent")
		}
		return fmt.Errorf("%w: %w", ErrResponseStarted, err)
	}

	log.WithFields(logger.Fields{"bytes": written, "content_type": contentType}).Info("Audio sent")
	return nil
}

// copyFlush copies src to rw, flushing after every chunk so playback can
// start before the upstream finishes.
func copyFlush(rw *responseWriter, src io.Reader) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			m, werr := rw.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			rw.Flush()
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

var unsafeTitleChars = regexp.MustCompile(`[^A-Za-z0-9\-_. ]`)

// SanitizeTitle keeps letters, digits, dash, underscore, dot and space.
// An empty result becomes "audio".
func SanitizeTitle(title string) string {
	safe := strings.TrimSpace(unsafeTitleChars.ReplaceAllString(title, ""))
	if safe == "" {
		return "audio"
	}
	return safe
}
