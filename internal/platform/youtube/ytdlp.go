package youtube

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/lrstanley/go-ytdlp"

	"kabutune/internal/logger"
	"kabutune/internal/network"
	"kabutune/internal/platform"
	"kabutune/internal/track"
)

const audioFormat = "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio"

// Ytdlp drives the yt-dlp CLI. It serves both as a DirectResolver and as
// the secondary AudioSource that pipes the download to stdout.
type Ytdlp struct {
	opts Options
	log  logger.Logger
}

func NewYtdlp(opts Options, log logger.Logger) *Ytdlp {
	return &Ytdlp{opts: opts, log: log.WithField("source", "ytdlp")}
}

func (y *Ytdlp) Name() string {
	return "ytdlp"
}

func (y *Ytdlp) command() *ytdlp.Command {
	cmd := ytdlp.New().
		IgnoreConfig().
		NoWarnings().
		NoPlaylist().
		NoCheckCertificates().
		SocketTimeout(10)
	if y.opts.Executable != "" {
		cmd.SetExecutable(y.opts.Executable)
	}
	if y.opts.Proxy != "" {
		cmd.Proxy(y.opts.Proxy)
	}
	return cmd
}

// ResolveURL returns a signed googlevideo URL for the best audio format.
func (y *Ytdlp) ResolveURL(ctx context.Context, videoID string) (string, error) {
	if err := ValidateID(videoID); err != nil {
		return "", err
	}
	args := append(y.opts.cookieArgs(), track.WatchURL(videoID))

	res, err := y.command().
		Format("bestaudio").
		Print("urls").
		Run(ctx, args...)
	if err != nil {
		return "", platform.Classify(fmt.Errorf("yt-dlp failed: %w: %s", err, stderrOf(res)))
	}
	return pickAudioURL(res.Stdout)
}

// Metadata holds what yt-dlp reports about a video without downloading it.
type Metadata struct {
	Title     string
	Channel   string
	Duration  int
	Thumbnail string
}

// ExtractMetadata extracts track metadata without downloading.
func (y *Ytdlp) ExtractMetadata(ctx context.Context, videoID string) (*Metadata, error) {
	if err := ValidateID(videoID); err != nil {
		return nil, err
	}
	args := append(y.opts.cookieArgs(), track.WatchURL(videoID))

	res, err := y.command().
		SkipDownload().
		Print("%(title)s\t%(channel,uploader)s\t%(duration)s\t%(thumbnail)s").
		Run(ctx, args...)
	if err != nil {
		return nil, platform.Classify(fmt.Errorf("yt-dlp metadata failed: %w: %s", err, stderrOf(res)))
	}
	return parseMetadata(res.Stdout)
}

// Open starts yt-dlp writing the best audio format to stdout. It blocks
// until the first bytes arrive so that a failing download is reported
// before the caller commits to a response.
func (y *Ytdlp) Open(ctx context.Context, videoID string, _ network.HeaderProfile) (*platform.Audio, error) {
	if err := ValidateID(videoID); err != nil {
		return nil, err
	}
	args := append(y.opts.cookieArgs(), track.WatchURL(videoID))

	ctx, cancel := context.WithCancel(ctx)
	cmd := y.command().
		Format(audioFormat).
		Output("-").
		NoSimulate().
		NoPart().
		Quiet().
		BuildCommand(ctx, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: yt-dlp stdout pipe: %w", platform.ErrUpstream, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: yt-dlp start: %w", platform.ErrUpstream, err)
	}

	pipe := &processReader{cmd: cmd, cancel: cancel, stdout: stdout, stderr: &stderr}
	br := bufio.NewReaderSize(stdout, 64*1024)
	head, err := br.Peek(12)
	if len(head) == 0 {
		waitErr := pipe.wait()
		if waitErr == nil {
			waitErr = err
		}
		return nil, platform.Classify(fmt.Errorf("yt-dlp produced no audio: %w: %s", waitErr, strings.TrimSpace(stderr.String())))
	}
	pipe.reader = br

	ext := sniffExt(head)
	y.log.WithFields(logger.Fields{"video_id": videoID, "ext": ext}).Debug("Piping yt-dlp output")
	return &platform.Audio{
		Body:        pipe,
		ContentType: platform.ContentTypeForExt(ext),
		Ext:         ext,
	}, nil
}

// processReader reads a subprocess' stdout; Close kills and reaps it.
type processReader struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr *bytes.Buffer
	reader io.Reader

	once    sync.Once
	waitErr error
}

func (p *processReader) Read(b []byte) (int, error) {
	n, err := p.reader.Read(b)
	if errors.Is(err, io.EOF) {
		if werr := p.wait(); werr != nil {
			return n, fmt.Errorf("yt-dlp exited: %w: %s", werr, strings.TrimSpace(p.stderr.String()))
		}
	}
	return n, err
}

func (p *processReader) Close() error {
	p.cancel()
	p.stdout.Close()
	p.wait()
	return nil
}

func (p *processReader) wait() error {
	p.once.Do(func() {
		p.waitErr = p.cmd.Wait()
		p.cancel()
	})
	return p.waitErr
}

// sniffExt guesses the container from its leading bytes.
func sniffExt(head []byte) string {
	switch {
	case bytes.HasPrefix(head, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "webm"
	case len(head) >= 8 && string(head[4:8]) == "ftyp":
		return "m4a"
	case bytes.HasPrefix(head, []byte("ID3")), len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0 && head[1]&0x06 != 0:
		return "mp3"
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xF6 == 0xF0:
		return "aac"
	case bytes.HasPrefix(head, []byte("OggS")):
		return "ogg"
	default:
		return "webm"
	}
}

// pickAudioURL prefers an audio-only URL when yt-dlp prints several.
func pickAudioURL(out string) (string, error) {
	var lines []string
	for line := range strings.SplitSeq(strings.TrimSpace(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("%w: yt-dlp returned empty URL", platform.ErrNotFound)
	}
	for _, line := range lines {
		if strings.Contains(line, "mime=audio") || strings.Contains(line, "audio%2F") {
			return line, nil
		}
	}
	return lines[0], nil
}

func parseMetadata(out string) (*Metadata, error) {
	line := strings.TrimSpace(out)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	parts := strings.Split(line, "\t")
	if len(parts) < 4 {
		return nil, fmt.Errorf("%w: unexpected yt-dlp metadata output %q", platform.ErrUpstream, line)
	}
	meta := &Metadata{
		Title:     naToEmpty(parts[0]),
		Channel:   naToEmpty(parts[1]),
		Thumbnail: naToEmpty(parts[3]),
	}
	if d, err := strconv.ParseFloat(parts[2], 64); err == nil {
		meta.Duration = int(d)
	}
	return meta, nil
}

// naToEmpty maps yt-dlp's placeholder for missing template fields.
func naToEmpty(v string) string {
	if v == "NA" {
		return ""
	}
	return v
}

func stderrOf(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}
	return strings.TrimSpace(res.Stderr)
}

// EnsureInstalled downloads a managed yt-dlp binary when none is available.
func EnsureInstalled(ctx context.Context, log logger.Logger) error {
	resolved, err := ytdlp.Install(ctx, nil)
	if err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	log.WithFields(logger.Fields{
		"path":    resolved.Executable,
		"version": resolved.Version,
	}).Info("yt-dlp ready")
	return nil
}
