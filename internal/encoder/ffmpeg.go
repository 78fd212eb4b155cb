package encoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"kabutune/internal/logger"
)

// waitDelay bounds how long Wait blocks on the stdin copy after FFmpeg exits.
const waitDelay = 5 * time.Second

// Transcoder pipes audio through an FFmpeg subprocess.
type Transcoder struct {
	config Config
	log    logger.Logger
}

func NewTranscoder(config Config, log logger.Logger) *Transcoder {
	if config.Executable == "" {
		config.Executable = "ffmpeg"
	}
	return &Transcoder{config: config, log: log.WithField("component", "ffmpeg")}
}

func NewDefaultTranscoder(log logger.Logger) *Transcoder {
	return NewTranscoder(DefaultConfig(), log)
}

// Transcode starts FFmpeg reading src on stdin. The returned reader yields
// the encoded output; closing it stops FFmpeg. The process is also killed
// when ctx is cancelled.
func (t *Transcoder) Transcode(ctx context.Context, src io.Reader, format string) (io.ReadCloser, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, t.config.Executable, t.buildArgs(f)...)
	cmd.Stdin = src
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	t.log.WithFields(logger.Fields{"pid": cmd.Process.Pid, "format": f}).Debug("FFmpeg started")
	return &output{cmd: cmd, stdout: stdout, stderr: &stderr, cancel: cancel}, nil
}

// buildArgs constructs FFmpeg command arguments based on format.
func (t *Transcoder) buildArgs(format Format) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-i", "pipe:0",
		"-vn",
		"-af", fmt.Sprintf("volume=%.2f", t.config.Volume),
		"-ar", strconv.Itoa(t.config.SampleRate),
		"-ac", strconv.Itoa(t.config.Channels),
		"-b:a", strconv.Itoa(t.config.Bitrate),
	}

	switch format {
	case FormatMP3:
		args = append(args, "-c:a", "libmp3lame", "-f", "mp3")
	case FormatOgg:
		args = append(args,
			"-c:a", "libopus",
			"-vbr", "on",
			"-application", "audio",
			"-f", "ogg",
		)
	case FormatAAC:
		args = append(args, "-c:a", "aac", "-f", "adts")
	}

	return append(args, "pipe:1")
}

type output struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	cancel context.CancelFunc

	once    sync.Once
	waitErr error
}

func (o *output) Read(p []byte) (int, error) {
	n, err := o.stdout.Read(p)
	if errors.Is(err, io.EOF) {
		if werr := o.wait(); werr != nil {
			return n, fmt.Errorf("ffmpeg exited: %w: %s", werr, strings.TrimSpace(o.stderr.String()))
		}
	}
	return n, err
}

func (o *output) Close() error {
	o.cancel()
	o.wait()
	return nil
}

func (o *output) wait() error {
	o.once.Do(func() {
		o.waitErr = o.cmd.Wait()
		o.cancel()
	})
	return o.waitErr
}
