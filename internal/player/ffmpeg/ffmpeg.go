// Package ffmpeg plays proxied audio streams on the local sound device.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"kabutune/internal/logger"
	"kabutune/internal/player"
)

// Player implements player.AudioPlayer using FFmpeg.
type Player struct {
	config     player.Config
	executable string
	log        logger.Logger
}

func New(config player.Config, log logger.Logger) *Player {
	return &Player{config: config, executable: "ffmpeg", log: log}
}

func NewDefault(log logger.Logger) *Player {
	return New(player.DefaultConfig(), log)
}

// WithExecutable overrides the ffmpeg binary path.
func (p *Player) WithExecutable(path string) *Player {
	if path != "" {
		p.executable = path
	}
	return p
}

func (p *Player) Name() string {
	return "ffmpeg"
}

// Play decodes streamURL to the output device and blocks until playback
// ends. Cancelling ctx kills ffmpeg and returns ctx.Err().
func (p *Player) Play(ctx context.Context, streamURL string) error {
	cmd := exec.CommandContext(ctx, p.executable, p.buildArgs(runtime.GOOS, streamURL)...)
	cmd.Stderr = os.Stderr
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg failed to start: %w", err)
	}
	p.log.WithFields(logger.Fields{
		"pid": cmd.Process.Pid,
		"url": streamURL,
	}).Debug("FFmpeg playback started")

	err := cmd.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		p.log.Debug("Playback stopped")
		return ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("ffmpeg exited with code %d", exitErr.ExitCode())
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	p.log.Debug("Playback finished")
	return nil
}

func (p *Player) buildArgs(goos, streamURL string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", streamURL,
		"-vn",
		"-ac", strconv.Itoa(p.config.Channels),
		"-ar", strconv.Itoa(p.config.SampleRate),
	}
	if p.config.Volume > 0 && p.config.Volume != 1.0 {
		args = append(args, "-af", "volume="+strconv.FormatFloat(p.config.Volume, 'f', 2, 64))
	}

	device := p.config.Device
	switch goos {
	case "linux":
		// PulseAudio (most modern Linux)
		return append(args, "-f", "pulse", device)
	case "darwin":
		return append(args, "-f", "audiotoolbox", device)
	default:
		// Windows has no ffmpeg audio output muxer; SDL opens the default device
		return append(args, "-f", "sdl", "kabutune")
	}
}
