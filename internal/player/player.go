// Package player holds the client-side playback model: a queue state
// machine that auto-refills from related tracks, and the audio output
// abstraction used by the terminal client.
package player

import "context"

// AudioPlayer plays an audio URL until it ends or ctx is cancelled.
type AudioPlayer interface {
	Play(ctx context.Context, streamURL string) error

	// Name returns the player implementation name (e.g., "ffmpeg")
	Name() string
}

// Config holds player configuration options.
type Config struct {
	Channels   int     // Number of audio channels (default: 2)
	SampleRate int     // Sample rate in Hz (default: 48000)
	Device     string  // Output device (default: "default")
	Volume     float64 // Volume multiplier 0.0-2.0 (default: 1.0)
}

// DefaultConfig returns the default player configuration.
func DefaultConfig() Config {
	return Config{
		Channels:   2,
		SampleRate: 48000,
		Device:     "default",
		Volume:     1.0,
	}
}
