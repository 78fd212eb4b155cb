// Package encoder re-encodes upstream audio with FFmpeg for downloads that
// ask for a specific container.
package encoder

import (
	"fmt"
	"strings"
)

// Format specifies the output format for encoded audio.
type Format string

const (
	// FormatMP3 outputs MPEG-1 Layer III, playable everywhere.
	FormatMP3 Format = "mp3"
	// FormatOgg outputs Opus in an Ogg container.
	FormatOgg Format = "ogg"
	// FormatAAC outputs raw ADTS AAC.
	FormatAAC Format = "aac"
)

// ParseFormat accepts the values allowed for the download `format` query.
func ParseFormat(v string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(v))); f {
	case FormatMP3, FormatOgg, FormatAAC:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format %q", v)
	}
}

// Config holds encoding configuration.
type Config struct {
	SampleRate int     // Sample rate in Hz (default: 48000)
	Channels   int     // Number of channels (default: 2 for stereo)
	Bitrate    int     // Bitrate in bps (default: 192000)
	Volume     float64 // Volume multiplier 0.0-2.0 (default: 1.0)
	// Executable overrides the ffmpeg binary.
	Executable string
}

func DefaultConfig() Config {
	return Config{
		SampleRate: 48000,
		Channels:   2,
		Bitrate:    192000,
		Volume:     1.0,
		Executable: "ffmpeg",
	}
}
