// Package audio implements voice-answer recording over an exclusive input
// device, plus read-only playback of stored recordings.
package audio

import (
	"errors"
	"strings"
)

var (
	// ErrPermissionDenied means the input device could not be acquired.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrAlreadyRecording is returned by Start unless the capture is idle.
	ErrAlreadyRecording = errors.New("a recording is already in progress")
	// ErrNoArtifact is returned by Commit when no stopped recording is pending.
	ErrNoArtifact = errors.New("no recording to commit")
	// ErrNotRecording is returned when chunks arrive with no active recording.
	ErrNotRecording = errors.New("no active recording")
)

// PreferredFormats is the container negotiation order.
var PreferredFormats = []string{
	"audio/webm;codecs=opus",
	"audio/webm",
	"audio/ogg;codecs=opus",
	"audio/mp4",
	"audio/mpeg",
}

// FallbackFormat is used when the device supports none of PreferredFormats.
const FallbackFormat = "audio/webm"

// Negotiate picks the first preferred format the device supports.
func Negotiate(d Device) string {
	for _, f := range PreferredFormats {
		if d.Supports(f) {
			return f
		}
	}
	return FallbackFormat
}

// Playable reports whether format is one we can hand back for playback.
// Codec parameters are ignored when the base type matches.
func Playable(format string) bool {
	base := baseType(format)
	for _, f := range PreferredFormats {
		if strings.EqualFold(f, format) || strings.EqualFold(baseType(f), base) {
			return true
		}
	}
	return false
}

// ContentType returns the HTTP content type for a container format.
func ContentType(format string) string {
	return strings.ReplaceAll(format, " ", "")
}

func baseType(format string) string {
	if i := strings.IndexByte(format, ';'); i >= 0 {
		format = format[:i]
	}
	return strings.ToLower(strings.TrimSpace(format))
}
