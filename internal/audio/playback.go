package audio

import (
	"fmt"

	"github.com/pavelanni/assessor/internal/model"
)

// PlaybackError explains why a stored answer cannot be played.
type PlaybackError struct {
	Reason string
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback failed: %s", e.Reason)
}

// Playback returns the stored recording for playing. It never modifies the answer.
func Playback(answer model.Answer) (Artifact, error) {
	switch a := answer.(type) {
	case nil:
		return Artifact{}, &PlaybackError{Reason: "no answer recorded"}
	case model.TextAnswer:
		return Artifact{}, &PlaybackError{Reason: "answer is not a recording"}
	case model.AudioAnswer:
		if len(a.Payload) == 0 {
			return Artifact{}, &PlaybackError{Reason: "recording is empty"}
		}
		if a.ContainerFormat == "" {
			return Artifact{}, &PlaybackError{Reason: "recording has no format"}
		}
		if !Playable(a.ContainerFormat) {
			return Artifact{}, &PlaybackError{Reason: fmt.Sprintf("unsupported format %q", a.ContainerFormat)}
		}
		return Artifact{
			Payload:         a.Payload,
			ContainerFormat: a.ContainerFormat,
			DurationSeconds: a.DurationSeconds,
		}, nil
	}
	return Artifact{}, &PlaybackError{Reason: "unknown answer type"}
}
