package audio

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/assessor/internal/model"
)

type recordedAnswer struct {
	setID, questionID string
	payload           []byte
	format            string
	duration          float64
}

type fakeWriter struct {
	got []recordedAnswer
}

func (w *fakeWriter) SetAudio(setID, questionID string, payload []byte, format string, duration float64) {
	w.got = append(w.got, recordedAnswer{setID, questionID, payload, format, duration})
}

// brokenDevice fails acquisition with a device-level error.
type brokenDevice struct{}

func (brokenDevice) Supports(string) bool { return true }
func (brokenDevice) Acquire(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("no microphone found")
}

// countingDevice tracks releases.
type countingDevice struct {
	released atomic.Int32
	r        *io.PipeReader
	w        *io.PipeWriter
}

func (d *countingDevice) Supports(f string) bool { return f == "audio/mpeg" }
func (d *countingDevice) Acquire(context.Context, string) (io.ReadCloser, error) {
	d.r, d.w = io.Pipe()
	return &countingReader{PipeReader: d.r, dev: d}, nil
}

type countingReader struct {
	*io.PipeReader
	dev *countingDevice
}

func (r *countingReader) Close() error {
	r.dev.released.Add(1)
	return r.PipeReader.Close()
}

func steppingClock(step time.Duration) func() time.Time {
	t := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

func grantedDevice(formats ...string) *PipeDevice {
	d := NewPipeDevice()
	d.Configure(true, formats)
	return d
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name    string
		formats []string
		want    string
	}{
		{"opus webm first", []string{"audio/mp4", "audio/webm;codecs=opus"}, "audio/webm;codecs=opus"},
		{"plain webm over ogg", []string{"audio/ogg;codecs=opus", "audio/webm"}, "audio/webm"},
		{"mp4 only", []string{"audio/mp4"}, "audio/mp4"},
		{"nothing supported", []string{"audio/wav"}, FallbackFormat},
		{"no formats reported", nil, FallbackFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Negotiate(grantedDevice(tt.formats...)))
		})
	}
}

func TestRecordAndCommit(t *testing.T) {
	dev := grantedDevice("audio/webm")
	c := NewCapture(dev, WithClock(steppingClock(2500*time.Millisecond)))
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, Recording, c.State())
	assert.Equal(t, "audio/webm", c.Format())
	assert.ErrorIs(t, c.Start(ctx), ErrAlreadyRecording)

	require.NoError(t, dev.Feed([]byte("abc")))
	require.NoError(t, dev.Feed([]byte("def")))

	art, err := c.Stop()
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.Equal(t, []byte("abcdef"), art.Payload)
	assert.Equal(t, "audio/webm", art.ContainerFormat)
	assert.InDelta(t, 2.5, art.DurationSeconds, 1e-9)
	assert.Equal(t, Stopped, c.State())
	assert.False(t, dev.Active(), "device should be released on stop")
	assert.Same(t, art, c.Pending())

	// Still not idle: no overlapping recording.
	assert.ErrorIs(t, c.Start(ctx), ErrAlreadyRecording)
	assert.ErrorIs(t, dev.Feed([]byte("late")), ErrNotRecording)

	w := &fakeWriter{}
	require.NoError(t, c.Commit(w, "main", "Q1"))
	require.Len(t, w.got, 1)
	assert.Equal(t, "Q1", w.got[0].questionID)
	assert.Equal(t, []byte("abcdef"), w.got[0].payload)
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, c.Pending())

	assert.ErrorIs(t, c.Commit(w, "main", "Q1"), ErrNoArtifact)
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	c := NewCapture(grantedDevice())
	art, err := c.Stop()
	assert.NoError(t, err)
	assert.Nil(t, art)
	assert.Equal(t, Idle, c.State())
}

func TestCommitWithoutRecording(t *testing.T) {
	c := NewCapture(grantedDevice())
	assert.ErrorIs(t, c.Commit(&fakeWriter{}, "main", "Q1"), ErrNoArtifact)

	require.NoError(t, c.Start(context.Background()))
	assert.ErrorIs(t, c.Commit(&fakeWriter{}, "main", "Q1"), ErrNoArtifact)
	c.Discard()
}

func TestPermissionDenied(t *testing.T) {
	dev := NewPipeDevice()
	dev.Configure(false, []string{"audio/webm"})
	c := NewCapture(dev)
	assert.ErrorIs(t, c.Start(context.Background()), ErrPermissionDenied)
	assert.Equal(t, Idle, c.State())

	c = NewCapture(brokenDevice{})
	err := c.Start(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Contains(t, err.Error(), "no microphone found")
	assert.Equal(t, Idle, c.State())
}

func TestAbnormalTerminationReleasesDevice(t *testing.T) {
	dev := grantedDevice("audio/webm")
	c := NewCapture(dev)
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, dev.Feed([]byte("ab")))

	boom := errors.New("stream reset")
	dev.Fail(boom)
	assert.Eventually(t, func() bool { return !dev.Active() }, time.Second, time.Millisecond)

	art, err := c.Stop()
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), art.Payload)
	assert.ErrorIs(t, c.Err(), boom)
}

func TestStopReleasesExactlyOnce(t *testing.T) {
	dev := &countingDevice{}
	c := NewCapture(dev)
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, "audio/mpeg", c.Format())

	_, err := dev.w.Write([]byte("x"))
	require.NoError(t, err)

	_, err = c.Stop()
	require.NoError(t, err)
	assert.Equal(t, int32(1), dev.released.Load())
}

func TestDiscard(t *testing.T) {
	dev := grantedDevice("audio/webm")
	c := NewCapture(dev)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	require.NoError(t, dev.Feed([]byte("abc")))
	_, err := c.Stop()
	require.NoError(t, err)
	c.Discard()
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, c.Pending())

	// Discard while recording stops and releases.
	require.NoError(t, c.Start(ctx))
	c.Discard()
	assert.Equal(t, Idle, c.State())
	assert.False(t, dev.Active())

	// A fresh recording does not carry old bytes.
	require.NoError(t, c.Start(ctx))
	require.NoError(t, dev.Feed([]byte("new")))
	art, err := c.Stop()
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), art.Payload)
}

func TestPlayback(t *testing.T) {
	tests := []struct {
		name    string
		answer  model.Answer
		wantErr bool
	}{
		{"absent", nil, true},
		{"text", model.TextAnswer{Content: "Queue"}, true},
		{"empty payload", model.AudioAnswer{ContainerFormat: "audio/webm"}, true},
		{"no format", model.AudioAnswer{Payload: []byte{1}}, true},
		{"unplayable format", model.AudioAnswer{Payload: []byte{1}, ContainerFormat: "audio/flac"}, true},
		{"webm opus", model.AudioAnswer{Payload: []byte{1}, ContainerFormat: "audio/webm;codecs=opus", DurationSeconds: 2}, false},
		{"mp4", model.AudioAnswer{Payload: []byte{1, 2}, ContainerFormat: "audio/mp4"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art, err := Playback(tt.answer)
			if tt.wantErr {
				var pe *PlaybackError
				assert.ErrorAs(t, err, &pe)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.answer.(model.AudioAnswer).Payload, art.Payload)
		})
	}
}
