package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Device is an exclusive audio input. Acquire returns a stream of encoded
// chunks in the requested container format; closing it releases the device.
type Device interface {
	Supports(format string) bool
	Acquire(ctx context.Context, format string) (io.ReadCloser, error)
}

// State is the recording lifecycle position.
type State int

const (
	Idle State = iota
	Recording
	Stopped
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	}
	return "idle"
}

// Artifact is a finished recording.
type Artifact struct {
	Payload         []byte
	ContainerFormat string
	DurationSeconds float64
}

// AnswerWriter receives committed recordings.
type AnswerWriter interface {
	SetAudio(setID, questionID string, payload []byte, containerFormat string, durationSeconds float64)
}

// Capture drives one device through Idle -> Recording -> Stopped -> Idle.
type Capture struct {
	device Device
	now    func() time.Time

	mu      sync.Mutex
	state   State
	format  string
	started time.Time
	src     io.ReadCloser
	done    chan struct{}
	pending *Artifact

	bufMu   sync.Mutex
	buf     bytes.Buffer
	readErr error
}

// Option configures a Capture.
type Option func(*Capture)

// WithClock replaces time.Now for duration measurement.
func WithClock(now func() time.Time) Option {
	return func(c *Capture) { c.now = now }
}

// NewCapture creates an idle Capture over d.
func NewCapture(d Device, opts ...Option) *Capture {
	c := &Capture{device: d, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Format returns the negotiated format of the active or pending recording.
func (c *Capture) Format() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// Start negotiates a format, acquires the device and begins buffering.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return ErrAlreadyRecording
	}

	format := Negotiate(c.device)
	src, err := c.device.Acquire(ctx, format)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	c.bufMu.Lock()
	c.buf.Reset()
	c.readErr = nil
	c.bufMu.Unlock()

	c.src = &releaseOnce{ReadCloser: src}
	c.format = format
	c.started = c.now()
	c.done = make(chan struct{})
	c.state = Recording
	go c.pump(c.src, c.done)
	return nil
}

// pump copies chunks until the source ends, then releases it.
func (c *Capture) pump(src io.ReadCloser, done chan<- struct{}) {
	defer close(done)
	defer src.Close()
	chunk := make([]byte, 32*1024)
	for {
		n, err := src.Read(chunk)
		if n > 0 {
			c.bufMu.Lock()
			c.buf.Write(chunk[:n])
			c.bufMu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				c.bufMu.Lock()
				c.readErr = err
				c.bufMu.Unlock()
				slog.Warn("audio source terminated", "error", err)
			}
			return
		}
	}
}

// Stop ends the recording and returns the artifact. It is a no-op while idle.
func (c *Capture) Stop() (*Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Idle:
		return nil, nil
	case Stopped:
		return c.pending, nil
	}

	c.src.Close()
	<-c.done
	c.src = nil

	c.bufMu.Lock()
	payload := bytes.Clone(c.buf.Bytes())
	c.buf.Reset()
	c.bufMu.Unlock()

	c.pending = &Artifact{
		Payload:         payload,
		ContainerFormat: c.format,
		DurationSeconds: c.now().Sub(c.started).Seconds(),
	}
	c.state = Stopped
	return c.pending, nil
}

// Err returns the read error that ended the last recording abnormally, if any.
func (c *Capture) Err() error {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	return c.readErr
}

// Pending returns the stopped, uncommitted artifact.
func (c *Capture) Pending() *Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Stopped {
		return nil
	}
	return c.pending
}

// Discard drops any recording, stopping it first if needed.
func (c *Capture) Discard() {
	if c.State() == Recording {
		c.Stop()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	c.format = ""
	c.state = Idle
}

// Commit writes the stopped artifact as the answer for the question.
func (c *Capture) Commit(w AnswerWriter, setID, questionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Stopped || c.pending == nil {
		return ErrNoArtifact
	}
	a := c.pending
	w.SetAudio(setID, questionID, a.Payload, a.ContainerFormat, a.DurationSeconds)
	c.pending = nil
	c.format = ""
	c.state = Idle
	return nil
}

type releaseOnce struct {
	io.ReadCloser
	once sync.Once
	err  error
}

func (r *releaseOnce) Close() error {
	r.once.Do(func() { r.err = r.ReadCloser.Close() })
	return r.err
}
