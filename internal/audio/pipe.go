package audio

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
)

// PipeDevice is fed by a remote recorder: the browser captures with its own
// MediaRecorder, reports permission and supported formats, and uploads
// encoded chunks that Feed forwards into the active recording.
type PipeDevice struct {
	mu      sync.Mutex
	granted bool
	formats []string
	w       *io.PipeWriter
}

// NewPipeDevice creates a device that denies access until Configure grants it.
func NewPipeDevice() *PipeDevice {
	return &PipeDevice{}
}

// Configure records what the client reported before a recording starts.
func (p *PipeDevice) Configure(granted bool, formats []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted = granted
	p.formats = slices.Clone(formats)
}

func (p *PipeDevice) Supports(format string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.ContainsFunc(p.formats, func(f string) bool {
		return strings.EqualFold(strings.ReplaceAll(f, " ", ""), format)
	})
}

func (p *PipeDevice) Acquire(_ context.Context, _ string) (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.granted {
		return nil, ErrPermissionDenied
	}
	r, w := io.Pipe()
	p.w = w
	return &pipeReader{PipeReader: r, dev: p, w: w}, nil
}

// Feed forwards one encoded chunk. It blocks until the recording consumed it.
func (p *PipeDevice) Feed(chunk []byte) error {
	p.mu.Lock()
	w := p.w
	p.mu.Unlock()
	if w == nil {
		return ErrNotRecording
	}
	if _, err := w.Write(chunk); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			return ErrNotRecording
		}
		return err
	}
	return nil
}

// Fail terminates the active recording abnormally with err.
func (p *PipeDevice) Fail(err error) {
	p.mu.Lock()
	w := p.w
	p.mu.Unlock()
	if w != nil {
		w.CloseWithError(err)
	}
}

// Active reports whether a recording currently holds the device.
func (p *PipeDevice) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w != nil
}

type pipeReader struct {
	*io.PipeReader
	dev *PipeDevice
	w   *io.PipeWriter
}

func (r *pipeReader) Close() error {
	r.dev.mu.Lock()
	if r.dev.w == r.w {
		r.dev.w = nil
	}
	r.dev.mu.Unlock()
	r.w.Close()
	return r.PipeReader.Close()
}
