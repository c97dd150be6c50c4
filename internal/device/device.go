// Package device abstracts the audio output a playback session renders into.
//
// A Device opens one Stream per session. The stream invokes the Callback once
// per device buffer from its own goroutine (or the audio driver's thread) and
// keeps doing so until the callback returns something other than
// StatusContinue or the stream is closed.
package device

import (
	"errors"
	"fmt"
	"sync"
)

// Status is the outcome of rendering one buffer.
type Status int

const (
	// StatusContinue asks for the next buffer.
	StatusContinue Status = iota
	// StatusStop ends the stream after the current buffer was delivered.
	StatusStop
	// StatusUnderrun aborts the stream because the device missed data.
	StatusUnderrun
)

func (s Status) String() string {
	switch s {
	case StatusContinue:
		return "continue"
	case StatusStop:
		return "stop"
	case StatusUnderrun:
		return "underrun"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrUnsupportedFormat is returned by Open when the backend cannot serve the
// requested channel count or rate.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// ErrDeviceClosed is returned when starting a stream that was already closed.
var ErrDeviceClosed = errors.New("device stream closed")

// Format describes an output stream.
type Format struct {
	Channels     int
	SampleRate   int
	BufferFrames int
}

func (f Format) validate() error {
	if f.Channels < 1 || f.SampleRate < 1 || f.BufferFrames < 1 {
		return fmt.Errorf("%w: %d ch, %d Hz, %d frames",
			ErrUnsupportedFormat, f.Channels, f.SampleRate, f.BufferFrames)
	}
	return nil
}

// Callback renders one interleaved float32 buffer. xrun is true when the
// device detected an underrun or overflow since the previous call.
type Callback func(out []float32, xrun bool) Status

// Device opens output streams.
type Device interface {
	Open(f Format, cb Callback) (Stream, error)
}

// Stream is an opened output stream.
type Stream interface {
	// Start begins invoking the callback.
	Start() error

	// Done is closed once the callback returned a non-continue status or
	// the device failed.
	Done() <-chan struct{}

	// Status returns the status that closed Done, or StatusContinue while
	// the stream is still running.
	Status() Status

	// Close stops the stream. After Close returns the callback is not
	// running and will not be invoked again. Close is idempotent.
	Close() error
}

// finisher records the first terminal status of a stream.
type finisher struct {
	once   sync.Once
	done   chan struct{}
	mtx    sync.Mutex
	status Status
}

func (f *finisher) init() {
	f.done = make(chan struct{})
}

func (f *finisher) finish(s Status) {
	f.once.Do(func() {
		f.mtx.Lock()
		f.status = s
		f.mtx.Unlock()
		close(f.done)
	})
}

func (f *finisher) Done() <-chan struct{} { return f.done }

func (f *finisher) Status() Status {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.status
}
