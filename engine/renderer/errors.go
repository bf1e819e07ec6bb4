package renderer

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

var (
	// ErrMissingCapability is returned by NewContext when the device lacks a
	// capability the renderer cannot work without.
	ErrMissingCapability = errors.New("renderer: missing required capability")

	// ErrUnsupportedFormat is returned for a render target format the device
	// cannot render to.
	ErrUnsupportedFormat = errors.New("renderer: unsupported render target format")

	// ErrBusy is returned by ReadPixelsAsync while a previous read is in flight.
	ErrBusy = errors.New("renderer: asynchronous read already in flight")

	// ErrTargetDestroyed is returned when resizing a destroyed render target.
	ErrTargetDestroyed = errors.New("renderer: render target destroyed")

	// ErrShortBuffer is returned when a read destination cannot hold the
	// requested rectangle.
	ErrShortBuffer = errors.New("renderer: destination buffer too small")
)

// FramebufferError reports an incomplete framebuffer found in debug mode.
type FramebufferError struct {
	Framebuffer int
	Status      gpu.FramebufferStatus
}

func (e *FramebufferError) Error() string {
	return fmt.Sprintf("framebuffer %d incomplete: %s", e.Framebuffer, e.Status)
}
