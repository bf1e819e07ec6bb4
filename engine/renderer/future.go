package renderer

import (
	"context"
	"fmt"
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

// Future is the result of an asynchronous GPU operation. It completes when
// Context.Poll observes its fence signalled.
type Future struct {
	done   bool
	err    error
	fence  gpu.Handle
	onDone func() error
}

func resolvedFuture(err error) *Future {
	return &Future{done: true, err: err}
}

// Done reports whether the operation completed, successfully or not.
func (f *Future) Done() bool {
	return f.done
}

// Err returns the failure of a completed operation.
func (f *Future) Err() error {
	return f.err
}

func (f *Future) complete(err error) {
	if f.done {
		return
	}
	if err == nil && f.onDone != nil {
		err = f.onDone()
	}
	f.done, f.err, f.onDone = true, err, nil
}

// Poll advances every pending asynchronous operation. The host loop calls
// it once per frame.
//
// Returns:
//   - int: the number of operations still pending
func (c *Context) Poll() int {
	kept := c.pending[:0]
	for _, f := range c.pending {
		switch c.backend.FenceStatus(f.fence) {
		case gpu.FencePending:
			kept = append(kept, f)
			continue
		case gpu.FenceSignaled:
			f.complete(nil)
		default:
			f.complete(gpu.ErrContextLost)
		}
		c.backend.DeleteFence(f.fence)
	}
	clear(c.pending[len(kept):])
	c.pending = kept
	return len(c.pending)
}

// Await drives Poll until f completes or ctx is done.
//
// Parameters:
//   - ctx: cancels the wait
//   - f: the future to wait for
//
// Returns:
//   - error: the operation's error, or ctx.Err() on cancellation
func (c *Context) Await(ctx context.Context, f *Future) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		c.Poll()
		if f.Done() {
			return f.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Context) failPending(err error) {
	for _, f := range c.pending {
		f.complete(err)
	}
	clear(c.pending)
	c.pending = c.pending[:0]
}

func (c *Context) fenceFuture(onDone func() error) (*Future, error) {
	fence, err := c.backend.FenceSync()
	if err != nil {
		return nil, err
	}
	c.backend.Flush()
	f := &Future{fence: fence, onDone: onDone}
	c.pending = append(c.pending, f)
	return f, nil
}

// ReadPixels synchronously reads RGBA8 pixels from the bound framebuffer.
func (c *Context) ReadPixels(x, y, width, height int, dst []byte) error {
	return c.backend.ReadPixels(x, y, width, height, dst)
}

// ReadPixelsAsync starts a non-blocking read into dst. dst must not be
// touched until the future completes. Without pixel buffer support the read
// happens immediately and the future is already complete.
//
// Parameters:
//   - x, y, width, height: the rectangle, bottom-left origin
//   - dst: destination of width*height*4 bytes
//
// Returns:
//   - *Future: completes when dst holds the pixels
//   - error: ErrBusy while a previous read is pending, ErrShortBuffer when
//     dst is smaller than width*height*4
func (c *Context) ReadPixelsAsync(x, y, width, height int, dst []byte) (*Future, error) {
	if c.pendingRead != nil && !c.pendingRead.Done() {
		return nil, ErrBusy
	}
	size := width * height * 4
	if width < 0 || height < 0 || len(dst) < size {
		return nil, fmt.Errorf("read %dx%d into %d bytes: %w", width, height, len(dst), ErrShortBuffer)
	}
	if !c.caps.PixelBufferObject || !c.caps.FenceSync {
		return resolvedFuture(c.ReadPixels(x, y, width, height, dst)), nil
	}
	if c.pixelPack == 0 || c.pixelPackSize < size {
		if c.pixelPack != 0 {
			c.backend.DeletePixelBuffer(c.pixelPack)
		}
		pb, err := c.backend.CreatePixelBuffer(size)
		if err != nil {
			return nil, err
		}
		c.pixelPack, c.pixelPackSize = pb, size
	}
	if err := c.backend.ReadPixelsToBuffer(c.pixelPack, x, y, width, height); err != nil {
		return nil, err
	}
	pb := c.pixelPack
	f, err := c.fenceFuture(func() error {
		return c.backend.GetPixelBufferData(pb, dst[:size])
	})
	if err != nil {
		return nil, err
	}
	c.pendingRead = f
	return f, nil
}

// WaitForGpuCommandsComplete returns a future that completes once every
// command issued so far has executed. Without fence support it blocks on a
// single pixel read and returns a completed future.
func (c *Context) WaitForGpuCommandsComplete() *Future {
	if c.caps.FenceSync {
		f, err := c.fenceFuture(nil)
		if err == nil {
			return f
		}
		c.log.Warn("fence creation failed, falling back to blocking read", "err", err)
	}
	return resolvedFuture(c.waitByRead())
}

// WaitForGpuCommandsCompleteSync blocks until the GPU is idle.
func (c *Context) WaitForGpuCommandsCompleteSync() error {
	if c.caps.FenceSync {
		c.backend.Finish()
		return nil
	}
	return c.waitByRead()
}

func (c *Context) waitByRead() error {
	var px [4]byte
	return c.backend.ReadPixels(0, 0, 1, 1, px[:])
}
