package wgpu_backend

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// readback is a region copied into a mappable buffer, rows top-down and
// padded to the copy alignment.
type readback struct {
	buf           *wgpu.Buffer
	size          uint64
	bytesPerRow   int
	format        wgpu.TextureFormat
	width, height int
}

func (r *readback) release() {
	if r != nil && r.buf != nil {
		r.buf.Release()
		r.buf = nil
	}
}

// convert writes the region to dst as bottom-up RGBA8.
func (r *readback) convert(data, dst []byte) error {
	for row := range r.height {
		src := data[(r.height-1-row)*r.bytesPerRow:]
		if !toRGBA8(r.format, src, r.width, dst[row*r.width*4:]) {
			return fmt.Errorf("read pixels from %v: %w", r.format, gpu.ErrUnsupported)
		}
	}
	return nil
}

type pixelBuffer struct {
	size    int
	pending *readback
}

type fence struct {
	done   bool
	failed bool
}

// readSource returns the colour texture ReadPixels reads: attachment 0 of
// the bound framebuffer.
func (b *Backend) readSource() (*texture, error) {
	if b.boundFB == 0 {
		if b.surface != nil {
			return nil, fmt.Errorf("surface cannot be read back: %w", gpu.ErrUnsupported)
		}
		return b.offscreen, nil
	}
	f, ok := b.framebuffers[b.boundFB]
	if !ok {
		return nil, gpu.ErrInvalidHandle
	}
	t := b.textures[f.colors[gpu.AttachmentColor0]]
	if t == nil || t.tex == nil {
		return nil, fmt.Errorf("framebuffer %d has no colour attachment", b.boundFB)
	}
	return t, nil
}

// copyRegion submits a copy of the region into a new mappable buffer.
func (b *Backend) copyRegion(x, y, width, height int) (*readback, error) {
	t, err := b.readSource()
	if err != nil {
		return nil, err
	}
	if x < 0 || y < 0 || width <= 0 || height <= 0 || x+width > t.width || y+height > t.height {
		return nil, fmt.Errorf("read region %dx%d at %d,%d outside %dx%d", width, height, x, y, t.width, t.height)
	}
	r := &readback{
		bytesPerRow: int(align(uint64(width*t.texelSize), 256)),
		format:      t.native,
		width:       width,
		height:      height,
	}
	r.size = uint64(r.bytesPerRow * height)
	r.buf, err = b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "readback",
		Size:  r.size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create readback buffer: %w", err)
	}

	b.endPass()
	enc, err := b.commandEncoder()
	if err != nil {
		r.release()
		return nil, err
	}
	enc.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{X: uint32(x), Y: uint32(t.height - y - height)},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyBuffer{
			Buffer: r.buf,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  uint32(r.bytesPerRow),
				RowsPerImage: uint32(height),
			},
		},
		&wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
	)
	b.encoded = true
	b.submit()
	return r, nil
}

// mapRead maps r and blocks until the copy has landed.
func (b *Backend) mapRead(r *readback) ([]byte, error) {
	done := false
	var status wgpu.BufferMapAsyncStatus
	err := r.buf.MapAsync(wgpu.MapModeRead, 0, r.size, func(s wgpu.BufferMapAsyncStatus) {
		done, status = true, s
	})
	if err != nil {
		return nil, fmt.Errorf("map readback buffer: %w", err)
	}
	for !done {
		b.device.Poll(true, nil)
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("map readback buffer: status %v", status)
	}
	data := append([]byte(nil), r.buf.GetMappedRange(0, uint(r.size))...)
	r.buf.Unmap()
	return data, nil
}

func (b *Backend) ReadPixels(x, y, width, height int, dst []byte) error {
	if len(dst) < width*height*4 {
		return fmt.Errorf("read pixels: dst holds %d bytes, need %d", len(dst), width*height*4)
	}
	r, err := b.copyRegion(x, y, width, height)
	if err != nil {
		return err
	}
	defer r.release()
	data, err := b.mapRead(r)
	if err != nil {
		return err
	}
	return r.convert(data, dst)
}

func (b *Backend) CreatePixelBuffer(size int) (gpu.Handle, error) {
	h := b.handle()
	b.pixelBuffers[h] = &pixelBuffer{size: size}
	return h, nil
}

// ReadPixelsToBuffer queues the copy without waiting for it.
func (b *Backend) ReadPixelsToBuffer(pb gpu.Handle, x, y, width, height int) error {
	p, ok := b.pixelBuffers[pb]
	if !ok {
		return gpu.ErrInvalidHandle
	}
	if width*height*4 > p.size {
		return fmt.Errorf("pixel buffer holds %d bytes, need %d", p.size, width*height*4)
	}
	r, err := b.copyRegion(x, y, width, height)
	if err != nil {
		return err
	}
	p.pending.release()
	p.pending = r
	return nil
}

func (b *Backend) GetPixelBufferData(pb gpu.Handle, dst []byte) error {
	p, ok := b.pixelBuffers[pb]
	if !ok {
		return gpu.ErrInvalidHandle
	}
	if p.pending == nil {
		return fmt.Errorf("pixel buffer %d has no pending read", pb)
	}
	data, err := b.mapRead(p.pending)
	if err != nil {
		return err
	}
	return p.pending.convert(data, dst)
}

func (b *Backend) DeletePixelBuffer(pb gpu.Handle) {
	if p, ok := b.pixelBuffers[pb]; ok {
		p.pending.release()
		delete(b.pixelBuffers, pb)
	}
}

// FenceSync submits pending work and signals once the queue has run it.
func (b *Backend) FenceSync() (gpu.Handle, error) {
	b.Flush()
	f := &fence{}
	b.queue.OnSubmittedWorkDone(func(s wgpu.QueueWorkDoneStatus) {
		f.done, f.failed = true, s != wgpu.QueueWorkDoneStatusSuccess
	})
	h := b.handle()
	b.fences[h] = f
	return h, nil
}

func (b *Backend) FenceStatus(f gpu.Handle) gpu.FenceStatus {
	fc, ok := b.fences[f]
	if !ok {
		return gpu.FenceFailed
	}
	if !fc.done {
		b.device.Poll(false, nil)
	}
	switch {
	case fc.failed:
		return gpu.FenceFailed
	case fc.done:
		return gpu.FenceSignaled
	}
	return gpu.FencePending
}

func (b *Backend) DeleteFence(f gpu.Handle) { delete(b.fences, f) }

// Timer queries need the timestamp feature, which is not requested.

func (b *Backend) CreateTimerQuery() (gpu.Handle, error) { return 0, gpu.ErrUnsupported }
func (b *Backend) BeginTimerQuery(q gpu.Handle)          {}
func (b *Backend) EndTimerQuery(q gpu.Handle)            {}
func (b *Backend) TimerQueryResult(q gpu.Handle) (uint64, bool) {
	return 0, false
}
func (b *Backend) DeleteTimerQuery(q gpu.Handle) {}
