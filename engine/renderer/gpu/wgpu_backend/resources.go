package wgpu_backend

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

type buffer struct {
	kind gpu.BufferKind
	buf  *wgpu.Buffer
	size uint64
}

// texture is the storage behind textures, renderbuffers and the default
// framebuffer. gen changes whenever the storage is reallocated so cached
// bind groups can tell stale views apart.
type texture struct {
	tex           *wgpu.Texture
	view          *wgpu.TextureView
	width, height int
	format        gpu.TextureFormat
	typ           gpu.TextureType
	native        wgpu.TextureFormat
	texelSize     int
	gen           uint32
}

func (t *texture) release() {
	if t == nil {
		return
	}
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.tex != nil {
		t.tex.Release()
		t.tex = nil
	}
}

type framebuffer struct {
	colors      [gpu.MaxColorAttachments]gpu.Handle
	depth       gpu.Handle
	depthRB     bool
	drawBuffers []gpu.Attachment
}

type attrib struct {
	enabled    bool
	buf        gpu.Handle
	components int
	stride     int
	offset     int
	divisor    int
}

type vertexArray struct {
	attribs  []attrib
	elements gpu.Handle
}

func newVertexArray() *vertexArray {
	return &vertexArray{attribs: make([]attrib, maxVertexAttribs)}
}

func align(n, to uint64) uint64 {
	return (n + to - 1) / to * to
}

// beforeWrite submits encoded work so queue writes land after the draws
// that were recorded before them.
func (b *Backend) beforeWrite() {
	if b.encoded {
		b.endPass()
		b.submit()
	}
}

func (b *Backend) CreateBuffer(kind gpu.BufferKind) (gpu.Handle, error) {
	h := b.handle()
	b.buffers[h] = &buffer{kind: kind}
	return h, nil
}

func (b *Backend) BufferData(buf gpu.Handle, data []byte, usage gpu.BufferUsage) error {
	bf, ok := b.buffers[buf]
	if !ok {
		return gpu.ErrInvalidHandle
	}
	b.beforeWrite()
	size := max(align(uint64(len(data)), 4), 4)
	if bf.buf == nil || bf.size != size {
		if bf.buf != nil {
			bf.buf.Release()
		}
		created, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: fmt.Sprintf("%s buffer %d", bf.kind, buf),
			Size:  size,
			Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageIndex | wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("create buffer: %w", err)
		}
		bf.buf, bf.size = created, size
	}
	if len(data) > 0 {
		b.queue.WriteBuffer(bf.buf, 0, padded(data))
	}
	return nil
}

func (b *Backend) BufferSubData(buf gpu.Handle, offset int, data []byte) error {
	bf, ok := b.buffers[buf]
	if !ok || bf.buf == nil {
		return gpu.ErrInvalidHandle
	}
	if uint64(offset+len(data)) > bf.size {
		return fmt.Errorf("buffer sub data: %d bytes at %d exceed size %d", len(data), offset, bf.size)
	}
	b.beforeWrite()
	b.queue.WriteBuffer(bf.buf, uint64(offset), padded(data))
	return nil
}

// padded extends data to a multiple of four bytes, the queue write granularity.
func padded(data []byte) []byte {
	if len(data)%4 == 0 {
		return data
	}
	out := make([]byte, align(uint64(len(data)), 4))
	copy(out, data)
	return out
}

func (b *Backend) DeleteBuffer(buf gpu.Handle) {
	if bf, ok := b.buffers[buf]; ok {
		if bf.buf != nil {
			bf.buf.Release()
		}
		delete(b.buffers, buf)
	}
}

func (b *Backend) newTexture(label string, width, height int, format gpu.TextureFormat, typ gpu.TextureType) (*texture, error) {
	native, texel := textureFormat(format, typ)
	usage := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc
	if format != gpu.FormatDepth {
		usage |= wgpu.TextureUsageCopyDst
	}
	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     label,
		Usage:     usage,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		Format:        native,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %s: %w", label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("create view %s: %w", label, err)
	}
	return &texture{
		tex:       tex,
		view:      view,
		width:     width,
		height:    height,
		format:    format,
		typ:       typ,
		native:    native,
		texelSize: texel,
	}, nil
}

func (b *Backend) CreateTexture() (gpu.Handle, error) {
	h := b.handle()
	b.textures[h] = &texture{}
	return h, nil
}

// TexImage2D reallocates storage when the size or format changes. The
// filter is not applied: every texture is sampled unfilterable with the
// shared nearest sampler.
func (b *Backend) TexImage2D(tex gpu.Handle, width, height int, format gpu.TextureFormat, typ gpu.TextureType, filter gpu.Filter, data []byte) error {
	t, ok := b.textures[tex]
	if !ok {
		return gpu.ErrInvalidHandle
	}
	b.beforeWrite()
	if t.tex == nil || t.width != width || t.height != height || t.format != format || t.typ != typ {
		created, err := b.newTexture(fmt.Sprintf("texture %d", tex), width, height, format, typ)
		if err != nil {
			return err
		}
		created.gen = t.gen + 1
		t.release()
		*t = *created
		b.dropTextureGroups(tex)
	}
	if data == nil {
		return nil
	}
	return b.writeTexture(t, 0, 0, width, height, data)
}

func (b *Backend) TexSubImage2D(tex gpu.Handle, x, y, width, height int, data []byte) error {
	t, ok := b.textures[tex]
	if !ok || t.tex == nil {
		return gpu.ErrInvalidHandle
	}
	if x < 0 || y < 0 || x+width > t.width || y+height > t.height {
		return fmt.Errorf("tex sub image: region %dx%d at %d,%d outside %dx%d", width, height, x, y, t.width, t.height)
	}
	b.beforeWrite()
	return b.writeTexture(t, x, y, width, height, data)
}

// writeTexture uploads bottom-up rows into the top-down texture.
func (b *Backend) writeTexture(t *texture, x, y, width, height int, data []byte) error {
	if t.format == gpu.FormatDepth {
		return fmt.Errorf("depth textures cannot be uploaded: %w", gpu.ErrUnsupported)
	}
	src := uploadTexels(t, data)
	row := width * t.texelSize
	if len(src) < row*height {
		return fmt.Errorf("texture data: have %d bytes, need %d", len(src), row*height)
	}
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{X: uint32(x), Y: uint32(t.height - y - height)},
			Aspect:   wgpu.TextureAspectAll,
		},
		flipRows(src[:row*height], row, height),
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(row),
			RowsPerImage: uint32(height),
		},
		&wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (b *Backend) BindTexture(unit int, tex gpu.Handle) {
	if unit >= 0 && unit < len(b.units) {
		b.units[unit] = tex
	}
}

func (b *Backend) DeleteTexture(tex gpu.Handle) {
	if t, ok := b.textures[tex]; ok {
		b.endPass()
		b.dropTextureGroups(tex)
		t.release()
		delete(b.textures, tex)
	}
}

func (b *Backend) CreateRenderbuffer() (gpu.Handle, error) {
	h := b.handle()
	b.renderbuffers[h] = &texture{}
	return h, nil
}

func (b *Backend) RenderbufferStorage(rb gpu.Handle, width, height int) error {
	t, ok := b.renderbuffers[rb]
	if !ok {
		return gpu.ErrInvalidHandle
	}
	b.endPass()
	created, err := b.newTexture(fmt.Sprintf("renderbuffer %d", rb), width, height, gpu.FormatDepth, gpu.TypeFloat32)
	if err != nil {
		return err
	}
	created.gen = t.gen + 1
	t.release()
	*t = *created
	return nil
}

func (b *Backend) DeleteRenderbuffer(rb gpu.Handle) {
	if t, ok := b.renderbuffers[rb]; ok {
		b.endPass()
		t.release()
		delete(b.renderbuffers, rb)
	}
}

func (b *Backend) CreateFramebuffer() (gpu.Handle, error) {
	h := b.handle()
	b.framebuffers[h] = &framebuffer{drawBuffers: []gpu.Attachment{gpu.AttachmentColor0}}
	return h, nil
}

func (b *Backend) FramebufferTexture2D(fb gpu.Handle, att gpu.Attachment, tex gpu.Handle) error {
	f, ok := b.framebuffers[fb]
	if !ok {
		return gpu.ErrInvalidHandle
	}
	if fb == b.boundFB {
		b.endPass()
	}
	if att == gpu.AttachmentDepth {
		f.depth, f.depthRB = tex, false
	} else {
		f.colors[att] = tex
	}
	return nil
}

func (b *Backend) FramebufferRenderbuffer(fb gpu.Handle, att gpu.Attachment, rb gpu.Handle) error {
	f, ok := b.framebuffers[fb]
	if !ok {
		return gpu.ErrInvalidHandle
	}
	if att != gpu.AttachmentDepth {
		return fmt.Errorf("renderbuffers only back depth: %w", gpu.ErrUnsupported)
	}
	if fb == b.boundFB {
		b.endPass()
	}
	f.depth, f.depthRB = rb, true
	return nil
}

func (b *Backend) DrawBuffers(fb gpu.Handle, atts []gpu.Attachment) error {
	f, ok := b.framebuffers[fb]
	if !ok {
		return gpu.ErrInvalidHandle
	}
	if fb == b.boundFB {
		b.endPass()
	}
	f.drawBuffers = append([]gpu.Attachment(nil), atts...)
	return nil
}

func (b *Backend) depthOf(f *framebuffer) *texture {
	if f.depth == 0 {
		return nil
	}
	if f.depthRB {
		return b.renderbuffers[f.depth]
	}
	return b.textures[f.depth]
}

func (b *Backend) CheckFramebufferStatus(fb gpu.Handle) gpu.FramebufferStatus {
	if fb == 0 {
		return gpu.FramebufferComplete
	}
	f, ok := b.framebuffers[fb]
	if !ok {
		return gpu.FramebufferUnsupported
	}
	var attached []*texture
	for _, h := range f.colors {
		if h == 0 {
			continue
		}
		t := b.textures[h]
		if t == nil || t.tex == nil || t.format == gpu.FormatDepth {
			return gpu.FramebufferIncompleteAttachment
		}
		attached = append(attached, t)
	}
	if f.depth != 0 {
		d := b.depthOf(f)
		if d == nil || d.tex == nil || d.format != gpu.FormatDepth {
			return gpu.FramebufferIncompleteAttachment
		}
		attached = append(attached, d)
	}
	if len(attached) == 0 {
		return gpu.FramebufferMissingAttachment
	}
	for _, t := range attached[1:] {
		if t.width != attached[0].width || t.height != attached[0].height {
			return gpu.FramebufferIncompleteDimensions
		}
	}
	for _, a := range f.drawBuffers {
		if a >= gpu.AttachmentDepth || f.colors[a] == 0 {
			return gpu.FramebufferIncompleteAttachment
		}
	}
	return gpu.FramebufferComplete
}

func (b *Backend) BindFramebuffer(fb gpu.Handle) {
	if fb != b.boundFB {
		b.endPass()
		b.boundFB = fb
	}
}

func (b *Backend) DeleteFramebuffer(fb gpu.Handle) {
	if fb == b.boundFB {
		b.BindFramebuffer(0)
	}
	delete(b.framebuffers, fb)
}

func (b *Backend) CreateVertexArray() (gpu.Handle, error) {
	h := b.handle()
	b.vertexArrays[h] = newVertexArray()
	return h, nil
}

func (b *Backend) currentVAO() *vertexArray {
	if v, ok := b.vertexArrays[b.boundVAO]; ok {
		return v
	}
	return b.defaultVAO
}

func (b *Backend) BindVertexArray(vao gpu.Handle) { b.boundVAO = vao }

func (b *Backend) VertexAttribPointer(location uint32, buf gpu.Handle, components, stride, offset int) {
	v := b.currentVAO()
	if int(location) >= len(v.attribs) {
		return
	}
	a := &v.attribs[location]
	a.buf, a.components, a.stride, a.offset = buf, components, stride, offset
}

func (b *Backend) VertexAttribDivisor(location uint32, divisor int) {
	if v := b.currentVAO(); int(location) < len(v.attribs) {
		v.attribs[location].divisor = divisor
	}
}

func (b *Backend) BindElementBuffer(buf gpu.Handle) { b.currentVAO().elements = buf }

func (b *Backend) DeleteVertexArray(vao gpu.Handle) {
	if vao == b.boundVAO {
		b.boundVAO = 0
	}
	delete(b.vertexArrays, vao)
}
