package display

import (
	"image"
	"image/draw"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"golang.org/x/xerrors"
)

type LayerType int

const (
	LayerPrimary LayerType = iota
	LayerCursor
	LayerOverlay
)

func (t LayerType) String() string {
	switch t {
	case LayerPrimary:
		return "primary"
	case LayerCursor:
		return "cursor"
	case LayerOverlay:
		return "overlay"
	}
	return "unknown"
}

type CompositingMode int

const (
	// CompositingHardware layers scan out buffers imported from the renderer.
	CompositingHardware CompositingMode = iota
	// CompositingSoftware layers render into a CPU shadow image that is
	// copied into dumb buffers.
	CompositingSoftware
)

// Texture is a renderer owned image backing a hardware layer.
type Texture interface {
	Size() image.Point
}

type Layer interface {
	CurrentDamage() Region
	// Texture returns nil for software layers.
	Texture() Texture
	ReleaseBuffers()
}

// PipelineLayer is a layer scanned out by a plane of a pipeline.
type PipelineLayer interface {
	Layer
	Type() LayerType
	// CheckTestBuffer makes sure a buffer suitable for a test commit exists.
	CheckTestBuffer() bool
	CurrentBuffer() *kms.Buffer
	// Committed is called once the current buffer was submitted by a real
	// commit. Buffers replaced earlier may be destroyed from then on.
	Committed()
	HardwareTransform() Transform
	BufferSourceBox() image.Rectangle
	// Position is the top left corner on the crtc, used by cursor and
	// overlay layers.
	Position() image.Point
	IsEnabled() bool
}

const cursorSize = 64

type planeLayer struct {
	pipeline *Pipeline
	typ      LayerType
	mode     CompositingMode

	enabled  bool
	position image.Point
	hotspot  image.Point
	size     image.Point

	current *kms.Buffer
	damage  Region
	texture Texture

	// scanout is the buffer the hardware was last given
	scanout *kms.Buffer

	// software compositing
	swapchain []*kms.Buffer
	// retired holds the previous swapchain until its buffers are no longer
	// scanned out
	retired []*kms.Buffer
	next    int
	shadow  *image.RGBA
	// missing is what each swapchain buffer lacks compared to the shadow
	missing [2]Region
}

func newPlaneLayer(p *Pipeline, typ LayerType, mode CompositingMode) *planeLayer {
	return &planeLayer{
		pipeline: p,
		typ:      typ,
		mode:     mode,
		enabled:  typ == LayerPrimary,
	}
}

func (l *planeLayer) Type() LayerType {
	return l.typ
}

func (l *planeLayer) CurrentDamage() Region {
	return l.damage
}

func (l *planeLayer) Texture() Texture {
	if l.mode == CompositingSoftware {
		return nil
	}
	return l.texture
}

func (l *planeLayer) CurrentBuffer() *kms.Buffer {
	return l.current
}

func (l *planeLayer) IsEnabled() bool {
	return l.enabled
}

func (l *planeLayer) Position() image.Point {
	return l.position.Sub(l.hotspot)
}

func (l *planeLayer) HardwareTransform() Transform {
	if l.mode == CompositingSoftware || l.typ != LayerPrimary {
		return TransformNormal
	}
	return l.pipeline.RenderOrientation()
}

func (l *planeLayer) BufferSourceBox() image.Rectangle {
	if l.current == nil {
		return image.Rectangle{}
	}
	return image.Rect(0, 0, int(l.current.Width), int(l.current.Height))
}

// targetSize is the buffer size the layer needs for the pipeline's pending
// mode.
func (l *planeLayer) targetSize() image.Point {
	if l.typ == LayerCursor {
		return image.Pt(cursorSize, cursorSize)
	}
	if l.typ == LayerOverlay && !l.size.Eq(image.Point{}) {
		return l.size
	}
	mode := l.pipeline.Mode()
	if mode == nil {
		return image.Point{}
	}
	size := image.Pt(int(mode.Width), int(mode.Height))
	if l.mode == CompositingHardware && l.HardwareTransform().swapsSize() {
		size = image.Pt(size.Y, size.X)
	}
	return size
}

func bufferFits(buf *kms.Buffer, size image.Point) bool {
	return buf != nil && int(buf.Width) == size.X && int(buf.Height) == size.Y
}

func (l *planeLayer) CheckTestBuffer() bool {
	size := l.targetSize()
	if size.X == 0 || size.Y == 0 {
		return false
	}
	if l.mode == CompositingHardware {
		return bufferFits(l.current, size)
	}
	if bufferFits(l.current, size) {
		return true
	}
	if err := l.createSwapchain(size); err != nil {
		logger.Warningf("%v: failed to create %v layer buffers: %v", l.pipeline, l.typ, err)
		return false
	}
	l.current = l.swapchain[0]
	l.next = 1
	if l.swapchain[1] == l.scanout {
		l.current = l.swapchain[1]
		l.next = 0
	}
	return true
}

// createSwapchain makes a swapchain of the given size current. The old one
// stays allocated while the hardware may still show one of its buffers, and
// is reused when a rejected configuration switches back to its size.
func (l *planeLayer) createSwapchain(size image.Point) error {
	if len(l.retired) > 0 && bufferFits(l.retired[0], size) {
		l.swapchain, l.retired = l.retired, l.swapchain
		if !containsBuffer(l.retired, l.scanout) {
			l.destroyBuffers(l.retired)
			l.retired = nil
		}
	} else {
		if containsBuffer(l.swapchain, l.scanout) {
			l.destroyBuffers(l.retired)
			l.retired = l.swapchain
		} else {
			l.destroyBuffers(l.swapchain)
		}
		l.swapchain = nil
		device := l.pipeline.gpu.device
		for i := 0; i < 2; i++ {
			buf, err := device.CreateDumbBuffer(uint32(size.X), uint32(size.Y), kms.FormatXRGB8888)
			if err != nil {
				l.destroyBuffers(l.swapchain)
				l.swapchain = nil
				l.shadow = nil
				return xerrors.Errorf("create dumb buffer: %w", err)
			}
			l.swapchain = append(l.swapchain, buf)
		}
	}
	l.shadow = image.NewRGBA(image.Rectangle{Max: size})
	full := RegionFromRect(l.shadow.Rect)
	l.missing = [2]Region{full, full}
	return nil
}

func containsBuffer(bufs []*kms.Buffer, buf *kms.Buffer) bool {
	if buf == nil {
		return false
	}
	for _, b := range bufs {
		if b == buf {
			return true
		}
	}
	return false
}

func (l *planeLayer) destroyBuffers(bufs []*kms.Buffer) {
	device := l.pipeline.gpu.device
	for _, buf := range bufs {
		if err := device.DestroyBuffer(buf); err != nil {
			logger.Warning(err)
		}
	}
}

func (l *planeLayer) Committed() {
	l.scanout = l.current
	if len(l.retired) > 0 && !containsBuffer(l.retired, l.scanout) {
		l.destroyBuffers(l.retired)
		l.retired = nil
	}
}

func (l *planeLayer) ReleaseBuffers() {
	l.destroyBuffers(l.swapchain)
	l.destroyBuffers(l.retired)
	l.swapchain = nil
	l.retired = nil
	l.shadow = nil
	l.scanout = nil
	if l.mode == CompositingSoftware {
		l.current = nil
	}
}

// BeginFrame returns the image to paint into and the region that has to be
// repainted for the next buffer to be complete.
func (l *planeLayer) BeginFrame() (*image.RGBA, Region, error) {
	if l.mode != CompositingSoftware {
		return nil, nil, xerrors.New("layer is not software composited")
	}
	if !l.CheckTestBuffer() {
		return nil, nil, xerrors.New("no buffer for layer")
	}
	return l.shadow, RegionFromRect(l.shadow.Rect), nil
}

// EndFrame copies the damaged part of the shadow image into the next buffer
// of the swapchain and makes it current.
func (l *planeLayer) EndFrame(damage Region) {
	if l.shadow == nil || len(l.swapchain) == 0 {
		return
	}
	buf := l.swapchain[l.next]
	repaint := damage.Union(l.missing[l.next]).Intersect(l.shadow.Rect)
	for _, rect := range repaint {
		copyToXRGB(buf, l.shadow, rect)
	}
	l.missing[l.next] = nil
	l.missing[1-l.next] = l.missing[1-l.next].Union(damage)
	l.current = buf
	l.next = 1 - l.next
	l.damage = damage
}

// Import attaches a renderer buffer to a hardware layer.
func (l *planeLayer) Import(buf *kms.Buffer, texture Texture, damage Region) {
	l.current = buf
	l.texture = texture
	l.damage = damage
}

func (l *planeLayer) SetCursor(img *image.RGBA, hotspot image.Point) {
	l.hotspot = hotspot
	if img == nil {
		l.enabled = false
		return
	}
	l.enabled = true
	if l.mode != CompositingSoftware || !l.CheckTestBuffer() {
		return
	}
	draw.Draw(l.shadow, l.shadow.Rect, img, img.Rect.Min, draw.Src)
	l.EndFrame(RegionFromRect(l.shadow.Rect))
}

func (l *planeLayer) SetPosition(pos image.Point) {
	l.position = pos
}

// copyToXRGB writes rect of src into the little endian XRGB8888 buffer.
func copyToXRGB(buf *kms.Buffer, src *image.RGBA, rect image.Rectangle) {
	if buf.Data == nil {
		return
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		row := buf.Data[y*int(buf.Pitch):]
		for x := rect.Min.X; x < rect.Max.X; x++ {
			i := src.PixOffset(x, y)
			o := x * 4
			row[o] = src.Pix[i+2]
			row[o+1] = src.Pix[i+1]
			row[o+2] = src.Pix[i]
			row[o+3] = 0xff
		}
	}
}
