package display

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"golang.org/x/xerrors"
)

var errQueueBusy = xerrors.New("changes are already queued")

// PipelineState is everything a pipeline programs into the hardware.
type PipelineState struct {
	crtc              *kms.Crtc
	mode              *kms.Mode
	enabled           bool
	active            bool
	overscan          uint32
	rgbRange          RgbRange
	renderOrientation Transform
	colorimetry       Colorimetry
	transferFunction  TransferFunction
	sdrBrightness     uint32
	sdrGamutWideness  float64
	// non-zero values replace the luminance of the monitor information
	brightnessOverrides BrightnessOverrides
	iccProfile          *IccProfile
	ctm                 *kms.Matrix3
	gamma               *kms.GammaLut
	presentationMode    PresentationMode
	contentType         ContentType
}

// needsModeset reports whether moving from other to s needs a modeset.
func (s *PipelineState) needsModeset(other *PipelineState) bool {
	return s.crtc != other.crtc ||
		!s.mode.SameTiming(other.mode) ||
		s.enabled != other.enabled ||
		s.active != other.active ||
		s.rgbRange != other.rgbRange ||
		s.overscan != other.overscan ||
		s.colorimetry != other.colorimetry ||
		s.transferFunction != other.transferFunction
}

// Pipeline drives one connector through a crtc and its planes.
//
// pending is what the next commit submits, active is the promoted logical
// state and committed is what the hardware was last programmed with.
type Pipeline struct {
	gpu       *Gpu
	connector *kms.Connector
	output    *Output

	pending   PipelineState
	active    PipelineState
	committed PipelineState
	queued    bool

	pageflipPending       bool
	modesetPresentPending bool
	frame                 *OutputFrame

	primaryLayer PipelineLayer
	cursorLayer  PipelineLayer
}

func newPipeline(gpu *Gpu, connector *kms.Connector) *Pipeline {
	p := &Pipeline{
		gpu:       gpu,
		connector: connector,
	}
	p.primaryLayer = newPlaneLayer(p, LayerPrimary, CompositingSoftware)
	p.cursorLayer = newPlaneLayer(p, LayerCursor, CompositingSoftware)
	return p
}

func (p *Pipeline) String() string {
	return fmt.Sprintf("<Pipeline %s>", p.connector.Name)
}

func (p *Pipeline) Gpu() *Gpu {
	return p.gpu
}

func (p *Pipeline) Connector() *kms.Connector {
	return p.connector
}

func (p *Pipeline) Output() *Output {
	return p.output
}

// SetOutput sets the non-owning back reference. Outputs clear it when they
// are destroyed.
func (p *Pipeline) SetOutput(o *Output) {
	p.output = o
}

func (p *Pipeline) PrimaryLayer() PipelineLayer {
	return p.primaryLayer
}

func (p *Pipeline) CursorLayer() PipelineLayer {
	return p.cursorLayer
}

// SetLayers replaces the layers, e.g. with hardware composited ones provided
// by a renderer. Nil keeps the current layer.
func (p *Pipeline) SetLayers(primary, cursor PipelineLayer) {
	if primary != nil {
		p.primaryLayer.ReleaseBuffers()
		p.primaryLayer = primary
	}
	if cursor != nil {
		p.cursorLayer.ReleaseBuffers()
		p.cursorLayer = cursor
	}
}

func (p *Pipeline) Crtc() *kms.Crtc {
	return p.pending.crtc
}

func (p *Pipeline) Mode() *kms.Mode {
	return p.pending.mode
}

func (p *Pipeline) Enabled() bool {
	return p.pending.enabled
}

func (p *Pipeline) Active() bool {
	return p.pending.active
}

// ActivePending reports whether the pending state scans out.
func (p *Pipeline) ActivePending() bool {
	return p.pending.crtc != nil && p.pending.enabled && p.pending.active
}

func (p *Pipeline) Overscan() uint32 {
	return p.pending.overscan
}

func (p *Pipeline) RgbRange() RgbRange {
	return p.pending.rgbRange
}

func (p *Pipeline) RenderOrientation() Transform {
	return p.pending.renderOrientation
}

func (p *Pipeline) Colorimetry() Colorimetry {
	return p.pending.colorimetry
}

func (p *Pipeline) TransferFunction() TransferFunction {
	return p.pending.transferFunction
}

func (p *Pipeline) SdrGamutWideness() float64 {
	return p.pending.sdrGamutWideness
}

func (p *Pipeline) BrightnessOverrides() BrightnessOverrides {
	return p.pending.brightnessOverrides
}

func (p *Pipeline) IccProfile() *IccProfile {
	return p.pending.iccProfile
}

func (p *Pipeline) PresentationMode() PresentationMode {
	return p.pending.presentationMode
}

func (p *Pipeline) ContentType() ContentType {
	return p.pending.contentType
}

func (p *Pipeline) HasCTM() bool {
	return p.pending.crtc != nil && p.pending.crtc.HasCtm()
}

func (p *Pipeline) HasGammaRamp() bool {
	return p.pending.crtc != nil && p.pending.crtc.HasGammaLut()
}

func (p *Pipeline) GammaRampSize() int {
	if p.pending.crtc == nil {
		return 0
	}
	return int(p.pending.crtc.GammaSize)
}

func (p *Pipeline) SetCrtc(crtc *kms.Crtc)      { p.pending.crtc = crtc }
func (p *Pipeline) SetMode(mode *kms.Mode)      { p.pending.mode = mode }
func (p *Pipeline) SetEnable(enabled bool)      { p.pending.enabled = enabled }
func (p *Pipeline) SetActive(active bool)       { p.pending.active = active }
func (p *Pipeline) SetOverscan(overscan uint32) { p.pending.overscan = overscan }
func (p *Pipeline) SetRgbRange(r RgbRange)      { p.pending.rgbRange = r }

func (p *Pipeline) SetRenderOrientation(t Transform) {
	p.pending.renderOrientation = t
}

func (p *Pipeline) SetColorimetry(c Colorimetry) {
	p.pending.colorimetry = c
}

func (p *Pipeline) SetTransferFunction(tf TransferFunction) {
	p.pending.transferFunction = tf
}

func (p *Pipeline) SetSdrBrightness(nits uint32) {
	p.pending.sdrBrightness = nits
}

func (p *Pipeline) SetSdrGamutWideness(wideness float64) {
	p.pending.sdrGamutWideness = wideness
}

func (p *Pipeline) SetBrightnessOverrides(overrides BrightnessOverrides) {
	p.pending.brightnessOverrides = overrides
}

func (p *Pipeline) SetIccProfile(profile *IccProfile) {
	p.pending.iccProfile = profile
}

// SetCTM sets the color matrix, nil resets it.
func (p *Pipeline) SetCTM(m *kms.Matrix3) {
	p.pending.ctm = m
}

// SetGammaRamp sets the gamma lookup table, nil resets it.
func (p *Pipeline) SetGammaRamp(lut *kms.GammaLut) {
	p.pending.gamma = lut
}

func (p *Pipeline) SetPresentationMode(mode PresentationMode) {
	p.pending.presentationMode = mode
}

func (p *Pipeline) SetContentType(ct ContentType) {
	p.pending.contentType = ct
}

// ColorDescription describes the color space of the pending state.
func (p *Pipeline) ColorDescription() ColorDescription {
	desc := ColorDescription{
		Colorimetry:      p.pending.colorimetry,
		TransferFunction: p.pending.transferFunction,
		SdrBrightness:    float64(p.pending.sdrBrightness),
		SdrGamutWideness: p.pending.sdrGamutWideness,
	}
	desc.MaxLuminance, desc.MaxAverageLuminance, desc.MinLuminance = p.luminance(&p.pending)
	if desc.TransferFunction == TransferFunctionSRGB {
		desc.MaxLuminance = desc.SdrBrightness
		desc.MaxAverageLuminance = desc.SdrBrightness
	}
	return desc
}

// luminance returns the peak, average and minimum luminance the output is
// driven with in state.
func (p *Pipeline) luminance(state *PipelineState) (maxPeak, maxAverage, min float64) {
	if p.output != nil {
		info := &p.output.info
		maxPeak, maxAverage, min = info.MaxPeakBrightness, info.MaxAverageBrightness, info.MinBrightness
	}
	o := state.brightnessOverrides
	if o.MaxPeak > 0 {
		maxPeak = o.MaxPeak
	}
	if o.MaxAverage > 0 {
		maxAverage = o.MaxAverage
	}
	if o.Min > 0 {
		min = o.Min
	}
	return
}

func (p *Pipeline) beginQueue() error {
	if p.queued {
		return errQueueBusy
	}
	p.queued = true
	return nil
}

func (p *Pipeline) isQueued() bool {
	return p.queued
}

// ApplyPendingChanges promotes the pending state.
func (p *Pipeline) ApplyPendingChanges() {
	p.active = p.pending
	p.queued = false
}

// RevertPendingChanges drops the pending state.
func (p *Pipeline) RevertPendingChanges() {
	p.pending = p.active
	p.queued = false
}

// NeedsModeset reports whether the hardware has to be modeset to reach the
// pending state.
func (p *Pipeline) NeedsModeset() bool {
	return p.pending.needsModeset(&p.committed)
}

func (p *Pipeline) PageflipPending() bool {
	return p.pageflipPending
}

func (p *Pipeline) leased() bool {
	return p.output != nil && p.output.lease != nil
}

// Present flips to the current buffers of the layers.
func (p *Pipeline) Present(frame *OutputFrame) Error {
	if p.pageflipPending {
		return ErrorFramePending
	}
	req := kms.NewAtomicRequest()
	if e := p.prepareAtomic(req, &p.active, false); e != ErrorNone {
		return e
	}
	flags := kms.FlagNonBlock | kms.FlagPageFlipEvent
	if p.active.presentationMode.tearing() && p.gpu.AsyncPageflipSupported() {
		flags |= kms.FlagAsync
	}
	err := p.gpu.device.Commit(req, flags)
	if err != nil {
		logger.Debugf("%v: page flip failed: %v", p, err)
		return errorFromDevice(err)
	}
	p.pageflipPending = true
	p.frame = frame
	p.primaryLayer.Committed()
	p.cursorLayer.Committed()
	return ErrorNone
}

// MaybeModeset queues the frame for presentation by the next modeset.
func (p *Pipeline) MaybeModeset(frame *OutputFrame) bool {
	p.modesetPresentPending = true
	p.frame = frame
	return p.gpu.MaybeModeset()
}

// PageFlipped is called when the flip of the in-flight frame completed.
func (p *Pipeline) PageFlipped(timestamp time.Duration) {
	p.pageflipPending = false
	frame := p.frame
	p.frame = nil
	if frame != nil {
		frame.Presented(timestamp, p.active.presentationMode)
	}
}

// UpdateCursor tests the cursor layer on the cursor plane. On success the
// new cursor is scanned out with the next frame.
func (p *Pipeline) UpdateCursor() bool {
	crtc := p.active.crtc
	if crtc == nil || crtc.CursorPlane == nil || !p.active.active {
		return false
	}
	req := kms.NewAtomicRequest()
	if e := p.prepareCursor(req, crtc); e != ErrorNone {
		return false
	}
	err := p.gpu.device.Commit(req, kms.FlagTestOnly)
	if err != nil {
		logger.Debugf("%v: cursor rejected: %v", p, err)
		return false
	}
	return true
}

func addProp(req *kms.AtomicRequest, props kms.Props, object uint32, name string, value uint64) {
	if props.Has(name) {
		req.Add(object, name, value)
	}
}

func addEnum(req *kms.AtomicRequest, props kms.Props, object uint32, name, enum string) {
	prop := props.Get(name)
	if prop == nil {
		return
	}
	if v, ok := prop.EnumValue(enum); ok {
		req.Add(object, name, v)
	}
}

func addBlob(req *kms.AtomicRequest, props kms.Props, object uint32, name string, data []byte) {
	if props.Has(name) {
		req.AddBlob(object, name, data)
	}
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// prepareDisable turns off the crtc the hardware currently uses for this
// pipeline when the pending state no longer uses it.
func (p *Pipeline) prepareDisable(req *kms.AtomicRequest) {
	crtc := p.committed.crtc
	if crtc == nil || (crtc == p.pending.crtc && p.pending.enabled) {
		return
	}
	addProp(req, p.connector.Props, p.connector.ID, kms.PropCrtcID, 0)
	addProp(req, crtc.Props, crtc.ID, kms.PropActive, 0)
	addBlob(req, crtc.Props, crtc.ID, kms.PropModeID, nil)
	for _, plane := range []*kms.Plane{crtc.PrimaryPlane, crtc.CursorPlane} {
		disablePlane(req, plane)
	}
}

func disablePlane(req *kms.AtomicRequest, plane *kms.Plane) {
	if plane == nil {
		return
	}
	addProp(req, plane.Props, plane.ID, kms.PropFbID, 0)
	addProp(req, plane.Props, plane.ID, kms.PropCrtcID, 0)
}

func (p *Pipeline) prepareAtomic(req *kms.AtomicRequest, state *PipelineState, modeset bool) Error {
	conn := p.connector
	if !state.enabled {
		if modeset {
			addProp(req, conn.Props, conn.ID, kms.PropCrtcID, 0)
		}
		return ErrorNone
	}
	crtc := state.crtc
	if crtc == nil || state.mode == nil {
		return ErrorInvalidArguments
	}

	if modeset {
		addProp(req, conn.Props, conn.ID, kms.PropCrtcID, uint64(crtc.ID))
		addProp(req, crtc.Props, crtc.ID, kms.PropActive, boolValue(state.active))
		addBlob(req, crtc.Props, crtc.ID, kms.PropModeID, kms.EncodeMode(state.mode))
		p.prepareConnector(req, state)
	}
	addProp(req, crtc.Props, crtc.ID, kms.PropVrrEnabled, boolValue(state.presentationMode.adaptive()))
	addEnum(req, conn.Props, conn.ID, kms.PropContentType, state.contentType.enumName())
	if crtc.HasCtm() {
		var data []byte
		if state.ctm != nil {
			data = kms.EncodeCtm(*state.ctm)
		}
		req.AddBlob(crtc.ID, kms.PropCtm, data)
	}
	if crtc.HasGammaLut() {
		var data []byte
		if state.gamma != nil {
			data = kms.EncodeGammaLut(state.gamma)
		}
		req.AddBlob(crtc.ID, kms.PropGammaLut, data)
	}

	if !state.active {
		disablePlane(req, crtc.PrimaryPlane)
		disablePlane(req, crtc.CursorPlane)
		return ErrorNone
	}
	if crtc.PrimaryPlane == nil || !p.primaryLayer.CheckTestBuffer() {
		return ErrorInvalidArguments
	}
	dst := image.Rect(0, 0, int(state.mode.Width), int(state.mode.Height))
	if e := preparePlane(req, crtc.PrimaryPlane, crtc, p.primaryLayer, dst); e != ErrorNone {
		return e
	}
	if crtc.CursorPlane != nil {
		return p.prepareCursor(req, crtc)
	}
	return ErrorNone
}

func (p *Pipeline) prepareConnector(req *kms.AtomicRequest, state *PipelineState) {
	conn := p.connector
	addEnum(req, conn.Props, conn.ID, kms.PropBroadcastRGB, state.rgbRange.enumName())
	if conn.Props.Has(kms.PropOverscan) {
		req.Add(conn.ID, kms.PropOverscan, uint64(state.overscan))
	} else if conn.Props.Has(kms.PropUnderscan) {
		enum := "off"
		if state.overscan > 0 {
			enum = "on"
		}
		addEnum(req, conn.Props, conn.ID, kms.PropUnderscan, enum)
		hborder := math.Round(float64(state.overscan) * float64(state.mode.Width) / 100 / 2)
		vborder := math.Round(float64(state.overscan) * float64(state.mode.Height) / 100 / 2)
		addProp(req, conn.Props, conn.ID, kms.PropUnderscanHBorder, uint64(hborder))
		addProp(req, conn.Props, conn.ID, kms.PropUnderscanVBorder, uint64(vborder))
	}
	colorspace := kms.ColorspaceDefault
	if state.colorimetry == ColorimetryBT2020 {
		colorspace = kms.ColorspaceBT2020RGB
	}
	addEnum(req, conn.Props, conn.ID, kms.PropColorspace, colorspace)
	if conn.Props.Has(kms.PropHdrMetadata) {
		var data []byte
		if state.transferFunction == TransferFunctionPQ {
			data = kms.EncodeHdrMetadata(p.hdrMetadata(state))
		}
		req.AddBlob(conn.ID, kms.PropHdrMetadata, data)
	}
}

func (p *Pipeline) hdrMetadata(state *PipelineState) *kms.HdrMetadata {
	md := &kms.HdrMetadata{
		Eotf: kms.EotfSmpteSt2084,
		// BT.2020 primaries and D65 in units of 0.00002
		Primaries:  [3][2]uint16{{35400, 14600}, {8500, 39850}, {6550, 2300}},
		WhitePoint: [2]uint16{15635, 16450},
	}
	maxPeak, maxAverage, min := p.luminance(state)
	md.MaxMastering = uint16(math.Round(maxPeak))
	md.MinMastering = uint16(math.Round(min * 10000))
	md.MaxCll = uint16(math.Round(maxPeak))
	md.MaxFall = uint16(math.Round(maxAverage))
	return md
}

func preparePlane(req *kms.AtomicRequest, plane *kms.Plane, crtc *kms.Crtc, layer PipelineLayer, dst image.Rectangle) Error {
	buf := layer.CurrentBuffer()
	if buf == nil {
		return ErrorInvalidArguments
	}
	src := layer.BufferSourceBox()
	addProp(req, plane.Props, plane.ID, kms.PropFbID, uint64(buf.FbID))
	addProp(req, plane.Props, plane.ID, kms.PropCrtcID, uint64(crtc.ID))
	addProp(req, plane.Props, plane.ID, kms.PropSrcX, uint64(src.Min.X)<<16)
	addProp(req, plane.Props, plane.ID, kms.PropSrcY, uint64(src.Min.Y)<<16)
	addProp(req, plane.Props, plane.ID, kms.PropSrcW, uint64(src.Dx())<<16)
	addProp(req, plane.Props, plane.ID, kms.PropSrcH, uint64(src.Dy())<<16)
	addProp(req, plane.Props, plane.ID, kms.PropCrtcX, uint64(uint32(int32(dst.Min.X))))
	addProp(req, plane.Props, plane.ID, kms.PropCrtcY, uint64(uint32(int32(dst.Min.Y))))
	addProp(req, plane.Props, plane.ID, kms.PropCrtcW, uint64(dst.Dx()))
	addProp(req, plane.Props, plane.ID, kms.PropCrtcH, uint64(dst.Dy()))

	rotation := layer.HardwareTransform().toPlaneTransform().kmsRotation()
	if plane.Props.Has(kms.PropRotation) {
		if plane.Rotations&rotation != rotation {
			return ErrorInvalidArguments
		}
		req.Add(plane.ID, kms.PropRotation, uint64(rotation))
	} else if rotation != kms.Rotate0 {
		return ErrorInvalidArguments
	}
	return ErrorNone
}

func (p *Pipeline) prepareCursor(req *kms.AtomicRequest, crtc *kms.Crtc) Error {
	layer := p.cursorLayer
	if !layer.IsEnabled() || !layer.CheckTestBuffer() {
		disablePlane(req, crtc.CursorPlane)
		return ErrorNone
	}
	src := layer.BufferSourceBox()
	dst := src.Add(layer.Position())
	return preparePlane(req, crtc.CursorPlane, crtc, layer, dst)
}

// rebindMode replaces the mode by an equal one from a rescanned connector.
func (p *Pipeline) rebindMode(mode *kms.Mode) {
	for _, s := range []*PipelineState{&p.pending, &p.active, &p.committed} {
		if s.mode.SameTiming(mode) {
			s.mode = mode
		}
	}
}
