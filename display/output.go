package display

import (
	"fmt"
	"image"
	"time"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"github.com/linuxdeepin/dde-kms/display/utils"
)

const (
	defaultSdrBrightness = 200
	defaultDimDuration   = 3 * time.Second
)

// Capabilities of an output.
type Capabilities uint32

const (
	CapabilityDpms Capabilities = 1 << iota
	CapabilityOverscan
	CapabilityVrr
	CapabilityRgbRange
	CapabilityHighDynamicRange
	CapabilityWideColorGamut
	CapabilityAutoRotation
	CapabilityIccProfile
)

func (c Capabilities) Has(flag Capabilities) bool {
	return c&flag == flag
}

// Information is the immutable description of the monitor behind an output.
type Information struct {
	Name             string
	UUID             string
	Manufacturer     string
	Model            string
	SerialNumber     string
	EisaID           string
	Edid             []byte
	PhysicalSize     image.Point // mm
	SubPixel         uint32
	Capabilities     Capabilities
	PanelOrientation Transform
	Internal         bool
	NonDesktop       bool
	MstPath          string

	// luminance in cd/m², from the EDID or defaults
	MaxPeakBrightness    float64
	MaxAverageBrightness float64
	MinBrightness        float64
}

// BrightnessOverrides replace the EDID luminance values; zero keeps them.
type BrightnessOverrides struct {
	MaxPeak    float64
	MaxAverage float64
	Min        float64
}

// State is the logical state of an output. It is replaced as a whole and
// handed out by value.
type State struct {
	Enabled             bool
	Position            image.Point
	Scale               float64
	Transform           Transform
	ManualTransform     Transform
	Modes               []*kms.Mode
	CurrentMode         *kms.Mode
	Overscan            uint32
	RgbRange            RgbRange
	DpmsMode            DpmsMode
	VrrPolicy           VrrPolicy
	HighDynamicRange    bool
	WideColorGamut      bool
	SdrBrightness       uint32
	SdrGamutWideness    float64
	BrightnessOverrides BrightnessOverrides
	IccProfilePath      string
	IccProfile          *IccProfile
	ColorDescription    ColorDescription
	AutoRotatePolicy    AutoRotatePolicy
}

// OutputChangeSet is a requested change; nil fields keep the current value.
type OutputChangeSet struct {
	Enabled             *bool
	Position            *image.Point
	Scale               *float64
	Transform           *Transform
	ManualTransform     *Transform
	Mode                *kms.Mode
	Overscan            *uint32
	RgbRange            *RgbRange
	VrrPolicy           *VrrPolicy
	HighDynamicRange    *bool
	WideColorGamut      *bool
	SdrBrightness       *uint32
	SdrGamutWideness    *float64
	BrightnessOverrides *BrightnessOverrides
	// IccProfile accompanies IccProfilePath and may be nil.
	IccProfilePath   *string
	IccProfile       *IccProfile
	AutoRotatePolicy *AutoRotatePolicy
}

// PowerState is the dpms state machine position.
type PowerState int

const (
	PowerDisabled PowerState = iota
	PowerOn
	PowerDimmingToOff
	PowerOff
)

func (s PowerState) String() string {
	switch s {
	case PowerDisabled:
		return "disabled"
	case PowerOn:
		return "on"
	case PowerDimmingToOff:
		return "dimming"
	case PowerOff:
		return "off"
	}
	return fmt.Sprintf("PowerState(%d)", int(s))
}

// Output is one physical display driven by a pipeline.
type Output struct {
	gpu        *Gpu
	pipeline   *Pipeline
	sched      Scheduler
	renderLoop RenderLoop

	info  Information
	state State

	channelFactors      Vec3
	needsShaderFallback bool
	contentType         ContentType

	lease        *kms.Lease
	turnOffTimer Timer
	dimDuration  time.Duration

	// rescan asks the owner to rescan the device outputs.
	rescan       func()
	frameHandler func(o *Output)

	aboutToTurnOffHandlers []func(time.Duration)
	wakeUpHandlers         []func()
	aboutToChangeHandlers  []func()
	changedHandlers        []func()
	outputChangeHandlers   []func(Region)
}

func NewOutput(gpu *Gpu, pipeline *Pipeline, sched Scheduler) *Output {
	o := &Output{
		gpu:            gpu,
		pipeline:       pipeline,
		sched:          sched,
		channelFactors: identityFactors,
		dimDuration:    defaultDimDuration,
	}
	o.renderLoop = newRenderLoop(sched, o.frameRequested)
	pipeline.SetOutput(o)
	o.info = buildInformation(pipeline.connector)

	conn := pipeline.connector
	state := State{
		Enabled:          pipeline.Crtc() != nil && pipeline.Enabled(),
		Scale:            1,
		Transform:        o.info.PanelOrientation,
		ManualTransform:  o.info.PanelOrientation,
		Modes:            conn.Modes,
		CurrentMode:      pipeline.Mode(),
		DpmsMode:         DpmsOn,
		VrrPolicy:        VrrNever,
		SdrBrightness:    defaultSdrBrightness,
		AutoRotatePolicy: AutoRotateInTabletMode,
	}
	if state.CurrentMode == nil && len(conn.Modes) > 0 {
		state.CurrentMode = conn.Modes[0]
	}
	if o.info.Capabilities.Has(CapabilityVrr) {
		state.VrrPolicy = VrrAutomatic
	}
	state.ColorDescription = pipeline.ColorDescription()
	o.state = state
	if state.CurrentMode != nil {
		o.renderLoop.SetRefreshRate(state.CurrentMode.RefreshRate())
	}
	return o
}

func buildInformation(conn *kms.Connector) Information {
	info := Information{
		Name:                 conn.Name,
		UUID:                 utils.GetOutputUUID(conn.Name, conn.EDID),
		Edid:                 conn.EDID,
		PhysicalSize:         image.Pt(int(conn.MmWidth), int(conn.MmHeight)),
		SubPixel:             conn.Subpixel,
		Internal:             conn.Type.Internal(),
		NonDesktop:           conn.Has(kms.CapNonDesktop),
		MstPath:              conn.MstPath(),
		MaxPeakBrightness:    defaultSdrBrightness,
		MaxAverageBrightness: defaultSdrBrightness,
	}
	switch conn.PanelOrientation() {
	case kms.PanelOrientationUpsideDown:
		info.PanelOrientation = Transform180
	case kms.PanelOrientationLeftSideUp:
		info.PanelOrientation = Transform90
	case kms.PanelOrientationRightSideUp:
		info.PanelOrientation = Transform270
	}

	caps := CapabilityDpms | CapabilityIccProfile
	connCaps := conn.Capabilities()
	if connCaps.Has(kms.CapOverscan) {
		caps |= CapabilityOverscan
	}
	if connCaps.Has(kms.CapVrr) {
		caps |= CapabilityVrr
	}
	if connCaps.Has(kms.CapRgbRange) {
		caps |= CapabilityRgbRange
	}
	if info.Internal {
		caps |= CapabilityAutoRotation
	}

	edid, err := utils.ParseEDID(conn.EDID)
	if err == nil {
		info.Manufacturer = edid.Manufacturer
		info.Model = edid.Model
		info.SerialNumber = edid.Serial
		info.EisaID = edid.EisaID()
		if info.PhysicalSize.Eq(image.Point{}) {
			info.PhysicalSize = image.Pt(int(edid.MmWidth), int(edid.MmHeight))
		}
		if connCaps.Has(kms.CapHdrMetadata) && edid.SupportsHDR() {
			caps |= CapabilityHighDynamicRange
		}
		if connCaps.Has(kms.CapBT2020Colorspace) && edid.BT2020RGB {
			caps |= CapabilityWideColorGamut
		}
		if edid.Hdr != nil && edid.Hdr.HasLuminanceRange {
			info.MaxPeakBrightness = edid.Hdr.MaxLuminance
			if edid.Hdr.MaxFrameAverage > 0 {
				info.MaxAverageBrightness = edid.Hdr.MaxFrameAverage
			} else {
				info.MaxAverageBrightness = edid.Hdr.MaxLuminance
			}
			info.MinBrightness = edid.Hdr.MinLuminance
		}
	} else if len(conn.EDID) > 0 {
		logger.Debugf("%s: %v", conn.Name, err)
	}
	info.Capabilities = caps
	return info
}

func (o *Output) String() string {
	return fmt.Sprintf("<Output %s>", o.info.Name)
}

func (o *Output) Name() string {
	return o.info.Name
}

func (o *Output) Information() Information {
	return o.info
}

// State returns a copy of the current state.
func (o *Output) State() State {
	return o.state
}

func (o *Output) Pipeline() *Pipeline {
	return o.pipeline
}

func (o *Output) RenderLoop() RenderLoop {
	return o.renderLoop
}

func (o *Output) SetRenderLoop(rl RenderLoop) {
	o.renderLoop = rl
}

func (o *Output) IsEnabled() bool {
	return o.state.Enabled
}

func (o *Output) PrimaryLayer() PipelineLayer {
	return o.pipeline.PrimaryLayer()
}

func (o *Output) CursorLayer() PipelineLayer {
	return o.pipeline.CursorLayer()
}

func (o *Output) SetDimDuration(d time.Duration) {
	o.dimDuration = d
}

func (o *Output) SetContentType(ct ContentType) {
	o.contentType = ct
}

// SetFrameHandler installs the function rendering a frame when the render
// loop asks for one.
func (o *Output) SetFrameHandler(fn func(o *Output)) {
	o.frameHandler = fn
}

func (o *Output) frameRequested() {
	if o.frameHandler != nil {
		o.frameHandler(o)
	}
}

func (o *Output) ConnectAboutToTurnOff(cb func(dimDuration time.Duration)) {
	o.aboutToTurnOffHandlers = append(o.aboutToTurnOffHandlers, cb)
}

func (o *Output) ConnectWakeUp(cb func()) {
	o.wakeUpHandlers = append(o.wakeUpHandlers, cb)
}

func (o *Output) ConnectAboutToChange(cb func()) {
	o.aboutToChangeHandlers = append(o.aboutToChangeHandlers, cb)
}

func (o *Output) ConnectChanged(cb func()) {
	o.changedHandlers = append(o.changedHandlers, cb)
}

// ConnectOutputChange is called with the damage of every presented frame.
func (o *Output) ConnectOutputChange(cb func(damage Region)) {
	o.outputChangeHandlers = append(o.outputChangeHandlers, cb)
}

func (o *Output) emitChanged() {
	for _, cb := range o.changedHandlers {
		cb()
	}
}

func (o *Output) setState(next State) {
	o.state = next
}

// QueueChanges stages cs into the pipeline's pending state. Callers must
// follow up with ApplyQueuedChanges or RevertQueuedChanges.
func (o *Output) QueueChanges(cs *OutputChangeSet) bool {
	p := o.pipeline
	if err := p.beginQueue(); err != nil {
		logger.Warningf("%v: %v", o, err)
		return false
	}

	mode := p.Mode()
	if cs.Mode != nil {
		mode = p.connector.FindSameTiming(cs.Mode)
	}
	if mode == nil {
		logger.Warningf("%v: no usable mode", o)
		p.RevertPendingChanges()
		return false
	}

	caps := o.info.Capabilities
	bt2020 := boolOr(cs.WideColorGamut, o.state.WideColorGamut) && caps.Has(CapabilityWideColorGamut)
	hdr := boolOr(cs.HighDynamicRange, o.state.HighDynamicRange) && caps.Has(CapabilityHighDynamicRange)
	transform := o.state.Transform
	if cs.Transform != nil {
		transform = *cs.Transform
	}
	iccProfile := o.state.IccProfile
	if cs.IccProfilePath != nil {
		iccProfile = cs.IccProfile
	}

	p.SetMode(mode)
	if cs.Overscan != nil {
		p.SetOverscan(*cs.Overscan)
	}
	if cs.RgbRange != nil {
		p.SetRgbRange(*cs.RgbRange)
	}
	p.SetRenderOrientation(transform.toPlaneTransform())
	enabled := boolOr(cs.Enabled, o.state.Enabled)
	p.SetEnable(enabled)
	p.SetActive(enabled && o.state.DpmsMode == DpmsOn)
	if bt2020 {
		p.SetColorimetry(ColorimetryBT2020)
	} else {
		p.SetColorimetry(ColorimetryBT709)
	}
	if hdr {
		p.SetTransferFunction(TransferFunctionPQ)
	} else {
		p.SetTransferFunction(TransferFunctionSRGB)
	}
	if cs.SdrBrightness != nil {
		p.SetSdrBrightness(*cs.SdrBrightness)
	}
	if cs.SdrGamutWideness != nil {
		p.SetSdrGamutWideness(*cs.SdrGamutWideness)
	}
	if cs.BrightnessOverrides != nil {
		p.SetBrightnessOverrides(*cs.BrightnessOverrides)
	}
	if bt2020 || hdr {
		iccProfile = nil
	}
	p.SetIccProfile(iccProfile)
	if bt2020 || hdr || iccProfile != nil {
		p.SetGammaRamp(nil)
		p.SetCTM(nil)
	}
	return true
}

// ApplyQueuedChanges promotes the queued changes after a successful test.
func (o *Output) ApplyQueuedChanges(cs *OutputChangeSet) {
	p := o.pipeline
	if !p.connector.Connected {
		p.RevertPendingChanges()
		return
	}
	for _, cb := range o.aboutToChangeHandlers {
		cb()
	}
	p.ApplyPendingChanges()

	next := o.state
	next.Enabled = boolOr(cs.Enabled, o.state.Enabled) && p.Crtc() != nil
	if cs.Position != nil {
		next.Position = *cs.Position
	}
	if cs.Scale != nil {
		next.Scale = *cs.Scale
	}
	if cs.Transform != nil {
		next.Transform = *cs.Transform
	}
	if cs.ManualTransform != nil {
		next.ManualTransform = *cs.ManualTransform
	}
	next.Modes = p.connector.Modes
	next.CurrentMode = p.Mode()
	next.Overscan = p.Overscan()
	next.RgbRange = p.RgbRange()
	next.HighDynamicRange = p.TransferFunction() == TransferFunctionPQ
	next.WideColorGamut = p.Colorimetry() == ColorimetryBT2020
	if cs.SdrBrightness != nil {
		next.SdrBrightness = *cs.SdrBrightness
	}
	next.SdrGamutWideness = p.SdrGamutWideness()
	next.BrightnessOverrides = p.BrightnessOverrides()
	if cs.IccProfilePath != nil {
		next.IccProfilePath = *cs.IccProfilePath
	}
	next.IccProfile = p.IccProfile()
	if cs.VrrPolicy != nil {
		next.VrrPolicy = *cs.VrrPolicy
	}
	if cs.AutoRotatePolicy != nil {
		next.AutoRotatePolicy = *cs.AutoRotatePolicy
	}
	next.ColorDescription = p.ColorDescription()
	o.setState(next)
	o.applyVrrPolicy()

	if !next.Enabled && p.NeedsModeset() {
		o.gpu.MaybeModeset()
	}
	if next.CurrentMode != nil {
		o.renderLoop.SetRefreshRate(next.CurrentMode.RefreshRate())
	}
	o.renderLoop.ScheduleRepaint()

	if !next.WideColorGamut && !next.HighDynamicRange && next.IccProfile == nil {
		o.doSetChannelFactors(o.channelFactors)
	}
	o.emitChanged()
}

// RevertQueuedChanges drops the queued changes.
func (o *Output) RevertQueuedChanges() {
	o.pipeline.RevertPendingChanges()
}

// applyVrrPolicy picks the presentation mode the render loop requests.
func (o *Output) applyVrrPolicy() {
	mode := PresentationVSync
	if o.info.Capabilities.Has(CapabilityVrr) {
		switch o.state.VrrPolicy {
		case VrrAlways:
			mode = PresentationAdaptiveSync
		case VrrAutomatic:
			if o.contentType == ContentTypeGame || o.contentType == ContentTypeVideo {
				mode = PresentationAdaptiveSync
			}
		}
	}
	o.renderLoop.SetPresentationMode(mode)
}

// UpdateModes refreshes the mode list after a connector rescan and follows
// mode changes made behind our back.
func (o *Output) UpdateModes() {
	p := o.pipeline
	conn := p.connector
	next := o.state
	next.Modes = conn.Modes

	if crtc := p.Crtc(); crtc != nil && !p.isQueued() {
		hwMode, err := o.gpu.device.CurrentMode(crtc.ID)
		if err != nil {
			logger.Warningf("%v: failed to query current mode: %v", o, err)
		}
		current := conn.FindSameTiming(hwMode)
		if current != nil && current.SameTiming(p.Mode()) {
			p.rebindMode(current)
		} else {
			if current == nil {
				current = conn.PreferredMode()
			}
			_ = p.beginQueue()
			p.SetMode(current)
			if o.gpu.TestPendingConfiguration() == ErrorNone {
				p.ApplyPendingChanges()
				if current != nil {
					o.renderLoop.SetRefreshRate(current.RefreshRate())
				}
			} else {
				logger.Warningf("%v: setting changed mode failed", o)
				p.RevertPendingChanges()
			}
		}
	}

	next.CurrentMode = p.Mode()
	if next.CurrentMode == nil && len(next.Modes) > 0 {
		next.CurrentMode = next.Modes[0]
	}
	o.setState(next)
	o.emitChanged()
}

// Destroy detaches the output from its pipeline.
func (o *Output) Destroy() {
	if o.turnOffTimer != nil {
		o.turnOffTimer.Stop()
		o.turnOffTimer = nil
	}
	o.pipeline.SetOutput(nil)
}

func boolOr(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}
