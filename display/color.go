package display

import (
	"bytes"
	"io/ioutil"
	"math"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"golang.org/x/xerrors"
)

// ChannelFactors returns the requested per channel multipliers.
func (o *Output) ChannelFactors() Vec3 {
	return o.channelFactors
}

// NeedsShaderFallback reports whether the channel factors have to be
// applied by the renderer because the hardware can't.
func (o *Output) NeedsShaderFallback() bool {
	return o.needsShaderFallback
}

// NeedsColormanagement reports whether the renderer has to transform
// colors for this output.
func (o *Output) NeedsColormanagement() bool {
	return o.state.WideColorGamut || o.state.HighDynamicRange ||
		o.state.IccProfile != nil || o.needsShaderFallback
}

// SetChannelFactors scales the color channels, preferring the color matrix,
// then the gamma table and finally the renderer.
func (o *Output) SetChannelFactors(rgb Vec3) bool {
	if o.channelFactors == rgb {
		return true
	}
	o.channelFactors = rgb
	return o.doSetChannelFactors(rgb)
}

func (o *Output) doSetChannelFactors(rgb Vec3) bool {
	o.renderLoop.ScheduleRepaint()
	o.needsShaderFallback = false
	if o.state.WideColorGamut || o.state.HighDynamicRange || o.state.IccProfile != nil {
		// the renderer folds the factors into its color transformation
		return true
	}
	p := o.pipeline
	if !p.ActivePending() {
		o.needsShaderFallback = rgb != identityFactors
		return false
	}
	if p.isQueued() {
		logger.Warningf("%v: changes are queued, applying channel factors in the renderer", o)
		o.needsShaderFallback = rgb != identityFactors
		return false
	}

	if p.HasCTM() {
		ctm := kms.DiagonalMatrix(rgb[0], rgb[1], rgb[2])
		if o.tryColorChange(func() { p.SetGammaRamp(nil); p.SetCTM(&ctm) }) {
			return true
		}
		o.forceColorChange(func() { p.SetCTM(nil) })
	}
	if p.HasGammaRamp() {
		lut := NewColorTransformation(p.GammaRampSize(), rgb).GammaLut()
		if o.tryColorChange(func() { p.SetCTM(nil); p.SetGammaRamp(lut) }) {
			return true
		}
		o.forceColorChange(func() { p.SetGammaRamp(nil) })
	}
	o.needsShaderFallback = rgb != identityFactors
	return true
}

// tryColorChange tests and applies a color change of the pipeline alone.
func (o *Output) tryColorChange(change func()) bool {
	p := o.pipeline
	_ = p.beginQueue()
	change()
	if CommitPipelines([]*Pipeline{p}, CommitModeTest) != ErrorNone {
		p.RevertPendingChanges()
		return false
	}
	p.ApplyPendingChanges()
	return true
}

// forceColorChange applies a change without testing it. Resetting the
// color matrix or the gamma table is always accepted; the next frame
// programs it.
func (o *Output) forceColorChange(change func()) {
	p := o.pipeline
	_ = p.beginQueue()
	change()
	p.ApplyPendingChanges()
}

// ColorTransformation maps the input range of each channel linearly to
// [0, factor].
type ColorTransformation struct {
	size    int
	factors Vec3
}

func NewColorTransformation(size int, factors Vec3) *ColorTransformation {
	return &ColorTransformation{
		size:    size,
		factors: factors,
	}
}

func (t *ColorTransformation) IsIdentity() bool {
	return t.factors == identityFactors
}

func (t *ColorTransformation) GammaLut() *kms.GammaLut {
	lut := &kms.GammaLut{
		Red:   make([]uint16, t.size),
		Green: make([]uint16, t.size),
		Blue:  make([]uint16, t.size),
	}
	if t.size < 2 {
		return lut
	}
	channels := [][]uint16{lut.Red, lut.Green, lut.Blue}
	for i := 0; i < t.size; i++ {
		v := float64(i) / float64(t.size-1) * 0xffff
		for c, ch := range channels {
			ch[i] = uint16(math.Round(math.Min(0xffff, math.Max(0, v*t.factors[c]))))
		}
	}
	return lut
}

// ColorTemperatureFactors returns the channel factors of a black body at
// kelvin, relative to 6500K.
func ColorTemperatureFactors(kelvin int32) Vec3 {
	if kelvin <= 0 || kelvin == 6500 {
		return identityFactors
	}
	if kelvin < 1000 {
		kelvin = 1000
	}
	if kelvin > 25000 {
		kelvin = 25000
	}
	t := float64(kelvin) / 100

	var r, g, b float64
	if t <= 66 {
		r = 255
		g = 99.4708025861*math.Log(t) - 161.1195681661
	} else {
		r = 329.698727446 * math.Pow(t-60, -0.1332047592)
		g = 288.1221695283 * math.Pow(t-60, -0.0755148492)
	}
	switch {
	case t >= 66:
		b = 255
	case t <= 19:
		b = 0
	default:
		b = 138.5177312231*math.Log(t-10) - 305.0447927307
	}
	clamp := func(v float64) float64 {
		return math.Min(1, math.Max(0, v/255))
	}
	return Vec3{clamp(r), clamp(g), clamp(b)}
}

const iccHeaderSize = 128

// IccProfile is a loaded ICC color profile.
type IccProfile struct {
	Path string
	data []byte
}

// LoadIccProfile reads and validates an ICC profile.
func LoadIccProfile(path string) (*IccProfile, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < iccHeaderSize || !bytes.Equal(data[36:40], []byte("acsp")) {
		return nil, xerrors.Errorf("%s is not an icc profile", path)
	}
	return &IccProfile{
		Path: path,
		data: data,
	}, nil
}

func (p *IccProfile) Data() []byte {
	return p.data
}
