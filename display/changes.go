package display

import (
	"encoding/json"
	"image"
	"math"

	"golang.org/x/xerrors"
)

// OutputChange is the wire form of OutputChangeSet accepted by ApplyChanges.
// Absent fields keep their current value.
type OutputChange struct {
	Enabled          *bool    `json:",omitempty"`
	X                *int32   `json:",omitempty"`
	Y                *int32   `json:",omitempty"`
	Scale            *float64 `json:",omitempty"`
	Transform        *uint32  `json:",omitempty"`
	ModeId           *uint32  `json:",omitempty"`
	Width            *uint16  `json:",omitempty"`
	Height           *uint16  `json:",omitempty"`
	RefreshRate      *uint32  `json:",omitempty"` // mHz
	Overscan         *uint32  `json:",omitempty"`
	RgbRange         *uint32  `json:",omitempty"`
	VrrPolicy        *uint32  `json:",omitempty"`
	Hdr              *bool    `json:",omitempty"`
	WideColorGamut   *bool    `json:",omitempty"`
	SdrBrightness    *uint32  `json:",omitempty"`
	SdrGamutWideness *float64 `json:",omitempty"`
	// luminance overrides in cd/m², 0 restores the monitor's value
	MaxPeakBrightness    *float64 `json:",omitempty"`
	MaxAverageBrightness *float64 `json:",omitempty"`
	MinBrightness        *float64 `json:",omitempty"`
	IccProfilePath       *string  `json:",omitempty"`
}

// ParseOutputChanges decodes a JSON object mapping output names to changes.
func ParseOutputChanges(data []byte) (map[string]*OutputChange, error) {
	var changes map[string]*OutputChange
	err := json.Unmarshal(data, &changes)
	if err != nil {
		return nil, xerrors.Errorf("invalid output changes: %w", err)
	}
	return changes, nil
}

func (c *OutputChange) toChangeSet(o *Output) (*OutputChangeSet, error) {
	state := o.State()
	cs := &OutputChangeSet{
		Enabled:          c.Enabled,
		Scale:            c.Scale,
		Overscan:         c.Overscan,
		HighDynamicRange: c.Hdr,
		WideColorGamut:   c.WideColorGamut,
		SdrBrightness:    c.SdrBrightness,
		SdrGamutWideness: c.SdrGamutWideness,
	}

	if c.X != nil || c.Y != nil {
		pos := state.Position
		if c.X != nil {
			pos.X = int(*c.X)
		}
		if c.Y != nil {
			pos.Y = int(*c.Y)
		}
		cs.Position = &image.Point{X: pos.X, Y: pos.Y}
	}
	if c.Scale != nil && *c.Scale <= 0 {
		return nil, xerrors.Errorf("invalid scale %v", *c.Scale)
	}
	if c.SdrGamutWideness != nil && !validFactor(*c.SdrGamutWideness, 1) {
		return nil, xerrors.Errorf("invalid sdr gamut wideness %v", *c.SdrGamutWideness)
	}
	if c.MaxPeakBrightness != nil || c.MaxAverageBrightness != nil || c.MinBrightness != nil {
		overrides := state.BrightnessOverrides
		for _, v := range []struct {
			value *float64
			field *float64
		}{
			{c.MaxPeakBrightness, &overrides.MaxPeak},
			{c.MaxAverageBrightness, &overrides.MaxAverage},
			{c.MinBrightness, &overrides.Min},
		} {
			if v.value == nil {
				continue
			}
			if !validFactor(*v.value, maxLuminance) {
				return nil, xerrors.Errorf("invalid luminance %v", *v.value)
			}
			*v.field = *v.value
		}
		cs.BrightnessOverrides = &overrides
	}
	if c.Transform != nil {
		if *c.Transform > uint32(TransformFlipped270) {
			return nil, xerrors.Errorf("invalid transform %d", *c.Transform)
		}
		t := Transform(*c.Transform)
		cs.Transform = &t
	}
	if c.RgbRange != nil {
		if *c.RgbRange > uint32(RgbRangeLimited) {
			return nil, xerrors.Errorf("invalid rgb range %d", *c.RgbRange)
		}
		r := RgbRange(*c.RgbRange)
		cs.RgbRange = &r
	}
	if c.VrrPolicy != nil {
		if *c.VrrPolicy > uint32(VrrAutomatic) {
			return nil, xerrors.Errorf("invalid vrr policy %d", *c.VrrPolicy)
		}
		p := VrrPolicy(*c.VrrPolicy)
		cs.VrrPolicy = &p
	}

	conn := o.pipeline.connector
	switch {
	case c.ModeId != nil:
		cs.Mode = conn.ModeByID(*c.ModeId)
		if cs.Mode == nil {
			return nil, xerrors.Errorf("%s has no mode %d", o.Name(), *c.ModeId)
		}
	case c.Width != nil && c.Height != nil:
		var rate uint32
		if c.RefreshRate != nil {
			rate = *c.RefreshRate
		}
		cs.Mode = conn.FindMode(*c.Width, *c.Height, rate)
		if cs.Mode == nil {
			return nil, xerrors.Errorf("%s has no mode %dx%d@%d", o.Name(), *c.Width, *c.Height, rate)
		}
	}

	if c.IccProfilePath != nil {
		cs.IccProfilePath = c.IccProfilePath
		if *c.IccProfilePath != "" {
			profile, err := LoadIccProfile(*c.IccProfilePath)
			if err != nil {
				return nil, err
			}
			cs.IccProfile = profile
		}
	}
	return cs, nil
}

// maxLuminance is the largest luminance the HDR metadata can carry.
const maxLuminance = math.MaxUint16

// validFactor reports whether v is a finite number in [0, max].
func validFactor(v, max float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= max
}

// applyChanges converts and applies changes given in wire form.
func (m *Manager) applyChanges(changes map[string]*OutputChange) error {
	sets := make(map[string]*OutputChangeSet, len(changes))
	for name, c := range changes {
		o := m.GetOutput(name)
		if o == nil {
			return xerrors.Errorf("no output named %q", name)
		}
		if c == nil {
			continue
		}
		cs, err := c.toChangeSet(o)
		if err != nil {
			return err
		}
		sets[name] = cs
	}
	return m.ApplyOutputChanges(sets)
}
