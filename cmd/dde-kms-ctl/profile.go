package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/linuxdeepin/dde-kms/display"
	"golang.org/x/xerrors"
)

// profile is a layout file, one table per output:
//
//	[outputs.HDMI-A-1]
//	enabled = true
//	mode = "1920x1080@60"
//	x = 1920
//	transform = "90"
type profile struct {
	Outputs map[string]profileOutput `toml:"outputs"`
}

type profileOutput struct {
	Enabled        *bool    `toml:"enabled"`
	X              *int32   `toml:"x"`
	Y              *int32   `toml:"y"`
	Scale          *float64 `toml:"scale"`
	Transform      string   `toml:"transform"`
	Mode           string   `toml:"mode"`
	Overscan       *uint32  `toml:"overscan"`
	RgbRange       string   `toml:"rgb_range"`
	Vrr            string   `toml:"vrr"`
	Hdr            *bool    `toml:"hdr"`
	WideColorGamut *bool    `toml:"wide_color_gamut"`
	SdrBrightness  *uint32  `toml:"sdr_brightness"`
	IccProfile     *string  `toml:"icc_profile"`
}

func loadProfile(path string) (map[string]*display.OutputChange, error) {
	var p profile
	meta, err := toml.DecodeFile(path, &p)
	if err != nil {
		return nil, xerrors.Errorf("load profile: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		logger.Warningf("unknown keys in %s: %v", path, undecoded)
	}
	return p.changes()
}

func (p *profile) changes() (map[string]*display.OutputChange, error) {
	changes := make(map[string]*display.OutputChange, len(p.Outputs))
	for name, o := range p.Outputs {
		c, err := o.change()
		if err != nil {
			return nil, xerrors.Errorf("output %s: %w", name, err)
		}
		changes[name] = c
	}
	return changes, nil
}

func (o *profileOutput) change() (*display.OutputChange, error) {
	c := &display.OutputChange{
		Enabled:        o.Enabled,
		X:              o.X,
		Y:              o.Y,
		Scale:          o.Scale,
		Overscan:       o.Overscan,
		Hdr:            o.Hdr,
		WideColorGamut: o.WideColorGamut,
		SdrBrightness:  o.SdrBrightness,
		IccProfilePath: o.IccProfile,
	}
	if o.Mode != "" {
		width, height, rate, err := parseMode(o.Mode)
		if err != nil {
			return nil, err
		}
		c.Width, c.Height = &width, &height
		if rate != 0 {
			c.RefreshRate = &rate
		}
	}
	if o.Transform != "" {
		v, err := parseEnum(o.Transform, 8, func(i uint32) string {
			return display.Transform(i).String()
		})
		if err != nil {
			return nil, err
		}
		c.Transform = &v
	}
	if o.RgbRange != "" {
		v, err := parseEnum(o.RgbRange, 3, func(i uint32) string {
			return []string{"automatic", "full", "limited"}[i]
		})
		if err != nil {
			return nil, err
		}
		c.RgbRange = &v
	}
	if o.Vrr != "" {
		v, err := parseEnum(o.Vrr, 3, func(i uint32) string {
			return display.VrrPolicy(i).String()
		})
		if err != nil {
			return nil, err
		}
		c.VrrPolicy = &v
	}
	return c, nil
}

// parseMode reads "WIDTHxHEIGHT" with an optional "@RATE" in Hz, the rate
// is returned in mHz.
func parseMode(s string) (width, height uint16, rate uint32, err error) {
	size := s
	if idx := strings.IndexByte(s, '@'); idx >= 0 {
		size = s[:idx]
		hz, err := strconv.ParseFloat(s[idx+1:], 64)
		if err != nil || hz <= 0 {
			return 0, 0, 0, fmt.Errorf("invalid refresh rate in mode %q", s)
		}
		rate = uint32(math.Round(hz * 1000))
	}
	parts := strings.Split(size, "x")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid mode %q", s)
	}
	w, err1 := strconv.ParseUint(parts[0], 10, 16)
	h, err2 := strconv.ParseUint(parts[1], 10, 16)
	if err1 != nil || err2 != nil || w == 0 || h == 0 {
		return 0, 0, 0, fmt.Errorf("invalid mode %q", s)
	}
	return uint16(w), uint16(h), rate, nil
}

// parseEnum accepts a name or the number of an enum value.
func parseEnum(s string, count uint32, name func(uint32) string) (uint32, error) {
	for i := uint32(0); i < count; i++ {
		if name(i) == s {
			return i, nil
		}
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || uint32(v) >= count {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return uint32(v), nil
}
