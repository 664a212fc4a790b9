package kms

import (
	"fmt"
	"math"
)

// mode flags, see drm_mode.h
const (
	ModeFlagPHSync    = 1 << 0
	ModeFlagNHSync    = 1 << 1
	ModeFlagPVSync    = 1 << 2
	ModeFlagNVSync    = 1 << 3
	ModeFlagInterlace = 1 << 4
	ModeFlagDblScan   = 1 << 5
)

// mode types
const (
	ModeTypePreferred = 1 << 3
	ModeTypeUserDef   = 1 << 5
	ModeTypeDriver    = 1 << 6
)

// Mode is a display timing a connector advertises. Pointers to a Mode are
// stable for the lifetime of a connector scan and may be compared directly.
type Mode struct {
	ID         uint32
	Name       string
	Clock      uint32 // kHz
	Width      uint16
	HSyncStart uint16
	HSyncEnd   uint16
	HTotal     uint16
	HSkew      uint16
	Height     uint16
	VSyncStart uint16
	VSyncEnd   uint16
	VTotal     uint16
	VScan      uint16
	VRefresh   uint32
	Flags      uint32
	Type       uint32
}

func (m *Mode) String() string {
	return fmt.Sprintf("<Mode id=%d %dx%d@%.3f>", m.ID, m.Width, m.Height,
		float64(m.RefreshRate())/1000)
}

// RefreshRate returns the refresh rate in mHz.
func (m *Mode) RefreshRate() uint32 {
	vTotal := float64(m.VTotal)
	if m.Flags&ModeFlagDblScan != 0 {
		vTotal *= 2
	}
	if m.Flags&ModeFlagInterlace != 0 {
		vTotal /= 2
	}
	if m.VScan > 1 {
		vTotal *= float64(m.VScan)
	}

	if m.HTotal == 0 || vTotal == 0 {
		return m.VRefresh * 1000
	}
	rate := float64(m.Clock) * 1000 * 1000 / (float64(m.HTotal) * vTotal)
	return uint32(math.Round(rate))
}

func (m *Mode) Preferred() bool {
	return m.Type&ModeTypePreferred != 0
}

// SameTiming reports whether both modes describe the same timing, ignoring
// the identity and name.
func (m *Mode) SameTiming(other *Mode) bool {
	if m == nil || other == nil {
		return m == other
	}
	a, b := *m, *other
	a.ID, b.ID = 0, 0
	a.Name, b.Name = "", ""
	a.Type, b.Type = 0, 0
	return a == b
}
