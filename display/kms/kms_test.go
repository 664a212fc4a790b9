package kms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_modeRefreshRate(t *testing.T) {
	mode := &Mode{Clock: 148500, HTotal: 2200, VTotal: 1125}
	assert.Equal(t, uint32(60000), mode.RefreshRate())

	mode.Flags = ModeFlagInterlace
	assert.Equal(t, uint32(120000), mode.RefreshRate())

	mode.Flags = ModeFlagDblScan
	assert.Equal(t, uint32(30000), mode.RefreshRate())

	mode = &Mode{VRefresh: 75}
	assert.Equal(t, uint32(75000), mode.RefreshRate())
}

func Test_atomicRequestMerge(t *testing.T) {
	a := NewAtomicRequest()
	a.Add(10, PropActive, 1)
	a.Add(10, PropModeID, 0)
	b := NewAtomicRequest()
	b.Add(20, PropCrtcID, 10)
	b.Add(10, PropActive, 0)
	b.AddBlob(10, PropModeID, []byte{1})

	a.Merge(b)
	require.Equal(t, 3, a.Len())
	props := a.Properties()
	assert.Equal(t, PropActive, props[0].Name)
	assert.Equal(t, uint64(0), props[0].Value)
	assert.True(t, props[1].IsBlob)
	assert.Equal(t, []uint32{10, 20}, a.Objects())
	assert.True(t, a.Has(20, PropCrtcID))
	assert.False(t, a.Has(20, PropActive))
}

func Test_connectorCapabilities(t *testing.T) {
	conn := &Connector{
		Type: ConnectorEDP,
		Props: Props{
			PropVrrCapable:   {Name: PropVrrCapable, Value: 1},
			PropBroadcastRGB: {Name: PropBroadcastRGB},
			PropColorspace: {Name: PropColorspace, Enums: map[string]uint64{
				ColorspaceDefault: 0, ColorspaceBT2020RGB: 9,
			}},
		},
	}
	caps := conn.Capabilities()
	assert.True(t, caps.Has(CapVrr))
	assert.True(t, caps.Has(CapRgbRange))
	assert.True(t, caps.Has(CapBT2020Colorspace))
	assert.True(t, caps.Has(CapInternal))
	assert.False(t, caps.Has(CapOverscan))
	assert.False(t, caps.Has(CapMst))
	assert.Equal(t, "vrr|rgb-range|bt2020|internal", caps.String())
}

func Test_findMode(t *testing.T) {
	m60 := &Mode{ID: 1, Width: 1920, Height: 1080, VRefresh: 60}
	m144 := &Mode{ID: 2, Width: 1920, Height: 1080, VRefresh: 144}
	m4k := &Mode{ID: 3, Width: 3840, Height: 2160, VRefresh: 60, Type: ModeTypePreferred}
	conn := &Connector{Modes: []*Mode{m60, m144, m4k}}

	assert.Equal(t, m144, conn.FindMode(1920, 1080, 0))
	assert.Equal(t, m60, conn.FindMode(1920, 1080, 59940))
	assert.Nil(t, conn.FindMode(1280, 720, 60000))
	assert.Equal(t, m4k, conn.PreferredMode())
	assert.Equal(t, m144, conn.ModeByID(2))
	assert.Equal(t, m60, conn.FindSameTiming(&Mode{ID: 9, Width: 1920, Height: 1080, VRefresh: 60}))
}

func Test_assignPlanes(t *testing.T) {
	crtc0 := &Crtc{ID: 40, Index: 0}
	crtc1 := &Crtc{ID: 41, Index: 1}
	primary0 := &Plane{ID: 30, Type: PlanePrimary, PossibleCrtcs: 0x3}
	primary1 := &Plane{ID: 31, Type: PlanePrimary, PossibleCrtcs: 0x3}
	cursor := &Plane{ID: 32, Type: PlaneCursor, PossibleCrtcs: 0x2}
	res := &Resources{
		Crtcs:  []*Crtc{crtc0, crtc1},
		Planes: []*Plane{primary0, primary1, cursor},
	}
	res.AssignPlanes()
	assert.Equal(t, primary0, crtc0.PrimaryPlane)
	assert.Nil(t, crtc0.CursorPlane)
	assert.Equal(t, primary1, crtc1.PrimaryPlane)
	assert.Equal(t, cursor, crtc1.CursorPlane)
}
