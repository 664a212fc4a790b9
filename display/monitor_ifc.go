package display

import (
	"encoding/json"
	"fmt"
	"image"

	dbus "github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"golang.org/x/xerrors"
)

// applyChange runs cs against this output alone on the loop.
func (m *Monitor) applyChange(cs *OutputChangeSet) *dbus.Error {
	var err error
	m.m.loop.Call(func() {
		err = m.m.ApplyOutputChanges(map[string]*OutputChangeSet{m.Name: cs})
	})
	return dbusutil.ToError(err)
}

func (m *Monitor) Enable(enabled bool) *dbus.Error {
	return m.applyChange(&OutputChangeSet{Enabled: &enabled})
}

func (m *Monitor) SetMode(id uint32) *dbus.Error {
	var err error
	m.m.loop.Call(func() {
		// the connector is replaced by rescans on the loop
		mode := m.output.pipeline.connector.ModeByID(id)
		if mode == nil {
			err = fmt.Errorf("invalid mode id %d", id)
			return
		}
		err = m.m.ApplyOutputChanges(map[string]*OutputChangeSet{m.Name: {Mode: mode}})
	})
	return dbusutil.ToError(err)
}

func (m *Monitor) SetPosition(x, y int32) *dbus.Error {
	pos := image.Pt(int(x), int(y))
	return m.applyChange(&OutputChangeSet{Position: &pos})
}

func (m *Monitor) SetScale(scale float64) *dbus.Error {
	if scale <= 0 {
		return dbusutil.ToError(fmt.Errorf("invalid scale %v", scale))
	}
	return m.applyChange(&OutputChangeSet{Scale: &scale})
}

func (m *Monitor) SetTransform(transform uint32) *dbus.Error {
	if transform > uint32(TransformFlipped270) {
		return dbusutil.ToError(fmt.Errorf("invalid transform %d", transform))
	}
	t := Transform(transform)
	return m.applyChange(&OutputChangeSet{Transform: &t})
}

func (m *Monitor) SetVrrPolicy(policy uint32) *dbus.Error {
	if policy > uint32(VrrAutomatic) {
		return dbusutil.ToError(fmt.Errorf("invalid vrr policy %d", policy))
	}
	p := VrrPolicy(policy)
	return m.applyChange(&OutputChangeSet{VrrPolicy: &p})
}

func (m *Monitor) SetDpmsMode(mode uint32) *dbus.Error {
	if mode > uint32(DpmsOff) {
		return dbusutil.ToError(fmt.Errorf("invalid dpms mode %d", mode))
	}
	m.m.loop.Call(func() {
		m.output.SetDpmsMode(DpmsMode(mode))
	})
	return nil
}

func (m *Monitor) SetChannelFactors(red, green, blue float64) *dbus.Error {
	for _, v := range []float64{red, green, blue} {
		if !validFactor(v, 1) {
			return dbusutil.ToError(fmt.Errorf("invalid channel factor %v", v))
		}
	}
	var ok bool
	m.m.loop.Call(func() {
		ok = m.output.SetChannelFactors(Vec3{red, green, blue})
		m.m.handleOutputChanged(m.output)
	})
	if !ok {
		return dbusutil.ToError(xerrors.Errorf("%s: channel factors rejected", m.Name))
	}
	return nil
}

type outputStateJSON struct {
	Name                string
	PowerState          string
	Enabled             bool
	X, Y                int
	Scale               float64
	Transform           string
	Mode                string
	DpmsMode            string
	VrrPolicy           string
	Hdr                 bool
	WideColorGamut      bool
	ChannelFactors      Vec3
	NeedsShaderFallback bool
	Crtc                uint32
	Leased              bool
}

// GetState returns a JSON dump of the logical state.
func (m *Monitor) GetState() (string, *dbus.Error) {
	var st outputStateJSON
	m.m.loop.Call(func() {
		o := m.output
		state := o.State()
		st = outputStateJSON{
			Name:                o.Name(),
			PowerState:          o.PowerState().String(),
			Enabled:             state.Enabled,
			X:                   state.Position.X,
			Y:                   state.Position.Y,
			Scale:               state.Scale,
			Transform:           state.Transform.String(),
			DpmsMode:            state.DpmsMode.String(),
			VrrPolicy:           state.VrrPolicy.String(),
			Hdr:                 state.HighDynamicRange,
			WideColorGamut:      state.WideColorGamut,
			ChannelFactors:      o.ChannelFactors(),
			NeedsShaderFallback: o.NeedsShaderFallback(),
			Leased:              o.Lease() != nil,
		}
		if state.CurrentMode != nil {
			st.Mode = state.CurrentMode.String()
		}
		if crtc := o.pipeline.Crtc(); crtc != nil {
			st.Crtc = crtc.ID
		}
	})
	data, err := json.Marshal(st)
	if err != nil {
		return "", dbusutil.ToError(err)
	}
	return string(data), nil
}
