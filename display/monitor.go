package display

import (
	"strconv"
	"sync"

	dbus "github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/dde-kms/display/kms"
	"github.com/linuxdeepin/go-lib/dbusutil"
)

const (
	dbusInterfaceMonitor = dbusInterface + ".Output"
)

type ModeInfo struct {
	Id     uint32
	name   string
	Width  uint16
	Height uint16
	Rate   float64
}

func toModeInfo(mode *kms.Mode) ModeInfo {
	if mode == nil {
		return ModeInfo{}
	}
	return ModeInfo{
		Id:     mode.ID,
		name:   mode.Name,
		Width:  mode.Width,
		Height: mode.Height,
		Rate:   float64(mode.RefreshRate()) / 1000,
	}
}

// Monitor is the bus view of an Output.
type Monitor struct {
	m       *Manager
	service *dbusutil.Service
	output  *Output
	PropsMu sync.RWMutex

	ID           uint32
	Name         string
	UUID         string
	Manufacturer string
	Model        string
	MmWidth      uint32
	MmHeight     uint32
	Capabilities uint32

	Enabled   bool
	X         int32
	Y         int32
	Scale     float64
	Transform uint32
	// dbusutil-gen: equal=nil
	CurrentMode ModeInfo
	// dbusutil-gen: equal=nil
	Modes          []ModeInfo
	DpmsMode       uint32
	VrrPolicy      uint32
	Hdr            bool
	WideColorGamut bool
	// dbusutil-gen: equal=nil
	ChannelFactors      []float64
	NeedsShaderFallback bool
	Leased              bool
}

func newMonitor(m *Manager, o *Output) *Monitor {
	info := o.Information()
	monitor := &Monitor{
		m:            m,
		service:      m.service,
		output:       o,
		ID:           o.pipeline.connector.ID,
		Name:         info.Name,
		UUID:         info.UUID,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		MmWidth:      uint32(info.PhysicalSize.X),
		MmHeight:     uint32(info.PhysicalSize.Y),
		Capabilities: uint32(info.Capabilities),
	}
	monitor.load(o)
	return monitor
}

func (m *Monitor) GetInterfaceName() string {
	return dbusInterfaceMonitor
}

func (m *Monitor) getPath() dbus.ObjectPath {
	return dbus.ObjectPath(dbusPath + "/Output_" + strconv.Itoa(int(m.ID)))
}

func modeInfos(modes []*kms.Mode) []ModeInfo {
	result := make([]ModeInfo, len(modes))
	for i, mode := range modes {
		result[i] = toModeInfo(mode)
	}
	return result
}

// load fills the properties without emitting signals, before export.
func (m *Monitor) load(o *Output) {
	state := o.State()
	factors := o.ChannelFactors()
	m.Enabled = state.Enabled
	m.X = int32(state.Position.X)
	m.Y = int32(state.Position.Y)
	m.Scale = state.Scale
	m.Transform = uint32(state.Transform)
	m.CurrentMode = toModeInfo(state.CurrentMode)
	m.Modes = modeInfos(state.Modes)
	m.DpmsMode = uint32(state.DpmsMode)
	m.VrrPolicy = uint32(state.VrrPolicy)
	m.Hdr = state.HighDynamicRange
	m.WideColorGamut = state.WideColorGamut
	m.ChannelFactors = factors[:]
	m.NeedsShaderFallback = o.NeedsShaderFallback()
	m.Leased = o.Lease() != nil
}

func (m *Monitor) update(o *Output) {
	state := o.State()
	factors := o.ChannelFactors()

	m.PropsMu.Lock()
	m.setPropEnabled(state.Enabled)
	m.setPropX(int32(state.Position.X))
	m.setPropY(int32(state.Position.Y))
	m.setPropScale(state.Scale)
	m.setPropTransform(uint32(state.Transform))
	m.setPropCurrentMode(toModeInfo(state.CurrentMode))
	m.setPropModes(modeInfos(state.Modes))
	m.setPropDpmsMode(uint32(state.DpmsMode))
	m.setPropVrrPolicy(uint32(state.VrrPolicy))
	m.setPropHdr(state.HighDynamicRange)
	m.setPropWideColorGamut(state.WideColorGamut)
	m.setPropChannelFactors(factors[:])
	m.setPropNeedsShaderFallback(o.NeedsShaderFallback())
	m.setPropLeased(o.Lease() != nil)
	m.PropsMu.Unlock()
}

func (m *Manager) exportMonitor(o *Output) error {
	monitor := newMonitor(m, o)
	err := m.service.Export(monitor.getPath(), monitor)
	if err != nil {
		return err
	}
	m.monitors[monitor.ID] = monitor
	return nil
}

func (m *Manager) unexportMonitor(monitor *Monitor) {
	err := m.service.StopExport(monitor)
	if err != nil {
		logger.Warning(err)
	}
}
