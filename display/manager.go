package display

import (
	"image"
	"os"
	"sort"
	"sync"

	dbus "github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/dde-kms/display/kms"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"golang.org/x/xerrors"
)

// EventLoop is the loop all output mutation runs on.
type EventLoop interface {
	Scheduler
	// Call runs fn on the loop and waits for it.
	Call(fn func())
}

type leaseInfo struct {
	lease   *kms.Lease
	outputs []*Output
}

//go:generate dbusutil-gen -output display_dbusutil.go -import github.com/godbus/dbus/v5 -type Manager,Monitor manager.go monitor.go
//go:generate dbusutil-gen em -type Manager,Monitor
type Manager struct {
	service    *dbusutil.Service
	sysBus     *dbus.Conn
	loop       EventLoop
	gpu        *Gpu
	settings   *Settings
	config     *Config
	configFile string

	outputs  map[uint32]*Output
	monitors map[uint32]*Monitor
	leases   map[uint32]*leaseInfo

	PropsMu sync.RWMutex
	// dbusutil-gen: equal=nil
	Outputs          []dbus.ObjectPath
	ColorTemperature int32
}

// NewManager builds outputs for every connected connector of device and
// restores their saved configuration.
func NewManager(device kms.Device, settings *Settings, loop EventLoop) (*Manager, error) {
	if settings == nil {
		settings = DefaultSettings()
	}
	m := &Manager{
		loop:       loop,
		gpu:        NewGpu(device, loop),
		settings:   settings,
		configFile: configFile,
		outputs:    make(map[uint32]*Output),
		monitors:   make(map[uint32]*Monitor),
		leases:     make(map[uint32]*leaseInfo),
	}
	m.gpu.SetWaitIdleTimeout(settings.WaitIdleTimeout)

	res, err := m.gpu.UpdateResources()
	if err != nil {
		return nil, xerrors.Errorf("read resources of %s: %w", device.Path(), err)
	}
	var added []*Output
	for _, conn := range res.Connectors {
		if conn.Connected {
			added = append(added, m.addOutput(conn))
		}
	}

	m.config, err = loadConfig(m.configFile)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warning(err)
		}
		m.config = newConfig()
	}
	m.restoreConfiguration(added)
	return m, nil
}

func (m *Manager) Gpu() *Gpu {
	return m.gpu
}

// GetOutputs returns the outputs sorted by name.
func (m *Manager) GetOutputs() []*Output {
	result := make([]*Output, 0, len(m.outputs))
	for _, o := range m.outputs {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

func (m *Manager) GetOutput(name string) *Output {
	for _, o := range m.outputs {
		if o.Name() == name {
			return o
		}
	}
	return nil
}

func (m *Manager) addOutput(conn *kms.Connector) *Output {
	p := m.gpu.AddPipeline(conn)
	o := NewOutput(m.gpu, p, m.loop)
	o.SetDimDuration(m.settings.DimDuration)
	o.rescan = m.UpdateOutputs
	o.SetFrameHandler(m.presentIdleFrame)
	o.ConnectChanged(func() {
		m.handleOutputChanged(o)
	})
	m.outputs[conn.ID] = o
	logger.Infof("added output %s (%s %s)", o.Name(), o.info.Manufacturer, o.info.Model)

	if m.service != nil {
		err := m.exportMonitor(o)
		if err != nil {
			logger.Warning(err)
		}
	}
	return o
}

func (m *Manager) removeOutput(o *Output) {
	id := o.pipeline.connector.ID
	for lesseeID, info := range m.leases {
		for _, lo := range info.outputs {
			if lo == o {
				if err := m.revokeLease(lesseeID); err != nil {
					logger.Warning(err)
				}
				break
			}
		}
	}
	if o.pipeline.committed.crtc != nil {
		o.pipeline.SetEnable(false)
		if !m.gpu.MaybeModeset() {
			logger.Warningf("failed to disable %v", o)
		}
	}
	o.Destroy()
	m.gpu.RemovePipeline(o.pipeline)
	delete(m.outputs, id)
	if monitor, ok := m.monitors[id]; ok {
		m.unexportMonitor(monitor)
		delete(m.monitors, id)
	}
	logger.Infof("removed output %s", o.Name())
}

// UpdateOutputs rescans the connectors.
func (m *Manager) UpdateOutputs() {
	res, err := m.gpu.UpdateResources()
	if err != nil {
		logger.Warning("failed to rescan outputs:", err)
		return
	}

	var added []*Output
	for _, conn := range res.Connectors {
		o := m.outputs[conn.ID]
		if !conn.Connected {
			if o != nil {
				m.removeOutput(o)
			}
			continue
		}
		if o != nil && o.info.UUID != buildInformation(conn).UUID {
			// another monitor was plugged in while we weren't looking
			m.removeOutput(o)
			o = nil
		}
		if o == nil {
			added = append(added, m.addOutput(conn))
			continue
		}
		o.UpdateModes()
	}
	for id, o := range m.outputs {
		if res.Connector(id) == nil {
			m.removeOutput(o)
		}
	}
	if len(added) > 0 {
		m.restoreConfiguration(added)
	}
	m.updatePropOutputs()
}

// restoreConfiguration applies saved or default settings to new outputs.
func (m *Manager) restoreConfiguration(outputs []*Output) {
	if len(outputs) == 0 {
		return
	}
	x := 0
	for _, o := range m.GetOutputs() {
		state := o.State()
		if state.Enabled && state.CurrentMode != nil {
			if right := state.Position.X + int(state.CurrentMode.Width); right > x {
				x = right
			}
		}
	}

	changes := make(map[string]*OutputChangeSet)
	for _, o := range outputs {
		if oc, ok := m.config.Outputs[o.info.UUID]; ok {
			changes[o.Name()] = oc.changeSet(o)
			continue
		}
		enabled := !o.info.NonDesktop && !m.settings.DisabledOutputs.Contains(o.Name())
		pos := image.Pt(x, 0)
		cs := &OutputChangeSet{
			Enabled:  &enabled,
			Position: &pos,
		}
		if enabled {
			cs.Mode = o.pipeline.connector.PreferredMode()
			if cs.Mode != nil {
				x += int(cs.Mode.Width)
			}
		}
		changes[o.Name()] = cs
	}

	err := m.ApplyOutputChanges(changes)
	if err == nil {
		return
	}
	logger.Warning("failed to restore output configuration:", err)
	// enable what we can, one output at a time
	for _, o := range outputs {
		enabled := !o.info.NonDesktop
		err = m.ApplyOutputChanges(map[string]*OutputChangeSet{
			o.Name(): {Enabled: &enabled, Mode: o.pipeline.connector.PreferredMode()},
		})
		if err != nil {
			logger.Warningf("failed to enable %v: %v", o, err)
		}
	}
}

// ApplyOutputChanges tests changes of all outputs as one configuration and
// applies them only if the hardware accepts the whole of it.
func (m *Manager) ApplyOutputChanges(changes map[string]*OutputChangeSet) error {
	for name := range changes {
		if m.GetOutput(name) == nil {
			return xerrors.Errorf("no output named %q", name)
		}
	}

	outputs := m.GetOutputs()
	sets := make(map[*Output]*OutputChangeSet, len(outputs))
	var queued []*Output
	revert := func() {
		for _, o := range queued {
			o.RevertQueuedChanges()
		}
	}
	for _, o := range outputs {
		if o.Lease() != nil {
			continue
		}
		cs := changes[o.Name()]
		if cs == nil {
			cs = &OutputChangeSet{}
		}
		if !o.QueueChanges(cs) {
			revert()
			return xerrors.Errorf("%s: can't queue changes", o.Name())
		}
		sets[o] = cs
		queued = append(queued, o)
	}

	if e := m.gpu.TestPendingConfiguration(); e != ErrorNone {
		revert()
		return xerrors.Errorf("configuration rejected: %w", e)
	}
	for _, o := range queued {
		o.ApplyQueuedChanges(sets[o])
	}
	if m.gpu.NeedsModeset() && !m.gpu.MaybeModeset() {
		logger.Warning("modeset of tested configuration failed")
	}
	m.saveConfig()
	return nil
}

func (m *Manager) saveConfig() {
	for _, o := range m.outputs {
		m.config.update(o)
	}
	err := m.config.save(m.configFile)
	if err != nil {
		logger.Warning("failed to save config:", err)
	}
}

// wakeUp turns all outputs on, e.g. on user activity or resume.
func (m *Manager) wakeUp() {
	m.setDpmsMode(DpmsOn)
}

func (m *Manager) setDpmsMode(mode DpmsMode) {
	for _, o := range m.GetOutputs() {
		o.SetDpmsMode(mode)
	}
}

// setColorTemperature tints all outputs; 0 and 6500 restore neutral colors.
func (m *Manager) setColorTemperature(kelvin int32) {
	factors := ColorTemperatureFactors(kelvin)
	for _, o := range m.GetOutputs() {
		o.SetChannelFactors(factors)
	}
	if m.service != nil {
		m.PropsMu.Lock()
		m.setPropColorTemperature(kelvin)
		m.PropsMu.Unlock()
	}
}

// createLease hands the named outputs to another client.
func (m *Manager) createLease(names []string) (*kms.Lease, error) {
	var objects []uint32
	var outputs []*Output
	var reserved []*Pipeline
	release := func() {
		for _, p := range reserved {
			m.gpu.releaseCrtc(p)
		}
	}
	for _, name := range names {
		o := m.GetOutput(name)
		if o == nil {
			release()
			return nil, xerrors.Errorf("no output named %q", name)
		}
		if o.Lease() != nil {
			release()
			return nil, xerrors.Errorf("%s is already leased", name)
		}
		if o.pipeline.Crtc() == nil && !o.IsEnabled() {
			if m.gpu.reserveCrtc(o.pipeline) {
				reserved = append(reserved, o.pipeline)
			}
		}
		var ok bool
		objects, ok = o.AddLeaseObjects(objects)
		if !ok {
			release()
			return nil, xerrors.Errorf("%s has no crtc to lease", name)
		}
		outputs = append(outputs, o)
	}

	lease, err := m.gpu.device.CreateLease(objects)
	if err != nil {
		release()
		return nil, xerrors.Errorf("create lease: %w", err)
	}
	for _, o := range outputs {
		o.Leased(lease)
		m.handleOutputChanged(o)
	}
	m.leases[lease.LesseeID] = &leaseInfo{lease: lease, outputs: outputs}
	logger.Infof("leased %v as lessee %d", names, lease.LesseeID)
	return lease, nil
}

func (m *Manager) revokeLease(lesseeID uint32) error {
	info, ok := m.leases[lesseeID]
	if !ok {
		return xerrors.Errorf("no lease with lessee id %d", lesseeID)
	}
	delete(m.leases, lesseeID)
	err := m.gpu.device.RevokeLease(lesseeID)
	for _, o := range info.outputs {
		o.LeaseEnded()
		if !o.IsEnabled() {
			m.gpu.releaseCrtc(o.pipeline)
		}
		m.handleOutputChanged(o)
	}
	if err != nil {
		return xerrors.Errorf("revoke lease %d: %w", lesseeID, err)
	}
	return nil
}

// presentIdleFrame keeps outputs scanning out when no compositor renders
// into them.
func (m *Manager) presentIdleFrame(o *Output) {
	frame := NewOutputFrame(o.RenderLoop(), m.loop.Now())
	if layer, ok := o.PrimaryLayer().(*planeLayer); ok && layer.mode == CompositingSoftware {
		if _, _, err := layer.BeginFrame(); err == nil {
			layer.EndFrame(nil)
		}
	}
	frame.SetRenderDone(m.loop.Now())
	o.Present(frame)
}

func (m *Manager) handleOutputChanged(o *Output) {
	monitor, ok := m.monitors[o.pipeline.connector.ID]
	if !ok {
		return
	}
	monitor.update(o)
}

func (m *Manager) updatePropOutputs() {
	if m.service == nil {
		return
	}
	var paths []dbus.ObjectPath
	for _, o := range m.GetOutputs() {
		if monitor, ok := m.monitors[o.pipeline.connector.ID]; ok {
			paths = append(paths, monitor.getPath())
		}
	}
	m.PropsMu.Lock()
	m.setPropOutputs(paths)
	m.PropsMu.Unlock()
}

func (m *Manager) handlePrepareForSleep(sleep bool) {
	if sleep {
		return
	}
	m.loop.Post(func() {
		// page flips pending before suspend never complete
		m.gpu.WaitIdle()
		m.UpdateOutputs()
		m.wakeUp()
	})
}

func (m *Manager) handleSessionActive(active bool) {
	if !active {
		return
	}
	m.loop.Post(m.wakeUp)
}

func (m *Manager) applySettings(s *Settings) {
	m.settings = s
	m.gpu.SetWaitIdleTimeout(s.WaitIdleTimeout)
	for _, o := range m.outputs {
		o.SetDimDuration(s.DimDuration)
	}
	setLogLevelFromSettings(s)
}
