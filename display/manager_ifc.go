package display

import (
	"errors"
	"fmt"

	dbus "github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/go-lib/dbusutil"
)

func (m *Manager) GetInterfaceName() string {
	return dbusInterface
}

func (m *Manager) ListOutputs() ([]dbus.ObjectPath, *dbus.Error) {
	m.PropsMu.RLock()
	defer m.PropsMu.RUnlock()
	return m.Outputs, nil
}

func (m *Manager) ListOutputNames() ([]string, *dbus.Error) {
	var names []string
	m.loop.Call(func() {
		for _, o := range m.GetOutputs() {
			names = append(names, o.Name())
		}
	})
	return names, nil
}

func (m *Manager) ApplyChanges(changes string) *dbus.Error {
	parsed, err := ParseOutputChanges([]byte(changes))
	if err != nil {
		return dbusutil.ToError(err)
	}
	m.loop.Call(func() {
		err = m.applyChanges(parsed)
	})
	return dbusutil.ToError(err)
}

func (m *Manager) SetDpmsMode(mode uint32) *dbus.Error {
	if mode > uint32(DpmsOff) {
		return dbusutil.ToError(fmt.Errorf("invalid dpms mode %d", mode))
	}
	m.loop.Call(func() {
		m.setDpmsMode(DpmsMode(mode))
	})
	return nil
}

func (m *Manager) WakeUp() *dbus.Error {
	m.loop.Call(m.wakeUp)
	return nil
}

func (m *Manager) CreateLease(outputs []string) (lesseeID uint32, fd dbus.UnixFD, busErr *dbus.Error) {
	if len(outputs) == 0 {
		return 0, -1, dbusutil.ToError(errors.New("no outputs given"))
	}
	var err error
	m.loop.Call(func() {
		lease, err1 := m.createLease(outputs)
		if err1 != nil {
			err = err1
			return
		}
		lesseeID = lease.LesseeID
		fd = dbus.UnixFD(lease.FD)
	})
	if err != nil {
		return 0, -1, dbusutil.ToError(err)
	}
	return lesseeID, fd, nil
}

func (m *Manager) RevokeLease(lesseeID uint32) *dbus.Error {
	var err error
	m.loop.Call(func() {
		err = m.revokeLease(lesseeID)
	})
	return dbusutil.ToError(err)
}

func (m *Manager) Rescan() *dbus.Error {
	m.loop.Call(m.UpdateOutputs)
	return nil
}

func (m *Manager) SetColorTemperature(kelvin int32) *dbus.Error {
	if kelvin != 0 && (kelvin < 1000 || kelvin > 25000) {
		return dbusutil.ToError(fmt.Errorf("invalid color temperature %d", kelvin))
	}
	m.loop.Call(func() {
		m.setColorTemperature(kelvin)
	})
	return nil
}
