package display

import (
	dbus "github.com/godbus/dbus/v5"
	login1 "github.com/linuxdeepin/go-dbus-factory/system/org.freedesktop.login1"
	"github.com/linuxdeepin/go-lib/dbusutil"
)

// watchSession wakes the outputs when our session becomes active again or
// the system resumes.
func (m *Manager) watchSession(sysBus *dbus.Conn) *dbusutil.SignalLoop {
	m.sysBus = sysBus
	sigLoop := dbusutil.NewSignalLoop(sysBus, 10)
	sigLoop.Start()

	managerObj := login1.NewManager(sysBus)
	managerObj.InitSignalExt(sigLoop, true)
	_, err := managerObj.ConnectPrepareForSleep(m.handlePrepareForSleep)
	if err != nil {
		logger.Warning("connect PrepareForSleep failed:", err)
	}

	selfObj, err := login1.NewSession(sysBus, "/org/freedesktop/login1/session/self")
	if err != nil {
		logger.Warningf("connect login1 self session failed! %v", err)
		return sigLoop
	}
	id, err := selfObj.Id().Get(0)
	if err != nil {
		logger.Warningf("get self session id failed! %v", err)
		return sigLoop
	}
	path, err := managerObj.GetSession(0, id)
	if err != nil {
		logger.Warningf("get session path %s failed! %v", id, err)
		return sigLoop
	}
	sessionObj, err := login1.NewSession(sysBus, path)
	if err != nil {
		logger.Warningf("connect login1 session %s failed! %v", path, err)
		return sigLoop
	}

	sessionObj.InitSignalExt(sigLoop, true)
	err = sessionObj.Active().ConnectChanged(func(hasValue, value bool) {
		if !hasValue {
			return
		}
		m.handleSessionActive(value)
	})
	if err != nil {
		logger.Warningf("prop active ConnectChanged failed! %v", err)
	}
	return sigLoop
}
