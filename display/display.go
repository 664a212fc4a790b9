package display

import (
	"context"

	dbus "github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/dde-kms/display/kms"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/log"
)

var logger = log.NewLogger("dde-kms/display")

const (
	dbusServiceName = "org.deepin.dde.KMS1"
	dbusInterface   = "org.deepin.dde.KMS1"
	dbusPath        = "/org/deepin/dde/KMS1"
)

// Start runs the output manager for device until ctx is done. The manager
// is exported on the bus of service.
func Start(ctx context.Context, service *dbusutil.Service, device kms.Device, settings *Settings) (*Manager, error) {
	setLogLevelFromSettings(settings)

	loop := NewLoop()
	go loop.Run(ctx)

	var m *Manager
	var err error
	loop.Call(func() {
		m, err = NewManager(device, settings, loop)
		if err != nil {
			return
		}
		m.gpu.Start()
		m.service = service
		for _, o := range m.GetOutputs() {
			err1 := m.exportMonitor(o)
			if err1 != nil {
				logger.Warning(err1)
			}
		}
		m.updatePropOutputs()
	})
	if err != nil {
		return nil, err
	}

	err = service.Export(dbusPath, m)
	if err != nil {
		return nil, err
	}
	err = service.RequestName(dbusServiceName)
	if err != nil {
		return nil, err
	}

	sysBus, err := dbus.SystemBus()
	if err != nil {
		logger.Warning(err)
	} else {
		m.watchSession(sysBus)
	}

	err = WatchSettings(ctx.Done(), func(s *Settings) {
		loop.Post(func() {
			m.applySettings(s)
		})
	})
	if err != nil {
		logger.Warning("failed to watch settings:", err)
	}
	return m, nil
}

func SetLogLevel(level log.Priority) {
	logger.SetLogLevel(level)
}

func setLogLevelFromSettings(s *Settings) {
	if s != nil && s.Debug {
		logger.SetLogLevel(log.LevelDebug)
	}
}
