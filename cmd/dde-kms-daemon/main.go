package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/davecgh/go-spew/spew"
	"github.com/linuxdeepin/dde-kms/display"
	"github.com/linuxdeepin/dde-kms/display/drm"
	"github.com/linuxdeepin/dde-kms/display/kms"
	"github.com/linuxdeepin/dde-kms/display/randr"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/log"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("dde-kms")

var (
	optDebug   = flag.Bool("d", false, "debug")
	optBackend = flag.String("backend", "", "drm or randr, overrides the settings")
	optDevice  = flag.String("device", "", "drm card path, \"auto\" picks the boot gpu")
)

func openDevice(settings *display.Settings) (kms.Device, error) {
	switch settings.Backend {
	case display.BackendRandr:
		return randr.Open()
	case display.BackendDrm:
		path := settings.Device
		if path == "" || path == "auto" {
			var err error
			path, err = drm.FindPrimaryCard()
			if err != nil {
				return nil, err
			}
		}
		return drm.Open(path)
	}
	return nil, xerrors.Errorf("unknown backend %q", settings.Backend)
}

func main() {
	flag.Parse()

	settings, err := display.LoadSettings()
	if err != nil {
		logger.Warning(err)
	}
	if *optBackend != "" {
		settings.Backend = *optBackend
	}
	if *optDevice != "" {
		settings.Device = *optDevice
	}
	if *optDebug {
		settings.Debug = true
	}
	if settings.Debug {
		logger.SetLogLevel(log.LevelDebug)
		display.SetLogLevel(log.LevelDebug)
		drm.SetLogLevel(log.LevelDebug)
		randr.SetLogLevel(log.LevelDebug)
		logger.Debug("settings:", spew.Sdump(settings))
	}

	device, err := openDevice(settings)
	if err != nil {
		logger.Fatal("failed to open device:", err)
	}
	logger.Info("using", device.Path())

	service, err := dbusutil.NewSessionService()
	if err != nil {
		logger.Fatal("failed to new session service:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, err = display.Start(ctx, service, device, settings)
	if err != nil {
		cancel()
		device.Close()
		logger.Fatal("failed to start display:", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, unix.SIGINT, unix.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal", sig)
		service.Quit()
	}()

	service.Wait()
	cancel()
	err = device.Close()
	if err != nil {
		logger.Warning(err)
	}
}
