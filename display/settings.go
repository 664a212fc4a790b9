package display

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/linuxdeepin/go-lib/keyfile"
	"github.com/linuxdeepin/go-lib/strv"
	"github.com/linuxdeepin/go-lib/utils"
	"github.com/linuxdeepin/go-lib/xdg/basedir"
	"golang.org/x/xerrors"
)

const (
	settingsGroup = "Daemon"

	settingsKeyBackend         = "Backend"
	settingsKeyDevice          = "Device"
	settingsKeyDimDuration     = "DimDuration"
	settingsKeyWaitIdleTimeout = "WaitIdleTimeout"
	settingsKeyDebug           = "Debug"
	settingsKeyDisabledOutputs = "DisabledOutputs"

	BackendDrm   = "drm"
	BackendRandr = "randr"

	settingsFileName = "dde-kms.conf"
)

var systemSettingsFile = "/etc/deepin/" + settingsFileName

func userSettingsFile() string {
	return filepath.Join(basedir.GetUserConfigDir(), "deepin/dde-kms", settingsFileName)
}

// Settings are the daemon options.
type Settings struct {
	Backend         string
	Device          string
	DimDuration     time.Duration
	WaitIdleTimeout time.Duration
	Debug           bool
	// DisabledOutputs lists connector names never enabled by default.
	DisabledOutputs strv.Strv
}

func DefaultSettings() *Settings {
	return &Settings{
		Backend:         BackendDrm,
		Device:          "/dev/dri/card0",
		DimDuration:     defaultDimDuration,
		WaitIdleTimeout: defaultWaitIdleTimeout,
	}
}

// LoadSettings reads the system settings overridden by the user settings.
func LoadSettings() (*Settings, error) {
	s := DefaultSettings()
	for _, file := range []string{systemSettingsFile, userSettingsFile()} {
		if !utils.IsFileExist(file) {
			continue
		}
		err := s.loadFile(file)
		if err != nil {
			return s, xerrors.Errorf("load %s: %w", file, err)
		}
	}
	return s, nil
}

func (s *Settings) loadFile(file string) error {
	kf := keyfile.NewKeyFile()
	err := kf.LoadFromFile(file)
	if err != nil {
		return err
	}

	if v, err := kf.GetString(settingsGroup, settingsKeyBackend); err == nil && v != "" {
		if v != BackendDrm && v != BackendRandr {
			return xerrors.Errorf("unknown backend %q", v)
		}
		s.Backend = v
	}
	if v, err := kf.GetString(settingsGroup, settingsKeyDevice); err == nil && v != "" {
		s.Device = v
	}
	if v, err := kf.GetInt(settingsGroup, settingsKeyDimDuration); err == nil && v >= 0 {
		s.DimDuration = time.Duration(v) * time.Millisecond
	}
	if v, err := kf.GetInt(settingsGroup, settingsKeyWaitIdleTimeout); err == nil && v > 0 {
		s.WaitIdleTimeout = time.Duration(v) * time.Millisecond
	}
	if v, err := kf.GetBool(settingsGroup, settingsKeyDebug); err == nil {
		s.Debug = v
	}
	if v, err := kf.GetStringList(settingsGroup, settingsKeyDisabledOutputs); err == nil {
		s.DisabledOutputs = strv.Strv(v)
	}
	return nil
}

// WatchSettings calls cb with the reloaded settings whenever one of the
// settings files changes, until stop is closed.
func WatchSettings(stop <-chan struct{}, cb func(*Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	files := strv.Strv{systemSettingsFile, userSettingsFile()}
	for _, file := range files {
		dir := filepath.Dir(file)
		if !utils.IsFileExist(dir) {
			continue
		}
		err = watcher.Add(dir)
		if err != nil {
			logger.Warningf("failed to watch %s: %v", dir, err)
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !files.Contains(ev.Name) ||
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
					continue
				}
				s, err := LoadSettings()
				if err != nil {
					logger.Warning(err)
					continue
				}
				cb(s)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warning(err)
			}
		}
	}()
	return nil
}
