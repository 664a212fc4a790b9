package display

import (
	"encoding/json"
	"image"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/linuxdeepin/go-lib/xdg/basedir"
)

const configVersion = "1.0"

var (
	// ~/.config/deepin/dde-kms
	configDir string
	// ~/.config/deepin/dde-kms/outputs.json
	configFile string
)

func init() {
	configDir = filepath.Join(basedir.GetUserConfigDir(), "deepin/dde-kms")
	configFile = filepath.Join(configDir, "outputs.json")
}

// Config is the persisted output configuration, keyed by output UUID.
type Config struct {
	Version string
	Outputs map[string]*OutputConfig
}

type OutputConfig struct {
	Name             string
	Enabled          bool
	X                int32
	Y                int32
	Width            uint16
	Height           uint16
	RefreshRate      uint32 // mHz
	Scale            float64
	Transform        Transform
	Overscan         uint32
	RgbRange         RgbRange
	VrrPolicy        VrrPolicy
	HighDynamicRange bool
	WideColorGamut   bool
	SdrBrightness    uint32
	SdrGamutWideness float64
	// zero values keep the monitor's luminance
	BrightnessOverrides BrightnessOverrides
	IccProfilePath      string `json:",omitempty"`
	ChannelFactors      Vec3
}

func newConfig() *Config {
	return &Config{
		Version: configVersion,
		Outputs: make(map[string]*OutputConfig),
	}
}

func loadConfig(filename string) (*Config, error) {
	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	c := newConfig()
	err = json.Unmarshal(data, c)
	if err != nil {
		return nil, err
	}
	if c.Outputs == nil {
		c.Outputs = make(map[string]*OutputConfig)
	}
	return c, nil
}

func (c *Config) save(filename string) error {
	var data []byte
	var err error
	if logger.GetLogLevel() == log.LevelDebug {
		data, err = json.MarshalIndent(c, "", "    ")
	} else {
		data, err = json.Marshal(c)
	}
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(filename), 0755)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(filename, data, 0644)
}

func (c *Config) update(o *Output) {
	state := o.State()
	oc := &OutputConfig{
		Name:             o.Name(),
		Enabled:          state.Enabled,
		X:                int32(state.Position.X),
		Y:                int32(state.Position.Y),
		Scale:            state.Scale,
		Transform:        state.Transform,
		Overscan:         state.Overscan,
		RgbRange:         state.RgbRange,
		VrrPolicy:        state.VrrPolicy,
		HighDynamicRange: state.HighDynamicRange,
		WideColorGamut:   state.WideColorGamut,
		SdrBrightness:    state.SdrBrightness,
		SdrGamutWideness: state.SdrGamutWideness,
		IccProfilePath:   state.IccProfilePath,
		ChannelFactors:   o.ChannelFactors(),

		BrightnessOverrides: state.BrightnessOverrides,
	}
	if mode := state.CurrentMode; mode != nil {
		oc.Width = mode.Width
		oc.Height = mode.Height
		oc.RefreshRate = mode.RefreshRate()
	}
	c.Outputs[o.Information().UUID] = oc
}

// changeSet converts a saved configuration into a change for o. Modes the
// output no longer offers are skipped.
func (oc *OutputConfig) changeSet(o *Output) *OutputChangeSet {
	pos := image.Pt(int(oc.X), int(oc.Y))
	cs := &OutputChangeSet{
		Enabled:          &oc.Enabled,
		Position:         &pos,
		Transform:        &oc.Transform,
		Overscan:         &oc.Overscan,
		RgbRange:         &oc.RgbRange,
		VrrPolicy:        &oc.VrrPolicy,
		HighDynamicRange: &oc.HighDynamicRange,
		WideColorGamut:   &oc.WideColorGamut,
		SdrGamutWideness: &oc.SdrGamutWideness,

		BrightnessOverrides: &oc.BrightnessOverrides,
	}
	if oc.Scale > 0 {
		cs.Scale = &oc.Scale
	}
	if oc.SdrBrightness > 0 {
		cs.SdrBrightness = &oc.SdrBrightness
	}
	if oc.Width != 0 && oc.Height != 0 {
		cs.Mode = o.pipeline.connector.FindMode(oc.Width, oc.Height, oc.RefreshRate)
	}
	if oc.IccProfilePath != "" {
		profile, err := LoadIccProfile(oc.IccProfilePath)
		if err != nil {
			logger.Warning(err)
		} else {
			cs.IccProfilePath = &oc.IccProfilePath
			cs.IccProfile = profile
		}
	}
	return cs
}
