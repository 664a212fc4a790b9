package randr

import (
	"fmt"

	"github.com/linuxdeepin/dde-kms/display/kms"
	x "github.com/linuxdeepin/go-x11-client"
	"github.com/linuxdeepin/go-x11-client/ext/randr"
	"golang.org/x/xerrors"
)

// crtcConfig is what one SetCrtcConfig request programs.
type crtcConfig struct {
	crtc      randr.Crtc
	index     int
	mode      randr.Mode
	rotation  uint16
	rotations uint16
	outputs   []randr.Output
	possible  []randr.Output
	x, y      int16
	gammaSize uint16

	active bool
	gamma  *kms.GammaLut
	// changed is set for crtcs whose SetCrtcConfig arguments differ from
	// the server state.
	changed bool
	touched bool
}

func (c *crtcConfig) clone() *crtcConfig {
	cfg := *c
	cfg.outputs = append([]randr.Output(nil), c.outputs...)
	cfg.gamma = nil
	cfg.changed = false
	cfg.touched = false
	cfg.active = c.mode != 0
	return &cfg
}

func (c *crtcConfig) enabled() bool {
	return c.active && c.mode != 0 && len(c.outputs) > 0
}

func (c *crtcConfig) size(modes []randr.ModeInfo) (uint16, uint16) {
	info := findModeInfo(modes, c.mode)
	if info == nil {
		return 0, 0
	}
	if c.rotation&(randr.RotationRotate90|randr.RotationRotate270) != 0 {
		return info.Height, info.Width
	}
	return info.Width, info.Height
}

func (c *crtcConfig) sameAs(other *crtcConfig) bool {
	return c.sameSetup(other) && c.x == other.x && c.y == other.y
}

// sameSetup compares everything but the position.
func (c *crtcConfig) sameSetup(other *crtcConfig) bool {
	if c.mode != other.mode || c.rotation != other.rotation ||
		len(c.outputs) != len(other.outputs) {
		return false
	}
	for i, o := range c.outputs {
		if other.outputs[i] != o {
			return false
		}
	}
	return true
}

type screenSize struct {
	width    uint16
	height   uint16
	mmWidth  uint32
	mmHeight uint32
}

// plan folds an atomic request into the crtc configurations it results in.
// The screen size is nil unless the request needs a modeset, which lays the
// enabled crtcs out again.
func plan(current []*crtcConfig, outputs map[randr.Output]*outputState, modes []randr.ModeInfo,
	buffers map[uint32]*kms.Buffer, req *kms.AtomicRequest, flags kms.CommitFlags) ([]*crtcConfig, *screenSize, error) {

	configs := make([]*crtcConfig, len(current))
	byID := make(map[uint32]*crtcConfig)
	for i, c := range current {
		configs[i] = c.clone()
		byID[uint32(c.crtc)] = configs[i]
	}

	for _, prop := range req.Properties() {
		var err error
		if cfg, ok := byID[prop.Object]; ok {
			err = planCrtcProp(cfg, modes, prop)
		} else if cfg, ok := byID[prop.Object&^planeIDFlag]; ok && prop.Object&planeIDFlag != 0 {
			err = planPlaneProp(cfg, buffers, prop)
		} else if _, ok := outputs[randr.Output(prop.Object)]; ok {
			err = planOutputProp(byID, randr.Output(prop.Object), prop)
		} else {
			err = xerrors.Errorf("unknown object %d: %w", prop.Object, kms.ErrInvalidArguments)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	modeset := false
	for i, cfg := range configs {
		if !cfg.enabled() {
			cfg.mode = 0
			cfg.outputs = nil
			cfg.x, cfg.y = 0, 0
		} else {
			for _, output := range cfg.outputs {
				state := outputs[output]
				if state == nil || !outputSliceContains(cfg.possible, output) ||
					!modeSliceContains(state.modes, cfg.mode) {
					return nil, nil, xerrors.Errorf("output %d can't use crtc %d with mode %d: %w",
						output, cfg.crtc, cfg.mode, kms.ErrInvalidArguments)
				}
			}
		}
		if !cfg.sameSetup(current[i]) {
			if !flags.Has(kms.FlagAllowModeset) {
				return nil, nil, xerrors.Errorf("crtc %d needs a modeset: %w", cfg.crtc, kms.ErrInvalidArguments)
			}
			modeset = true
		}
	}

	var ss *screenSize
	if modeset {
		size := layout(configs, modes)
		ss = &size
	}
	for i, cfg := range configs {
		cfg.changed = !cfg.sameAs(current[i])
	}
	return configs, ss, nil
}

func planCrtcProp(cfg *crtcConfig, modes []randr.ModeInfo, prop kms.AtomicProperty) error {
	cfg.touched = true
	switch prop.Name {
	case kms.PropActive:
		cfg.active = prop.Value != 0
	case kms.PropModeID:
		if prop.Blob == nil {
			cfg.mode = 0
			return nil
		}
		mode, err := kms.DecodeMode(prop.Blob)
		if err != nil {
			return xerrors.Errorf("%v: %w", err, kms.ErrInvalidArguments)
		}
		ids := make([]randr.Mode, len(modes))
		for i, info := range modes {
			ids[i] = randr.Mode(info.Id)
		}
		cfg.mode = findModeByTiming(modes, ids, mode)
		if cfg.mode == 0 {
			return xerrors.Errorf("unknown mode %v: %w", mode, kms.ErrInvalidArguments)
		}
	case kms.PropGammaLut:
		if cfg.gammaSize == 0 {
			return xerrors.Errorf("crtc %d has no gamma: %w", cfg.crtc, kms.ErrInvalidArguments)
		}
		if prop.Blob == nil {
			cfg.gamma = linearGamma(int(cfg.gammaSize))
			return nil
		}
		lut, err := kms.DecodeGammaLut(prop.Blob)
		if err != nil {
			return xerrors.Errorf("%v: %w", err, kms.ErrInvalidArguments)
		}
		if lut.Size() != int(cfg.gammaSize) {
			return xerrors.Errorf("gamma size %d, crtc %d takes %d: %w",
				lut.Size(), cfg.crtc, cfg.gammaSize, kms.ErrInvalidArguments)
		}
		cfg.gamma = lut
	default:
		return xerrors.Errorf("crtc %d has no property %q: %w", cfg.crtc, prop.Name, kms.ErrInvalidArguments)
	}
	return nil
}

func planPlaneProp(cfg *crtcConfig, buffers map[uint32]*kms.Buffer, prop kms.AtomicProperty) error {
	cfg.touched = true
	switch prop.Name {
	case kms.PropFbID:
		if _, ok := buffers[uint32(prop.Value)]; prop.Value != 0 && !ok {
			return xerrors.Errorf("unknown framebuffer %d: %w", prop.Value, kms.ErrInvalidArguments)
		}
	case kms.PropRotation:
		rotation := uint16(prop.Value)
		if rotation&cfg.rotations != rotation {
			return xerrors.Errorf("crtc %d can't rotate by %#x: %w", cfg.crtc, rotation, kms.ErrInvalidArguments)
		}
		cfg.rotation = rotation
	case kms.PropCrtcID, kms.PropSrcX, kms.PropSrcY, kms.PropSrcW, kms.PropSrcH,
		kms.PropCrtcX, kms.PropCrtcY, kms.PropCrtcW, kms.PropCrtcH:
		// the server scans out its screen contents at the crtc position
	default:
		return xerrors.Errorf("plane %d has no property %q: %w", prop.Object, prop.Name, kms.ErrInvalidArguments)
	}
	return nil
}

func planOutputProp(byID map[uint32]*crtcConfig, output randr.Output, prop kms.AtomicProperty) error {
	if prop.Name != kms.PropCrtcID {
		return xerrors.Errorf("output %d has no property %q: %w", output, prop.Name, kms.ErrInvalidArguments)
	}
	for _, cfg := range byID {
		for i, o := range cfg.outputs {
			if o == output {
				cfg.outputs = append(cfg.outputs[:i], cfg.outputs[i+1:]...)
				cfg.touched = true
				break
			}
		}
	}
	if prop.Value == 0 {
		return nil
	}
	cfg, ok := byID[uint32(prop.Value)]
	if !ok {
		return xerrors.Errorf("unknown crtc %d: %w", prop.Value, kms.ErrInvalidArguments)
	}
	cfg.outputs = append(cfg.outputs, output)
	cfg.touched = true
	return nil
}

// layout places the enabled crtcs side by side in index order and returns
// the screen size that holds them.
func layout(configs []*crtcConfig, modes []randr.ModeInfo) screenSize {
	var ss screenSize
	for _, cfg := range configs {
		if !cfg.enabled() {
			continue
		}
		width, height := cfg.size(modes)
		cfg.x = int16(ss.width)
		cfg.y = 0
		ss.width += width
		if height > ss.height {
			ss.height = height
		}
	}
	// at 96 dpi
	ss.mmWidth = uint32(float64(ss.width) * 25.4 / 96)
	ss.mmHeight = uint32(float64(ss.height) * 25.4 / 96)
	return ss
}

func linearGamma(size int) *kms.GammaLut {
	lut := &kms.GammaLut{
		Red:   make([]uint16, size),
		Green: make([]uint16, size),
		Blue:  make([]uint16, size),
	}
	for i := 0; i < size; i++ {
		v := uint16(0xffff * i / maxInt(size-1, 1))
		lut.Red[i], lut.Green[i], lut.Blue[i] = v, v, v
	}
	return lut
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func modeSliceContains(modes []randr.Mode, mode randr.Mode) bool {
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Commit validates the request against the last resource scan. Without
// FlagTestOnly the changed crtcs are reprogrammed while the server is
// grabbed.
func (d *Device) Commit(req *kms.AtomicRequest, flags kms.CommitFlags) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return xerrors.Errorf("%s is closed: %w", d.path, kms.ErrInvalidArguments)
	}

	configs, ss, err := plan(d.crtcs, d.outputs, d.modes, d.buffers, req, flags)
	if err != nil {
		return err
	}
	if flags.Has(kms.FlagTestOnly) {
		return nil
	}

	err = d.apply(configs, ss)
	if err != nil {
		return err
	}
	d.crtcs = configs

	if flags.Has(kms.FlagPageFlipEvent) {
		var flipped []randr.Crtc
		for _, cfg := range configs {
			if cfg.touched && cfg.enabled() {
				flipped = append(flipped, cfg.crtc)
			}
		}
		d.emitFlips(flipped)
	}
	return nil
}

func (d *Device) apply(configs []*crtcConfig, ss *screenSize) error {
	x.GrabServer(d.conn)
	defer func() {
		err := x.UngrabServerChecked(d.conn).Check(d.conn)
		if err != nil {
			logger.Warning(err)
		}
	}()

	// crtcs are turned off before the screen shrinks below them
	for _, cfg := range configs {
		if !cfg.changed {
			continue
		}
		err := d.setCrtcConfig(&crtcConfig{crtc: cfg.crtc, rotation: randr.RotationRotate0})
		if err != nil {
			return err
		}
	}

	if ss != nil && ss.width > 0 && ss.height > 0 {
		err := randr.SetScreenSizeChecked(d.conn, d.root, ss.width, ss.height,
			ss.mmWidth, ss.mmHeight).Check(d.conn)
		logger.Debugf("set screen size %dx%d, mm: %dx%d",
			ss.width, ss.height, ss.mmWidth, ss.mmHeight)
		if err != nil {
			return err
		}
	}

	for _, cfg := range configs {
		if cfg.changed && cfg.enabled() {
			err := d.setCrtcConfig(cfg)
			if err != nil {
				return err
			}
		}
		if cfg.gamma != nil && cfg.enabled() {
			err := randr.SetCrtcGammaChecked(d.conn, cfg.crtc,
				cfg.gamma.Red, cfg.gamma.Green, cfg.gamma.Blue).Check(d.conn)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Device) setCrtcConfig(cfg *crtcConfig) error {
	logger.Debugf("set crtc %d: mode %d at %d,%d rotation %d outputs %v",
		cfg.crtc, cfg.mode, cfg.x, cfg.y, cfg.rotation, cfg.outputs)
	setCfg, err := randr.SetCrtcConfig(d.conn, cfg.crtc, 0, x.Timestamp(d.cfgTs.Load()),
		cfg.x, cfg.y, cfg.mode, cfg.rotation, cfg.outputs).Reply(d.conn)
	if err != nil {
		return err
	}
	if setCfg.Status != randr.SetConfigSuccess {
		return xerrors.Errorf("failed to configure crtc %d: %s: %w",
			cfg.crtc, statusString(setCfg.Status), kms.ErrBusy)
	}
	return nil
}

func statusString(status uint8) string {
	switch status {
	case randr.SetConfigSuccess:
		return "success"
	case randr.SetConfigFailed:
		return "failed"
	case randr.SetConfigInvalidConfigTime:
		return "invalid config time"
	case randr.SetConfigInvalidTime:
		return "invalid time"
	default:
		return fmt.Sprintf("unknown status %d", status)
	}
}
