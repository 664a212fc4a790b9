package randr

import (
	"strconv"
	"strings"

	"github.com/linuxdeepin/dde-kms/display/kms"
	x "github.com/linuxdeepin/go-x11-client"
	"github.com/linuxdeepin/go-x11-client/ext/randr"
)

// Resources maps the RandR crtcs and outputs to crtcs and connectors. Each
// crtc gets one primary plane standing for the X screen contents.
func (d *Device) Resources() (*kms.Resources, error) {
	resources, err := randr.GetScreenResources(d.conn, d.root).Reply(d.conn)
	if err != nil {
		return nil, err
	}

	var crtcs []*crtcConfig
	res := &kms.Resources{}
	for i, crtcID := range resources.Crtcs {
		crtcInfo, err := randr.GetCrtcInfo(d.conn, crtcID, resources.ConfigTimestamp).Reply(d.conn)
		if err != nil {
			return nil, err
		}
		var gammaSize uint16
		gamma, err := randr.GetCrtcGammaSize(d.conn, crtcID).Reply(d.conn)
		if err != nil {
			logger.Warningf("failed to get gamma size of crtc %d: %v", crtcID, err)
		} else {
			gammaSize = gamma.Size
		}
		cfg := &crtcConfig{
			crtc:      crtcID,
			index:     i,
			mode:      crtcInfo.Mode,
			rotation:  crtcInfo.Rotation,
			rotations: crtcInfo.Rotations,
			outputs:   crtcInfo.Outputs,
			possible:  crtcInfo.PossibleOutputs,
			x:         crtcInfo.X,
			y:         crtcInfo.Y,
			gammaSize: gammaSize,
		}
		crtcs = append(crtcs, cfg)
		res.Crtcs = append(res.Crtcs, newCrtc(cfg))
		res.Planes = append(res.Planes, newPrimaryPlane(cfg))
	}

	outputs := make(map[randr.Output]*outputState)
	for _, output := range resources.Outputs {
		outputInfo, err := randr.GetOutputInfo(d.conn, output, resources.ConfigTimestamp).Reply(d.conn)
		if err != nil {
			// outputs of unplugged docks disappear while scanning
			logger.Warningf("failed to get output %d info: %v", output, err)
			continue
		}
		conn := newConnector(output, outputInfo, resources.Modes, crtcs)
		if conn.Connected {
			conn.EDID, err = d.getEdid(output)
			if err != nil {
				logger.Debugf("no edid for output %s: %v", conn.Name, err)
			}
		}
		state := &outputState{modes: outputInfo.Modes}
		for _, cfg := range crtcs {
			if outputSliceContains(cfg.possible, output) {
				state.crtcs = append(state.crtcs, cfg.crtc)
			}
		}
		outputs[output] = state
		res.Connectors = append(res.Connectors, conn)
	}

	d.cfgTs.Store(uint32(resources.ConfigTimestamp))
	d.mu.Lock()
	d.modes = resources.Modes
	d.crtcs = crtcs
	d.outputs = outputs
	d.mu.Unlock()
	return res, nil
}

// getEdid reads the base block and the first extension block, where the
// HDR metadata lives.
func (d *Device) getEdid(output randr.Output) ([]byte, error) {
	reply, err := randr.GetOutputProperty(d.conn, output,
		d.edidAtom,    // Property
		x.AtomInteger, // Type
		0,             // LongOffset
		64,            // LongLength
		false,         // Delete
		false,         // Pending
	).Reply(d.conn)
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

// CurrentMode asks the server for the mode of the crtc.
func (d *Device) CurrentMode(crtcID uint32) (*kms.Mode, error) {
	d.mu.Lock()
	modes := d.modes
	d.mu.Unlock()

	crtcInfo, err := randr.GetCrtcInfo(d.conn, randr.Crtc(crtcID), x.Timestamp(d.cfgTs.Load())).Reply(d.conn)
	if err != nil {
		return nil, err
	}
	if crtcInfo.Mode == 0 {
		return nil, nil
	}
	info := findModeInfo(modes, crtcInfo.Mode)
	if info == nil {
		return nil, nil
	}
	return toMode(*info), nil
}

func newCrtc(cfg *crtcConfig) *kms.Crtc {
	props := kms.Props{
		kms.PropActive: &kms.Property{Name: kms.PropActive, Flags: kms.PropFlagRange,
			Max: 1, Value: boolValue(cfg.mode != 0)},
		kms.PropModeID: &kms.Property{Name: kms.PropModeID, Flags: kms.PropFlagBlob},
	}
	if cfg.gammaSize > 0 {
		props[kms.PropGammaLut] = &kms.Property{Name: kms.PropGammaLut, Flags: kms.PropFlagBlob}
		props[kms.PropGammaLutSize] = &kms.Property{Name: kms.PropGammaLutSize,
			Flags: kms.PropFlagRange | kms.PropFlagImmutable, Value: uint64(cfg.gammaSize)}
	}
	return &kms.Crtc{
		ID:        uint32(cfg.crtc),
		Index:     cfg.index,
		GammaSize: uint32(cfg.gammaSize),
		Props:     props,
	}
}

var rotationNames = []string{"rotate-0", "rotate-90", "rotate-180", "rotate-270",
	"reflect-x", "reflect-y"}

func newPrimaryPlane(cfg *crtcConfig) *kms.Plane {
	plane := &kms.Plane{
		ID:            planeIDFlag | uint32(cfg.crtc),
		Type:          kms.PlanePrimary,
		PossibleCrtcs: 1 << uint(cfg.index),
		Formats:       []uint32{kms.FormatXRGB8888, kms.FormatARGB8888},
		Props:         kms.Props{},
	}
	for _, name := range []string{kms.PropFbID, kms.PropCrtcID, kms.PropSrcX,
		kms.PropSrcY, kms.PropSrcW, kms.PropSrcH, kms.PropCrtcX, kms.PropCrtcY,
		kms.PropCrtcW, kms.PropCrtcH} {
		plane.Props[name] = &kms.Property{Name: name, Flags: kms.PropFlagRange}
	}
	// randr rotation bits are the same as the kernel ones
	rotations := kms.Rotation(cfg.rotations) & (kms.Rotate0 | kms.Rotate90 |
		kms.Rotate180 | kms.Rotate270 | kms.ReflectX | kms.ReflectY)
	if rotations != 0 && rotations != kms.Rotate0 {
		prop := &kms.Property{
			Name:  kms.PropRotation,
			Flags: kms.PropFlagBitmask,
			Value: uint64(cfg.rotation),
			Enums: make(map[string]uint64),
		}
		for bit, name := range rotationNames {
			if rotations&(1<<uint(bit)) != 0 {
				prop.Enums[name] = uint64(bit)
			}
		}
		plane.Props[kms.PropRotation] = prop
		plane.Rotations = rotations
	}
	return plane
}

func newConnector(output randr.Output, info *randr.GetOutputInfoReply,
	modes []randr.ModeInfo, crtcs []*crtcConfig) *kms.Connector {
	connType, typeID := parseOutputName(info.Name)
	conn := &kms.Connector{
		ID:        uint32(output),
		Type:      connType,
		TypeID:    typeID,
		Name:      info.Name,
		Connected: info.Connection == randr.ConnectionConnected,
		MmWidth:   info.MmWidth,
		MmHeight:  info.MmHeight,
		CrtcID:    uint32(info.Crtc),
		Props: kms.Props{
			kms.PropCrtcID: &kms.Property{Name: kms.PropCrtcID, Flags: kms.PropFlagRange,
				Value: uint64(info.Crtc)},
		},
	}
	preferred := info.GetPreferredMode()
	for _, id := range info.Modes {
		modeInfo := findModeInfo(modes, id)
		if modeInfo == nil {
			continue
		}
		mode := toMode(*modeInfo)
		if id == preferred {
			mode.Type |= kms.ModeTypePreferred
		}
		conn.Modes = append(conn.Modes, mode)
	}
	for _, cfg := range crtcs {
		if outputSliceContains(cfg.possible, output) {
			conn.PossibleCrtcs |= 1 << uint(cfg.index)
		}
	}
	return conn
}

// output name prefixes of the common X drivers, longest first
var outputTypes = []struct {
	prefix string
	typ    kms.ConnectorType
}{
	{"DisplayPort", 10},
	{"Virtual", 15},
	{"VIRTUAL", 15},
	{"HDMI", 11},
	{"DVI-I", 2},
	{"DVI-D", 3},
	{"DVI-A", 4},
	{"LVDS", kms.ConnectorLVDS},
	{"eDP", kms.ConnectorEDP},
	{"DSI", kms.ConnectorDSI},
	{"VGA", 1},
	{"DVI", 3},
	{"DP", 10},
}

// parseOutputName guesses the connector type of an output like "HDMI-1" or
// "DisplayPort-0".
func parseOutputName(name string) (kms.ConnectorType, uint32) {
	var connType kms.ConnectorType
	for _, t := range outputTypes {
		if strings.HasPrefix(name, t.prefix) {
			connType = t.typ
			break
		}
	}
	var typeID uint32
	if idx := strings.LastIndexAny(name, "-_"); idx >= 0 {
		v, err := strconv.ParseUint(name[idx+1:], 10, 32)
		if err == nil {
			typeID = uint32(v)
		}
	}
	return connType, typeID
}

// toMode converts a RandR mode, whose clock is in Hz.
func toMode(info randr.ModeInfo) *kms.Mode {
	return &kms.Mode{
		ID:         info.Id,
		Name:       info.Name,
		Clock:      info.DotClock / 1000,
		Width:      info.Width,
		HSyncStart: info.HSyncStart,
		HSyncEnd:   info.HSyncEnd,
		HTotal:     info.HTotal,
		HSkew:      info.HSkew,
		Height:     info.Height,
		VSyncStart: info.VSyncStart,
		VSyncEnd:   info.VSyncEnd,
		VTotal:     info.VTotal,
		Flags:      info.ModeFlags & 0x3f,
		Type:       kms.ModeTypeDriver,
	}
}

func findModeInfo(modes []randr.ModeInfo, id randr.Mode) *randr.ModeInfo {
	for i := range modes {
		if randr.Mode(modes[i].Id) == id {
			return &modes[i]
		}
	}
	return nil
}

// findModeByTiming returns the server mode among ids matching mode.
func findModeByTiming(modes []randr.ModeInfo, ids []randr.Mode, mode *kms.Mode) randr.Mode {
	for _, id := range ids {
		info := findModeInfo(modes, id)
		if info != nil && toMode(*info).SameTiming(mode) {
			return id
		}
	}
	return 0
}

func outputSliceContains(outputs []randr.Output, output randr.Output) bool {
	for _, o := range outputs {
		if o == output {
			return true
		}
	}
	return false
}

func boolValue(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
