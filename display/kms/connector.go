package kms

import (
	"fmt"
	"strings"
)

type ConnectorType uint32

var connectorTypeNames = []string{
	"Unknown", "VGA", "DVI-I", "DVI-D", "DVI-A", "Composite", "SVIDEO", "LVDS",
	"Component", "DIN", "DP", "HDMI-A", "HDMI-B", "TV", "eDP", "Virtual", "DSI",
	"DPI", "Writeback", "SPI", "USB",
}

const (
	ConnectorLVDS ConnectorType = 7
	ConnectorEDP  ConnectorType = 14
	ConnectorDSI  ConnectorType = 16
	ConnectorDPI  ConnectorType = 17
	ConnectorSPI  ConnectorType = 19
)

func (t ConnectorType) String() string {
	if int(t) < len(connectorTypeNames) {
		return connectorTypeNames[t]
	}
	return "Unknown"
}

func (t ConnectorType) Internal() bool {
	switch t {
	case ConnectorLVDS, ConnectorEDP, ConnectorDSI, ConnectorDPI, ConnectorSPI:
		return true
	}
	return false
}

// ConnectorName returns the kernel style name, like "HDMI-A-1".
func ConnectorName(t ConnectorType, typeID uint32) string {
	return fmt.Sprintf("%s-%d", t, typeID)
}

// Capabilities is the set of immutable features a connector supports. It is
// derived once from the connector properties and its EDID.
type Capabilities uint32

const (
	CapOverscan Capabilities = 1 << iota
	CapVrr
	CapRgbRange
	CapHdrMetadata
	CapBT2020Colorspace
	CapContentType
	CapInternal
	CapNonDesktop
	CapMst
)

func (c Capabilities) Has(flag Capabilities) bool {
	return c&flag == flag
}

func (c Capabilities) String() string {
	names := []string{"overscan", "vrr", "rgb-range", "hdr-metadata",
		"bt2020", "content-type", "internal", "non-desktop", "mst"}
	var parts []string
	for i, name := range names {
		if c&(1<<uint(i)) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

type Connector struct {
	ID        uint32
	Type      ConnectorType
	TypeID    uint32
	Name      string
	Connected bool
	MmWidth   uint32
	MmHeight  uint32
	Subpixel  uint32
	Modes     []*Mode
	EDID      []byte
	// PossibleCrtcs is a bitmask of crtc indexes this connector can drive.
	PossibleCrtcs uint32
	// CrtcID is the crtc currently driving the connector, 0 if none.
	CrtcID uint32
	Props  Props
}

func (c *Connector) String() string {
	return fmt.Sprintf("<Connector id=%d %s>", c.ID, c.Name)
}

func (c *Connector) Capabilities() Capabilities {
	var caps Capabilities
	if c.Props.Has(PropOverscan) || c.Props.Has(PropUnderscan) {
		caps |= CapOverscan
	}
	if p := c.Props.Get(PropVrrCapable); p != nil && p.Value == 1 {
		caps |= CapVrr
	}
	if c.Props.Has(PropBroadcastRGB) {
		caps |= CapRgbRange
	}
	if c.Props.Has(PropHdrMetadata) {
		caps |= CapHdrMetadata
	}
	if p := c.Props.Get(PropColorspace); p != nil && p.HasEnum(ColorspaceBT2020RGB) {
		caps |= CapBT2020Colorspace
	}
	if c.Props.Has(PropContentType) {
		caps |= CapContentType
	}
	if c.Type.Internal() {
		caps |= CapInternal
	}
	if p := c.Props.Get(PropNonDesktop); p != nil && p.Value == 1 {
		caps |= CapNonDesktop
	}
	if p := c.Props.Get(PropPath); p != nil && len(p.Blob) > 0 {
		caps |= CapMst
	}
	return caps
}

func (c *Connector) Has(flag Capabilities) bool {
	return c.Capabilities().Has(flag)
}

// MstPath returns the multi-stream topology path, empty for non-MST
// connectors.
func (c *Connector) MstPath() string {
	p := c.Props.Get(PropPath)
	if p == nil {
		return ""
	}
	return strings.TrimRight(string(p.Blob), "\x00")
}

// PanelOrientation returns the enum name of the panel orientation property.
func (c *Connector) PanelOrientation() string {
	p := c.Props.Get(PropPanelOrientation)
	if p == nil {
		return ""
	}
	return p.EnumName()
}

func (c *Connector) CompatibleWith(crtc *Crtc) bool {
	return c.PossibleCrtcs&(1<<uint(crtc.Index)) != 0
}

func (c *Connector) ModeByID(id uint32) *Mode {
	for _, mode := range c.Modes {
		if mode.ID == id {
			return mode
		}
	}
	return nil
}

// FindMode returns the mode with the given size whose refresh rate (mHz) is
// closest to refresh. A refresh of 0 picks the highest rate.
func (c *Connector) FindMode(width, height uint16, refresh uint32) *Mode {
	var best *Mode
	var bestDiff int64
	for _, mode := range c.Modes {
		if mode.Width != width || mode.Height != height {
			continue
		}
		diff := int64(mode.RefreshRate()) - int64(refresh)
		if refresh == 0 {
			diff = -int64(mode.RefreshRate())
		} else if diff < 0 {
			diff = -diff
		}
		if best == nil || diff < bestDiff {
			best = mode
			bestDiff = diff
		}
	}
	return best
}

// FindSameTiming returns the connector's own mode matching mode's timings.
func (c *Connector) FindSameTiming(mode *Mode) *Mode {
	if mode == nil {
		return nil
	}
	for _, m := range c.Modes {
		if m == mode {
			return m
		}
	}
	for _, m := range c.Modes {
		if m.SameTiming(mode) {
			return m
		}
	}
	return nil
}

// PreferredMode returns the preferred mode, or the first one.
func (c *Connector) PreferredMode() *Mode {
	for _, mode := range c.Modes {
		if mode.Preferred() {
			return mode
		}
	}
	if len(c.Modes) > 0 {
		return c.Modes[0]
	}
	return nil
}
