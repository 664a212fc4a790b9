package kms

import (
	"fmt"
	"sort"
)

// property flags, see drm_mode.h
const (
	PropFlagRange     = 1 << 1
	PropFlagImmutable = 1 << 2
	PropFlagEnum      = 1 << 3
	PropFlagBlob      = 1 << 4
	PropFlagBitmask   = 1 << 5
)

// Property names used by the pipelines.
const (
	PropCrtcID           = "CRTC_ID"
	PropActive           = "ACTIVE"
	PropModeID           = "MODE_ID"
	PropVrrEnabled       = "VRR_ENABLED"
	PropCtm              = "CTM"
	PropGammaLut         = "GAMMA_LUT"
	PropGammaLutSize     = "GAMMA_LUT_SIZE"
	PropFbID             = "FB_ID"
	PropSrcX             = "SRC_X"
	PropSrcY             = "SRC_Y"
	PropSrcW             = "SRC_W"
	PropSrcH             = "SRC_H"
	PropCrtcX            = "CRTC_X"
	PropCrtcY            = "CRTC_Y"
	PropCrtcW            = "CRTC_W"
	PropCrtcH            = "CRTC_H"
	PropRotation         = "rotation"
	PropType             = "type"
	PropBroadcastRGB     = "Broadcast RGB"
	PropOverscan         = "overscan"
	PropUnderscan        = "underscan"
	PropUnderscanVBorder = "underscan vborder"
	PropUnderscanHBorder = "underscan hborder"
	PropVrrCapable       = "vrr_capable"
	PropHdrMetadata      = "HDR_OUTPUT_METADATA"
	PropColorspace       = "Colorspace"
	PropContentType      = "content type"
	PropMaxBpc           = "max bpc"
	PropPanelOrientation = "panel orientation"
	PropNonDesktop       = "non-desktop"
	PropPath             = "PATH"
	PropLinkStatus       = "link-status"
)

// Property is a KMS object property as reported by the device.
type Property struct {
	ID    uint32
	Name  string
	Flags uint32
	Value uint64
	// Enums maps enum names to values for enum and bitmask properties.
	Enums map[string]uint64
	Min   uint64
	Max   uint64
	// Blob holds the contents of an immutable blob property (EDID, PATH).
	Blob []byte
}

func (p *Property) Immutable() bool {
	return p.Flags&PropFlagImmutable != 0
}

func (p *Property) EnumValue(name string) (uint64, bool) {
	v, ok := p.Enums[name]
	return v, ok
}

func (p *Property) HasEnum(name string) bool {
	_, ok := p.Enums[name]
	return ok
}

// EnumName returns the name of the current value of an enum property.
func (p *Property) EnumName() string {
	for name, v := range p.Enums {
		if v == p.Value {
			return name
		}
	}
	return ""
}

// Props is the property set of one KMS object, keyed by name.
type Props map[string]*Property

func (p Props) Has(name string) bool {
	_, ok := p[name]
	return ok
}

func (p Props) Get(name string) *Property {
	return p[name]
}

func (p Props) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type PlaneType int

const (
	PlaneOverlay PlaneType = iota
	PlanePrimary
	PlaneCursor
)

func (t PlaneType) String() string {
	switch t {
	case PlaneOverlay:
		return "overlay"
	case PlanePrimary:
		return "primary"
	case PlaneCursor:
		return "cursor"
	}
	return fmt.Sprintf("PlaneType(%d)", int(t))
}

// Rotation is a bitset matching the kernel's DRM_MODE_ROTATE_* and
// DRM_MODE_REFLECT_* values.
type Rotation uint32

const (
	Rotate0   Rotation = 1 << 0
	Rotate90  Rotation = 1 << 1
	Rotate180 Rotation = 1 << 2
	Rotate270 Rotation = 1 << 3
	ReflectX  Rotation = 1 << 4
	ReflectY  Rotation = 1 << 5
)

type Plane struct {
	ID            uint32
	Type          PlaneType
	PossibleCrtcs uint32
	Formats       []uint32
	// Rotations supported by the plane; zero when the plane has no rotation
	// property.
	Rotations Rotation
	Props     Props
}

func (p *Plane) String() string {
	return fmt.Sprintf("<Plane id=%d %s>", p.ID, p.Type)
}

func (p *Plane) CompatibleWith(crtc *Crtc) bool {
	return p.PossibleCrtcs&(1<<uint(crtc.Index)) != 0
}

func (p *Plane) SupportsFormat(format uint32) bool {
	for _, f := range p.Formats {
		if f == format {
			return true
		}
	}
	return false
}

type Crtc struct {
	ID        uint32
	Index     int
	GammaSize uint32
	Props     Props

	PrimaryPlane *Plane
	CursorPlane  *Plane
}

func (c *Crtc) String() string {
	return fmt.Sprintf("<Crtc id=%d index=%d>", c.ID, c.Index)
}

func (c *Crtc) HasCtm() bool {
	return c.Props.Has(PropCtm)
}

func (c *Crtc) HasGammaLut() bool {
	return c.Props.Has(PropGammaLut) && c.GammaSize > 0
}

func (c *Crtc) HasVrr() bool {
	return c.Props.Has(PropVrrEnabled)
}

type Resources struct {
	Connectors []*Connector
	Crtcs      []*Crtc
	Planes     []*Plane
}

func (r *Resources) Connector(id uint32) *Connector {
	for _, c := range r.Connectors {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (r *Resources) Crtc(id uint32) *Crtc {
	for _, c := range r.Crtcs {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// AssignPlanes links every crtc to the first primary and cursor planes
// usable with it. Planes already claimed by an earlier crtc are skipped.
func (r *Resources) AssignPlanes() {
	used := make(map[uint32]bool)
	for _, crtc := range r.Crtcs {
		crtc.PrimaryPlane = nil
		crtc.CursorPlane = nil
		for _, plane := range r.Planes {
			if used[plane.ID] || !plane.CompatibleWith(crtc) {
				continue
			}
			switch plane.Type {
			case PlanePrimary:
				if crtc.PrimaryPlane == nil {
					crtc.PrimaryPlane = plane
					used[plane.ID] = true
				}
			case PlaneCursor:
				if crtc.CursorPlane == nil {
					crtc.CursorPlane = plane
					used[plane.ID] = true
				}
			}
		}
	}
}
