package display

import (
	"fmt"

	"github.com/linuxdeepin/dde-kms/display/kms"
)

// Transform is the wl_output transform of an output.
type Transform uint32

const (
	TransformNormal Transform = iota
	Transform90
	Transform180
	Transform270
	TransformFlipped
	TransformFlipped90
	TransformFlipped180
	TransformFlipped270
)

func (t Transform) String() string {
	names := []string{"normal", "90", "180", "270",
		"flipped", "flipped-90", "flipped-180", "flipped-270"}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("Transform(%d)", uint32(t))
}

// swapsSize reports whether the transform rotates by 90 or 270 degrees.
func (t Transform) swapsSize() bool {
	return t&1 == 1
}

// toPlaneTransform converts an output transform to the transform the plane
// has to apply. The plane rotates counter-clockwise, outputs clockwise.
func (t Transform) toPlaneTransform() Transform {
	switch t {
	case Transform90:
		return Transform270
	case Transform270:
		return Transform90
	case TransformFlipped90:
		return TransformFlipped270
	case TransformFlipped270:
		return TransformFlipped90
	}
	return t
}

// kmsRotation returns the plane rotation property value for t.
func (t Transform) kmsRotation() kms.Rotation {
	rotations := []kms.Rotation{kms.Rotate0, kms.Rotate90, kms.Rotate180, kms.Rotate270}
	r := rotations[t&3]
	if t >= TransformFlipped {
		r |= kms.ReflectX
	}
	return r
}

type DpmsMode uint32

const (
	DpmsOn DpmsMode = iota
	DpmsStandby
	DpmsSuspend
	DpmsOff
)

func (m DpmsMode) String() string {
	switch m {
	case DpmsOn:
		return "on"
	case DpmsStandby:
		return "standby"
	case DpmsSuspend:
		return "suspend"
	case DpmsOff:
		return "off"
	}
	return fmt.Sprintf("DpmsMode(%d)", uint32(m))
}

type VrrPolicy uint32

const (
	VrrNever VrrPolicy = iota
	VrrAlways
	VrrAutomatic
)

func (p VrrPolicy) String() string {
	switch p {
	case VrrNever:
		return "never"
	case VrrAlways:
		return "always"
	case VrrAutomatic:
		return "automatic"
	}
	return fmt.Sprintf("VrrPolicy(%d)", uint32(p))
}

type RgbRange uint32

const (
	RgbRangeAutomatic RgbRange = iota
	RgbRangeFull
	RgbRangeLimited
)

func (r RgbRange) enumName() string {
	switch r {
	case RgbRangeFull:
		return kms.BroadcastRGBFull
	case RgbRangeLimited:
		return kms.BroadcastRGBLimited
	}
	return kms.BroadcastRGBAutomatic
}

type PresentationMode uint32

const (
	PresentationVSync PresentationMode = iota
	PresentationAdaptiveSync
	PresentationAsync
	PresentationAdaptiveAsync
)

func (m PresentationMode) String() string {
	switch m {
	case PresentationVSync:
		return "vsync"
	case PresentationAdaptiveSync:
		return "adaptive-sync"
	case PresentationAsync:
		return "async"
	case PresentationAdaptiveAsync:
		return "adaptive-async"
	}
	return fmt.Sprintf("PresentationMode(%d)", uint32(m))
}

func (m PresentationMode) adaptive() bool {
	return m == PresentationAdaptiveSync || m == PresentationAdaptiveAsync
}

func (m PresentationMode) tearing() bool {
	return m == PresentationAsync || m == PresentationAdaptiveAsync
}

type ContentType uint32

const (
	ContentTypeNone ContentType = iota
	ContentTypePhoto
	ContentTypeVideo
	ContentTypeGame
)

func (c ContentType) enumName() string {
	switch c {
	case ContentTypePhoto:
		return kms.ContentTypePhoto
	case ContentTypeVideo:
		return kms.ContentTypeCinema
	case ContentTypeGame:
		return kms.ContentTypeGame
	}
	return kms.ContentTypeGraphics
}

type AutoRotatePolicy uint32

const (
	AutoRotateNever AutoRotatePolicy = iota
	AutoRotateInTabletMode
	AutoRotateAlways
)

type Colorimetry uint32

const (
	ColorimetryBT709 Colorimetry = iota
	ColorimetryBT2020
)

type TransferFunction uint32

const (
	TransferFunctionSRGB TransferFunction = iota
	TransferFunctionPQ
)

// ColorDescription describes the color space the output is driven in.
type ColorDescription struct {
	Colorimetry      Colorimetry
	TransferFunction TransferFunction
	// SdrBrightness is the luminance of SDR white in cd/m².
	SdrBrightness float64
	// SdrGamutWideness blends SDR content from BT.709 (0) towards the
	// native gamut (1).
	SdrGamutWideness    float64
	MinLuminance        float64
	MaxAverageLuminance float64
	MaxLuminance        float64
}

// Vec3 holds one factor per color channel.
type Vec3 [3]float64

var identityFactors = Vec3{1, 1, 1}
