package kms

import (
	"bytes"
	"encoding/binary"
	"math"

	"golang.org/x/xerrors"
)

// enum value names of connector properties
const (
	BroadcastRGBAutomatic = "Automatic"
	BroadcastRGBFull      = "Full"
	BroadcastRGBLimited   = "Limited 16:235"

	ColorspaceDefault   = "Default"
	ColorspaceBT2020RGB = "BT2020_RGB"

	ContentTypeNoData   = "No Data"
	ContentTypeGraphics = "Graphics"
	ContentTypePhoto    = "Photo"
	ContentTypeCinema   = "Cinema"
	ContentTypeGame     = "Game"

	PanelOrientationNormal      = "Normal"
	PanelOrientationUpsideDown  = "Upside Down"
	PanelOrientationLeftSideUp  = "Left Side Up"
	PanelOrientationRightSideUp = "Right Side Up"
)

// ModeInfoSize is sizeof(struct drm_mode_modeinfo).
const ModeInfoSize = 68

const modeNameLen = 32

type modeInfo struct {
	Clock      uint32
	HDisplay   uint16
	HSyncStart uint16
	HSyncEnd   uint16
	HTotal     uint16
	HSkew      uint16
	VDisplay   uint16
	VSyncStart uint16
	VSyncEnd   uint16
	VTotal     uint16
	VScan      uint16
	VRefresh   uint32
	Flags      uint32
	Type       uint32
	Name       [modeNameLen]byte
}

// EncodeMode serializes a mode as struct drm_mode_modeinfo.
func EncodeMode(m *Mode) []byte {
	info := modeInfo{
		Clock:      m.Clock,
		HDisplay:   m.Width,
		HSyncStart: m.HSyncStart,
		HSyncEnd:   m.HSyncEnd,
		HTotal:     m.HTotal,
		HSkew:      m.HSkew,
		VDisplay:   m.Height,
		VSyncStart: m.VSyncStart,
		VSyncEnd:   m.VSyncEnd,
		VTotal:     m.VTotal,
		VScan:      m.VScan,
		VRefresh:   m.VRefresh,
		Flags:      m.Flags,
		Type:       m.Type,
	}
	copy(info.Name[:modeNameLen-1], m.Name)
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, &info)
	return buf.Bytes()
}

func DecodeMode(data []byte) (*Mode, error) {
	if len(data) < ModeInfoSize {
		return nil, xerrors.Errorf("mode blob too short: %d", len(data))
	}
	var info modeInfo
	err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &info)
	if err != nil {
		return nil, err
	}
	return &Mode{
		Name:       string(bytes.TrimRight(info.Name[:], "\x00")),
		Clock:      info.Clock,
		Width:      info.HDisplay,
		HSyncStart: info.HSyncStart,
		HSyncEnd:   info.HSyncEnd,
		HTotal:     info.HTotal,
		HSkew:      info.HSkew,
		Height:     info.VDisplay,
		VSyncStart: info.VSyncStart,
		VSyncEnd:   info.VSyncEnd,
		VTotal:     info.VTotal,
		VScan:      info.VScan,
		VRefresh:   info.VRefresh,
		Flags:      info.Flags,
		Type:       info.Type,
	}, nil
}

// Matrix3 is a row-major 3x3 color matrix.
type Matrix3 [9]float64

var IdentityMatrix = Matrix3{1, 0, 0, 0, 1, 0, 0, 0, 1}

func DiagonalMatrix(r, g, b float64) Matrix3 {
	return Matrix3{r, 0, 0, 0, g, 0, 0, 0, b}
}

// EncodeCtm serializes a matrix as struct drm_color_ctm, S31.32 sign-magnitude.
func EncodeCtm(m Matrix3) []byte {
	data := make([]byte, 9*8)
	for i, v := range m {
		var fixed uint64
		if v < 0 {
			fixed = 1 << 63
			v = -v
		}
		fixed |= uint64(math.Round(v*(1<<32))) & (1<<63 - 1)
		binary.LittleEndian.PutUint64(data[i*8:], fixed)
	}
	return data
}

func DecodeCtm(data []byte) (Matrix3, error) {
	var m Matrix3
	if len(data) != 9*8 {
		return m, xerrors.Errorf("bad ctm blob size %d", len(data))
	}
	for i := range m {
		fixed := binary.LittleEndian.Uint64(data[i*8:])
		v := float64(fixed&(1<<63-1)) / (1 << 32)
		if fixed&(1<<63) != 0 {
			v = -v
		}
		m[i] = v
	}
	return m, nil
}

// GammaLut is a per channel lookup table, all channels of equal length.
type GammaLut struct {
	Red   []uint16
	Green []uint16
	Blue  []uint16
}

func (l *GammaLut) Size() int {
	if l == nil {
		return 0
	}
	return len(l.Red)
}

// EncodeGammaLut serializes a table as an array of struct drm_color_lut.
func EncodeGammaLut(lut *GammaLut) []byte {
	size := lut.Size()
	data := make([]byte, size*8)
	for i := 0; i < size; i++ {
		binary.LittleEndian.PutUint16(data[i*8:], lut.Red[i])
		binary.LittleEndian.PutUint16(data[i*8+2:], lut.Green[i])
		binary.LittleEndian.PutUint16(data[i*8+4:], lut.Blue[i])
	}
	return data
}

func DecodeGammaLut(data []byte) (*GammaLut, error) {
	if len(data)%8 != 0 {
		return nil, xerrors.Errorf("bad gamma lut blob size %d", len(data))
	}
	size := len(data) / 8
	lut := &GammaLut{
		Red:   make([]uint16, size),
		Green: make([]uint16, size),
		Blue:  make([]uint16, size),
	}
	for i := 0; i < size; i++ {
		lut.Red[i] = binary.LittleEndian.Uint16(data[i*8:])
		lut.Green[i] = binary.LittleEndian.Uint16(data[i*8+2:])
		lut.Blue[i] = binary.LittleEndian.Uint16(data[i*8+4:])
	}
	return lut, nil
}

// HdrMetadata is the static HDR metadata sent in the HDR infoframe.
type HdrMetadata struct {
	Eotf uint8
	// chromaticity coordinates in units of 0.00002
	Primaries  [3][2]uint16
	WhitePoint [2]uint16
	// cd/m²; MinMastering in units of 0.0001 cd/m²
	MaxMastering uint16
	MinMastering uint16
	MaxCll       uint16
	MaxFall      uint16
}

const (
	EotfTraditionalSdr = 0
	EotfSmpteSt2084    = 2
)

// EncodeHdrMetadata serializes struct hdr_output_metadata (type 0).
func EncodeHdrMetadata(md *HdrMetadata) []byte {
	data := make([]byte, 32)
	binary.LittleEndian.PutUint32(data[0:], 0)
	data[4] = md.Eotf
	data[5] = 0
	off := 6
	for _, p := range md.Primaries {
		binary.LittleEndian.PutUint16(data[off:], p[0])
		binary.LittleEndian.PutUint16(data[off+2:], p[1])
		off += 4
	}
	binary.LittleEndian.PutUint16(data[off:], md.WhitePoint[0])
	binary.LittleEndian.PutUint16(data[off+2:], md.WhitePoint[1])
	off += 4
	binary.LittleEndian.PutUint16(data[off:], md.MaxMastering)
	binary.LittleEndian.PutUint16(data[off+2:], md.MinMastering)
	binary.LittleEndian.PutUint16(data[off+4:], md.MaxCll)
	binary.LittleEndian.PutUint16(data[off+6:], md.MaxFall)
	return data
}
