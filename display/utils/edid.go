package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

const edidBlockSize = 128

var edidHeader = []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

// HdrInfo is the HDR static metadata block of a CTA-861 extension.
type HdrInfo struct {
	SupportsPQ  bool
	SupportsHLG bool
	// luminance in cd/m², zero when not advertised
	MaxLuminance      float64
	MaxFrameAverage   float64
	MinLuminance      float64
	HasLuminanceRange bool
}

type EDID struct {
	Manufacturer string
	Model        string
	Serial       string
	ProductCode  uint16
	SerialNumber uint32
	// MmWidth and MmHeight come from the basic display parameters (cm).
	MmWidth  uint32
	MmHeight uint32
	Hdr      *HdrInfo
	// BT2020RGB is set when the colorimetry block lists BT2020 RGB.
	BT2020RGB bool
	Raw       []byte
}

// EisaID is the manufacturer id followed by the product code.
func (e *EDID) EisaID() string {
	if e.Manufacturer == "" {
		return ""
	}
	return fmt.Sprintf("%s%04X", e.Manufacturer, e.ProductCode)
}

func (e *EDID) SupportsHDR() bool {
	return e.Hdr != nil && e.Hdr.SupportsPQ
}

func ParseEDID(data []byte) (*EDID, error) {
	if len(data) < edidBlockSize {
		return nil, xerrors.Errorf("edid too short: %d bytes", len(data))
	}
	for i, b := range edidHeader {
		if data[i] != b {
			return nil, xerrors.New("bad edid header")
		}
	}

	e := &EDID{Raw: data}
	e.Manufacturer, e.Model = parseVendor(data)
	e.ProductCode = uint16(data[10]) | uint16(data[11])<<8
	e.SerialNumber = uint32(data[12]) | uint32(data[13])<<8 |
		uint32(data[14])<<16 | uint32(data[15])<<24
	e.MmWidth = uint32(data[21]) * 10
	e.MmHeight = uint32(data[22]) * 10

	for off := 54; off+18 <= 126; off += 18 {
		desc := data[off : off+18]
		if desc[0] != 0 || desc[1] != 0 || desc[2] != 0 {
			continue
		}
		text := descriptorText(desc[5:])
		switch desc[3] {
		case 0xfc:
			if text != "" {
				e.Model = text
			}
		case 0xff:
			e.Serial = text
		}
	}
	if e.Serial == "" && e.SerialNumber != 0 {
		e.Serial = strconv.FormatUint(uint64(e.SerialNumber), 10)
	}

	extensions := int(data[126])
	for i := 1; i <= extensions; i++ {
		start := i * edidBlockSize
		if start+edidBlockSize > len(data) {
			break
		}
		block := data[start : start+edidBlockSize]
		if block[0] == 0x02 {
			e.parseCta(block)
		}
	}
	return e, nil
}

// parseVendor returns the manufacturer id and a fallback model string.
func parseVendor(edid []byte) (string, string) {
	var brandInf = edid[8:12]
	var bInf = uint64(brandInf[0])<<8 + uint64(brandInf[1])
	var maInf []byte
	var k uint
	for k = 1; k <= 3; k++ {
		m := byte(((bInf >> (15 - 5*k)) & 31) + 'A' - 1)
		if m < 'A' || m > 'Z' {
			return "", ""
		}
		maInf = append(maInf, m)
	}

	var moInf []byte
	for i := 2; i <= 3; i++ {
		moInf = append(moInf, strconv.Itoa(int(brandInf[i]))...)
	}
	return string(maInf), string(moInf)
}

func descriptorText(data []byte) string {
	s := string(data)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func (e *EDID) parseCta(block []byte) {
	dtdOffset := int(block[2])
	if dtdOffset < 4 || dtdOffset > edidBlockSize-1 {
		dtdOffset = edidBlockSize - 1
	}
	for off := 4; off < dtdOffset; {
		header := block[off]
		tag := header >> 5
		length := int(header & 0x1f)
		if off+1+length > dtdOffset {
			break
		}
		payload := block[off+1 : off+1+length]
		if tag == 7 && length >= 2 {
			switch payload[0] {
			case 0x05:
				e.BT2020RGB = payload[1]&0x80 != 0
			case 0x06:
				e.Hdr = parseHdrStaticMetadata(payload)
			}
		}
		off += 1 + length
	}
}

func parseHdrStaticMetadata(payload []byte) *HdrInfo {
	info := &HdrInfo{
		SupportsPQ:  payload[1]&0x04 != 0,
		SupportsHLG: payload[1]&0x08 != 0,
	}
	if len(payload) > 3 && payload[3] != 0 {
		info.MaxLuminance = 50 * math.Pow(2, float64(payload[3])/32)
		info.HasLuminanceRange = true
	}
	if len(payload) > 4 && payload[4] != 0 {
		info.MaxFrameAverage = 50 * math.Pow(2, float64(payload[4])/32)
	}
	if len(payload) > 5 && info.MaxLuminance > 0 {
		cv := float64(payload[5]) / 255
		info.MinLuminance = info.MaxLuminance * cv * cv / 100
	}
	return info
}
