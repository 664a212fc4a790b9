package kms

import (
	"encoding/binary"
	"testing"

	C "gopkg.in/check.v1"
)

type encodeTester struct{}

func TestT(t *testing.T) { C.TestingT(t) }

func init() {
	C.Suite(&encodeTester{})
}

func (*encodeTester) TestCtmFixedPoint(c *C.C) {
	data := EncodeCtm(Matrix3{1, 0, 0, 0, 0.5, 0, 0, 0, -0.25})
	c.Check(len(data), C.Equals, 72)
	c.Check(binary.LittleEndian.Uint64(data[0:]), C.Equals, uint64(1)<<32)
	c.Check(binary.LittleEndian.Uint64(data[8:]), C.Equals, uint64(0))
	c.Check(binary.LittleEndian.Uint64(data[4*8:]), C.Equals, uint64(1)<<31)
	c.Check(binary.LittleEndian.Uint64(data[8*8:]), C.Equals, uint64(1)<<63|uint64(1)<<30)

	m, err := DecodeCtm(data)
	c.Assert(err, C.IsNil)
	c.Check(m[8], C.Equals, -0.25)

	_, err = DecodeCtm(data[:10])
	c.Check(err, C.NotNil)
}

func (*encodeTester) TestGammaLutLayout(c *C.C) {
	lut := &GammaLut{
		Red:   []uint16{0, 0xffff},
		Green: []uint16{1, 2},
		Blue:  []uint16{3, 4},
	}
	data := EncodeGammaLut(lut)
	c.Check(len(data), C.Equals, 16)
	c.Check(binary.LittleEndian.Uint16(data[8:]), C.Equals, uint16(0xffff))
	c.Check(binary.LittleEndian.Uint16(data[10:]), C.Equals, uint16(2))
	c.Check(binary.LittleEndian.Uint16(data[12:]), C.Equals, uint16(4))
	c.Check(binary.LittleEndian.Uint16(data[14:]), C.Equals, uint16(0))

	back, err := DecodeGammaLut(data)
	c.Assert(err, C.IsNil)
	c.Check(back, C.DeepEquals, lut)
}

func (*encodeTester) TestModeInfoLayout(c *C.C) {
	mode := &Mode{
		Name:     "1920x1080",
		Clock:    148500,
		Width:    1920,
		HTotal:   2200,
		Height:   1080,
		VTotal:   1125,
		VRefresh: 60,
		Flags:    ModeFlagPHSync | ModeFlagPVSync,
		Type:     ModeTypePreferred | ModeTypeDriver,
	}
	data := EncodeMode(mode)
	c.Assert(len(data), C.Equals, ModeInfoSize)
	c.Check(binary.LittleEndian.Uint32(data[0:]), C.Equals, uint32(148500))
	c.Check(binary.LittleEndian.Uint16(data[4:]), C.Equals, uint16(1920))
	c.Check(binary.LittleEndian.Uint16(data[14:]), C.Equals, uint16(1080))
	c.Check(string(data[36:45]), C.Equals, "1920x1080")

	back, err := DecodeMode(data)
	c.Assert(err, C.IsNil)
	c.Check(back.SameTiming(mode), C.Equals, true)
	c.Check(back.Name, C.Equals, mode.Name)
}

func (*encodeTester) TestHdrMetadataLayout(c *C.C) {
	data := EncodeHdrMetadata(&HdrMetadata{
		Eotf:         EotfSmpteSt2084,
		MaxMastering: 1000,
		MaxCll:       1000,
		MaxFall:      400,
	})
	c.Check(len(data), C.Equals, 32)
	c.Check(data[4], C.Equals, uint8(EotfSmpteSt2084))
	c.Check(binary.LittleEndian.Uint16(data[22:]), C.Equals, uint16(1000))
	c.Check(binary.LittleEndian.Uint16(data[28:]), C.Equals, uint16(400))
}
