package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEDID(extension []byte) []byte {
	edid := make([]byte, edidBlockSize)
	copy(edid, edidHeader)
	// "DEL"
	edid[8], edid[9] = 0x10, 0xac
	edid[10], edid[11] = 0x34, 0x12
	edid[12] = 0x2a
	edid[21], edid[22] = 60, 34
	name := []byte{0, 0, 0, 0xfc, 0, 'U', '2', '7', '2', '0', 'Q', '\n', ' ', ' ', ' ', ' ', ' ', ' '}
	copy(edid[54:], name)
	serial := []byte{0, 0, 0, 0xff, 0, 'A', 'B', 'C', '1', '2', '3', '\n', ' ', ' ', ' ', ' ', ' ', ' '}
	copy(edid[72:], serial)
	if extension != nil {
		edid[126] = 1
		edid = append(edid, extension...)
	}
	return edid
}

func Test_ParseEDID(t *testing.T) {
	e, err := ParseEDID(makeEDID(nil))
	require.NoError(t, err)
	assert.Equal(t, "DEL", e.Manufacturer)
	assert.Equal(t, "U2720Q", e.Model)
	assert.Equal(t, "ABC123", e.Serial)
	assert.Equal(t, "DEL1234", e.EisaID())
	assert.Equal(t, uint32(600), e.MmWidth)
	assert.Nil(t, e.Hdr)
	assert.False(t, e.SupportsHDR())

	_, err = ParseEDID([]byte{0, 1, 2})
	assert.Error(t, err)
}

func Test_ParseEDIDCta(t *testing.T) {
	ext := make([]byte, edidBlockSize)
	ext[0] = 0x02
	ext[1] = 0x03
	blocks := []byte{
		0xe3, 0x05, 0xc0, 0x00, // colorimetry: BT2020 RGB + YCC
		0xe6, 0x06, 0x0d, 0x01, 0x60, 0x40, 0x00, // hdr static metadata
	}
	copy(ext[4:], blocks)
	ext[2] = byte(4 + len(blocks))

	e, err := ParseEDID(makeEDID(ext))
	require.NoError(t, err)
	assert.True(t, e.BT2020RGB)
	require.NotNil(t, e.Hdr)
	assert.True(t, e.Hdr.SupportsPQ)
	assert.True(t, e.Hdr.SupportsHLG)
	assert.True(t, e.SupportsHDR())
	assert.InDelta(t, 400, e.Hdr.MaxLuminance, 1)
	assert.InDelta(t, 200, e.Hdr.MaxFrameAverage, 1)
	assert.Equal(t, 0.0, e.Hdr.MinLuminance)
}

func Test_GetOutputUUID(t *testing.T) {
	assert.Equal(t, "HDMI-A-1", GetOutputUUID("HDMI-A-1", nil))
	edid := makeEDID(nil)
	uuid := GetOutputUUID("HDMI-A-1", edid)
	assert.Equal(t, "HDMI-A-1"+GetEDIDChecksum(edid), uuid)
	assert.Len(t, GetEDIDChecksum(edid), 32)
}
