package main

import (
	"encoding/json"
	"testing"

	"github.com/linuxdeepin/dde-kms/display"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_loadProfile(t *testing.T) {
	changes, err := loadProfile("testdata/dual.toml")
	require.NoError(t, err)
	require.Len(t, changes, 3)

	edp := changes["eDP-1"]
	require.NotNil(t, edp)
	assert.True(t, *edp.Enabled)
	assert.Equal(t, uint16(1920), *edp.Width)
	assert.Equal(t, uint16(1080), *edp.Height)
	assert.Equal(t, uint32(59940), *edp.RefreshRate)
	assert.Equal(t, 1.25, *edp.Scale)
	assert.Equal(t, uint32(display.VrrAutomatic), *edp.VrrPolicy)
	assert.Nil(t, edp.Transform)

	hdmi := changes["HDMI-A-1"]
	require.NotNil(t, hdmi)
	assert.Nil(t, hdmi.Enabled)
	assert.Nil(t, hdmi.RefreshRate)
	assert.Equal(t, int32(1536), *hdmi.X)
	assert.Nil(t, hdmi.Y)
	assert.Equal(t, uint32(display.Transform90), *hdmi.Transform)
	assert.Equal(t, uint32(display.RgbRangeLimited), *hdmi.RgbRange)
	assert.True(t, *hdmi.Hdr)
	assert.Equal(t, "/usr/share/color/icc/test.icc", *hdmi.IccProfilePath)

	assert.False(t, *changes["DP-1"].Enabled)

	// the daemon parses what the client sends
	data, err := json.Marshal(changes)
	require.NoError(t, err)
	parsed, err := display.ParseOutputChanges(data)
	require.NoError(t, err)
	assert.Equal(t, changes, parsed)
}

func Test_loadProfileErrors(t *testing.T) {
	_, err := loadProfile("testdata/bad-mode.toml")
	assert.Error(t, err)
	_, err = loadProfile("testdata/missing.toml")
	assert.Error(t, err)
}

func Test_parseMode(t *testing.T) {
	w, h, rate, err := parseMode("2560x1440@144")
	require.NoError(t, err)
	assert.Equal(t, uint16(2560), w)
	assert.Equal(t, uint16(1440), h)
	assert.Equal(t, uint32(144000), rate)

	for _, s := range []string{"", "1920", "1920x", "0x1080", "1920x1080@", "1920x1080@-60", "99999x1"} {
		_, _, _, err = parseMode(s)
		assert.Error(t, err, s)
	}
}

func Test_parseEnum(t *testing.T) {
	name := func(i uint32) string {
		return display.Transform(i).String()
	}
	v, err := parseEnum("flipped-270", 8, name)
	require.NoError(t, err)
	assert.Equal(t, uint32(display.TransformFlipped270), v)

	v, err = parseEnum("3", 8, name)
	require.NoError(t, err)
	assert.Equal(t, uint32(display.Transform270), v)

	_, err = parseEnum("8", 8, name)
	assert.Error(t, err)
	_, err = parseEnum("sideways", 8, name)
	assert.Error(t, err)
}
