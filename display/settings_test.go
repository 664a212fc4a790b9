package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_loadSettingsFile(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, BackendDrm, s.Backend)
	assert.Equal(t, defaultDimDuration, s.DimDuration)

	err := s.loadFile("./testdata/dde-kms.conf")
	require.NoError(t, err)
	assert.Equal(t, BackendRandr, s.Backend)
	assert.Equal(t, "/dev/dri/card1", s.Device)
	assert.Equal(t, 2*time.Second, s.DimDuration)
	assert.Equal(t, 100*time.Millisecond, s.WaitIdleTimeout)
	assert.True(t, s.Debug)
	assert.True(t, s.DisabledOutputs.Contains("HDMI-A-2"))
	assert.True(t, s.DisabledOutputs.Contains("DP-1"))
}

func Test_loadSettingsFileErrors(t *testing.T) {
	s := DefaultSettings()
	err := s.loadFile("./testdata/bad-backend.conf")
	assert.Error(t, err)
	assert.Equal(t, BackendDrm, s.Backend)

	err = s.loadFile("./testdata/missing.conf")
	assert.Error(t, err)
}
