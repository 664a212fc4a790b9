package display

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_channelFactorsCtm(t *testing.T) {
	env := newTestEnv(t, crtcCtm|crtcGamma)
	o := env.output

	assert.True(t, o.SetChannelFactors(Vec3{0.5, 1, 1}))
	assert.False(t, o.NeedsShaderFallback())
	p := o.pipeline
	require.NotNil(t, p.active.ctm)
	assert.Equal(t, kms.DiagonalMatrix(0.5, 1, 1), *p.active.ctm)
	assert.Nil(t, p.active.gamma)
	assert.Empty(t, env.device.realCommits())
	assert.False(t, p.isQueued())
}

func Test_channelFactorsGamma(t *testing.T) {
	env := newTestEnv(t, crtcGamma)
	o := env.output

	assert.True(t, o.SetChannelFactors(Vec3{0.5, 1, 1}))
	assert.False(t, o.NeedsShaderFallback())
	lut := o.pipeline.active.gamma
	require.NotNil(t, lut)
	require.Equal(t, 256, lut.Size())
	assert.Equal(t, uint16(0xffff/2+1), lut.Red[255])
	assert.Equal(t, uint16(0xffff), lut.Green[255])
	assert.Nil(t, o.pipeline.active.ctm)
}

func Test_channelFactorsCtmRejected(t *testing.T) {
	env := newTestEnv(t, crtcCtm|crtcGamma)
	o := env.output
	env.device.reject = func(req *kms.AtomicRequest, flags kms.CommitFlags) error {
		for _, prop := range req.Properties() {
			if prop.Name == kms.PropCtm && prop.Blob != nil {
				return kms.ErrInvalidArguments
			}
		}
		return nil
	}

	assert.True(t, o.SetChannelFactors(Vec3{1, 0.8, 0.6}))
	assert.False(t, o.NeedsShaderFallback())
	assert.Nil(t, o.pipeline.active.ctm)
	assert.NotNil(t, o.pipeline.active.gamma)
}

func Test_channelFactorsCtmClearedOnFailure(t *testing.T) {
	env := newTestEnv(t, crtcCtm)
	o := env.output
	p := o.pipeline
	require.True(t, o.SetChannelFactors(Vec3{0.5, 1, 1}))
	require.NotNil(t, p.active.ctm)

	env.device.reject = rejectAll
	assert.True(t, o.SetChannelFactors(Vec3{0.7, 1, 1}))
	assert.True(t, o.NeedsShaderFallback())
	assert.Nil(t, p.active.ctm)
	assert.Nil(t, p.pending.ctm)
	assert.False(t, p.isQueued())
	assert.Empty(t, env.device.realCommits())

	// the next flip resets the matrix in hardware
	env.device.reject = nil
	require.Equal(t, ErrorNone, p.Present(nil))
	commits := env.device.realCommits()
	require.Len(t, commits, 1)
	prop, ok := commits[0].req.Get(p.active.crtc.ID, kms.PropCtm)
	require.True(t, ok)
	assert.Nil(t, prop.Blob)
}

func Test_channelFactorsCtmAndGammaRejected(t *testing.T) {
	env := newTestEnv(t, crtcCtm|crtcGamma)
	o := env.output
	p := o.pipeline
	require.True(t, o.SetChannelFactors(Vec3{0.5, 1, 1}))
	require.NotNil(t, p.active.ctm)

	env.device.commits = nil
	env.device.reject = rejectAll
	assert.True(t, o.SetChannelFactors(Vec3{0.6, 0.8, 1}))
	assert.True(t, o.NeedsShaderFallback())
	assert.Nil(t, p.active.ctm)
	assert.Nil(t, p.active.gamma)
	assert.False(t, p.isQueued())
	assert.Empty(t, env.device.realCommits())

	// a matrix test, then a gamma test
	var tests int
	for _, c := range env.device.commits {
		if c.isTest() {
			tests++
		}
	}
	assert.Equal(t, 2, tests)
}

func Test_channelFactorsShaderFallback(t *testing.T) {
	env := newTestEnv(t, 0)
	o := env.output

	assert.True(t, o.SetChannelFactors(Vec3{0.5, 1, 1}))
	assert.True(t, o.NeedsShaderFallback())
	assert.True(t, o.NeedsColormanagement())
	assert.Equal(t, Vec3{0.5, 1, 1}, o.ChannelFactors())

	assert.True(t, o.SetChannelFactors(Vec3{1, 1, 1}))
	assert.False(t, o.NeedsShaderFallback())
	assert.False(t, o.NeedsColormanagement())
}

func Test_channelFactorsIdentityClearsFallback(t *testing.T) {
	for _, features := range []crtcFeatures{0, crtcCtm, crtcGamma, crtcCtm | crtcGamma} {
		env := newTestEnv(t, features)
		o := env.output
		env.device.reject = rejectAll

		o.SetChannelFactors(Vec3{0.2, 0.4, 0.6})
		assert.True(t, o.NeedsShaderFallback(), "features %d", features)
		o.SetChannelFactors(Vec3{1, 1, 1})
		assert.False(t, o.NeedsShaderFallback(), "features %d", features)
	}
}

func Test_channelFactorsUnchanged(t *testing.T) {
	env := newTestEnv(t, crtcCtm)
	o := env.output
	assert.True(t, o.SetChannelFactors(Vec3{1, 1, 1}))
	assert.Empty(t, env.device.commits)
}

func Test_channelFactorsAbsorbedByColorManagement(t *testing.T) {
	env := newTestEnv(t, crtcCtm)
	o := env.output
	o.state.WideColorGamut = true

	assert.True(t, o.SetChannelFactors(Vec3{0.5, 0.5, 0.5}))
	assert.False(t, o.NeedsShaderFallback())
	assert.Empty(t, env.device.commits)
	assert.True(t, o.NeedsColormanagement())
}

func Test_channelFactorsDisabledOutput(t *testing.T) {
	sched := &manualScheduler{}
	device := newFakeDevice(1, crtcCtm)
	g := newTestGpu(t, device, sched)
	o := newTestOutput(g, device.res.Connectors[0], sched)

	assert.False(t, o.SetChannelFactors(Vec3{0.5, 1, 1}))
	assert.True(t, o.NeedsShaderFallback())
	assert.Empty(t, device.commits)
}

func Test_colorTransformation(t *testing.T) {
	ct := NewColorTransformation(4, Vec3{1, 1, 1})
	assert.True(t, ct.IsIdentity())
	lut := ct.GammaLut()
	assert.Equal(t, []uint16{0, 21845, 43690, 65535}, lut.Red)
	assert.Equal(t, lut.Red, lut.Blue)

	lut = NewColorTransformation(2, Vec3{0, 0.5, 2}).GammaLut()
	assert.Equal(t, []uint16{0, 0}, lut.Red)
	assert.Equal(t, []uint16{0, 32768}, lut.Green)
	assert.Equal(t, []uint16{0, 65535}, lut.Blue)
}

func Test_colorTemperatureFactors(t *testing.T) {
	assert.Equal(t, Vec3{1, 1, 1}, ColorTemperatureFactors(0))
	assert.Equal(t, Vec3{1, 1, 1}, ColorTemperatureFactors(6500))

	warm := ColorTemperatureFactors(3000)
	assert.Equal(t, 1.0, warm[0])
	assert.True(t, warm[1] < 1)
	assert.True(t, warm[2] < warm[1])

	assert.Equal(t, ColorTemperatureFactors(1000), ColorTemperatureFactors(500))
	assert.Equal(t, 0.0, ColorTemperatureFactors(1000)[2])
}

func Test_loadIccProfile(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 200)
	copy(data[36:], "acsp")
	good := filepath.Join(dir, "good.icc")
	require.NoError(t, ioutil.WriteFile(good, data, 0644))
	bad := filepath.Join(dir, "bad.icc")
	require.NoError(t, ioutil.WriteFile(bad, data[:100], 0644))

	profile, err := LoadIccProfile(good)
	require.NoError(t, err)
	assert.Equal(t, good, profile.Path)
	assert.Len(t, profile.Data(), 200)

	_, err = LoadIccProfile(bad)
	assert.Error(t, err)
	_, err = LoadIccProfile(filepath.Join(dir, "missing.icc"))
	assert.Error(t, err)
}
