package display

import (
	"testing"
	"time"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_gpuCrtcAssignment(t *testing.T) {
	sched := &manualScheduler{}
	device := newFakeDevice(2, 0)
	// the second connector only works with the first crtc
	device.res.Connectors[1].PossibleCrtcs = 1
	g := newTestGpu(t, device, sched)

	a := g.AddPipeline(device.res.Connectors[0])
	b := g.AddPipeline(device.res.Connectors[1])
	for _, p := range []*Pipeline{a, b} {
		p.SetEnable(true)
		p.SetActive(true)
	}

	require.Equal(t, ErrorNone, g.TestPendingConfiguration())
	assert.Equal(t, uint32(101), a.Crtc().ID)
	assert.Equal(t, uint32(100), b.Crtc().ID)
	assert.Empty(t, device.realCommits())
	assert.True(t, g.NeedsModeset())

	require.True(t, g.MaybeModeset())
	assert.False(t, g.NeedsModeset())
	assert.True(t, device.res.Connectors[0].PreferredMode().SameTiming(device.modes[101]))
}

func Test_gpuCrtcAssignmentImpossible(t *testing.T) {
	sched := &manualScheduler{}
	device := newFakeDevice(2, 0)
	device.res.Connectors[0].PossibleCrtcs = 1
	device.res.Connectors[1].PossibleCrtcs = 1
	g := newTestGpu(t, device, sched)

	a := g.AddPipeline(device.res.Connectors[0])
	b := g.AddPipeline(device.res.Connectors[1])
	for _, p := range []*Pipeline{a, b} {
		p.SetEnable(true)
		p.SetActive(true)
	}
	assert.Equal(t, ErrorInvalidArguments, g.TestPendingConfiguration())
	assert.Empty(t, device.commits)
}

func Test_gpuAddPipelineFromHardware(t *testing.T) {
	sched := &manualScheduler{}
	device := newFakeDevice(1, 0)
	conn := device.res.Connectors[0]
	conn.CrtcID = 100
	mode := *testModes()[1]
	device.modes[100] = &mode
	g := newTestGpu(t, device, sched)

	p := g.AddPipeline(conn)
	assert.True(t, p.Enabled())
	assert.True(t, p.Active())
	assert.Equal(t, uint32(100), p.Crtc().ID)
	assert.Same(t, conn.ModeByID(2), p.Mode())
	assert.Equal(t, uint32(144000), p.Mode().RefreshRate())
	assert.False(t, p.NeedsModeset())

	o := NewOutput(g, p, sched)
	assert.True(t, o.IsEnabled())
	assert.Equal(t, uint32(144000), o.RenderLoop().RefreshRate())
}

func Test_gpuAddPipelineUnknownMode(t *testing.T) {
	sched := &manualScheduler{}
	device := newFakeDevice(1, 0)
	conn := device.res.Connectors[0]
	conn.CrtcID = 100
	device.modes[100] = &kms.Mode{Width: 800, Height: 600, Clock: 40000, HTotal: 1056, VTotal: 628}
	g := newTestGpu(t, device, sched)

	p := g.AddPipeline(conn)
	assert.False(t, p.Enabled())
	assert.Nil(t, p.Crtc())
	assert.Same(t, conn.PreferredMode(), p.Mode())
}

func Test_gpuWaitIdleTimeout(t *testing.T) {
	env := newTestEnv(t, 0)
	frame := paintFrame(t, env.output, nil)
	require.True(t, env.output.Present(frame))

	env.sched.now = 5 * time.Millisecond
	env.gpu.WaitIdle()
	assert.False(t, env.output.pipeline.PageflipPending())
	assert.True(t, frame.IsPresented())
	assert.Equal(t, 5*time.Millisecond, frame.Timestamp())
}

func Test_gpuWaitIdleConsumesFlips(t *testing.T) {
	env := newTestEnv(t, 0)
	env.gpu.SetWaitIdleTimeout(time.Minute)
	frame := paintFrame(t, env.output, nil)
	require.True(t, env.output.Present(frame))

	env.gpu.flips <- kms.PageFlipEvent{CrtcID: 100, Timestamp: 7 * time.Millisecond}
	env.gpu.WaitIdle()
	assert.True(t, frame.IsPresented())
	assert.Equal(t, 7*time.Millisecond, frame.Timestamp())
}

func Test_gpuDispatchEvents(t *testing.T) {
	env := newTestEnv(t, 0)
	frame := paintFrame(t, env.output, nil)
	require.True(t, env.output.Present(frame))

	// events of unknown crtcs are ignored
	env.gpu.flips <- kms.PageFlipEvent{CrtcID: 999, Timestamp: time.Millisecond}
	env.gpu.flips <- kms.PageFlipEvent{CrtcID: 100, Timestamp: 3 * time.Millisecond}
	env.gpu.dispatchEvents()
	assert.True(t, frame.IsPresented())
	assert.Equal(t, 3*time.Millisecond, frame.Timestamp())
	assert.Len(t, env.gpu.flips, 0)
}

func Test_gpuUpdateResourcesRebinds(t *testing.T) {
	env := newTestEnv(t, 0)
	p := env.output.pipeline
	old := p.Crtc()

	env.device.res = newFakeDevice(1, 0).res
	_, err := env.gpu.UpdateResources()
	require.NoError(t, err)

	crtc := env.device.res.Crtcs[0]
	assert.NotSame(t, old, crtc)
	assert.Same(t, crtc, p.Crtc())
	assert.Same(t, crtc, p.active.crtc)
	assert.Same(t, crtc, p.committed.crtc)
	assert.Same(t, env.device.res.Connectors[0], p.Connector())
	assert.NotNil(t, crtc.PrimaryPlane)
	assert.False(t, p.NeedsModeset())
}
