package display

import (
	"testing"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_addLeaseObjectsWithoutCrtc(t *testing.T) {
	sched := &manualScheduler{}
	device := newFakeDevice(1, 0)
	g := newTestGpu(t, device, sched)
	o := newTestOutput(g, device.res.Connectors[0], sched)

	objects := []uint32{7, 8}
	result, ok := o.AddLeaseObjects(objects)
	assert.False(t, ok)
	assert.Equal(t, []uint32{7, 8}, result)
	assert.Equal(t, []uint32{7, 8}, objects)
}

func Test_addLeaseObjects(t *testing.T) {
	env := newTestEnv(t, 0)
	objects, ok := env.output.AddLeaseObjects([]uint32{7})
	require.True(t, ok)
	assert.Equal(t, []uint32{7, 10, 100, 200}, objects)
}

func Test_leaseLifecycle(t *testing.T) {
	env := newTestEnv(t, 0)
	o := env.output
	lease := &kms.Lease{LesseeID: 3}

	o.Leased(lease)
	assert.Equal(t, lease, o.Lease())
	assert.True(t, o.RenderLoop().IsInhibited())
	assert.Empty(t, env.gpu.commitPipelines())
	assert.False(t, o.UpdateCursorLayer())

	o.LeaseEnded()
	assert.Nil(t, o.Lease())
	assert.False(t, o.RenderLoop().IsInhibited())
	assert.Len(t, env.gpu.commitPipelines(), 1)

	// ending twice is harmless
	o.LeaseEnded()
	assert.False(t, o.RenderLoop().IsInhibited())
}
