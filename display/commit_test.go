package display

import (
	"testing"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func Test_errorFromDevice(t *testing.T) {
	assert.Equal(t, ErrorNone, errorFromDevice(nil))
	assert.Equal(t, ErrorInvalidArguments,
		errorFromDevice(xerrors.Errorf("atomic commit: %w", kms.ErrInvalidArguments)))
	assert.Equal(t, ErrorNoPermission, errorFromDevice(kms.ErrNoPermission))
	assert.Equal(t, ErrorFramePending, errorFromDevice(kms.ErrBusy))
	assert.Equal(t, ErrorUnknown, errorFromDevice(xerrors.New("EIO")))
}

func Test_commitBatchAtomic(t *testing.T) {
	_, device, g, outputs := newMultiEnv(t, 3)
	pipelines := g.Pipelines()
	require.Len(t, pipelines, 3)

	var before []PipelineState
	for _, p := range pipelines {
		before = append(before, p.active)
	}

	// the middle pipeline asks for a mode its crtc can't drive
	bad := pipelines[1].pending.crtc.ID
	device.reject = func(req *kms.AtomicRequest, flags kms.CommitFlags) error {
		prop, ok := req.Get(bad, kms.PropModeID)
		if !ok || prop.Blob == nil {
			return nil
		}
		mode, err := kms.DecodeMode(prop.Blob)
		if err == nil && mode.Width == 1280 {
			return kms.ErrInvalidArguments
		}
		return nil
	}
	for _, o := range outputs {
		cs := &OutputChangeSet{Mode: o.pipeline.connector.FindMode(1280, 720, 0)}
		require.True(t, o.QueueChanges(cs))
	}

	e := CommitPipelines(pipelines, CommitModeCommitModeset)
	assert.Equal(t, ErrorInvalidArguments, e)
	require.Len(t, device.commits, 1)
	assert.Equal(t, 1920, int(device.modes[pipelines[0].committed.crtc.ID].Width))

	for _, o := range outputs {
		o.RevertQueuedChanges()
	}
	for i, p := range pipelines {
		assert.Equal(t, before[i], p.active)
		assert.Equal(t, before[i], p.pending)
		assert.Equal(t, before[i], p.committed)
		assert.False(t, p.isQueued())
	}
}

func Test_commitBatchSubmitsOnce(t *testing.T) {
	_, device, g, outputs := newMultiEnv(t, 2)
	for _, o := range outputs {
		cs := &OutputChangeSet{Mode: o.pipeline.connector.FindMode(1280, 720, 0)}
		require.True(t, o.QueueChanges(cs))
	}
	e := CommitPipelines(g.Pipelines(), CommitModeCommitModeset)
	require.Equal(t, ErrorNone, e)
	require.Len(t, device.commits, 1)

	req := device.commits[0].req
	for _, p := range g.Pipelines() {
		assert.True(t, req.Has(p.pending.crtc.ID, kms.PropModeID))
		// the engine doesn't promote
		assert.Equal(t, uint16(1920), p.active.mode.Width)
		assert.Equal(t, uint16(1280), p.committed.mode.Width)
	}
}

func Test_commitFramePending(t *testing.T) {
	env := newTestEnv(t, 0)
	p := env.output.pipeline
	p.pageflipPending = true

	assert.Equal(t, ErrorFramePending, CommitPipelines([]*Pipeline{p}, CommitModeCommit))
	assert.Empty(t, env.device.commits)

	// tests don't care about flips in flight
	assert.Equal(t, ErrorNone, CommitPipelines([]*Pipeline{p}, CommitModeTest))
	require.Len(t, env.device.commits, 1)
	assert.True(t, env.device.commits[0].isTest())
}

func Test_commitMixedDevices(t *testing.T) {
	a := newTestEnv(t, 0)
	b := newTestEnv(t, 0)
	e := CommitPipelines([]*Pipeline{a.output.pipeline, b.output.pipeline}, CommitModeTest)
	assert.Equal(t, ErrorInvalidArguments, e)
	assert.Empty(t, a.device.commits)
	assert.Empty(t, b.device.commits)
}

func Test_commitFlags(t *testing.T) {
	env := newTestEnv(t, 0)
	p := env.output.pipeline
	pipelines := []*Pipeline{p}

	assert.Equal(t, kms.FlagTestOnly, commitFlags(pipelines, CommitModeTest))
	assert.Equal(t, kms.FlagTestOnly|kms.FlagAllowModeset, commitFlags(pipelines, CommitModeTestAllowModeset))
	assert.Equal(t, kms.FlagAllowModeset, commitFlags(pipelines, CommitModeCommitModeset))
	assert.Equal(t, kms.FlagNonBlock|kms.FlagPageFlipEvent, commitFlags(pipelines, CommitModeCommit))

	p.SetActive(false)
	assert.Equal(t, kms.FlagNonBlock, commitFlags(pipelines, CommitModeCommit))
}

func Test_commitSetsFlipPending(t *testing.T) {
	env := newTestEnv(t, 0)
	p := env.output.pipeline
	require.Equal(t, ErrorNone, CommitPipelines([]*Pipeline{p}, CommitModeCommit))
	assert.True(t, p.PageflipPending())

	env.gpu.handlePageFlip(kms.PageFlipEvent{CrtcID: p.committed.crtc.ID})
	assert.False(t, p.PageflipPending())
}
