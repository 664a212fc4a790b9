package display

import (
	"testing"
	"time"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"github.com/stretchr/testify/require"
)

type manualTimer struct {
	deadline time.Duration
	fn       func()
	stopped  bool
	fired    bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (t *manualTimer) Active() bool {
	return !t.stopped && !t.fired
}

// manualScheduler runs posted functions and timers only when told to.
type manualScheduler struct {
	now    time.Duration
	posted []func()
	timers []*manualTimer
}

func (s *manualScheduler) Post(fn func()) {
	s.posted = append(s.posted, fn)
}

func (s *manualScheduler) Call(fn func()) {
	fn()
}

func (s *manualScheduler) Now() time.Duration {
	return s.now
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	t := &manualTimer{deadline: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) runPosted() {
	for len(s.posted) > 0 {
		fn := s.posted[0]
		s.posted = s.posted[1:]
		fn()
	}
}

func (s *manualScheduler) advance(d time.Duration) {
	s.now += d
	for {
		var due *manualTimer
		for _, t := range s.timers {
			if t.Active() && t.deadline <= s.now {
				due = t
				break
			}
		}
		if due == nil {
			break
		}
		due.fired = true
		due.fn()
	}
	var active []*manualTimer
	for _, t := range s.timers {
		if t.Active() {
			active = append(active, t)
		}
	}
	s.timers = active
}

type fakeCommit struct {
	req   *kms.AtomicRequest
	flags kms.CommitFlags
}

func (c fakeCommit) isTest() bool {
	return c.flags.Has(kms.FlagTestOnly)
}

// fakeDevice records commits and accepts them unless reject says otherwise.
type fakeDevice struct {
	res       *kms.Resources
	modes     map[uint32]*kms.Mode
	commits   []fakeCommit
	reject    func(req *kms.AtomicRequest, flags kms.CommitFlags) error
	events    chan kms.PageFlipEvent
	buffers   map[uint32]*kms.Buffer
	leases    map[uint32]*kms.Lease
	nextID    uint32
	asyncFlip bool
}

func (d *fakeDevice) Path() string {
	return "/dev/dri/card0"
}

func (d *fakeDevice) Resources() (*kms.Resources, error) {
	return d.res, nil
}

func (d *fakeDevice) CurrentMode(crtcID uint32) (*kms.Mode, error) {
	return d.modes[crtcID], nil
}

func (d *fakeDevice) Commit(req *kms.AtomicRequest, flags kms.CommitFlags) error {
	d.commits = append(d.commits, fakeCommit{req: req, flags: flags})
	if d.reject != nil {
		if err := d.reject(req, flags); err != nil {
			return err
		}
	}
	if flags.Has(kms.FlagTestOnly) {
		return nil
	}
	for _, crtc := range d.res.Crtcs {
		prop, ok := req.Get(crtc.ID, kms.PropModeID)
		if !ok {
			continue
		}
		if prop.Blob == nil {
			delete(d.modes, crtc.ID)
			continue
		}
		mode, err := kms.DecodeMode(prop.Blob)
		if err == nil {
			d.modes[crtc.ID] = mode
		}
	}
	return nil
}

// realCommits returns the commits that reached the hardware.
func (d *fakeDevice) realCommits() []fakeCommit {
	var result []fakeCommit
	for _, c := range d.commits {
		if !c.isTest() {
			result = append(result, c)
		}
	}
	return result
}

func (d *fakeDevice) CreateDumbBuffer(width, height, format uint32) (*kms.Buffer, error) {
	d.nextID++
	buf := &kms.Buffer{
		FbID:   1000 + d.nextID,
		Handle: d.nextID,
		Width:  width,
		Height: height,
		Pitch:  width * 4,
		Format: format,
		Data:   make([]byte, width*height*4),
	}
	d.buffers[buf.FbID] = buf
	return buf, nil
}

func (d *fakeDevice) DestroyBuffer(buf *kms.Buffer) error {
	delete(d.buffers, buf.FbID)
	return nil
}

func (d *fakeDevice) CreateLease(objects []uint32) (*kms.Lease, error) {
	d.nextID++
	lease := &kms.Lease{LesseeID: d.nextID, FD: 42, Objects: objects}
	d.leases[lease.LesseeID] = lease
	return lease, nil
}

func (d *fakeDevice) RevokeLease(lesseeID uint32) error {
	if _, ok := d.leases[lesseeID]; !ok {
		return kms.ErrInvalidArguments
	}
	delete(d.leases, lesseeID)
	return nil
}

func (d *fakeDevice) Events() <-chan kms.PageFlipEvent {
	return d.events
}

func (d *fakeDevice) AsyncPageflipSupported() bool {
	return d.asyncFlip
}

func (d *fakeDevice) Close() error {
	return nil
}

func testModes() []*kms.Mode {
	return []*kms.Mode{
		{ID: 1, Name: "1920x1080", Clock: 148500, Width: 1920, HTotal: 2200, Height: 1080, VTotal: 1125,
			Type: kms.ModeTypePreferred},
		{ID: 2, Name: "1920x1080", Clock: 356400, Width: 1920, HTotal: 2200, Height: 1080, VTotal: 1125},
		{ID: 3, Name: "1280x720", Clock: 74250, Width: 1280, HTotal: 1650, Height: 720, VTotal: 750},
		{ID: 4, Name: "2560x1440", Clock: 597312, Width: 2560, HTotal: 2720, Height: 1440, VTotal: 1525},
	}
}

func testProps(names ...string) kms.Props {
	props := make(kms.Props)
	for i, name := range names {
		props[name] = &kms.Property{ID: uint32(500 + i), Name: name}
	}
	return props
}

type crtcFeatures int

const (
	crtcCtm crtcFeatures = 1 << iota
	crtcGamma
)

// newFakeDevice builds a device with one crtc per connector. All connectors
// are connected HDMI ports usable with every crtc.
func newFakeDevice(connectors int, features crtcFeatures) *fakeDevice {
	res := &kms.Resources{}
	all := uint32(1)<<uint(connectors) - 1
	planeProps := []string{kms.PropFbID, kms.PropCrtcID, kms.PropSrcX, kms.PropSrcY, kms.PropSrcW,
		kms.PropSrcH, kms.PropCrtcX, kms.PropCrtcY, kms.PropCrtcW, kms.PropCrtcH}
	for i := 0; i < connectors; i++ {
		crtcProps := []string{kms.PropActive, kms.PropModeID, kms.PropVrrEnabled}
		if features&crtcCtm != 0 {
			crtcProps = append(crtcProps, kms.PropCtm)
		}
		var gammaSize uint32
		if features&crtcGamma != 0 {
			crtcProps = append(crtcProps, kms.PropGammaLut)
			gammaSize = 256
		}
		res.Crtcs = append(res.Crtcs, &kms.Crtc{
			ID:        uint32(100 + i),
			Index:     i,
			GammaSize: gammaSize,
			Props:     testProps(crtcProps...),
		})
		res.Planes = append(res.Planes,
			&kms.Plane{ID: uint32(200 + i), Type: kms.PlanePrimary, PossibleCrtcs: 1 << uint(i),
				Formats: []uint32{kms.FormatXRGB8888}, Props: testProps(planeProps...)},
			&kms.Plane{ID: uint32(300 + i), Type: kms.PlaneCursor, PossibleCrtcs: 1 << uint(i),
				Formats: []uint32{kms.FormatARGB8888}, Props: testProps(planeProps...)},
		)
		res.Connectors = append(res.Connectors, &kms.Connector{
			ID:            uint32(10 + i),
			Type:          11,
			TypeID:        uint32(i + 1),
			Name:          kms.ConnectorName(11, uint32(i+1)),
			Connected:     true,
			MmWidth:       600,
			MmHeight:      340,
			Modes:         testModes(),
			PossibleCrtcs: all,
			Props:         testProps(kms.PropCrtcID),
		})
	}
	return &fakeDevice{
		res:     res,
		modes:   make(map[uint32]*kms.Mode),
		events:  make(chan kms.PageFlipEvent),
		buffers: make(map[uint32]*kms.Buffer),
		leases:  make(map[uint32]*kms.Lease),
	}
}

func newTestGpu(t *testing.T, device *fakeDevice, sched *manualScheduler) *Gpu {
	g := NewGpu(device, sched)
	g.SetWaitIdleTimeout(time.Millisecond)
	_, err := g.UpdateResources()
	require.NoError(t, err)
	return g
}

func newTestOutput(g *Gpu, conn *kms.Connector, sched *manualScheduler) *Output {
	p := g.AddPipeline(conn)
	return NewOutput(g, p, sched)
}

// enableOutput switches o on with its preferred mode and modesets.
func enableOutput(t *testing.T, o *Output) {
	enabled := true
	cs := &OutputChangeSet{Enabled: &enabled, Mode: o.pipeline.connector.PreferredMode()}
	require.True(t, o.QueueChanges(cs))
	require.Equal(t, ErrorNone, o.gpu.TestPendingConfiguration())
	o.ApplyQueuedChanges(cs)
	require.True(t, o.IsEnabled())
	require.True(t, o.gpu.MaybeModeset())
	require.False(t, o.pipeline.NeedsModeset())
}

// testEnv is one output on a single crtc device.
type testEnv struct {
	sched  *manualScheduler
	device *fakeDevice
	gpu    *Gpu
	output *Output
}

func newTestEnv(t *testing.T, features crtcFeatures) *testEnv {
	sched := &manualScheduler{}
	device := newFakeDevice(1, features)
	g := newTestGpu(t, device, sched)
	o := newTestOutput(g, device.res.Connectors[0], sched)
	enableOutput(t, o)
	device.commits = nil
	return &testEnv{sched: sched, device: device, gpu: g, output: o}
}

// newMultiEnv enables n outputs, one per crtc.
func newMultiEnv(t *testing.T, n int) (*manualScheduler, *fakeDevice, *Gpu, []*Output) {
	sched := &manualScheduler{}
	device := newFakeDevice(n, 0)
	g := newTestGpu(t, device, sched)
	var outputs []*Output
	for _, conn := range device.res.Connectors {
		outputs = append(outputs, newTestOutput(g, conn, sched))
	}
	for _, o := range outputs {
		enableOutput(t, o)
	}
	device.commits = nil
	return sched, device, g, outputs
}
