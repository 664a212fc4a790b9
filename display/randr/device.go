// Package randr drives the outputs of an X server through the RandR
// extension. It presents them as an atomic mode setting device, so that
// the display manager runs unchanged inside an X session.
package randr

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"github.com/linuxdeepin/go-lib/log"
	x "github.com/linuxdeepin/go-x11-client"
	"github.com/linuxdeepin/go-x11-client/ext/randr"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("dde-kms/randr")

func SetLogLevel(level log.Priority) {
	logger.SetLogLevel(level)
}

// XIDs use the low 29 bits, planes of crtcs are numbered above them.
const planeIDFlag = 1 << 30

type Device struct {
	conn     *x.Conn
	root     x.Window
	path     string
	edidAtom x.Atom

	// configuration timestamp, also written by the event reader
	cfgTs atomic.Uint32

	mu       sync.Mutex
	modes    []randr.ModeInfo
	crtcs    []*crtcConfig
	outputs  map[randr.Output]*outputState
	buffers  map[uint32]*kms.Buffer
	nextFb   uint32
	sequence uint32
	closed   bool

	events chan kms.PageFlipEvent
	done   chan struct{}
}

type outputState struct {
	crtcs []randr.Crtc
	modes []randr.Mode
}

// Open connects to the X server named by $DISPLAY. The server must support
// RandR 1.2.
func Open() (*Device, error) {
	conn, err := x.NewConn()
	if err != nil {
		return nil, err
	}
	version, err := randr.QueryVersion(conn, randr.MajorVersion, randr.MinorVersion).Reply(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	logger.Debugf("randr version %d.%d", version.ServerMajorVersion, version.ServerMinorVersion)
	if version.ServerMajorVersion < 1 ||
		(version.ServerMajorVersion == 1 && version.ServerMinorVersion < 2) {
		conn.Close()
		return nil, xerrors.Errorf("randr %d.%d is too old: %w",
			version.ServerMajorVersion, version.ServerMinorVersion, kms.ErrNotSupported)
	}
	edidAtom, err := conn.GetAtom("EDID")
	if err != nil {
		conn.Close()
		return nil, err
	}

	d := newDevice("x11:" + os.Getenv("DISPLAY"))
	d.conn = conn
	d.root = conn.GetDefaultScreen().Root
	d.edidAtom = edidAtom
	err = d.listenEvents()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

func newDevice(path string) *Device {
	return &Device{
		path:    path,
		outputs: make(map[randr.Output]*outputState),
		buffers: make(map[uint32]*kms.Buffer),
		events:  make(chan kms.PageFlipEvent, 16),
		done:    make(chan struct{}),
	}
}

// listenEvents keeps the configuration timestamp current. Changes made by
// other clients show up with the next resource scan.
func (d *Device) listenEvents() error {
	eventChan := d.conn.MakeAndAddEventChan(50)
	err := randr.SelectInputChecked(d.conn, d.root,
		randr.NotifyMaskOutputChange|randr.NotifyMaskCrtcChange|
			randr.NotifyMaskScreenChange).Check(d.conn)
	if err != nil {
		return err
	}
	rrExtData := d.conn.GetExtensionData(randr.Ext())

	go func() {
		for {
			var ev x.GenericEvent
			select {
			case ev = <-eventChan:
			case <-d.done:
				return
			}
			switch ev.GetEventCode() {
			case randr.ScreenChangeNotifyEventCode + rrExtData.FirstEvent:
				event, err := randr.NewScreenChangeNotifyEvent(ev)
				if err != nil {
					logger.Warning(err)
					continue
				}
				d.cfgTs.Store(uint32(event.ConfigTimestamp))
			case randr.NotifyEventCode + rrExtData.FirstEvent:
				event, err := randr.NewNotifyEvent(ev)
				if err != nil {
					logger.Warning(err)
					continue
				}
				logger.Debugf("randr notify, sub code %d", event.SubCode)
			}
		}
	}()
	return nil
}

func (d *Device) Path() string {
	return d.path
}

func (d *Device) Events() <-chan kms.PageFlipEvent {
	return d.events
}

func (d *Device) AsyncPageflipSupported() bool {
	return false
}

// emitFlips reports the crtcs as presented right away, the X server does
// not tell when its own scanout flips. Called with mu held.
func (d *Device) emitFlips(crtcs []randr.Crtc) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		logger.Warning(err)
	}
	for _, crtc := range crtcs {
		d.sequence++
		if d.closed {
			return
		}
		select {
		case d.events <- kms.PageFlipEvent{
			CrtcID:    uint32(crtc),
			Sequence:  d.sequence,
			Timestamp: time.Duration(ts.Nano()),
		}:
		default:
			logger.Warningf("dropped page flip event of crtc %d", crtc)
		}
	}
}

func (d *Device) CreateDumbBuffer(width, height, format uint32) (*kms.Buffer, error) {
	if format != kms.FormatXRGB8888 && format != kms.FormatARGB8888 {
		return nil, xerrors.Errorf("format %#x: %w", format, kms.ErrNotSupported)
	}
	if width == 0 || height == 0 {
		return nil, xerrors.Errorf("buffer size %dx%d: %w", width, height, kms.ErrInvalidArguments)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextFb++
	buf := &kms.Buffer{
		FbID:   d.nextFb,
		Handle: d.nextFb,
		Width:  width,
		Height: height,
		Pitch:  width * 4,
		Format: format,
		Data:   make([]byte, width*height*4),
	}
	d.buffers[buf.FbID] = buf
	return buf, nil
}

func (d *Device) DestroyBuffer(buf *kms.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[buf.FbID]; !ok {
		return xerrors.Errorf("framebuffer %d: %w", buf.FbID, kms.ErrInvalidArguments)
	}
	delete(d.buffers, buf.FbID)
	buf.Data = nil
	return nil
}

// CreateLease is not possible, the X server keeps the drm master.
func (d *Device) CreateLease(objects []uint32) (*kms.Lease, error) {
	return nil, xerrors.Errorf("lease on %s: %w", d.path, kms.ErrNotSupported)
}

func (d *Device) RevokeLease(lesseeID uint32) error {
	return xerrors.Errorf("lease on %s: %w", d.path, kms.ErrNotSupported)
}

func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.done)
	close(d.events)
	d.mu.Unlock()
	if d.conn != nil {
		d.conn.Close()
	}
	return nil
}

var _ kms.Device = (*Device)(nil)
