// Package drm drives a display device through the kernel's atomic
// mode setting interface.
package drm

import (
	"os"
	"sync"
	"syscall"
	"unsafe"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"github.com/linuxdeepin/go-lib/log"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("dde-kms/drm")

func SetLogLevel(level log.Priority) {
	logger.SetLogLevel(level)
}

// Device is an opened DRM card.
type Device struct {
	file *os.File
	conn syscall.RawConn
	path string

	asyncFlip bool
	events    chan kms.PageFlipEvent
	done      chan struct{}

	mu sync.Mutex
	// property definitions by property id
	propDefs map[uint32]*kms.Property
	// object properties from the last resource scan
	objectProps map[uint32]kms.Props
	mappings    map[uint32][]byte
}

// Open opens the card at path and enables atomic mode setting.
func Open(path string) (*Device, error) {
	file, err := os.OpenFile(path, os.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	conn, err := file.SyscallConn()
	if err != nil {
		file.Close()
		return nil, err
	}
	d := &Device{
		file:        file,
		conn:        conn,
		path:        path,
		events:      make(chan kms.PageFlipEvent, 16),
		done:        make(chan struct{}),
		propDefs:    make(map[uint32]*kms.Property),
		objectProps: make(map[uint32]kms.Props),
		mappings:    make(map[uint32][]byte),
	}

	for _, c := range []uint64{clientCapUniversalPlanes, clientCapAtomic} {
		err = d.setClientCap(c, 1)
		if err != nil {
			file.Close()
			return nil, xerrors.Errorf("%s doesn't support atomic mode setting: %w", path, err)
		}
	}
	if v, err := d.getCap(capAtomicAsyncPageFlip); err == nil {
		d.asyncFlip = v == 1
	} else if v, err := d.getCap(capAsyncPageFlip); err == nil {
		d.asyncFlip = v == 1
	}
	logger.Debugf("opened %s, async page flip: %v", path, d.asyncFlip)

	go d.readEvents()
	return d, nil
}

// ioctl runs a request without taking the file out of non-blocking mode,
// so that Close interrupts the event reader.
func (d *Device) ioctl(name string, req uintptr, arg unsafe.Pointer) error {
	var err error
	cerr := d.conn.Control(func(fd uintptr) {
		err = ioctl(fd, name, req, arg)
	})
	if cerr != nil {
		return cerr
	}
	return err
}

func (d *Device) setClientCap(c, value uint64) error {
	arg := capability{Capability: c, Value: value}
	return d.ioctl("SET_CLIENT_CAP", ioctlSetClientCap, unsafe.Pointer(&arg))
}

func (d *Device) getCap(c uint64) (uint64, error) {
	arg := capability{Capability: c}
	err := d.ioctl("GET_CAP", ioctlGetCap, unsafe.Pointer(&arg))
	return arg.Value, err
}

func (d *Device) Path() string {
	return d.path
}

func (d *Device) AsyncPageflipSupported() bool {
	return d.asyncFlip
}

func (d *Device) Events() <-chan kms.PageFlipEvent {
	return d.events
}

// Close releases the card. The events channel is closed once the reader
// stopped.
func (d *Device) Close() error {
	d.mu.Lock()
	for handle, data := range d.mappings {
		_ = unix.Munmap(data)
		delete(d.mappings, handle)
	}
	d.mu.Unlock()
	err := d.file.Close()
	<-d.done
	return err
}
