package drm

import (
	"unsafe"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// CreateDumbBuffer allocates a CPU mapped scanout buffer.
func (d *Device) CreateDumbBuffer(width, height, format uint32) (*kms.Buffer, error) {
	depth := uint32(24)
	switch format {
	case kms.FormatXRGB8888:
	case kms.FormatARGB8888:
		depth = 32
	default:
		return nil, xerrors.Errorf("unsupported format %#x: %w", format, kms.ErrNotSupported)
	}

	dumb := createDumb{Width: width, Height: height, Bpp: 32}
	err := d.ioctl("CREATE_DUMB", ioctlModeCreateDumb, unsafe.Pointer(&dumb))
	if err != nil {
		return nil, err
	}
	buf := &kms.Buffer{
		Handle: dumb.Handle,
		Width:  width,
		Height: height,
		Pitch:  dumb.Pitch,
		Format: format,
	}

	fb := fbCmd{
		Width:  width,
		Height: height,
		Pitch:  dumb.Pitch,
		Bpp:    32,
		Depth:  depth,
		Handle: dumb.Handle,
	}
	err = d.ioctl("ADDFB", ioctlModeAddFb, unsafe.Pointer(&fb))
	if err != nil {
		d.destroyDumb(buf.Handle)
		return nil, err
	}
	buf.FbID = fb.FbID

	m := mapDumb{Handle: dumb.Handle}
	err = d.ioctl("MAP_DUMB", ioctlModeMapDumb, unsafe.Pointer(&m))
	if err == nil {
		cerr := d.conn.Control(func(fd uintptr) {
			buf.Data, err = unix.Mmap(int(fd), int64(m.Offset), int(dumb.Size),
				unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		})
		if cerr != nil {
			err = cerr
		}
	}
	if err != nil {
		_ = d.DestroyBuffer(buf)
		return nil, xerrors.Errorf("map dumb buffer: %w", err)
	}

	d.mu.Lock()
	d.mappings[buf.Handle] = buf.Data
	d.mu.Unlock()
	return buf, nil
}

// DestroyBuffer releases a buffer made by CreateDumbBuffer.
func (d *Device) DestroyBuffer(buf *kms.Buffer) error {
	d.mu.Lock()
	data, mapped := d.mappings[buf.Handle]
	delete(d.mappings, buf.Handle)
	d.mu.Unlock()
	if mapped {
		if err := unix.Munmap(data); err != nil {
			logger.Warning("munmap:", err)
		}
	}
	buf.Data = nil

	var result error
	if buf.FbID != 0 {
		fbID := buf.FbID
		if err := d.ioctl("RMFB", ioctlModeRmFb, unsafe.Pointer(&fbID)); err != nil {
			result = err
		}
		buf.FbID = 0
	}
	if err := d.destroyDumb(buf.Handle); err != nil && result == nil {
		result = err
	}
	return result
}

func (d *Device) destroyDumb(handle uint32) error {
	arg := destroyDumb{Handle: handle}
	return d.ioctl("DESTROY_DUMB", ioctlModeDestroyDumb, unsafe.Pointer(&arg))
}
