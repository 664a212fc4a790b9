package drm

import (
	"runtime"
	"unsafe"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// CreateLease leases objects to a new lessee. The caller owns the returned
// file descriptor.
func (d *Device) CreateLease(objects []uint32) (*kms.Lease, error) {
	if len(objects) == 0 {
		return nil, xerrors.Errorf("empty lease: %w", kms.ErrInvalidArguments)
	}
	ids := append([]uint32(nil), objects...)
	arg := createLease{
		ObjectIDs:   slicePtr32(ids),
		ObjectCount: uint32(len(ids)),
		Flags:       unix.O_CLOEXEC,
	}
	err := d.ioctl("CREATE_LEASE", ioctlModeCreateLease, unsafe.Pointer(&arg))
	runtime.KeepAlive(ids)
	if err != nil {
		return nil, err
	}
	return &kms.Lease{
		LesseeID: arg.LesseeID,
		FD:       int(arg.FD),
		Objects:  ids,
	}, nil
}

func (d *Device) RevokeLease(lesseeID uint32) error {
	arg := revokeLease{LesseeID: lesseeID}
	return d.ioctl("REVOKE_LEASE", ioctlModeRevokeLease, unsafe.Pointer(&arg))
}

var _ kms.Device = (*Device)(nil)
