package drm

import (
	"unsafe"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

// ioctl request numbers, see drm.h and drm_mode.h.
const (
	ioctlGetCap              = 0xc010640c
	ioctlSetClientCap        = 0x4010640d
	ioctlModeGetResources    = 0xc04064a0
	ioctlModeGetCrtc         = 0xc06864a1
	ioctlModeGetEncoder      = 0xc01464a6
	ioctlModeGetConnector    = 0xc05064a7
	ioctlModeGetProperty     = 0xc04064aa
	ioctlModeGetPropBlob     = 0xc01064ac
	ioctlModeAddFb           = 0xc01c64ae
	ioctlModeRmFb            = 0xc00464af
	ioctlModeCreateDumb      = 0xc02064b2
	ioctlModeMapDumb         = 0xc01064b3
	ioctlModeDestroyDumb     = 0xc00464b4
	ioctlModeGetPlaneRes     = 0xc01064b5
	ioctlModeGetPlane        = 0xc02064b6
	ioctlModeObjGetProps     = 0xc02064b9
	ioctlModeAtomic          = 0xc03864bc
	ioctlModeCreatePropBlob  = 0xc01064bd
	ioctlModeDestroyPropBlob = 0xc00464be
	ioctlModeCreateLease     = 0xc01864c6
	ioctlModeRevokeLease     = 0xc00464c9
)

const (
	clientCapUniversalPlanes = 2
	clientCapAtomic          = 3

	capAsyncPageFlip       = 0x7
	capAtomicAsyncPageFlip = 0x15
)

// atomic commit flags
const (
	modePageFlipEvent      = 0x01
	modePageFlipAsync      = 0x02
	modeAtomicTestOnly     = 0x0100
	modeAtomicNonBlock     = 0x0200
	modeAtomicAllowModeset = 0x0400
)

const (
	objectCrtc      = 0xcccccccc
	objectConnector = 0xc0c0c0c0
	objectPlane     = 0xeeeeeeee
)

const (
	connectorStatusConnected = 1

	eventFlipComplete = 0x02
	eventHeaderSize   = 8
	vblankEventSize   = 32

	propNameLen = 32
)

type cardRes struct {
	FbIDPtr         uint64
	CrtcIDPtr       uint64
	ConnectorIDPtr  uint64
	EncoderIDPtr    uint64
	CountFbs        uint32
	CountCrtcs      uint32
	CountConnectors uint32
	CountEncoders   uint32
	MinWidth        uint32
	MaxWidth        uint32
	MinHeight       uint32
	MaxHeight       uint32
}

type modeCrtc struct {
	SetConnectorsPtr uint64
	CountConnectors  uint32
	CrtcID           uint32
	FbID             uint32
	X                uint32
	Y                uint32
	GammaSize        uint32
	ModeValid        uint32
	Mode             [kms.ModeInfoSize]byte
}

type getEncoder struct {
	EncoderID      uint32
	EncoderType    uint32
	CrtcID         uint32
	PossibleCrtcs  uint32
	PossibleClones uint32
}

type getConnector struct {
	EncodersPtr     uint64
	ModesPtr        uint64
	PropsPtr        uint64
	PropValuesPtr   uint64
	CountModes      uint32
	CountProps      uint32
	CountEncoders   uint32
	EncoderID       uint32
	ConnectorID     uint32
	ConnectorType   uint32
	ConnectorTypeID uint32
	Connection      uint32
	MmWidth         uint32
	MmHeight        uint32
	Subpixel        uint32
	Pad             uint32
}

type getProperty struct {
	ValuesPtr      uint64
	EnumBlobPtr    uint64
	PropID         uint32
	Flags          uint32
	Name           [propNameLen]byte
	CountValues    uint32
	CountEnumBlobs uint32
}

type propertyEnum struct {
	Value uint64
	Name  [propNameLen]byte
}

type getBlob struct {
	BlobID uint32
	Length uint32
	Data   uint64
}

type createBlob struct {
	Data   uint64
	Length uint32
	BlobID uint32
}

type destroyBlob struct {
	BlobID uint32
}

type objGetProperties struct {
	PropsPtr      uint64
	PropValuesPtr uint64
	CountProps    uint32
	ObjID         uint32
	ObjType       uint32
	Pad           uint32
}

type getPlaneRes struct {
	PlaneIDPtr  uint64
	CountPlanes uint32
	Pad         uint32
}

type getPlane struct {
	PlaneID          uint32
	CrtcID           uint32
	FbID             uint32
	PossibleCrtcs    uint32
	GammaSize        uint32
	CountFormatTypes uint32
	FormatTypePtr    uint64
}

type modeAtomic struct {
	Flags         uint32
	CountObjs     uint32
	ObjsPtr       uint64
	CountPropsPtr uint64
	PropsPtr      uint64
	PropValuesPtr uint64
	Reserved      uint64
	UserData      uint64
}

type createDumb struct {
	Height uint32
	Width  uint32
	Bpp    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

type mapDumb struct {
	Handle uint32
	Pad    uint32
	Offset uint64
}

type destroyDumb struct {
	Handle uint32
}

type fbCmd struct {
	FbID   uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	Bpp    uint32
	Depth  uint32
	Handle uint32
}

type createLease struct {
	ObjectIDs   uint64
	ObjectCount uint32
	Flags       uint32
	LesseeID    uint32
	FD          int32
}

type revokeLease struct {
	LesseeID uint32
}

type capability struct {
	Capability uint64
	Value      uint64
}

func ioctl(fd uintptr, name string, req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
		switch errno {
		case 0:
			return nil
		case unix.EINTR, unix.EAGAIN:
			continue
		}
		return xerrors.Errorf("%s: %v: %w", name, errno, mapErrno(errno))
	}
}

// mapErrno translates kernel errors into the device independent ones.
func mapErrno(errno unix.Errno) error {
	switch errno {
	case unix.EINVAL, unix.ERANGE, unix.ENOSPC, unix.ENOENT:
		return kms.ErrInvalidArguments
	case unix.EACCES, unix.EPERM:
		return kms.ErrNoPermission
	case unix.EBUSY:
		return kms.ErrBusy
	case unix.EOPNOTSUPP, unix.ENOTTY:
		return kms.ErrNotSupported
	}
	return errno
}

func ptr(p unsafe.Pointer) uint64 {
	return uint64(uintptr(p))
}

func slicePtr32(s []uint32) uint64 {
	if len(s) == 0 {
		return 0
	}
	return ptr(unsafe.Pointer(&s[0]))
}

func slicePtr64(s []uint64) uint64 {
	if len(s) == 0 {
		return 0
	}
	return ptr(unsafe.Pointer(&s[0]))
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
