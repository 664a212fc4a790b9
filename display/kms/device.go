package kms

import (
	"errors"
	"time"
)

type CommitFlags uint32

const (
	FlagTestOnly CommitFlags = 1 << iota
	FlagAllowModeset
	FlagPageFlipEvent
	FlagNonBlock
	FlagAsync
)

func (f CommitFlags) Has(flag CommitFlags) bool {
	return f&flag == flag
}

var (
	ErrInvalidArguments = errors.New("kms: invalid arguments")
	ErrNoPermission     = errors.New("kms: no permission")
	ErrBusy             = errors.New("kms: device busy")
	ErrNotSupported     = errors.New("kms: not supported")
)

// PageFlipEvent reports that a commit requested with FlagPageFlipEvent was
// scanned out.
type PageFlipEvent struct {
	CrtcID   uint32
	Sequence uint32
	// Timestamp on the monotonic clock.
	Timestamp time.Duration
}

// Lease is a set of objects handed out to another client.
type Lease struct {
	LesseeID uint32
	// FD is the lease file descriptor to pass to the lessee.
	FD      int
	Objects []uint32
}

// Buffer is a scanout framebuffer.
type Buffer struct {
	FbID   uint32
	Handle uint32
	Width  uint32
	Height uint32
	Pitch  uint32
	Format uint32
	// Data is the CPU mapping of dumb buffers, nil for imported buffers.
	Data []byte
}

// Device is a display device that takes atomic property transactions.
type Device interface {
	Path() string
	Resources() (*Resources, error)
	// CurrentMode returns the mode the crtc is programmed with, nil when the
	// crtc is off.
	CurrentMode(crtcID uint32) (*Mode, error)
	Commit(req *AtomicRequest, flags CommitFlags) error
	CreateDumbBuffer(width, height, format uint32) (*Buffer, error)
	DestroyBuffer(buf *Buffer) error
	CreateLease(objects []uint32) (*Lease, error)
	RevokeLease(lesseeID uint32) error
	Events() <-chan PageFlipEvent
	AsyncPageflipSupported() bool
	Close() error
}

// pixel formats, fourcc codes
const (
	FormatXRGB8888 = 0x34325258
	FormatARGB8888 = 0x34325241
)
