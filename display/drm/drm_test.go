package drm

import (
	"encoding/binary"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unsafe"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

func Test_structSizes(t *testing.T) {
	// sizes are encoded in the ioctl numbers
	for _, c := range []struct {
		req  uintptr
		size uintptr
	}{
		{ioctlGetCap, unsafe.Sizeof(capability{})},
		{ioctlSetClientCap, unsafe.Sizeof(capability{})},
		{ioctlModeGetResources, unsafe.Sizeof(cardRes{})},
		{ioctlModeGetCrtc, unsafe.Sizeof(modeCrtc{})},
		{ioctlModeGetEncoder, unsafe.Sizeof(getEncoder{})},
		{ioctlModeGetConnector, unsafe.Sizeof(getConnector{})},
		{ioctlModeGetProperty, unsafe.Sizeof(getProperty{})},
		{ioctlModeGetPropBlob, unsafe.Sizeof(getBlob{})},
		{ioctlModeAddFb, unsafe.Sizeof(fbCmd{})},
		{ioctlModeCreateDumb, unsafe.Sizeof(createDumb{})},
		{ioctlModeMapDumb, unsafe.Sizeof(mapDumb{})},
		{ioctlModeDestroyDumb, unsafe.Sizeof(destroyDumb{})},
		{ioctlModeGetPlaneRes, unsafe.Sizeof(getPlaneRes{})},
		{ioctlModeGetPlane, unsafe.Sizeof(getPlane{})},
		{ioctlModeObjGetProps, unsafe.Sizeof(objGetProperties{})},
		{ioctlModeAtomic, unsafe.Sizeof(modeAtomic{})},
		{ioctlModeCreatePropBlob, unsafe.Sizeof(createBlob{})},
		{ioctlModeDestroyPropBlob, unsafe.Sizeof(destroyBlob{})},
		{ioctlModeCreateLease, unsafe.Sizeof(createLease{})},
		{ioctlModeRevokeLease, unsafe.Sizeof(revokeLease{})},
	} {
		assert.Equal(t, c.size, (c.req>>16)&0x3fff, "ioctl %#x", c.req)
	}
	assert.Equal(t, uintptr(40), unsafe.Sizeof(propertyEnum{}))
}

func Test_mapErrno(t *testing.T) {
	assert.Equal(t, kms.ErrInvalidArguments, mapErrno(unix.EINVAL))
	assert.Equal(t, kms.ErrNoPermission, mapErrno(unix.EACCES))
	assert.Equal(t, kms.ErrBusy, mapErrno(unix.EBUSY))
	assert.Equal(t, kms.ErrNotSupported, mapErrno(unix.EOPNOTSUPP))
	assert.Equal(t, unix.ENOMEM, mapErrno(unix.ENOMEM))

	err := xerrors.Errorf("%s: %v: %w", "ATOMIC", unix.EBUSY, mapErrno(unix.EBUSY))
	assert.True(t, xerrors.Is(err, kms.ErrBusy))
}

func Test_atomicFlags(t *testing.T) {
	assert.Equal(t, uint32(modeAtomicTestOnly|modeAtomicAllowModeset),
		atomicFlags(kms.FlagTestOnly|kms.FlagAllowModeset))
	assert.Equal(t, uint32(modeAtomicNonBlock|modePageFlipEvent|modePageFlipAsync),
		atomicFlags(kms.FlagNonBlock|kms.FlagPageFlipEvent|kms.FlagAsync))
	assert.Equal(t, uint32(0), atomicFlags(0))
}

func testProps(names ...string) kms.Props {
	props := make(kms.Props)
	for i, name := range names {
		props[name] = &kms.Property{ID: uint32(500 + i), Name: name}
	}
	return props
}

func Test_flattenRequest(t *testing.T) {
	objectProps := map[uint32]kms.Props{
		100: testProps(kms.PropActive, kms.PropModeID),
		10:  testProps(kms.PropCrtcID),
	}
	req := kms.NewAtomicRequest()
	req.Add(100, kms.PropActive, 1)
	req.Add(10, kms.PropCrtcID, 100)
	req.AddBlob(100, kms.PropModeID, []byte{1, 2, 3})

	var blobs [][]byte
	arrays, err := flattenRequest(req, objectProps, func(data []byte) (uint32, error) {
		blobs = append(blobs, data)
		return 77, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint32{100, 10}, arrays.objects)
	assert.Equal(t, []uint32{2, 1}, arrays.counts)
	assert.Equal(t, []uint32{500, 501, 500}, arrays.props)
	assert.Equal(t, []uint64{1, 77, 100}, arrays.values)
	assert.Equal(t, [][]byte{{1, 2, 3}}, blobs)

	// a nil blob resets the property without creating one
	req = kms.NewAtomicRequest()
	req.AddBlob(100, kms.PropModeID, nil)
	arrays, err = flattenRequest(req, objectProps, func([]byte) (uint32, error) {
		t.Fatal("unexpected blob")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, arrays.values)
}

func Test_flattenRequestUnknown(t *testing.T) {
	objectProps := map[uint32]kms.Props{100: testProps(kms.PropActive)}
	noBlob := func([]byte) (uint32, error) { return 0, nil }

	req := kms.NewAtomicRequest()
	req.Add(100, kms.PropCtm, 0)
	_, err := flattenRequest(req, objectProps, noBlob)
	assert.True(t, xerrors.Is(err, kms.ErrInvalidArguments))

	req = kms.NewAtomicRequest()
	req.Add(101, kms.PropActive, 0)
	_, err = flattenRequest(req, objectProps, noBlob)
	assert.True(t, xerrors.Is(err, kms.ErrInvalidArguments))
}

func vblankEvent(typ, crtcID, sequence, sec, usec uint32) []byte {
	data := make([]byte, vblankEventSize)
	binary.LittleEndian.PutUint32(data[0:], typ)
	binary.LittleEndian.PutUint32(data[4:], vblankEventSize)
	binary.LittleEndian.PutUint32(data[16:], sec)
	binary.LittleEndian.PutUint32(data[20:], usec)
	binary.LittleEndian.PutUint32(data[24:], sequence)
	binary.LittleEndian.PutUint32(data[28:], crtcID)
	return data
}

func Test_parseEvents(t *testing.T) {
	var data []byte
	data = append(data, vblankEvent(eventFlipComplete, 100, 5, 12, 500)...)
	// vblank events are ignored
	data = append(data, vblankEvent(0x01, 101, 6, 12, 600)...)
	data = append(data, vblankEvent(eventFlipComplete, 102, 7, 13, 0)...)

	events := parseEvents(data)
	require.Len(t, events, 2)
	assert.Equal(t, kms.PageFlipEvent{CrtcID: 100, Sequence: 5,
		Timestamp: 12*time.Second + 500*time.Microsecond}, events[0])
	assert.Equal(t, uint32(102), events[1].CrtcID)
	assert.Equal(t, 13*time.Second, events[1].Timestamp)

	// truncated events are dropped
	assert.Empty(t, parseEvents(data[:20]))
	bad := vblankEvent(eventFlipComplete, 100, 5, 12, 500)
	binary.LittleEndian.PutUint32(bad[4:], 4)
	assert.Empty(t, parseEvents(bad))
}

func Test_findPrimaryCard(t *testing.T) {
	dir := t.TempDir()
	mkdir := func(names ...string) {
		for _, name := range names {
			require.NoError(t, os.MkdirAll(filepath.Join(dir, name), 0755))
		}
	}

	_, err := findPrimaryCard(dir)
	assert.Error(t, err)

	// render only card without connectors
	mkdir("card0", "renderD128", "version")
	_, err = findPrimaryCard(dir)
	assert.Error(t, err)

	mkdir("card1", "card1-HDMI-A-1", "card2", "card2-eDP-1")
	card, err := findPrimaryCard(dir)
	require.NoError(t, err)
	assert.Equal(t, "card1", card)

	mkdir("card2/device")
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "card2/device/boot_vga"), []byte("1\n"), 0644))
	card, err = findPrimaryCard(dir)
	require.NoError(t, err)
	assert.Equal(t, "card2", card)
}
