package drm

import (
	"runtime"
	"unsafe"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"golang.org/x/xerrors"
)

// atomicArrays is struct drm_mode_atomic's view of a request: properties
// grouped per object.
type atomicArrays struct {
	objects []uint32
	counts  []uint32
	props   []uint32
	values  []uint64
}

// flattenRequest resolves property names to ids. blobID creates the blobs
// of blob properties.
func flattenRequest(req *kms.AtomicRequest, objectProps map[uint32]kms.Props,
	blobID func(data []byte) (uint32, error)) (*atomicArrays, error) {
	byObject := make(map[uint32][]kms.AtomicProperty)
	for _, prop := range req.Properties() {
		byObject[prop.Object] = append(byObject[prop.Object], prop)
	}

	arrays := &atomicArrays{}
	for _, object := range req.Objects() {
		props := objectProps[object]
		if props == nil {
			return nil, xerrors.Errorf("unknown object %d: %w", object, kms.ErrInvalidArguments)
		}
		list := byObject[object]
		for _, prop := range list {
			p := props.Get(prop.Name)
			if p == nil {
				return nil, xerrors.Errorf("object %d has no property %q: %w",
					object, prop.Name, kms.ErrInvalidArguments)
			}
			value := prop.Value
			if prop.IsBlob {
				value = 0
				if len(prop.Blob) > 0 {
					id, err := blobID(prop.Blob)
					if err != nil {
						return nil, err
					}
					value = uint64(id)
				}
			}
			arrays.props = append(arrays.props, p.ID)
			arrays.values = append(arrays.values, value)
		}
		arrays.objects = append(arrays.objects, object)
		arrays.counts = append(arrays.counts, uint32(len(list)))
	}
	return arrays, nil
}

func atomicFlags(flags kms.CommitFlags) uint32 {
	var result uint32
	if flags.Has(kms.FlagTestOnly) {
		result |= modeAtomicTestOnly
	}
	if flags.Has(kms.FlagAllowModeset) {
		result |= modeAtomicAllowModeset
	}
	if flags.Has(kms.FlagPageFlipEvent) {
		result |= modePageFlipEvent
	}
	if flags.Has(kms.FlagNonBlock) {
		result |= modeAtomicNonBlock
	}
	if flags.Has(kms.FlagAsync) {
		result |= modePageFlipAsync
	}
	return result
}

// Commit submits req as one atomic transaction.
func (d *Device) Commit(req *kms.AtomicRequest, flags kms.CommitFlags) error {
	d.mu.Lock()
	objectProps := d.objectProps
	d.mu.Unlock()

	var blobs []uint32
	defer func() {
		// the kernel keeps its own reference for blobs in use
		for _, id := range blobs {
			d.destroyBlob(id)
		}
	}()
	arrays, err := flattenRequest(req, objectProps, func(data []byte) (uint32, error) {
		id, err := d.createBlob(data)
		if err == nil {
			blobs = append(blobs, id)
		}
		return id, err
	})
	if err != nil {
		return err
	}
	if len(arrays.objects) == 0 {
		return nil
	}

	arg := modeAtomic{
		Flags:         atomicFlags(flags),
		CountObjs:     uint32(len(arrays.objects)),
		ObjsPtr:       slicePtr32(arrays.objects),
		CountPropsPtr: slicePtr32(arrays.counts),
		PropsPtr:      slicePtr32(arrays.props),
		PropValuesPtr: slicePtr64(arrays.values),
	}
	err = d.ioctl("ATOMIC", ioctlModeAtomic, unsafe.Pointer(&arg))
	runtime.KeepAlive(arrays)
	return err
}

func (d *Device) createBlob(data []byte) (uint32, error) {
	arg := createBlob{
		Data:   ptr(unsafe.Pointer(&data[0])),
		Length: uint32(len(data)),
	}
	err := d.ioctl("CREATEPROPBLOB", ioctlModeCreatePropBlob, unsafe.Pointer(&arg))
	runtime.KeepAlive(data)
	return arg.BlobID, err
}

func (d *Device) destroyBlob(id uint32) {
	arg := destroyBlob{BlobID: id}
	err := d.ioctl("DESTROYPROPBLOB", ioctlModeDestroyPropBlob, unsafe.Pointer(&arg))
	if err != nil {
		logger.Warningf("failed to destroy blob %d: %v", id, err)
	}
}
