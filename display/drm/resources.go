package drm

import (
	"runtime"
	"unsafe"

	"github.com/linuxdeepin/dde-kms/display/kms"
	"golang.org/x/xerrors"
)

const propEdid = "EDID"

// Resources scans crtcs, planes and connectors with their properties.
func (d *Device) Resources() (*kms.Resources, error) {
	crtcIDs, connectorIDs, err := d.getResources()
	if err != nil {
		return nil, err
	}
	planeIDs, err := d.getPlaneResources()
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	objectProps := make(map[uint32]kms.Props)
	res := &kms.Resources{}

	for i, id := range crtcIDs {
		crtc, err := d.getCrtc(id, i)
		if err != nil {
			return nil, err
		}
		objectProps[id] = crtc.Props
		res.Crtcs = append(res.Crtcs, crtc)
	}
	for _, id := range planeIDs {
		plane, err := d.getPlane(id)
		if err != nil {
			return nil, err
		}
		objectProps[id] = plane.Props
		res.Planes = append(res.Planes, plane)
	}
	for _, id := range connectorIDs {
		conn, err := d.getConnector(id, crtcIDs)
		if err != nil {
			// connectors may vanish while scanning, e.g. mst hubs
			logger.Warningf("failed to get connector %d: %v", id, err)
			continue
		}
		objectProps[id] = conn.Props
		res.Connectors = append(res.Connectors, conn)
	}
	d.objectProps = objectProps
	return res, nil
}

func (d *Device) getResources() (crtcs, connectors []uint32, err error) {
	for {
		var count cardRes
		err = d.ioctl("GETRESOURCES", ioctlModeGetResources, unsafe.Pointer(&count))
		if err != nil {
			return nil, nil, err
		}
		crtcs = make([]uint32, count.CountCrtcs)
		connectors = make([]uint32, count.CountConnectors)
		encoders := make([]uint32, count.CountEncoders)
		res := cardRes{
			CrtcIDPtr:       slicePtr32(crtcs),
			ConnectorIDPtr:  slicePtr32(connectors),
			EncoderIDPtr:    slicePtr32(encoders),
			CountCrtcs:      count.CountCrtcs,
			CountConnectors: count.CountConnectors,
			CountEncoders:   count.CountEncoders,
		}
		err = d.ioctl("GETRESOURCES", ioctlModeGetResources, unsafe.Pointer(&res))
		runtime.KeepAlive(crtcs)
		runtime.KeepAlive(connectors)
		runtime.KeepAlive(encoders)
		if err != nil {
			return nil, nil, err
		}
		// hotplug between both calls
		if res.CountCrtcs > count.CountCrtcs || res.CountConnectors > count.CountConnectors ||
			res.CountEncoders > count.CountEncoders {
			continue
		}
		return crtcs[:res.CountCrtcs], connectors[:res.CountConnectors], nil
	}
}

func (d *Device) getPlaneResources() ([]uint32, error) {
	var count getPlaneRes
	err := d.ioctl("GETPLANERESOURCES", ioctlModeGetPlaneRes, unsafe.Pointer(&count))
	if err != nil {
		return nil, err
	}
	planes := make([]uint32, count.CountPlanes)
	res := getPlaneRes{
		PlaneIDPtr:  slicePtr32(planes),
		CountPlanes: count.CountPlanes,
	}
	err = d.ioctl("GETPLANERESOURCES", ioctlModeGetPlaneRes, unsafe.Pointer(&res))
	runtime.KeepAlive(planes)
	if err != nil {
		return nil, err
	}
	return planes[:res.CountPlanes], nil
}

func (d *Device) getCrtc(id uint32, index int) (*kms.Crtc, error) {
	arg := modeCrtc{CrtcID: id}
	err := d.ioctl("GETCRTC", ioctlModeGetCrtc, unsafe.Pointer(&arg))
	if err != nil {
		return nil, err
	}
	props, err := d.objectProperties(id, objectCrtc)
	if err != nil {
		return nil, err
	}
	crtc := &kms.Crtc{
		ID:        id,
		Index:     index,
		GammaSize: arg.GammaSize,
		Props:     props,
	}
	if p := props.Get(kms.PropGammaLutSize); p != nil {
		crtc.GammaSize = uint32(p.Value)
	}
	return crtc, nil
}

// CurrentMode returns the mode the crtc is programmed with.
func (d *Device) CurrentMode(crtcID uint32) (*kms.Mode, error) {
	arg := modeCrtc{CrtcID: crtcID}
	err := d.ioctl("GETCRTC", ioctlModeGetCrtc, unsafe.Pointer(&arg))
	if err != nil {
		return nil, err
	}
	if arg.ModeValid == 0 {
		return nil, nil
	}
	return kms.DecodeMode(arg.Mode[:])
}

func (d *Device) getPlane(id uint32) (*kms.Plane, error) {
	var formats []uint32
	var arg getPlane
	for {
		arg = getPlane{
			PlaneID:          id,
			CountFormatTypes: uint32(len(formats)),
			FormatTypePtr:    slicePtr32(formats),
		}
		err := d.ioctl("GETPLANE", ioctlModeGetPlane, unsafe.Pointer(&arg))
		runtime.KeepAlive(formats)
		if err != nil {
			return nil, err
		}
		if int(arg.CountFormatTypes) <= len(formats) {
			break
		}
		formats = make([]uint32, arg.CountFormatTypes)
	}
	props, err := d.objectProperties(id, objectPlane)
	if err != nil {
		return nil, err
	}

	plane := &kms.Plane{
		ID:            id,
		Type:          kms.PlaneOverlay,
		PossibleCrtcs: arg.PossibleCrtcs,
		Formats:       formats[:arg.CountFormatTypes],
		Props:         props,
	}
	if p := props.Get(kms.PropType); p != nil {
		plane.Type = kms.PlaneType(p.Value)
	}
	if p := props.Get(kms.PropRotation); p != nil {
		for _, bit := range p.Enums {
			plane.Rotations |= kms.Rotation(1) << bit
		}
	}
	return plane, nil
}

func (d *Device) getConnector(id uint32, crtcIDs []uint32) (*kms.Connector, error) {
	var modes []byte
	var encoders []uint32
	var arg getConnector
	for {
		arg = getConnector{
			ConnectorID:   id,
			CountModes:    uint32(len(modes) / kms.ModeInfoSize),
			CountEncoders: uint32(len(encoders)),
			EncodersPtr:   slicePtr32(encoders),
		}
		if len(modes) > 0 {
			arg.ModesPtr = ptr(unsafe.Pointer(&modes[0]))
		}
		err := d.ioctl("GETCONNECTOR", ioctlModeGetConnector, unsafe.Pointer(&arg))
		runtime.KeepAlive(modes)
		runtime.KeepAlive(encoders)
		if err != nil {
			return nil, err
		}
		if int(arg.CountModes)*kms.ModeInfoSize <= len(modes) && int(arg.CountEncoders) <= len(encoders) {
			break
		}
		modes = make([]byte, int(arg.CountModes)*kms.ModeInfoSize)
		encoders = make([]uint32, arg.CountEncoders)
	}

	props, err := d.objectProperties(id, objectConnector)
	if err != nil {
		return nil, err
	}
	typ := kms.ConnectorType(arg.ConnectorType)
	conn := &kms.Connector{
		ID:        id,
		Type:      typ,
		TypeID:    arg.ConnectorTypeID,
		Name:      kms.ConnectorName(typ, arg.ConnectorTypeID),
		Connected: arg.Connection == connectorStatusConnected,
		MmWidth:   arg.MmWidth,
		MmHeight:  arg.MmHeight,
		Subpixel:  arg.Subpixel,
		Props:     props,
	}
	if p := props.Get(propEdid); p != nil {
		conn.EDID = p.Blob
	}
	for i := 0; i < int(arg.CountModes); i++ {
		mode, err := kms.DecodeMode(modes[i*kms.ModeInfoSize:])
		if err != nil {
			return nil, err
		}
		mode.ID = uint32(i + 1)
		conn.Modes = append(conn.Modes, mode)
	}

	for _, encoderID := range encoders[:arg.CountEncoders] {
		enc := getEncoder{EncoderID: encoderID}
		err := d.ioctl("GETENCODER", ioctlModeGetEncoder, unsafe.Pointer(&enc))
		if err != nil {
			logger.Warningf("failed to get encoder %d: %v", encoderID, err)
			continue
		}
		conn.PossibleCrtcs |= enc.PossibleCrtcs
		if encoderID == arg.EncoderID && enc.CrtcID != 0 {
			conn.CrtcID = enc.CrtcID
		}
	}
	if p := props.Get(kms.PropCrtcID); p != nil && p.Value != 0 {
		conn.CrtcID = uint32(p.Value)
	}
	if !containsID(crtcIDs, conn.CrtcID) {
		conn.CrtcID = 0
	}
	return conn, nil
}

func containsID(ids []uint32, id uint32) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// objectProperties returns the properties of an object with their current
// values. Immutable blobs are read as well.
func (d *Device) objectProperties(id uint32, typ uint32) (kms.Props, error) {
	var ids []uint32
	var values []uint64
	var arg objGetProperties
	for {
		arg = objGetProperties{
			ObjID:         id,
			ObjType:       typ,
			CountProps:    uint32(len(ids)),
			PropsPtr:      slicePtr32(ids),
			PropValuesPtr: slicePtr64(values),
		}
		err := d.ioctl("OBJ_GETPROPERTIES", ioctlModeObjGetProps, unsafe.Pointer(&arg))
		runtime.KeepAlive(ids)
		runtime.KeepAlive(values)
		if err != nil {
			return nil, xerrors.Errorf("properties of object %d: %w", id, err)
		}
		if int(arg.CountProps) <= len(ids) {
			break
		}
		ids = make([]uint32, arg.CountProps)
		values = make([]uint64, arg.CountProps)
	}

	props := make(kms.Props, arg.CountProps)
	for i, propID := range ids[:arg.CountProps] {
		def, err := d.propertyDef(propID)
		if err != nil {
			return nil, err
		}
		prop := *def
		prop.Value = values[i]
		if prop.Flags&kms.PropFlagBlob != 0 && prop.Immutable() && prop.Value != 0 {
			prop.Blob, err = d.getBlob(uint32(prop.Value))
			if err != nil {
				logger.Debugf("failed to read blob of %s: %v", prop.Name, err)
			}
		}
		props[prop.Name] = &prop
	}
	return props, nil
}

// propertyDef returns the cached definition of a property.
func (d *Device) propertyDef(id uint32) (*kms.Property, error) {
	if def, ok := d.propDefs[id]; ok {
		return def, nil
	}
	var count getProperty
	count.PropID = id
	err := d.ioctl("GETPROPERTY", ioctlModeGetProperty, unsafe.Pointer(&count))
	if err != nil {
		return nil, err
	}

	values := make([]uint64, count.CountValues)
	enums := make([]propertyEnum, count.CountEnumBlobs)
	arg := getProperty{
		PropID:         id,
		CountValues:    count.CountValues,
		ValuesPtr:      slicePtr64(values),
		CountEnumBlobs: count.CountEnumBlobs,
	}
	isEnum := count.Flags&(kms.PropFlagEnum|kms.PropFlagBitmask) != 0
	if isEnum && len(enums) > 0 {
		arg.EnumBlobPtr = ptr(unsafe.Pointer(&enums[0]))
	} else {
		arg.CountEnumBlobs = 0
	}
	err = d.ioctl("GETPROPERTY", ioctlModeGetProperty, unsafe.Pointer(&arg))
	runtime.KeepAlive(values)
	runtime.KeepAlive(enums)
	if err != nil {
		return nil, err
	}

	def := &kms.Property{
		ID:    id,
		Name:  cString(arg.Name[:]),
		Flags: arg.Flags,
	}
	if arg.Flags&kms.PropFlagRange != 0 && len(values) >= 2 {
		def.Min, def.Max = values[0], values[1]
	}
	if isEnum {
		def.Enums = make(map[string]uint64, len(enums))
		for _, e := range enums[:arg.CountEnumBlobs] {
			def.Enums[cString(e.Name[:])] = e.Value
		}
	}
	d.propDefs[id] = def
	return def, nil
}

func (d *Device) getBlob(id uint32) ([]byte, error) {
	arg := getBlob{BlobID: id}
	err := d.ioctl("GETPROPBLOB", ioctlModeGetPropBlob, unsafe.Pointer(&arg))
	if err != nil {
		return nil, err
	}
	if arg.Length == 0 {
		return nil, nil
	}
	data := make([]byte, arg.Length)
	arg.Data = ptr(unsafe.Pointer(&data[0]))
	err = d.ioctl("GETPROPBLOB", ioctlModeGetPropBlob, unsafe.Pointer(&arg))
	runtime.KeepAlive(data)
	if err != nil {
		return nil, err
	}
	return data, nil
}
