package drm

import (
	"encoding/binary"
	"time"

	"github.com/linuxdeepin/dde-kms/display/kms"
)

func (d *Device) readEvents() {
	defer close(d.done)
	defer close(d.events)

	buf := make([]byte, 1024)
	for {
		n, err := d.file.Read(buf)
		if err != nil {
			logger.Debug("stop reading events:", err)
			return
		}
		for _, ev := range parseEvents(buf[:n]) {
			d.events <- ev
		}
	}
}

// parseEvents decodes the page flip events of a read from the card. Other
// events are skipped.
func parseEvents(data []byte) []kms.PageFlipEvent {
	var result []kms.PageFlipEvent
	for len(data) >= eventHeaderSize {
		typ := binary.LittleEndian.Uint32(data[0:])
		length := int(binary.LittleEndian.Uint32(data[4:]))
		if length < eventHeaderSize || length > len(data) {
			logger.Warningf("malformed event of length %d", length)
			break
		}
		if typ == eventFlipComplete && length >= vblankEventSize {
			// struct drm_event_vblank
			sec := binary.LittleEndian.Uint32(data[16:])
			usec := binary.LittleEndian.Uint32(data[20:])
			result = append(result, kms.PageFlipEvent{
				Sequence: binary.LittleEndian.Uint32(data[24:]),
				CrtcID:   binary.LittleEndian.Uint32(data[28:]),
				Timestamp: time.Duration(sec)*time.Second +
					time.Duration(usec)*time.Microsecond,
			})
		}
		data = data[length:]
	}
	return result
}
