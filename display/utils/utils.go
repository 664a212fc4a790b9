package utils

import (
	libutils "github.com/linuxdeepin/go-lib/utils"
)

// GetEDIDChecksum returns the md5 of the EDID base block, empty when the
// EDID is truncated.
func GetEDIDChecksum(edid []byte) string {
	if len(edid) < edidBlockSize {
		return ""
	}

	id, _ := libutils.SumStrMd5(string(edid[:edidBlockSize]))
	return id
}

// GetOutputUUID identifies a physical monitor on a connector. Monitors
// without EDID are identified by connector name only.
func GetOutputUUID(name string, edid []byte) string {
	id := GetEDIDChecksum(edid)
	if id == "" {
		return name
	}
	return name + id
}
