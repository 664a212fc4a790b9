package display

import (
	"github.com/linuxdeepin/dde-kms/display/kms"
)

// AddLeaseObjects appends the kms objects needed to lease this output. It
// fails, leaving objects untouched, when the output has no crtc.
func (o *Output) AddLeaseObjects(objects []uint32) ([]uint32, bool) {
	crtc := o.pipeline.Crtc()
	if crtc == nil {
		logger.Warningf("%v: can't lease connector without crtc", o)
		return objects, false
	}
	objects = append(objects, o.pipeline.connector.ID, crtc.ID)
	if crtc.PrimaryPlane != nil {
		objects = append(objects, crtc.PrimaryPlane.ID)
	}
	return objects, true
}

// Leased records the lease the output is part of. The lease is owned by
// the manager.
func (o *Output) Leased(lease *kms.Lease) {
	o.lease = lease
	o.renderLoop.Inhibit()
}

// LeaseEnded clears the lease reference.
func (o *Output) LeaseEnded() {
	if o.lease == nil {
		return
	}
	o.lease = nil
	o.renderLoop.Uninhibit()
	o.renderLoop.ScheduleRepaint()
}

func (o *Output) Lease() *kms.Lease {
	return o.lease
}
