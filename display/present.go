package display

// Present flips the current buffers of the output's layers to the screen.
func (o *Output) Present(frame *OutputFrame) bool {
	if o.lease != nil {
		frame.discard()
		return false
	}
	p := o.pipeline
	mode := o.renderLoop.PresentationMode()
	if (mode != p.PresentationMode() || o.contentType != p.ContentType()) && !p.isQueued() {
		_ = p.beginQueue()
		p.SetPresentationMode(mode)
		p.SetContentType(o.contentType)
		if CommitPipelines([]*Pipeline{p}, CommitModeTest) == ErrorNone {
			p.ApplyPendingChanges()
		} else {
			p.RevertPendingChanges()
		}
	}

	modeset := o.gpu.NeedsModeset()
	var success bool
	if modeset {
		success = p.MaybeModeset(frame)
	} else {
		e := p.Present(frame)
		success = e == ErrorNone
		if e == ErrorInvalidArguments && o.rescan != nil {
			o.sched.Post(o.rescan)
		}
	}

	if success {
		damage := p.PrimaryLayer().CurrentDamage()
		for _, cb := range o.outputChangeHandlers {
			cb(damage)
		}
		return true
	}
	if !modeset {
		logger.Warningf("%v: presentation failed", o)
		frame.Failed()
	}
	return false
}

// UpdateCursorLayer moves or changes the hardware cursor.
func (o *Output) UpdateCursorLayer() bool {
	if o.lease != nil {
		return false
	}
	if !o.pipeline.UpdateCursor() {
		return false
	}
	o.renderLoop.ScheduleRepaint()
	return true
}
