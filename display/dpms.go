package display

// PowerState returns the position of the output in the dpms state machine.
func (o *Output) PowerState() PowerState {
	switch {
	case !o.state.Enabled:
		return PowerDisabled
	case o.turnOffTimer != nil && o.turnOffTimer.Active():
		return PowerDimmingToOff
	case o.state.DpmsMode == DpmsOn:
		return PowerOn
	}
	return PowerOff
}

// SetDpmsMode changes the power state. Turning off starts the dim timer
// first so that clients can fade the screen; any other mode cancels it.
func (o *Output) SetDpmsMode(mode DpmsMode) {
	if mode == DpmsOff {
		if o.turnOffTimer == nil || !o.turnOffTimer.Active() {
			for _, cb := range o.aboutToTurnOffHandlers {
				cb(o.dimDuration)
			}
			o.turnOffTimer = o.sched.AfterFunc(o.dimDuration, func() {
				o.turnOffTimer = nil
				o.setDrmDpmsMode(DpmsOff)
			})
		}
		return
	}

	dimming := o.turnOffTimer != nil && o.turnOffTimer.Active()
	if o.turnOffTimer != nil {
		o.turnOffTimer.Stop()
		o.turnOffTimer = nil
	}
	if dimming || (mode != o.state.DpmsMode && o.setDrmDpmsMode(mode)) {
		for _, cb := range o.wakeUpHandlers {
			cb()
		}
	}
}

func (o *Output) setDrmDpmsMode(mode DpmsMode) bool {
	if !o.state.Enabled {
		return false
	}
	p := o.pipeline
	active := mode == DpmsOn
	isActive := o.state.DpmsMode == DpmsOn
	if active == isActive {
		o.updateDpmsMode(mode)
		return true
	}
	if err := p.beginQueue(); err != nil {
		logger.Warningf("%v: can't change dpms mode: %v", o, err)
		return false
	}
	if !active {
		o.gpu.WaitIdle()
	}
	p.SetActive(active)

	commitMode := CommitModeCommitModeset
	if active {
		commitMode = CommitModeTestAllowModeset
	}
	e := CommitPipelines([]*Pipeline{p}, commitMode)
	if e != ErrorNone {
		logger.Warningf("%v: setting dpms mode %v failed: %v", o, mode, e)
		p.RevertPendingChanges()
		return false
	}
	p.ApplyPendingChanges()
	if active {
		o.renderLoop.Uninhibit()
		o.renderLoop.ScheduleRepaint()
		// the modeset happens with the next frame
	} else {
		o.renderLoop.Inhibit()
	}
	o.updateDpmsMode(mode)
	return true
}

func (o *Output) updateDpmsMode(mode DpmsMode) {
	if o.state.DpmsMode == mode {
		return
	}
	next := o.state
	next.DpmsMode = mode
	o.setState(next)
	o.emitChanged()
}
