package display

import (
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/linuxdeepin/dde-kms/display/kms"
	"github.com/linuxdeepin/go-lib/log"
)

// Error is the outcome of a commit.
type Error int

const (
	ErrorNone Error = iota
	ErrorInvalidArguments
	ErrorNoPermission
	ErrorFramePending
	ErrorUnknown
)

func (e Error) String() string {
	switch e {
	case ErrorNone:
		return "none"
	case ErrorInvalidArguments:
		return "invalid arguments"
	case ErrorNoPermission:
		return "no permission"
	case ErrorFramePending:
		return "frame pending"
	case ErrorUnknown:
		return "unknown"
	}
	return fmt.Sprintf("Error(%d)", int(e))
}

func (e Error) Error() string {
	return "commit failed: " + e.String()
}

func errorFromDevice(err error) Error {
	switch {
	case err == nil:
		return ErrorNone
	case errors.Is(err, kms.ErrInvalidArguments):
		return ErrorInvalidArguments
	case errors.Is(err, kms.ErrNoPermission):
		return ErrorNoPermission
	case errors.Is(err, kms.ErrBusy):
		return ErrorFramePending
	}
	return ErrorUnknown
}

type CommitMode int

const (
	CommitModeTest CommitMode = iota
	CommitModeCommit
	CommitModeTestAllowModeset
	CommitModeCommitModeset
)

func (m CommitMode) String() string {
	switch m {
	case CommitModeTest:
		return "test"
	case CommitModeCommit:
		return "commit"
	case CommitModeTestAllowModeset:
		return "test-allow-modeset"
	case CommitModeCommitModeset:
		return "commit-modeset"
	}
	return fmt.Sprintf("CommitMode(%d)", int(m))
}

func (m CommitMode) isTest() bool {
	return m == CommitModeTest || m == CommitModeTestAllowModeset
}

func (m CommitMode) allowModeset() bool {
	return m == CommitModeTestAllowModeset || m == CommitModeCommitModeset
}

// CommitPipelines submits the pending state of all pipelines as one atomic
// request. Either every pipeline's request is accepted or none is. The
// pending state is not promoted; callers apply or revert afterwards.
func CommitPipelines(pipelines []*Pipeline, mode CommitMode) Error {
	if len(pipelines) == 0 {
		return ErrorNone
	}
	gpu := pipelines[0].gpu
	for _, p := range pipelines {
		if p.gpu != gpu {
			logger.Warning("refusing to commit pipelines of different devices")
			return ErrorInvalidArguments
		}
		if !mode.isTest() && p.pageflipPending {
			return ErrorFramePending
		}
	}

	req := kms.NewAtomicRequest()
	if mode.allowModeset() {
		for _, p := range pipelines {
			p.prepareDisable(req)
		}
	}
	for _, p := range pipelines {
		if e := p.prepareAtomic(req, &p.pending, mode.allowModeset()); e != ErrorNone {
			logger.Debugf("%v: failed to prepare %v commit: %v", p, mode, e)
			return e
		}
	}

	flags := commitFlags(pipelines, mode)
	if logger.GetLogLevel() == log.LevelDebug {
		logger.Debugf("%v commit flags=%#x:\n%s", mode, flags, spew.Sdump(req.Properties()))
	}
	err := gpu.device.Commit(req, flags)
	if err != nil {
		e := errorFromDevice(err)
		if mode.isTest() {
			logger.Debugf("%v commit rejected: %v", mode, err)
		} else {
			logger.Warningf("%v commit failed: %v", mode, err)
		}
		return e
	}

	if !mode.isTest() {
		for _, p := range pipelines {
			p.committed = p.pending
			p.primaryLayer.Committed()
			p.cursorLayer.Committed()
			if flags.Has(kms.FlagPageFlipEvent) {
				p.pageflipPending = true
			}
		}
	}
	return ErrorNone
}

func commitFlags(pipelines []*Pipeline, mode CommitMode) kms.CommitFlags {
	var flags kms.CommitFlags
	switch mode {
	case CommitModeTest:
		flags = kms.FlagTestOnly
	case CommitModeTestAllowModeset:
		flags = kms.FlagTestOnly | kms.FlagAllowModeset
	case CommitModeCommitModeset:
		flags = kms.FlagAllowModeset
	case CommitModeCommit:
		flags = kms.FlagNonBlock
		allActive := true
		for _, p := range pipelines {
			if !p.pending.enabled || !p.pending.active {
				allActive = false
			}
		}
		if allActive {
			flags |= kms.FlagPageFlipEvent
		}
	}
	return flags
}
