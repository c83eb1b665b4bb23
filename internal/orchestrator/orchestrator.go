// Package orchestrator implements the asynchronous command core: it accepts
// motion commands, enforces the one-active-command invariant, and drives
// each pending command to completion by racing drive-error, limit-error,
// and progress sources on every PDO cycle.
//
// There is no per-command goroutine. The whole orchestrator lives on the
// single cycle-loop goroutine; "suspension" is modeled as a command simply
// staying pending across Tick calls rather than as a blocking wait, which
// is the parallel-wait-group behaviour translated to a cooperative loop.
package orchestrator

import (
	"time"

	"atv320ctl/internal/motorerr"
	"atv320ctl/internal/pdo"
	"atv320ctl/internal/positioner"
)

// Config carries the tunables a drive deployment supplies.
type Config struct {
	LowSpeedDeciHz  int16
	HighSpeedDeciHz int16

	HomingSpeedratio float64

	// ResetWindow bounds how long reset_permitted stays asserted once
	// raised, whether by an explicit reset() command or by an
	// allow-listed fault auto-clearing.
	ResetWindow time.Duration

	// AutoResetAllow lists last_error codes that auto-permit a fault
	// reset without an explicit reset() call.
	AutoResetAllow []uint16
}

// Orchestrator is owned exclusively by the cycle loop.
type Orchestrator struct {
	cfg Config
	pos *positioner.Positioner

	current *pending

	driveState pdo.DriveState
	driveErr   motorerr.Code // motorerr.Success when the drive reports no error
	lastError  uint16
	limit      LimitState

	resetPermitted bool
	resetDeadline  time.Time
}

func New(cfg Config, pos *positioner.Positioner) *Orchestrator {
	return &Orchestrator{cfg: cfg, pos: pos, driveErr: motorerr.Success}
}

// ResetPermitted reports whether the fault-reset bit should be asserted on
// the next control word.
func (o *Orchestrator) ResetPermitted() bool { return o.resetPermitted }

// LimitState reports the last reconciled limit-switch state.
func (o *Orchestrator) LimitState() LimitState { return o.limit }

func (o *Orchestrator) allowsAutoReset(lastError uint16) bool {
	for _, c := range o.cfg.AutoResetAllow {
		if c == lastError {
			return true
		}
	}
	return false
}

// UpdateStatus folds the cycle's parsed drive state and last-error into
// orchestrator state, computing drive-error and auto-reset permission.
// Called once per cycle, before Tick.
func (o *Orchestrator) UpdateStatus(state pdo.DriveState, lastError uint16, now time.Time) {
	wasFault := o.driveState == pdo.Fault
	o.driveState = state
	o.lastError = lastError

	switch state {
	case pdo.Fault, pdo.FaultReactionActive:
		o.driveErr = motorerr.FrequencyDriveReportsFault
		if o.allowsAutoReset(lastError) && !o.resetPermitted {
			o.raiseResetPermission(now)
		}
	default:
		o.driveErr = motorerr.Success
	}

	if o.resetPermitted && now.After(o.resetDeadline) {
		o.resetPermitted = false
	}

	if wasFault && state != pdo.Fault && o.current != nil && o.current.progress == progressLeftFault {
		o.completeCurrent(motorerr.Success, 0)
	}
}

// RaiseResetPermission is the effect of an external reset edge, distinct
// from the allow-list driven auto-permission computed in UpdateStatus.
func (o *Orchestrator) RaiseResetPermission(now time.Time) { o.raiseResetPermission(now) }

func (o *Orchestrator) raiseResetPermission(now time.Time) {
	o.resetPermitted = true
	window := o.cfg.ResetWindow
	if window <= 0 {
		window = 5 * time.Second
	}
	o.resetDeadline = now.Add(window)
}

// CommunicationLost synthesizes a transport-loss fault: every pending
// command fails cleanly with frequency_drive_communication_fault.
func (o *Orchestrator) CommunicationLost() {
	o.driveErr = motorerr.FrequencyDriveCommunicationFault
	if o.current != nil {
		o.completeCurrent(motorerr.FrequencyDriveCommunicationFault, 0)
	}
}

// Action returns the control-word intent and signed speedratio the cycle
// handler should realize this cycle.
func (o *Orchestrator) Action() (pdo.TransitionAction, float64) {
	if o.current == nil {
		return pdo.ActionNone, 0
	}
	return o.current.action, o.current.speedratio
}

// HasPeerCommand reports whether the orchestrator currently holds a
// pending command.
func (o *Orchestrator) HasPeerCommand() bool { return o.current != nil }

// cancelCurrent fires operation_canceled on the current pending command,
// if any, and clears it. Per the common command preamble, this happens
// synchronously before any new command is installed.
func (o *Orchestrator) cancelCurrent() {
	if o.current == nil {
		return
	}
	c := o.current
	o.current = nil
	c.cancel.Cancel()
	if c.progressCancel != nil {
		c.progressCancel()
	}
	o.deliver(c, motorerr.OperationCanceled, 0)
}

func (o *Orchestrator) completeCurrent(err motorerr.Code, displacement float64) {
	c := o.current
	if c == nil {
		return
	}
	o.current = nil
	if c.progressCancel != nil {
		c.progressCancel()
	}
	o.deliver(c, err, displacement)
}

func (o *Orchestrator) deliver(c *pending, err motorerr.Code, displacement float64) {
	select {
	case c.reply <- Completion{Err: err, Displacement: displacement}:
	default:
	}
}

// forbidden reports whether motion with the given sign is blocked by the
// reconciled limit state. The opposite direction is always permitted.
func (o *Orchestrator) forbidden(sign float64) motorerr.Code {
	switch {
	case sign > 0 && o.limit == LimitPositiveReached:
		return motorerr.PositioningPositiveLimitReached
	case sign < 0 && o.limit == LimitNegativeReached:
		return motorerr.PositioningNegativeLimitReached
	default:
		return motorerr.Success
	}
}

func sign(f float64) float64 {
	switch {
	case f > 0:
		return 1
	case f < 0:
		return -1
	default:
		return 0
	}
}
