package orchestrator

import (
	"time"

	"atv320ctl/internal/motorerr"
	"atv320ctl/internal/pdo"
	"atv320ctl/internal/positioner"
)

// submit installs p as the current pending command after cancelling
// whatever was previously pending, per the common command preamble. p's
// reply channel is returned to the caller; it fires exactly once.
func (o *Orchestrator) submit(p *pending) <-chan Completion {
	o.cancelCurrent()
	p.cancel = newCancelSignal()
	p.reply = make(chan Completion, 1)
	o.current = p
	return p.reply
}

func (o *Orchestrator) rejectImmediately(err motorerr.Code) <-chan Completion {
	o.cancelCurrent()
	ch := make(chan Completion, 1)
	ch <- Completion{Err: err}
	return ch
}

func validSpeedratio(sr float64) bool {
	return sr >= -100 && sr <= 100
}

// Run starts the drive at sr percent of configured speed range, completing
// when the drive reports zero frequency, a drive error, or a limit error.
func (o *Orchestrator) Run(sr float64) <-chan Completion {
	if !validSpeedratio(sr) {
		return o.rejectImmediately(motorerr.SpeedratioOutOfRange)
	}
	if code := o.forbidden(sign(sr)); code != motorerr.Success {
		return o.rejectImmediately(code)
	}
	return o.submit(&pending{
		kind:       KindRun,
		phase:      phaseRunning,
		action:     pdo.ActionRun,
		progress:   progressFreqZero,
		speedratio: sr,
		dirSign:    sign(sr),
	})
}

// RunFor starts the drive at sr for duration, then issues an internal stop;
// completion still waits for zero frequency after the timer fires.
func (o *Orchestrator) RunFor(sr float64, duration time.Duration, now time.Time) <-chan Completion {
	if !validSpeedratio(sr) {
		return o.rejectImmediately(motorerr.SpeedratioOutOfRange)
	}
	if code := o.forbidden(sign(sr)); code != motorerr.Success {
		return o.rejectImmediately(code)
	}
	return o.submit(&pending{
		kind:          KindRun,
		phase:         phaseRunning,
		action:        pdo.ActionRun,
		stopTo:        pdo.ActionStop,
		progress:      progressTimerThenFreqZero,
		speedratio:    sr,
		dirSign:       sign(sr),
		hasTimer:      true,
		timerDeadline: now.Add(duration),
	})
}

// Stop ramps the drive to zero, completing when frequency reaches 0 or a
// drive error fires.
func (o *Orchestrator) Stop() <-chan Completion {
	return o.submit(&pending{
		kind:     KindStop,
		phase:    phaseStopping,
		action:   pdo.ActionStop,
		progress: progressFreqZero,
	})
}

// QuickStop behaves like Stop but with the quick-stop action.
func (o *Orchestrator) QuickStop() <-chan Completion {
	return o.submit(&pending{
		kind:     KindQuickStop,
		phase:    phaseStopping,
		action:   pdo.ActionQuickStop,
		progress: progressFreqZero,
	})
}

// Convey races run(sr) against a notify_after(travel) threshold. Reaching
// the threshold switches the command to a stop, and it completes with the
// actual signed displacement once the frequency reads zero; a drive error
// or a limit error completes it at once.
func (o *Orchestrator) Convey(sr, travelUm float64, pos *positioner.Positioner) <-chan Completion {
	if travelUm == 0 {
		return o.rejectImmediately(motorerr.Success)
	}
	if !validSpeedratio(sr) {
		return o.rejectImmediately(motorerr.SpeedratioOutOfRange)
	}
	dir := sign(travelUm)
	signedSr := sr
	if sign(sr) != 0 {
		signedSr = dir * absf(sr)
	}
	if code := o.forbidden(dir); code != motorerr.Success {
		return o.rejectImmediately(code)
	}
	ch, cancel := pos.NotifyAfter(travelUm)
	return o.submit(&pending{
		kind:           KindConvey,
		phase:          phaseRunning,
		action:         pdo.ActionRun,
		stopTo:         pdo.ActionStop,
		progress:       progressDisplacement,
		speedratio:     signedSr,
		dirSign:        dir,
		startAbsolute:  pos.Absolute(),
		progressCh:     ch,
		progressCancel: cancel,
	})
}

// Move races run(sr) against notify_from_home(placement), quick-stopping
// once the target is reached. Fails immediately if homing has never
// completed.
func (o *Orchestrator) Move(sr, placementUm float64, pos *positioner.Positioner) <-chan Completion {
	if code := pos.NeedsHoming(); code != motorerr.Success {
		return o.rejectImmediately(code)
	}
	delta := placementUm - pos.PositionFromHome()
	if pos.WouldNeedHoming(delta) {
		return o.rejectImmediately(motorerr.MotorMissingHomeReference)
	}
	if !validSpeedratio(sr) {
		return o.rejectImmediately(motorerr.SpeedratioOutOfRange)
	}
	if pos.WithinResolution(placementUm) {
		return o.rejectImmediately(motorerr.Success)
	}
	dir := sign(delta)
	signedSr := dir * absf(sr)
	if code := o.forbidden(dir); code != motorerr.Success {
		return o.rejectImmediately(code)
	}
	ch, cancel := pos.NotifyFromHome(placementUm)
	return o.submit(&pending{
		kind:           KindMove,
		phase:          phaseRunning,
		action:         pdo.ActionRun,
		stopTo:         pdo.ActionQuickStop,
		progress:       progressDisplacement,
		speedratio:     signedSr,
		dirSign:        dir,
		startAbsolute:  pos.Absolute(),
		progressCh:     ch,
		progressCancel: cancel,
	})
}

// MoveHome drives the configured homing speed until the homing sensor
// fires, or completes immediately if the sensor already reads true.
func (o *Orchestrator) MoveHome(homingSensorConfigured, homingSensorActive bool, currentAbsolute float64, home func(float64)) <-chan Completion {
	if !homingSensorConfigured {
		return o.rejectImmediately(motorerr.MotorHomeSensorUnconfigured)
	}
	if homingSensorActive {
		home(currentAbsolute)
		return o.rejectImmediately(motorerr.Success)
	}
	return o.submit(&pending{
		kind:       KindMoveHome,
		phase:      phaseRunning,
		action:     pdo.ActionRun,
		progress:   progressHomingEdge,
		speedratio: o.cfg.HomingSpeedratio,
		dirSign:    sign(o.cfg.HomingSpeedratio),
	})
}

// NotifyAfter is a pure positional notification: no motion is commanded.
func (o *Orchestrator) NotifyAfter(deltaUm float64, pos *positioner.Positioner) <-chan Completion {
	ch, cancel := pos.NotifyAfter(deltaUm)
	return o.submit(&pending{
		kind:           KindNotifyAfter,
		phase:          phaseRunning,
		action:         pdo.ActionNone,
		progress:       progressDisplacement,
		progressCh:     ch,
		progressCancel: cancel,
	})
}

// Reset is a no-op returning success if the drive is not in fault;
// otherwise it raises reset_permitted and completes once the drive has
// left the fault state, or with frequency_drive_reports_fault if the reset
// window lapses while the drive is still in fault.
func (o *Orchestrator) Reset(now time.Time) <-chan Completion {
	if o.driveState != pdo.Fault {
		return o.rejectImmediately(motorerr.Success)
	}
	o.raiseResetPermission(now)
	return o.submit(&pending{
		kind:     KindReset,
		phase:    phaseRunning,
		action:   pdo.ActionNone,
		progress: progressLeftFault,
	})
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
