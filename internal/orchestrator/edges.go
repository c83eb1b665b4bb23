package orchestrator

import "atv320ctl/internal/motorerr"

// awaitingHoming reports whether the current pending command is a
// move_home waiting on the homing sensor.
func (o *Orchestrator) awaitingHoming() bool {
	return o.current != nil && o.current.kind == KindMoveHome && o.current.progress == progressHomingEdge
}

// OnHomingSensorRisingEdge completes a pending move_home, recording the
// home reference at the sensor edge.
func (o *Orchestrator) OnHomingSensorRisingEdge(currentAbsolute float64, home func(float64)) {
	if !o.awaitingHoming() {
		return
	}
	home(currentAbsolute)
	o.completeCurrent(motorerr.Success, 0)
}

// OnPositiveLimitRisingEdge reconciles the positive limit switch. It aborts
// any pending positive-direction command with
// positioning_positive_limit_reached and leaves negative-direction motion
// untouched.
func (o *Orchestrator) OnPositiveLimitRisingEdge() {
	o.limit = LimitPositiveReached
	if o.current != nil && o.current.dirSign > 0 {
		o.completeCurrent(motorerr.PositioningPositiveLimitReached, 0)
	}
}

// OnPositiveLimitFallingEdge clears the reconciled positive-limit state.
func (o *Orchestrator) OnPositiveLimitFallingEdge() {
	if o.limit == LimitPositiveReached {
		o.limit = LimitNone
	}
}

// OnNegativeLimitRisingEdge mirrors OnPositiveLimitRisingEdge for the
// negative direction.
func (o *Orchestrator) OnNegativeLimitRisingEdge() {
	o.limit = LimitNegativeReached
	if o.current != nil && o.current.dirSign < 0 {
		o.completeCurrent(motorerr.PositioningNegativeLimitReached, 0)
	}
}

func (o *Orchestrator) OnNegativeLimitFallingEdge() {
	if o.limit == LimitNegativeReached {
		o.limit = LimitNone
	}
}

// OnSharedHomingLimitEdge handles a rising edge on a channel wired to serve
// double duty as both a limit switch and the homing sensor. If a move_home
// is actively awaiting the homing edge, the edge is consumed as homing and
// no limit error is raised — even though, wired as a plain limit switch, it
// would otherwise abort motion in limitDirSign's direction.
func (o *Orchestrator) OnSharedHomingLimitEdge(limitDirSign float64, currentAbsolute float64, home func(float64)) {
	if o.awaitingHoming() {
		home(currentAbsolute)
		o.completeCurrent(motorerr.Success, 0)
		return
	}
	if limitDirSign > 0 {
		o.OnPositiveLimitRisingEdge()
	} else {
		o.OnNegativeLimitRisingEdge()
	}
}
