package orchestrator

import (
	"time"

	"atv320ctl/internal/motorerr"
	"atv320ctl/internal/positioner"
)

// Tick advances the current pending command by one cycle. zeroFreq is the
// cycle's "frequency reads as zero" observation; pos is consulted for the
// final reported displacement. Drive-error and limit-error are checked
// ahead of any progress source, so a fault or limit hit on the same cycle
// as a progress event always wins.
func (o *Orchestrator) Tick(now time.Time, zeroFreq bool, pos *positioner.Positioner) {
	c := o.current
	if c == nil {
		return
	}

	if o.driveErr != motorerr.Success {
		// A pending reset waits out its permission window for the drive to
		// leave fault; UpdateStatus completes it once the drive does.
		if c.progress == progressLeftFault && o.resetPermitted {
			return
		}
		o.completeCurrent(o.driveErr, o.displacementSince(c, pos))
		return
	}
	if code := o.forbidden(c.dirSign); c.dirSign != 0 && code != motorerr.Success {
		o.completeCurrent(code, o.displacementSince(c, pos))
		return
	}

	switch c.phase {
	case phaseStarting:
		c.phase = phaseRunning
	case phaseRunning:
		o.tickRunning(c, now, zeroFreq)
	case phaseStopping:
		if zeroFreq {
			o.completeCurrent(motorerr.Success, o.displacementSince(c, pos))
		}
	}
}

func (o *Orchestrator) tickRunning(c *pending, now time.Time, zeroFreq bool) {
	switch c.progress {
	case progressFreqZero:
		if zeroFreq {
			o.completeCurrent(motorerr.Success, 0)
		}
	case progressTimerThenFreqZero:
		if c.hasTimer && !now.Before(c.timerDeadline) {
			c.hasTimer = false
			c.phase = phaseStopping
			c.action = c.stopTo
		}
	case progressDisplacement:
		select {
		case <-c.progressCh:
			c.phase = phaseStopping
			c.action = c.stopTo
		default:
		}
	case progressHomingEdge, progressLeftFault:
		// resolved directly by edge callbacks / UpdateStatus, not polled here.
	}
}

func (o *Orchestrator) displacementSince(c *pending, pos *positioner.Positioner) float64 {
	if pos == nil {
		return 0
	}
	return pos.Absolute() - c.startAbsolute
}
