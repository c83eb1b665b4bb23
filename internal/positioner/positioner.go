// Package positioner tracks cumulative signed displacement integrated from
// drive frequency, the home reference, and threshold-crossing notifications
// used by the command orchestrator to complete convey/move commands.
package positioner

import (
	"time"

	"atv320ctl/internal/mathx"
	"atv320ctl/internal/motorerr"
)

// Config holds the mechanical constants needed to turn a cyclic frequency
// reading into a displacement delta.
type Config struct {
	// ResolutionMicrometresPerRev converts revolutions (derived from the
	// signed frequency reading and the elapsed cycle time) into
	// micrometres of linear travel. It doubles as the positional
	// tolerance band used by immediate-completion checks.
	ResolutionMicrometresPerRev float64
}

type waitKind int

const (
	waitAfter waitKind = iota
	waitFromHome
)

type waiter struct {
	kind   waitKind
	target float64 // micrometres to reach: absolute for waitAfter, from home for waitFromHome
	rising bool     // true if waiting for absolute/position_from_home to increase to target
	ch     chan float64
	live   bool
}

// Positioner is owned exclusively by the cycle loop; it holds no locks
// because nothing outside that loop ever touches it.
type Positioner struct {
	cfg Config

	absolute      float64
	homeReference float64
	homed         bool

	waiters []*waiter
}

func New(cfg Config) *Positioner {
	return &Positioner{cfg: cfg}
}

// Absolute returns accumulated displacement since the positioner was created.
func (p *Positioner) Absolute() float64 { return p.absolute }

// PositionFromHome returns Absolute() - home reference; only meaningful once
// Homed() is true.
func (p *Positioner) PositionFromHome() float64 { return p.absolute - p.homeReference }

func (p *Positioner) Homed() bool { return p.homed }

// FreqUpdate integrates the signed frequency reading (deciHz) over the
// elapsed cycle time into absolute displacement, then resolves any waiters
// whose threshold has now been crossed. Call once per PDO cycle.
func (p *Positioner) FreqUpdate(signedFrequencyDeciHz int16, cycleTime time.Duration) {
	hz := float64(signedFrequencyDeciHz) / 10.0
	revs := hz * cycleTime.Seconds()
	p.absolute += revs * p.cfg.ResolutionMicrometresPerRev
	p.resolveWaiters()
}

func (p *Positioner) resolveWaiters() {
	live := p.waiters[:0]
	for _, w := range p.waiters {
		if !w.live {
			continue
		}
		var cur float64
		switch w.kind {
		case waitAfter:
			cur = p.absolute
		case waitFromHome:
			cur = p.PositionFromHome()
		}
		reached := false
		if w.rising {
			reached = cur >= w.target
		} else {
			reached = cur <= w.target
		}
		if reached {
			select {
			case w.ch <- cur:
			default:
			}
			w.live = false
			continue
		}
		live = append(live, w)
	}
	p.waiters = live
}

// NotifyAfter returns a channel that receives the absolute displacement once
// it has advanced by |delta| in the signed direction of delta. The channel
// is buffered and fires exactly once.
func (p *Positioner) NotifyAfter(delta float64) (<-chan float64, func()) {
	target := p.absolute + delta
	w := &waiter{kind: waitAfter, target: target, rising: delta >= 0, ch: make(chan float64, 1), live: true}
	p.waiters = append(p.waiters, w)
	return w.ch, func() { w.live = false }
}

// NotifyFromHome returns a channel that receives position_from_home once it
// reaches target, on the first FreqUpdate at which it has. No tolerance
// band applies here; WithinResolution is the synchronous check for a
// target that is already close enough.
func (p *Positioner) NotifyFromHome(target float64) (<-chan float64, func()) {
	cur := p.PositionFromHome()
	w := &waiter{kind: waitFromHome, target: target, rising: target >= cur, ch: make(chan float64, 1), live: true}
	p.waiters = append(p.waiters, w)
	return w.ch, func() { w.live = false }
}

// WithinResolution reports whether target is already within the configured
// tolerance of position_from_home, letting callers short-circuit a move
// that needs no motion at all.
func (p *Positioner) WithinResolution(target float64) bool {
	d := mathx.Abs(target - p.PositionFromHome())
	return d <= p.cfg.ResolutionMicrometresPerRev
}

// Home records the current absolute position as the home reference. Called
// on a homing-sensor rising edge.
func (p *Positioner) Home(currentAbsolute float64) {
	p.homeReference = currentAbsolute
	p.homed = true
}

// NeedsHoming reports whether a positional command can proceed.
func (p *Positioner) NeedsHoming() motorerr.Code {
	if !p.homed {
		return motorerr.MotorMissingHomeReference
	}
	return motorerr.Success
}

// WouldNeedHoming predicts whether a planned move, displacing by
// signedProjectedDelta from the current position, would be meaningful
// without a home reference. Homing is an all-or-nothing prerequisite for
// this drive (there is no partial validity window once established), so
// this currently reduces to the same check as NeedsHoming; it is kept as a
// distinct hook because a future drive variant may invalidate homing after
// a large unobserved excursion.
func (p *Positioner) WouldNeedHoming(signedProjectedDelta float64) bool {
	return !p.homed
}
