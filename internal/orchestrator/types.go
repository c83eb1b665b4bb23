package orchestrator

import (
	"time"

	"atv320ctl/internal/motorerr"
	"atv320ctl/internal/pdo"
)

// LimitState is the reconciled state of the positive/negative limit
// switches, as last reported by the positioner's edge callbacks.
type LimitState int

const (
	LimitNone LimitState = iota
	LimitPositiveReached
	LimitNegativeReached
)

// CommandKind names the motion command family; it controls how a pending
// command is driven to completion.
type CommandKind int

const (
	KindRun CommandKind = iota
	KindStop
	KindQuickStop
	KindConvey
	KindMove
	KindMoveHome
	KindNotifyAfter
	KindReset
)

func (k CommandKind) String() string {
	switch k {
	case KindRun:
		return "run"
	case KindStop:
		return "stop"
	case KindQuickStop:
		return "quick_stop"
	case KindConvey:
		return "convey"
	case KindMove:
		return "move"
	case KindMoveHome:
		return "move_home"
	case KindNotifyAfter:
		return "notify_after"
	case KindReset:
		return "reset"
	default:
		return "unknown"
	}
}

// phase is the per-pending-command state machine: starting -> running ->
// stopping -> complete.
type phase int

const (
	phaseStarting phase = iota
	phaseRunning
	phaseStopping
	phaseComplete
)

// progressKind selects which progress source Tick polls for a pending
// command, after drive-error and limit-error have both been ruled out.
type progressKind int

const (
	progressNone progressKind = iota
	progressFreqZero
	progressDisplacement
	progressTimerThenFreqZero
	progressHomingEdge
	progressLeftFault
)

// Completion is delivered exactly once per command, on its reply channel.
type Completion struct {
	Err          motorerr.Code
	Displacement float64
}

// Request describes a motion command as submitted to the orchestrator.
// Only the fields relevant to Kind are consulted.
type Request struct {
	Kind        CommandKind
	Speedratio  float64       // run, convey, move
	Duration    time.Duration // run(duration)
	TravelUm    float64       // convey: signed travel
	PlacementUm float64       // move: absolute-from-home target
	DeltaUm     float64       // notify_after
}

type pending struct {
	kind   CommandKind
	cancel *cancelSignal
	reply  chan Completion

	phase    phase
	action   pdo.TransitionAction
	stopTo   pdo.TransitionAction // action to switch to once progress fires
	progress progressKind

	speedratio float64
	dirSign    float64 // sign of commanded motion, 0 if not directional

	startAbsolute float64 // for convey's actual-displacement report

	progressCh     <-chan float64
	progressCancel func()

	hasTimer      bool
	timerDeadline time.Time
}
