// Package cia402 implements the CiA 402 drive state engine: a pure function
// from observed state and intended action to the control word to emit next
// cycle. It holds no state of its own.
package cia402

import "atv320ctl/internal/pdo"

// DeadbandSpeedratio is the |speedratio| below which run intent is
// downgraded to ActionNone: the drive stays enabled but at zero reference.
const DeadbandSpeedratio = 1.0

// Transition computes the next control word from the current DriveState,
// the orchestrator's intended action, and whether a fault reset is
// currently permitted. It never inspects history; the same three inputs
// always produce the same control word.
func Transition(state pdo.DriveState, action pdo.TransitionAction, resetPermitted bool) uint16 {
	if state == pdo.Fault {
		if resetPermitted {
			return cwFaultReset
		}
		return cwDisableVoltage
	}

	switch state {
	case pdo.SwitchOnDisabled:
		switch action {
		case pdo.ActionRun, pdo.ActionStop:
			return cwShutdown
		default:
			return cwDisableVoltage
		}
	case pdo.ReadyToSwitchOn:
		return cwSwitchOnWord
	case pdo.SwitchedOn:
		if action == pdo.ActionRun {
			return cwEnableOpWord
		}
		return cwSwitchOnWord
	case pdo.OperationEnabled:
		switch action {
		case pdo.ActionQuickStop:
			return cwQuickStopWord
		case pdo.ActionStop:
			return cwDisableOperation
		default:
			return cwEnableOpWord
		}
	case pdo.QuickStopActive:
		if action == pdo.ActionRun {
			return cwEnableOpWord
		}
		return cwQuickStopWord
	case pdo.FaultReactionActive:
		return cwDisableVoltage
	default: // NotReadyToSwitchOn
		return cwDisableVoltage
	}
}

// DowngradeIfDeadband applies the |speedratio| < 1% rule: a run intent at
// negligible speed is equivalent to holding the drive enabled at zero
// reference, not commanding motion.
func DowngradeIfDeadband(action pdo.TransitionAction, speedratio float64) pdo.TransitionAction {
	if action != pdo.ActionRun {
		return action
	}
	if speedratio < 0 {
		speedratio = -speedratio
	}
	if speedratio < DeadbandSpeedratio {
		return pdo.ActionNone
	}
	return action
}

// control word bits in the DS402 layout, defined here so this package
// imports nothing from pdo but its enums.
const (
	cwSwitchOn        uint16 = 1 << 0
	cwEnableVoltage   uint16 = 1 << 1
	cwQuickStop       uint16 = 1 << 2
	cwEnableOperation uint16 = 1 << 3
	cwFaultResetBit   uint16 = 1 << 7

	cwShutdown         = cwEnableVoltage | cwQuickStop
	cwSwitchOnWord     = cwSwitchOn | cwEnableVoltage | cwQuickStop
	cwDisableOperation = cwSwitchOn | cwEnableVoltage | cwQuickStop
	cwEnableOpWord     = cwSwitchOn | cwEnableVoltage | cwQuickStop | cwEnableOperation
	cwDisableVoltage   = 0
	cwQuickStopWord    = cwEnableVoltage
	cwFaultReset       = cwFaultResetBit
)
