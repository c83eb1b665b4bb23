package main

import (
	"context"

	"atv320ctl/internal/mathx"
	"atv320ctl/internal/pdo"
	"atv320ctl/internal/transport"
)

// simDrive stands in for the ATV320 over EtherCAT: a plain in-process state
// machine that walks the CiA 402 transitions a real drive would perform in
// response to the control word, and ramps its output frequency toward the
// commanded reference at a fixed step per cycle. It satisfies
// transport.Adapter so runLoop can exercise the whole tree against real
// hardware or this simulator interchangeably.
type simDrive struct {
	state     pdo.DriveState
	freq      int16
	lastError uint16
	di        uint8
}

func newSimDrive() *simDrive {
	return &simDrive{state: pdo.SwitchOnDisabled}
}

// stepDeciHz bounds how far freq moves toward the reference per cycle; a
// real drive's ramp objects do this in hardware, this just approximates it
// closely enough to exercise the orchestrator's completion logic.
const stepDeciHz = 50

func (d *simDrive) Exchange(ctx context.Context, out pdo.OutputPDO) (pdo.InputPDO, bool, error) {
	d.advance(out)

	word := d.statusWord()
	return pdo.InputPDO{
		StatusWord:    word,
		Frequency:     d.freq,
		Current:       uint16(mathx.Abs(d.freq)) / 4,
		DigitalInputs: d.di,
		LastError:     d.lastError,
		HMIDriveState: uint16(d.state),
	}, true, nil
}

func (d *simDrive) WriteConfig(ctx context.Context, w transport.ConfigWrite) error {
	return nil
}

// advance walks the CiA 402 state machine per the control word's
// shutdown/switch-on/enable-operation/fault-reset bits, then moves freq one
// step toward the reference when operation is enabled.
func (d *simDrive) advance(out pdo.OutputPDO) {
	const (
		bitSwitchOn        = 1 << 0
		bitEnableVoltage   = 1 << 1
		bitQuickStop       = 1 << 2
		bitEnableOperation = 1 << 3
		bitFaultReset      = 1 << 7
	)
	cw := out.ControlWord

	if d.state == pdo.Fault {
		if cw&bitFaultReset != 0 {
			d.state = pdo.SwitchOnDisabled
			d.lastError = pdo.NoFault
		}
		d.freq = 0
		return
	}

	switch {
	case cw&bitEnableVoltage == 0:
		d.state = pdo.SwitchOnDisabled
	case cw&bitQuickStop == 0:
		d.state = pdo.QuickStopActive
	case cw&bitSwitchOn == 0:
		d.state = pdo.ReadyToSwitchOn
	case cw&bitEnableOperation == 0:
		d.state = pdo.SwitchedOn
	default:
		d.state = pdo.OperationEnabled
	}

	target := out.ReferenceFrequency
	if d.state != pdo.OperationEnabled {
		target = 0
	}
	d.freq = stepToward(d.freq, target, stepDeciHz)
}

func (d *simDrive) statusWord() uint16 {
	switch d.state {
	case pdo.NotReadyToSwitchOn:
		return 0x00
	case pdo.SwitchOnDisabled:
		return 0x40
	case pdo.ReadyToSwitchOn:
		return 0x21
	case pdo.SwitchedOn:
		return 0x23
	case pdo.OperationEnabled:
		return 0x27
	case pdo.QuickStopActive:
		return 0x07
	case pdo.FaultReactionActive:
		return 0x0F
	case pdo.Fault:
		return 0x08
	default:
		return 0x00
	}
}

// stepToward moves cur one step closer to target, clamping so it never
// overshoots.
func stepToward(cur, target int16, step int16) int16 {
	if cur < target {
		return mathx.Clamp(cur+step, cur, target)
	}
	if cur > target {
		return mathx.Clamp(cur-step, target, cur)
	}
	return cur
}
