// Package pdo defines the wire-level process data exchanged with the drive
// each cycle: the CiA 402 status/control words and the ATV320's PDO mapping.
package pdo

// DriveState is the CiA 402 state, derived from the low bits of the status
// word. It is a closed enumeration: dispatch on it with a switch, never with
// an interface hierarchy.
type DriveState int

const (
	NotReadyToSwitchOn DriveState = iota
	SwitchOnDisabled
	ReadyToSwitchOn
	SwitchedOn
	OperationEnabled
	QuickStopActive
	FaultReactionActive
	Fault
)

func (s DriveState) String() string {
	switch s {
	case NotReadyToSwitchOn:
		return "not_ready_to_switch_on"
	case SwitchOnDisabled:
		return "switch_on_disabled"
	case ReadyToSwitchOn:
		return "ready_to_switch_on"
	case SwitchedOn:
		return "switched_on"
	case OperationEnabled:
		return "operation_enabled"
	case QuickStopActive:
		return "quick_stop_active"
	case FaultReactionActive:
		return "fault_reaction_active"
	case Fault:
		return "fault"
	default:
		return "unknown"
	}
}

// statusPattern is a (mask, value) bit-pattern test against the low byte
// (plus bit 5) of the status word, applied in CiA 402 table order.
type statusPattern struct {
	mask, value uint16
	state       DriveState
}

// statusTable is checked top to bottom; the first match wins. An unmatched
// word defaults to NotReadyToSwitchOn, per the drive state machine's
// fail-safe posture.
var statusTable = []statusPattern{
	{mask: 0x4F, value: 0x08, state: Fault},
	{mask: 0x4F, value: 0x0F, state: FaultReactionActive},
	{mask: 0x6F, value: 0x07, state: QuickStopActive},
	{mask: 0x6F, value: 0x27, state: OperationEnabled},
	{mask: 0x6F, value: 0x23, state: SwitchedOn},
	{mask: 0x6F, value: 0x21, state: ReadyToSwitchOn},
	{mask: 0x4F, value: 0x40, state: SwitchOnDisabled},
	{mask: 0x4F, value: 0x00, state: NotReadyToSwitchOn},
}

// ParseStatusWord derives the DriveState from a raw CiA 402 status word.
func ParseStatusWord(word uint16) DriveState {
	for _, p := range statusTable {
		if word&p.mask == p.value {
			return p.state
		}
	}
	return NotReadyToSwitchOn
}

// NoFault is the last_error sentinel meaning "no active fault".
const NoFault uint16 = 0

// TransitionAction is the intent the orchestrator asks the state engine to
// realize on the next control word.
type TransitionAction int

const (
	ActionNone TransitionAction = iota
	ActionRun
	ActionStop
	ActionQuickStop
)

func (a TransitionAction) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionRun:
		return "run"
	case ActionStop:
		return "stop"
	case ActionQuickStop:
		return "quick_stop"
	default:
		return "unknown"
	}
}

// InputPDO mirrors the ATV320's TX PDO mapping, device to master, in the
// order the objects are mapped on the wire:
//
//	1. 0x6041:00/u16 status word
//	2. 0x2002:03/u16 current speed, deciHz
//	3. 0x2002:05/u16 current, deciA
//	4. 0x2016:03/u16 DI1-DI6 bitmask
//	5. 0x2029:16/u16 last error (LFT)
//	6. 0x2002:29/u16 HMI drive state
type InputPDO struct {
	StatusWord     uint16
	Frequency      int16 // signed deciHz
	Current        uint16
	DigitalInputs  uint8 // low 6 bits valid
	LastError      uint16
	HMIDriveState  uint16
}

// SpeedratioToDeciHz maps a signed speedratio percentage in [-100,100] onto
// a signed reference frequency in [low,high] deciHz, with the |sr|<1%
// dead-band mapping to zero.
func SpeedratioToDeciHz(sr float64, low, high int16) int16 {
	mag := sr
	if mag < 0 {
		mag = -mag
	}
	if mag < 1.0 {
		return 0
	}
	f := float64(low) + float64(high-low)*(mag-1.0)/99.0
	if sr < 0 {
		f = -f
	}
	return int16(f)
}

// OutputPDO mirrors the ATV320's RX PDO mapping, master to device:
//
//	1. 0x6040:00/u16 control word
//	2. 0x2037:03/u16 reference frequency, deciHz, two's complement
//	3. 0x2016:0D/u16 logic outputs
//	4. 0x203C:02/u16 acceleration ramp, deciseconds
//	5. 0x203C:03/u16 deceleration ramp, deciseconds
type OutputPDO struct {
	ControlWord        uint16
	ReferenceFrequency int16
	LogicOutputs       uint16
	AccelRamp          uint16
	DecelRamp          uint16
}
