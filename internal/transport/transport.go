// Package transport shapes the two external collaborators this tree keeps
// out of its own scope: the EtherCAT cyclic frame exchange and the SDO
// configuration path. Both are modeled as injected interfaces so the core
// (cia402, positioner, orchestrator, cycle) never touches real transport
// I/O; only internal/cycle's caller is expected to hold a concrete Adapter.
package transport

import (
	"context"
	"time"

	"atv320ctl/internal/pdo"
)

// Adapter provides the per-cycle PDO exchange and point-to-point SDO
// configuration writes. It collapses a split-phase trigger/collect style
// of device access into a single cyclic call, since a fieldbus cycle is
// already a fixed-period request/response round trip rather than a
// variable-latency sensor read.
type Adapter interface {
	// Exchange performs one cyclic PDO round trip: send out, receive the
	// next InputPDO. hasData is false when the cycle produced no fresh
	// frame (loss of contact); the caller must still treat the exchange
	// as having completed the cycle.
	Exchange(ctx context.Context, out pdo.OutputPDO) (in pdo.InputPDO, hasData bool, err error)

	// WriteConfig performs one SDO write. Called only from the cycle
	// loop's queue-drain step, never inline from a config-change callback.
	WriteConfig(ctx context.Context, w ConfigWrite) error
}

// ConfigWrite is a single point-to-point SDO write, addressed the way
// every mapped drive object is addressed: index:subindex.
type ConfigWrite struct {
	Index    uint16
	Subindex uint8
	Value    int64
	Name     string // human-readable field name, for logs only
}

// WriteQueue is the loop-owned queue config diffs are posted onto. It is
// unbuffered-safe up to its capacity; a full queue means the caller is
// producing config changes faster than the cycle loop can drain them,
// which should not happen for a retained, idempotent config topic.
type WriteQueue struct {
	ch chan ConfigWrite
}

func NewWriteQueue(capacity int) *WriteQueue {
	if capacity <= 0 {
		capacity = 32
	}
	return &WriteQueue{ch: make(chan ConfigWrite, capacity)}
}

// Post enqueues w without blocking; on a full queue, it drops silently
// rather than stalling whatever posted the diff, the same best-effort
// posture this tree's other backpressure-prone publishers take.
func (q *WriteQueue) Post(w ConfigWrite) {
	select {
	case q.ch <- w:
	default:
	}
}

// Drain applies every currently queued write through adapter, in order,
// stopping at the first error. Call once per cycle from the loop
// goroutine, never concurrently.
func (q *WriteQueue) Drain(ctx context.Context, adapter Adapter) error {
	for {
		select {
		case w := <-q.ch:
			if err := adapter.WriteConfig(ctx, w); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// Startup SDO indices: the mapping/reference-source/fault-reset
// housekeeping writes, issued once before cyclic exchange begins.
var (
	ObjectReferenceSource    = ConfigWrite{Index: 0x2037, Subindex: 0x01, Name: "reference_source_via_com"}
	ObjectClearR1Assignment  = ConfigWrite{Index: 0x2016, Subindex: 0x01, Name: "clear_r1_assignment"}
	ObjectClearAQ1Assignment = ConfigWrite{Index: 0x2016, Subindex: 0x02, Name: "clear_aq1_assignment"}
	ObjectExtendedFaultReset = ConfigWrite{Index: 0x2060, Subindex: 0x02, Value: 1, Name: "extended_fault_reset_enable"}
)

// NameplateWrites builds the fixed, one-time SDO write sequence for the
// motor nameplate parameters, from the given field values (deci-units as
// carried by DriveConfig). Ordering matches a setup_driver()-style write
// order: power/voltage/current/frequency/speed first, ramp and thermal
// limits after.
func NameplateWrites(nominalPowerDeciW, nominalVoltageDeciV, nominalCurrentDeciA int32, nominalFreqDeciHz int16, nominalSpeedRPM, cosPhiHundredths, thermalCurrentDeciA, limitCurrentDeciA, rampDivider, leakageInductanceMH, statorResistanceMOhm, rotorTimeConstantMs int32, lowSpeedDeciHz, highSpeedDeciHz int16) []ConfigWrite {
	return []ConfigWrite{
		{Index: 0x2001, Subindex: 0x01, Value: int64(nominalPowerDeciW), Name: "nominal_power"},
		{Index: 0x2001, Subindex: 0x02, Value: int64(nominalVoltageDeciV), Name: "nominal_voltage"},
		{Index: 0x2001, Subindex: 0x03, Value: int64(nominalCurrentDeciA), Name: "nominal_current"},
		{Index: 0x2001, Subindex: 0x04, Value: int64(nominalFreqDeciHz), Name: "nominal_frequency"},
		{Index: 0x2001, Subindex: 0x05, Value: int64(nominalSpeedRPM), Name: "nominal_speed"},
		{Index: 0x2001, Subindex: 0x06, Value: int64(cosPhiHundredths), Name: "cos_phi"},
		{Index: 0x2001, Subindex: 0x07, Value: int64(lowSpeedDeciHz), Name: "low_speed"},
		{Index: 0x2001, Subindex: 0x08, Value: int64(highSpeedDeciHz), Name: "high_speed"},
		{Index: 0x2001, Subindex: 0x09, Value: int64(thermalCurrentDeciA), Name: "thermal_current"},
		{Index: 0x2001, Subindex: 0x0A, Value: int64(limitCurrentDeciA), Name: "limit_current"},
		{Index: 0x2001, Subindex: 0x0B, Value: int64(rampDivider), Name: "ramp_divider"},
		{Index: 0x2001, Subindex: 0x0C, Value: int64(leakageInductanceMH), Name: "leakage_inductance"},
		{Index: 0x2001, Subindex: 0x0D, Value: int64(statorResistanceMOhm), Name: "stator_resistance"},
		{Index: 0x2001, Subindex: 0x0E, Value: int64(rotorTimeConstantMs), Name: "rotor_time_constant"},
	}
}

// TorqueCurrentLimitStopModeWrite encodes the torque/current limit stop
// mode enum into its SDO write. Unknown modes are silently skipped
// (no write is issued) so an unrecognized string never corrupts the
// drive's live configuration.
func TorqueCurrentLimitStopModeWrite(mode string) (ConfigWrite, bool) {
	var v int64
	switch mode {
	case "freewheel":
		v = 0
	case "ramp":
		v = 1
	case "fast_stop":
		v = 2
	case "dc_injection":
		v = 3
	default:
		return ConfigWrite{}, false
	}
	return ConfigWrite{Index: 0x2002, Subindex: 0x01, Value: v, Name: "torque_current_limit_stop_mode"}, true
}

// DefaultCycleTime is used when a DriveConfig omits cycle_time_us.
const DefaultCycleTime = time.Millisecond
