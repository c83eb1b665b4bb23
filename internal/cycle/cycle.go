// Package cycle implements the per-PDO-cycle handler: the tick invoked by
// the transport adapter with the drive's input and a mutable output, tying
// together the state engine, the positioner, and the command orchestrator.
package cycle

import (
	"time"

	"atv320ctl/internal/cia402"
	"atv320ctl/internal/orchestrator"
	"atv320ctl/internal/pdo"
	"atv320ctl/internal/positioner"
)

// Config carries the drive-wide tunables the cycle handler needs directly;
// orchestrator- and positioner-specific tunables live on their own Config
// types.
type Config struct {
	CycleTime       time.Duration
	LowSpeedDeciHz  int16
	HighSpeedDeciHz int16
	AccelRampDs     uint16
	DecelRampDs     uint16

	// DefaultSpeedRatio is the speedratio the IPC-run fallback commands
	// when no command-surface peer is connected and the IPC run boolean
	// is set; it is the only speed this fallback path ever knows.
	DefaultSpeedRatio float64
}

// StatusPublisher receives a change-suppressed snapshot of drive status.
// Implementations typically publish a retained bus message per field, the
// way the rest of this tree's ambient status reporting works.
type StatusPublisher interface {
	PublishStatus(s Status)
}

// Status is the set of fields mirrored externally, matching the command
// surface's published properties (state_402, hmis, last_error, current).
type Status struct {
	DriveState    pdo.DriveState
	HMIDriveState uint16
	Frequency     int16
	Current       uint16
	LastError     uint16
	DigitalInputs uint8
}

// Handler owns the fault-history ring and drives the orchestrator and
// positioner from the per-cycle transport callback. Like everything else
// on the cycle loop, it is single-owner and holds no locks.
type Handler struct {
	cfg  Config
	orch *orchestrator.Orchestrator
	pos  *positioner.Positioner
	pub  StatusPublisher

	faults faultHistory
	last   Status
	have   bool // whether `last` holds a previously published snapshot
}

func NewHandler(cfg Config, orch *orchestrator.Orchestrator, pos *positioner.Positioner, pub StatusPublisher) *Handler {
	return &Handler{cfg: cfg, orch: orch, pos: pos, pub: pub}
}

// Tick runs one full cycle: intake, orchestrator/positioner observation,
// then output-word computation, in that order (status intake must precede
// orchestrator observation, which must precede the output word).
func (h *Handler) Tick(input pdo.InputPDO, now time.Time, externalResetEdge bool, peerConnected, ipcRun bool) pdo.OutputPDO {
	state := pdo.ParseStatusWord(input.StatusWord)

	if state == pdo.Fault && input.LastError != pdo.NoFault {
		h.faults.recordIfNew(input.LastError)
	}

	h.publishIfChanged(Status{
		DriveState:    state,
		HMIDriveState: input.HMIDriveState,
		Frequency:     input.Frequency,
		Current:       input.Current,
		LastError:     input.LastError,
		DigitalInputs: input.DigitalInputs,
	})

	h.orch.UpdateStatus(state, input.LastError, now)
	h.pos.FreqUpdate(input.Frequency, h.cfg.CycleTime)
	if externalResetEdge {
		h.orch.RaiseResetPermission(now)
	}

	h.orch.Tick(now, input.Frequency == 0, h.pos)

	return h.buildOutput(state, peerConnected, ipcRun)
}

// NoData handles the transport reporting loss of contact: it synthesizes a
// fault + communication-not-found status so pending commands fail cleanly,
// and returns a safe, motionless output.
func (h *Handler) NoData(now time.Time) pdo.OutputPDO {
	h.publishIfChanged(Status{
		DriveState: pdo.Fault,
		LastError:  communicationNotFoundCode,
	})
	h.orch.CommunicationLost()
	return pdo.OutputPDO{}
}

func (h *Handler) buildOutput(state pdo.DriveState, peerConnected, ipcRun bool) pdo.OutputPDO {
	var action pdo.TransitionAction
	var sr float64

	if peerConnected {
		action, sr = h.orch.Action()
	} else {
		if ipcRun {
			sr = h.cfg.DefaultSpeedRatio
			action = pdo.ActionRun
		} else {
			action = pdo.ActionNone
		}
	}

	freq := pdo.SpeedratioToDeciHz(sr, h.cfg.LowSpeedDeciHz, h.cfg.HighSpeedDeciHz)
	if !peerConnected && freq == 0 {
		action = pdo.ActionQuickStop
	}
	action = cia402.DowngradeIfDeadband(action, sr)

	control := cia402.Transition(state, action, h.orch.ResetPermitted())

	return pdo.OutputPDO{
		ControlWord:        control,
		ReferenceFrequency: freq,
		AccelRamp:          h.cfg.AccelRampDs,
		DecelRamp:          h.cfg.DecelRampDs,
	}
}

func (h *Handler) publishIfChanged(s Status) {
	if h.have && h.last == s {
		return
	}
	h.last = s
	h.have = true
	if h.pub != nil {
		h.pub.PublishStatus(s)
	}
}

// communicationNotFoundCode mirrors the last_error value reserved for
// transport loss, distinct from any code the drive itself reports.
const communicationNotFoundCode uint16 = 0xFFFF
