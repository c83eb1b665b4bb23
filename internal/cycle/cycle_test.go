package cycle

import (
	"testing"
	"time"

	"atv320ctl/internal/orchestrator"
	"atv320ctl/internal/pdo"
	"atv320ctl/internal/positioner"
)

type recordingPublisher struct {
	statuses []Status
}

func (r *recordingPublisher) PublishStatus(s Status) { r.statuses = append(r.statuses, s) }

func newTestHandler() (*Handler, *orchestrator.Orchestrator, *positioner.Positioner, *recordingPublisher) {
	pos := positioner.New(positioner.Config{ResolutionMicrometresPerRev: 10})
	orch := orchestrator.New(orchestrator.Config{LowSpeedDeciHz: 200, HighSpeedDeciHz: 800, ResetWindow: 5 * time.Second}, pos)
	pub := &recordingPublisher{}
	h := NewHandler(Config{CycleTime: time.Millisecond, LowSpeedDeciHz: 200, HighSpeedDeciHz: 800}, orch, pos, pub)
	return h, orch, pos, pub
}

func TestTick_PublishesStatusOnlyOnChange(t *testing.T) {
	h, _, _, pub := newTestHandler()
	now := time.Now()

	in := pdo.InputPDO{StatusWord: 0x0027, Frequency: 0}
	h.Tick(in, now, false, false, false)
	h.Tick(in, now, false, false, false)
	h.Tick(in, now, false, false, false)

	if len(pub.statuses) != 1 {
		t.Fatalf("published %d times for an unchanged status, want 1", len(pub.statuses))
	}
}

func TestTick_NoPeerFollowsIPCRunBoolean(t *testing.T) {
	h, _, _, _ := newTestHandler()
	now := time.Now()
	in := pdo.InputPDO{StatusWord: 0x0027, Frequency: 500}

	out := h.Tick(in, now, false, false, false)
	if out.ReferenceFrequency != 0 {
		t.Fatalf("ipcRun=false reference = %d, want 0", out.ReferenceFrequency)
	}
}

func TestTick_NoPeerIPCRunCommandsDefaultSpeedratio(t *testing.T) {
	pos := positioner.New(positioner.Config{ResolutionMicrometresPerRev: 10})
	orch := orchestrator.New(orchestrator.Config{LowSpeedDeciHz: 200, HighSpeedDeciHz: 800, ResetWindow: 5 * time.Second}, pos)
	h := NewHandler(Config{CycleTime: time.Millisecond, LowSpeedDeciHz: 200, HighSpeedDeciHz: 800, DefaultSpeedRatio: 40}, orch, pos, &recordingPublisher{})
	now := time.Now()
	in := pdo.InputPDO{StatusWord: 0x0027, Frequency: 500}

	out := h.Tick(in, now, false, false, true)
	if out.ReferenceFrequency == 0 {
		t.Fatal("ipcRun=true with a configured default speedratio should command a nonzero reference frequency")
	}
}

func TestTick_CommandOrchestratorDrivesOutputWhenPeerConnected(t *testing.T) {
	h, orch, pos, _ := newTestHandler()
	now := time.Now()

	orch.UpdateStatus(pdo.OperationEnabled, 0, now)
	orch.Run(50)

	in := pdo.InputPDO{StatusWord: 0x0027, Frequency: 500}
	out := h.Tick(in, now, false, true, false)

	if out.ReferenceFrequency == 0 {
		t.Fatal("expected nonzero reference frequency for an active run(50)")
	}
	_ = pos
}

func TestNoData_SynthesizesCommunicationFault(t *testing.T) {
	h, orch, _, pub := newTestHandler()
	now := time.Now()

	orch.UpdateStatus(pdo.OperationEnabled, 0, now)
	ch := orch.Run(50)

	h.NoData(now)

	select {
	case got := <-ch:
		if got.Err != "frequency_drive_communication_fault" {
			t.Fatalf("completion = %v, want frequency_drive_communication_fault", got.Err)
		}
	default:
		t.Fatal("expected pending command to complete on no-data")
	}
	if len(pub.statuses) == 0 || pub.statuses[len(pub.statuses)-1].DriveState != pdo.Fault {
		t.Fatal("expected a fault status to be published on no-data")
	}
}

func TestFaultHistory_RecordsOnlyDistinctCodes(t *testing.T) {
	var fh faultHistory
	fh.recordIfNew(1)
	fh.recordIfNew(1)
	fh.recordIfNew(2)
	got := fh.Recent()
	if len(got) != 2 || got[0] != 2 || got[1] != 1 {
		t.Fatalf("fault history = %v, want [2 1]", got)
	}
}
