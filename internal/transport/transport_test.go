package transport

import (
	"context"
	"errors"
	"testing"

	"atv320ctl/internal/pdo"
)

type recordingAdapter struct {
	writes []ConfigWrite
	failOn string
}

func (a *recordingAdapter) Exchange(ctx context.Context, out pdo.OutputPDO) (pdo.InputPDO, bool, error) {
	return pdo.InputPDO{}, true, nil
}

func (a *recordingAdapter) WriteConfig(ctx context.Context, w ConfigWrite) error {
	if w.Name == a.failOn {
		return errors.New("write failed")
	}
	a.writes = append(a.writes, w)
	return nil
}

func TestWriteQueue_DrainAppliesInOrder(t *testing.T) {
	q := NewWriteQueue(4)
	q.Post(ObjectReferenceSource)
	q.Post(ObjectClearR1Assignment)
	q.Post(ObjectExtendedFaultReset)

	a := &recordingAdapter{}
	if err := q.Drain(context.Background(), a); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(a.writes) != 3 {
		t.Fatalf("got %d writes, want 3", len(a.writes))
	}
	if a.writes[0].Name != "reference_source_via_com" || a.writes[2].Name != "extended_fault_reset_enable" {
		t.Fatalf("writes out of order: %+v", a.writes)
	}
}

func TestWriteQueue_DrainStopsAtFirstError(t *testing.T) {
	q := NewWriteQueue(4)
	q.Post(ObjectReferenceSource)
	q.Post(ObjectClearR1Assignment)

	a := &recordingAdapter{failOn: "clear_r1_assignment"}
	if err := q.Drain(context.Background(), a); err == nil {
		t.Fatal("expected Drain to surface the write error")
	}
	if len(a.writes) != 1 {
		t.Fatalf("expected exactly one applied write before failure, got %d", len(a.writes))
	}
}

func TestNameplateWrites_Order(t *testing.T) {
	ws := NameplateWrites(5000, 4000, 120, 500, 1450, 85, 130, 150, 4, 3, 15, 30, 20, 800)
	if len(ws) != 14 {
		t.Fatalf("got %d writes, want 14", len(ws))
	}
	if ws[0].Name != "nominal_power" || ws[len(ws)-1].Name != "rotor_time_constant" {
		t.Fatalf("unexpected ordering: first=%s last=%s", ws[0].Name, ws[len(ws)-1].Name)
	}
}

func TestTorqueCurrentLimitStopModeWrite_UnknownSkipped(t *testing.T) {
	if _, ok := TorqueCurrentLimitStopModeWrite("warp_drive"); ok {
		t.Fatal("expected unknown mode to be rejected")
	}
	w, ok := TorqueCurrentLimitStopModeWrite("fast_stop")
	if !ok || w.Value != 2 {
		t.Fatalf("fast_stop write = %+v, ok=%v", w, ok)
	}
}
