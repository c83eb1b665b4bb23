package config

import (
	"context"
	"testing"
	"time"

	"atv320ctl/internal/bus"
)

func TestDecode_FillsKnownFieldsAndDefaults(t *testing.T) {
	raw := []byte(`{
		"low_speed_dhz": 200,
		"high_speed_dhz": 800,
		"accel_ramp_ds": 50,
		"decel_ramp_ds": 50,
		"resolution_um_per_rev": 10,
		"homing_speedratio": 15,
		"homing_sensor_configured": true
	}`)
	cfg, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.LowSpeedDeciHz != 200 || cfg.HighSpeedDeciHz != 800 {
		t.Fatalf("speed range = %+v", cfg)
	}
	if !cfg.HomingSensorConfigured {
		t.Fatal("expected homing_sensor_configured = true")
	}
	if cfg.ResetWindowSeconds != 5 {
		t.Fatalf("ResetWindowSeconds default = %d, want 5", cfg.ResetWindowSeconds)
	}
	if len(cfg.AutoResetAllow) != 2 {
		t.Fatalf("AutoResetAllow default = %v, want 2 entries", cfg.AutoResetAllow)
	}
	if cfg.PeerHeartbeatSeconds != 15 || cfg.PeerLongLivingSeconds != 3600 {
		t.Fatalf("peer timeouts = %+v", cfg)
	}
}

func TestDecode_NotAnObject(t *testing.T) {
	if _, err := Decode([]byte(`[1,2,3]`)); err == nil {
		t.Fatal("expected error decoding a JSON array as DriveConfig")
	}
}

func TestDecode_CustomAutoResetAllow(t *testing.T) {
	cfg, err := Decode([]byte(`{"auto_reset_allow":[1,2,3]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(cfg.AutoResetAllow) != 3 || cfg.AutoResetAllow[2] != 3 {
		t.Fatalf("AutoResetAllow = %v", cfg.AutoResetAllow)
	}
}

type recordingSink struct {
	diffs [][2]DriveConfig
}

func (r *recordingSink) ApplyDiff(prev, next DriveConfig) {
	r.diffs = append(r.diffs, [2]DriveConfig{prev, next})
}

func TestService_Publish_RetainsAndDiffsAfterFirst(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-atv320-config")
	svc := NewService(conn)
	sink := &recordingSink{}

	if _, err := svc.Publish([]byte(`{"low_speed_dhz":100}`), sink); err != nil {
		t.Fatalf("first Publish: %v", err)
	}
	if len(sink.diffs) != 0 {
		t.Fatalf("first config must not diff, got %d", len(sink.diffs))
	}

	if _, err := svc.Publish([]byte(`{"low_speed_dhz":150}`), sink); err != nil {
		t.Fatalf("second Publish: %v", err)
	}
	if len(sink.diffs) != 1 {
		t.Fatalf("expected one diff, got %d", len(sink.diffs))
	}
	if sink.diffs[0][1].LowSpeedDeciHz != 150 {
		t.Fatalf("diff next.LowSpeedDeciHz = %d, want 150", sink.diffs[0][1].LowSpeedDeciHz)
	}

	sub := conn.Subscribe(ConfigTopic())
	defer conn.Unsubscribe(sub)
	select {
	case msg := <-sub.Channel():
		cfg, ok := msg.Payload.(DriveConfig)
		if !ok || cfg.LowSpeedDeciHz != 150 {
			t.Fatalf("retained payload = %#v", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("retained config never delivered to new subscriber")
	}
}

func TestService_Run_AppliesDiffsUntilCancelled(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-atv320-config-run")
	svc := NewService(conn)
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx, sink) }()

	pub := b.NewConnection("publisher")
	pub.Publish(pub.NewMessage(ConfigTopic(), DriveConfig{LowSpeedDeciHz: 100}, true))
	time.Sleep(20 * time.Millisecond)
	pub.Publish(pub.NewMessage(ConfigTopic(), DriveConfig{LowSpeedDeciHz: 200}, true))
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if len(sink.diffs) != 1 {
		t.Fatalf("expected 1 diff, got %d: %+v", len(sink.diffs), sink.diffs)
	}
}
