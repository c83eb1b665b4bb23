// Command atv320ctl wires the CiA 402 state engine, positioner, command
// orchestrator, and PDO cycle handler into a runnable loop. Real EtherCAT
// frame exchange is out of scope here: this binary drives the cycle loop
// against a small in-process drive simulator satisfying transport.Adapter,
// standing in for SOEM-style cyclic I/O.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"atv320ctl/internal/bus"
	"atv320ctl/internal/config"
	"atv320ctl/internal/cycle"
	"atv320ctl/internal/fmtx"
	"atv320ctl/internal/orchestrator"
	"atv320ctl/internal/pdo"
	"atv320ctl/internal/peer"
	"atv320ctl/internal/positioner"
	"atv320ctl/internal/transport"
)

// statusLogInterval bounds how often runLoop prints a state line; printing
// every cycle at 1kHz would drown the console.
const statusLogInterval = 1000

const slaveID = "atv320-0"

// embeddedDefaultConfig is a flash-resident JSON document decoded at
// startup before anything waits on a live config publish.
const embeddedDefaultConfig = `{
  "cycle_time_us": 1000,
  "low_speed_dhz": 200,
  "high_speed_dhz": 800,
  "nominal_power_dw": 11000,
  "nominal_voltage_dv": 4000,
  "nominal_current_da": 260,
  "nominal_frequency_dhz": 500,
  "nominal_speed_rpm": 1450,
  "cos_phi_hundredths": 85,
  "thermal_current_da": 280,
  "limit_current_da": 300,
  "ramp_divider": 1,
  "leakage_inductance_mh": 12,
  "stator_resistance_mohm": 560,
  "rotor_time_constant_ms": 180,
  "torque_current_limit_stop_mode": "ramp",
  "accel_ramp_ds": 30,
  "decel_ramp_ds": 30,
  "resolution_um_per_rev": 50,
  "homing_speedratio": 10,
  "homing_sensor_configured": true,
  "default_speedratio": 40
}`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	b := bus.NewBus(16)
	conn := b.NewConnection("atv320ctl")

	cfg, err := config.Decode([]byte(embeddedDefaultConfig))
	if err != nil {
		println("fatal: decode embedded config:", err.Error())
		os.Exit(1)
	}

	pos := positioner.New(positioner.Config{ResolutionMicrometresPerRev: cfg.ResolutionMicrometresPerRev})
	orch := orchestrator.New(orchestrator.Config{
		LowSpeedDeciHz:   cfg.LowSpeedDeciHz,
		HighSpeedDeciHz:  cfg.HighSpeedDeciHz,
		HomingSpeedratio: cfg.HomingSpeedratio,
		ResetWindow:      time.Duration(cfg.ResetWindowSeconds) * time.Second,
		AutoResetAllow:   cfg.AutoResetAllow,
	}, pos)

	surface := peer.New(peer.Config{
		HeartbeatWindow:   time.Duration(cfg.PeerHeartbeatSeconds) * time.Second,
		LongLivingWindow:  time.Duration(cfg.PeerLongLivingSeconds) * time.Second,
		HeartbeatJitter:   2 * time.Second,
		DefaultSpeedRatio: cfg.DefaultSpeedRatio,
	}, orch, pos, conn, slaveID)

	handler := cycle.NewHandler(cycle.Config{
		CycleTime:         time.Duration(cfg.CycleTimeMicros) * time.Microsecond,
		LowSpeedDeciHz:    cfg.LowSpeedDeciHz,
		HighSpeedDeciHz:   cfg.HighSpeedDeciHz,
		AccelRampDs:       cfg.AccelRampDs,
		DecelRampDs:       cfg.DecelRampDs,
		DefaultSpeedRatio: cfg.DefaultSpeedRatio,
	}, orch, pos, surface)

	queue := transport.NewWriteQueue(32)
	adapter := newSimDrive()

	configSvc := config.NewService(conn)
	if _, err := configSvc.Publish([]byte(embeddedDefaultConfig), writeQueueSink{queue}); err != nil {
		println("fatal: publish embedded config:", err.Error())
		os.Exit(1)
	}
	go func() {
		if err := configSvc.Run(ctx, writeQueueSink{queue}); err != nil && ctx.Err() == nil {
			println("config service stopped:", err.Error())
		}
	}()

	startupWrites(cfg, queue)
	_ = queue.Drain(ctx, adapter)

	go serveControl(ctx, conn, surface)

	runLoop(ctx, handler, surface, adapter, queue, time.Duration(cfg.CycleTimeMicros)*time.Microsecond)
}

// writeQueueSink implements config.Sink by translating a DriveConfig diff
// into the SDO writes the changed fields require, posted (never issued
// inline) onto the transport write queue.
type writeQueueSink struct{ q *transport.WriteQueue }

func (s writeQueueSink) ApplyDiff(prev, next config.DriveConfig) {
	if prev.LowSpeedDeciHz != next.LowSpeedDeciHz || prev.HighSpeedDeciHz != next.HighSpeedDeciHz ||
		prev.NominalPowerDeciW != next.NominalPowerDeciW || prev.NominalVoltageDeciV != next.NominalVoltageDeciV ||
		prev.NominalCurrentDeciA != next.NominalCurrentDeciA || prev.NominalFreqDeciHz != next.NominalFreqDeciHz ||
		prev.NominalSpeedRPM != next.NominalSpeedRPM || prev.CosPhiHundredths != next.CosPhiHundredths ||
		prev.ThermalCurrentDeciA != next.ThermalCurrentDeciA || prev.LimitCurrentDeciA != next.LimitCurrentDeciA ||
		prev.RampDivider != next.RampDivider || prev.LeakageInductanceMH != next.LeakageInductanceMH ||
		prev.StatorResistanceMOhm != next.StatorResistanceMOhm || prev.RotorTimeConstantMs != next.RotorTimeConstantMs {
		startupWrites(next, s.q)
	}
	if prev.TorqueCurrentLimitStopMode != next.TorqueCurrentLimitStopMode {
		if w, ok := transport.TorqueCurrentLimitStopModeWrite(next.TorqueCurrentLimitStopMode); ok {
			s.q.Post(w)
		}
	}
}

func startupWrites(cfg config.DriveConfig, q *transport.WriteQueue) {
	q.Post(transport.ObjectReferenceSource)
	q.Post(transport.ObjectClearR1Assignment)
	q.Post(transport.ObjectClearAQ1Assignment)
	q.Post(transport.ObjectExtendedFaultReset)
	for _, w := range transport.NameplateWrites(
		cfg.NominalPowerDeciW, cfg.NominalVoltageDeciV, cfg.NominalCurrentDeciA, cfg.NominalFreqDeciHz,
		cfg.NominalSpeedRPM, cfg.CosPhiHundredths, cfg.ThermalCurrentDeciA, cfg.LimitCurrentDeciA,
		cfg.RampDivider, cfg.LeakageInductanceMH, cfg.StatorResistanceMOhm, cfg.RotorTimeConstantMs,
		cfg.LowSpeedDeciHz, cfg.HighSpeedDeciHz,
	) {
		q.Post(w)
	}
	if w, ok := transport.TorqueCurrentLimitStopModeWrite(cfg.TorqueCurrentLimitStopMode); ok {
		q.Post(w)
	}
}

// runLoop drives the cycle handler at the configured period until ctx is
// done. One goroutine owns the PDO cycle, the orchestrator, and the
// positioner; nothing here needs a lock.
func runLoop(ctx context.Context, h *cycle.Handler, surface *peer.Surface, adapter transport.Adapter, queue *transport.WriteQueue, period time.Duration) {
	if period <= 0 {
		period = transport.DefaultCycleTime
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	out := pdo.OutputPDO{}
	var cycles uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_ = queue.Drain(ctx, adapter)

			in, hasData, err := adapter.Exchange(ctx, out)
			surface.CheckExpiry(now)
			if err != nil || !hasData {
				out = h.NoData(now)
				continue
			}
			out = h.Tick(in, now, false, surface.Connected(), false)

			cycles++
			if cycles%statusLogInterval == 0 {
				fmtx.Printf("[atv320ctl] state=%s freq=%ddHz current=%ddA peer=%q\n",
					pdo.ParseStatusWord(in.StatusWord), in.Frequency, in.Current, surface.ConnectedPeer())
			}
		}
	}
}

// ---- Command surface bus routing ----

// ControlRequest is the payload peers publish on the control topic
// (bus.ControlTopic); Method names one of the command-surface RPC methods,
// CallerID identifies the connection for the single-peer model.
type ControlRequest struct {
	CallerID           string
	Method             string
	SR                 float64
	Micros             int64
	Direction          float64
	TravelUm           float64
	PlacementUm        float64
	DeltaUm            float64
	LongLiving         bool
	HomingSensorActive bool
	CurrentAbsolute    float64
}

// ControlReply is published back to the requester's ReplyTo topic.
type ControlReply struct {
	Err          string
	Displacement float64
	Bool         bool
}

func serveControl(ctx context.Context, conn *bus.Connection, surface *peer.Surface) {
	sub := conn.Subscribe(bus.ControlTopic(slaveID))
	defer conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			req, ok := msg.Payload.(ControlRequest)
			if !ok {
				continue
			}
			conn.Reply(msg, dispatch(surface, req), false)
		}
	}
}

func dispatch(s *peer.Surface, req ControlRequest) ControlReply {
	now := time.Now()
	d := time.Duration(req.Micros) * time.Microsecond
	switch req.Method {
	case "ping":
		return ControlReply{Bool: s.Ping(req.CallerID, req.LongLiving, now)}
	case "run":
		_, code := s.Run(req.CallerID, req.Direction)
		return ControlReply{Err: string(code)}
	case "run_at_speedratio":
		_, code := s.RunAtSpeedratio(req.CallerID, req.SR)
		return ControlReply{Err: string(code)}
	case "run_at_speedratio_microsecond":
		_, code := s.RunAtSpeedratioMicrosecond(req.CallerID, req.SR, d, now)
		return ControlReply{Err: string(code)}
	case "run_microsecond":
		_, code := s.RunMicrosecond(req.CallerID, d, req.Direction, now)
		return ControlReply{Err: string(code)}
	case "stop":
		_, code := s.Stop(req.CallerID)
		return ControlReply{Err: string(code)}
	case "quick_stop":
		_, code := s.QuickStop(req.CallerID)
		return ControlReply{Err: string(code)}
	case "reset":
		_, code := s.Reset(req.CallerID, now)
		return ControlReply{Err: string(code)}
	case "move_home":
		_, code := s.MoveHome(req.CallerID, true, req.HomingSensorActive, req.CurrentAbsolute)
		return ControlReply{Err: string(code)}
	case "convey_micrometre":
		_, code := s.ConveyMicrometre(req.CallerID, req.TravelUm)
		return ControlReply{Err: string(code)}
	case "move_speedratio_micrometre":
		_, code := s.MoveSpeedratioMicrometre(req.CallerID, req.SR, req.PlacementUm)
		return ControlReply{Err: string(code)}
	case "move_micrometre":
		_, code := s.MoveMicrometre(req.CallerID, req.PlacementUm)
		return ControlReply{Err: string(code)}
	case "notify_after_micrometre":
		_, code := s.NotifyAfterMicrometre(req.CallerID, req.DeltaUm)
		return ControlReply{Err: string(code)}
	case "needs_homing":
		needs, code := s.NeedsHoming(req.CallerID)
		return ControlReply{Err: string(code), Bool: needs}
	default:
		return ControlReply{Err: "motor_method_not_implemented"}
	}
}
