// Package peer implements the command surface's single-peer RPC contract:
// one connection at a time, with heartbeat/ping lifecycle management and
// published status mirroring, over the injected bus rather than D-Bus.
// Grounded on bus.Connection.Reply's request/reply shape and
// a periodic heartbeat ticker.
package peer

import (
	"math/rand"
	"time"

	"atv320ctl/internal/bus"
	"atv320ctl/internal/cycle"
	"atv320ctl/internal/motorerr"
	"atv320ctl/internal/orchestrator"
	"atv320ctl/internal/pdo"
	"atv320ctl/internal/positioner"
)

// Config carries the peer heartbeat timings: 15s default ping window, 1h
// for a caller that registered as long-living. HeartbeatJitter
// spreads a fleet of drives' expiry checks across time instead of having
// every peer's deadline land on the same tick.
type Config struct {
	HeartbeatWindow   time.Duration
	LongLivingWindow  time.Duration
	HeartbeatJitter   time.Duration
	DefaultSpeedRatio float64
}

func (c Config) withDefaults() Config {
	if c.HeartbeatWindow <= 0 {
		c.HeartbeatWindow = 15 * time.Second
	}
	if c.LongLivingWindow <= 0 {
		c.LongLivingWindow = time.Hour
	}
	// HeartbeatJitter has no default: zero (as in core.Poller's own
	// jittered()) means "no jitter", so tests and single-drive deployments
	// get exact deadlines unless a fleet operator opts in.
	return c
}

// Surface owns the connected-peer lifecycle and routes authorized callers'
// commands to the orchestrator. It lives on the same single cycle-loop
// goroutine as everything else in this tree; there is no lock because
// nothing touches it from another goroutine.
type Surface struct {
	cfg    Config
	orch   *orchestrator.Orchestrator
	pos    *positioner.Positioner
	conn   *bus.Connection
	slave  string

	peerID     string // empty when no peer is connected
	longLiving bool
	deadline   time.Time

	last cycle.Status
	have bool

	rnd *rand.Rand
}

// New builds a Surface. conn and slave may be zero-valued for tests that
// never need the retained bus mirroring of connected_peer/state topics.
func New(cfg Config, orch *orchestrator.Orchestrator, pos *positioner.Positioner, conn *bus.Connection, slave string) *Surface {
	return &Surface{
		cfg:   cfg.withDefaults(),
		orch:  orch,
		pos:   pos,
		conn:  conn,
		slave: slave,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ConnectedPeer mirrors the published "connected_peer" property: empty
// when no peer is registered.
func (s *Surface) ConnectedPeer() string { return s.peerID }

// Connected reports whether the cycle handler should drive its output
// from the orchestrator (a peer is present) rather than the IPC-boolean
// fallback.
func (s *Surface) Connected() bool { return s.peerID != "" }

// authorize enforces the single-peer model: the first caller to reach the
// surface becomes the peer; everyone else is rejected until the peer
// disconnects.
func (s *Surface) authorize(callerID string) motorerr.Code {
	if s.peerID == "" {
		s.peerID = callerID
		s.publishConnectedPeer()
	}
	if callerID != s.peerID {
		return motorerr.PermissionDenied
	}
	return motorerr.Success
}

func (s *Surface) publishConnectedPeer() {
	if s.conn == nil {
		return
	}
	s.conn.Publish(s.conn.NewMessage(bus.ConnectedPeerTopic(s.slave), s.peerID, true))
}

// Ping refreshes the heartbeat deadline for callerID, registering it as
// the connected peer if none is currently connected. Returns false if
// callerID is not (and cannot become) the connected peer.
func (s *Surface) Ping(callerID string, longLiving bool, now time.Time) bool {
	if s.authorize(callerID) != motorerr.Success {
		return false
	}
	s.longLiving = longLiving
	s.extend(now)
	return true
}

func (s *Surface) extend(now time.Time) {
	window := s.cfg.HeartbeatWindow
	if s.longLiving {
		window = s.cfg.LongLivingWindow
	}
	s.deadline = now.Add(window + s.jitter())
}

// jitter returns a random extra delay in [0, HeartbeatJitter], so that a
// fleet of drives pinged at the same instant don't all expire on the same
// cycle tick.
func (s *Surface) jitter() time.Duration {
	if s.cfg.HeartbeatJitter <= 0 || s.rnd == nil {
		return 0
	}
	return time.Duration(s.rnd.Int63n(int64(s.cfg.HeartbeatJitter) + 1))
}

// CheckExpiry disconnects the peer and issues an unconditional stop if
// its heartbeat window has elapsed. Call once per cycle from the loop.
func (s *Surface) CheckExpiry(now time.Time) {
	if s.peerID == "" {
		return
	}
	if now.After(s.deadline) {
		s.disconnect()
	}
}

func (s *Surface) disconnect() {
	s.peerID = ""
	s.longLiving = false
	s.orch.Stop()
	s.publishConnectedPeer()
}

// Disconnect forcibly drops the current peer, as if its heartbeat had
// expired. Used when the underlying link reports a clean close.
func (s *Surface) Disconnect(callerID string) {
	if callerID != "" && callerID != s.peerID {
		return
	}
	s.disconnect()
}

// PublishStatus implements cycle.StatusPublisher, mirroring state_402,
// hmis, last_error, and current: the command surface's published
// properties. Each of DI1-DI6 is also mirrored on its own retained topic,
// change-suppressed per bit, so a subscriber can watch a single input
// without decoding the bitmask folded into the snapshot.
func (s *Surface) PublishStatus(st cycle.Status) {
	prev, hadPrev := s.last, s.have
	s.last = st
	s.have = true
	if s.conn == nil {
		return
	}
	s.conn.Publish(s.conn.NewMessage(bus.StatusTopic(s.slave), st, true))
	for i := 0; i < 6; i++ {
		bit := st.DigitalInputs&(1<<uint(i)) != 0
		if hadPrev && (prev.DigitalInputs&(1<<uint(i)) != 0) == bit {
			continue
		}
		s.conn.Publish(s.conn.NewMessage(bus.DigitalInputTopic(s.slave, i+1), bit, true))
	}
}

// State402 returns the last observed CiA 402 drive state.
func (s *Surface) State402() pdo.DriveState {
	if !s.have {
		return pdo.NotReadyToSwitchOn
	}
	return s.last.DriveState
}

// HMIState, LastError, Current mirror the remaining published properties.
func (s *Surface) HMIState() uint16  { return s.last.HMIDriveState }
func (s *Surface) LastError() uint16 { return s.last.LastError }
func (s *Surface) Current() uint16   { return s.last.Current }

// ---- Command methods ----

func (s *Surface) Run(callerID string, direction float64) (<-chan orchestrator.Completion, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return nil, code
	}
	sr := s.cfg.DefaultSpeedRatio
	if direction < 0 {
		sr = -sr
	}
	return s.orch.Run(sr), motorerr.Success
}

func (s *Surface) RunAtSpeedratio(callerID string, sr float64) (<-chan orchestrator.Completion, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return nil, code
	}
	return s.orch.Run(sr), motorerr.Success
}

func (s *Surface) RunAtSpeedratioMicrosecond(callerID string, sr float64, d time.Duration, now time.Time) (<-chan orchestrator.Completion, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return nil, code
	}
	return s.orch.RunFor(sr, d, now), motorerr.Success
}

func (s *Surface) RunMicrosecond(callerID string, d time.Duration, direction float64, now time.Time) (<-chan orchestrator.Completion, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return nil, code
	}
	sr := s.cfg.DefaultSpeedRatio
	if direction < 0 {
		sr = -sr
	}
	return s.orch.RunFor(sr, d, now), motorerr.Success
}

func (s *Surface) Stop(callerID string) (<-chan orchestrator.Completion, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return nil, code
	}
	return s.orch.Stop(), motorerr.Success
}

func (s *Surface) QuickStop(callerID string) (<-chan orchestrator.Completion, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return nil, code
	}
	return s.orch.QuickStop(), motorerr.Success
}

func (s *Surface) Reset(callerID string, now time.Time) (<-chan orchestrator.Completion, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return nil, code
	}
	return s.orch.Reset(now), motorerr.Success
}

func (s *Surface) MoveHome(callerID string, homingSensorConfigured, homingSensorActive bool, currentAbsolute float64) (<-chan orchestrator.Completion, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return nil, code
	}
	return s.orch.MoveHome(homingSensorConfigured, homingSensorActive, currentAbsolute, s.pos.Home), motorerr.Success
}

func (s *Surface) ConveyMicrometre(callerID string, travelUm float64) (<-chan orchestrator.Completion, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return nil, code
	}
	return s.orch.Convey(s.cfg.DefaultSpeedRatio, travelUm, s.pos), motorerr.Success
}

func (s *Surface) MoveSpeedratioMicrometre(callerID string, sr, placementUm float64) (<-chan orchestrator.Completion, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return nil, code
	}
	return s.orch.Move(sr, placementUm, s.pos), motorerr.Success
}

func (s *Surface) MoveMicrometre(callerID string, placementUm float64) (<-chan orchestrator.Completion, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return nil, code
	}
	return s.orch.Move(s.cfg.DefaultSpeedRatio, placementUm, s.pos), motorerr.Success
}

func (s *Surface) NotifyAfterMicrometre(callerID string, deltaUm float64) (<-chan orchestrator.Completion, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return nil, code
	}
	return s.orch.NotifyAfter(deltaUm, s.pos), motorerr.Success
}

// NeedsHoming reports whether a positional command would currently fail
// for lack of a home reference.
func (s *Surface) NeedsHoming(callerID string) (bool, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return false, code
	}
	return !s.pos.Homed(), motorerr.Success
}

// ConveyVelocityMicrometrePerSecond and MoveVelocityMicrometrePerSecond are
// the two "convey/move at an explicit velocity rather than a speedratio"
// variants this drive does not currently implement; reserved for a future
// variant that exposes true closed-loop velocity control.
func (s *Surface) ConveyVelocityMicrometrePerSecond(callerID string, velocityUmPerSec, travelUm float64) (<-chan orchestrator.Completion, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return nil, code
	}
	return nil, motorerr.MotorMethodNotImplemented
}

func (s *Surface) MoveVelocityMicrometrePerSecond(callerID string, velocityUmPerSec, placementUm float64) (<-chan orchestrator.Completion, motorerr.Code) {
	if code := s.authorize(callerID); code != motorerr.Success {
		return nil, code
	}
	return nil, motorerr.MotorMethodNotImplemented
}
