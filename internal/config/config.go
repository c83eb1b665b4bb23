// Package config decodes the drive's nameplate/ramp/speed configuration from
// the retained "config/atv320" bus topic and turns it into the typed
// DriveConfig the rest of the tree consumes. Decoding goes through
// andreyvit/tinyjson rather than encoding/json: a reflection-free decoder
// that stays cheap on a flash-resident build.
package config

import (
	"context"
	"errors"

	"github.com/andreyvit/tinyjson"

	"atv320ctl/internal/bus"
)

const (
	serviceName = "atv320-config"
	topicKey    = "atv320"
)

// ConfigTopic is the retained topic DriveConfig is published to and
// decoded from.
func ConfigTopic() bus.Topic { return bus.T("config", topicKey) }

// AutoResetDefault is the allow-list a fixed fault-reset invariant freezes
// to two values; DriveConfig carries it as data so a deployment can widen
// it without touching code.
var AutoResetDefault = []uint16{NoFaultCode, CommunicationNotFoundCode}

const (
	NoFaultCode               uint16 = 0x0000
	CommunicationNotFoundCode uint16 = 0xFFFF
)

// DriveConfig is the drive-wide tunable set: the nameplate parameters
// pushed to the drive over SDO at startup, plus the runtime knobs the
// cycle handler, orchestrator, and positioner need.
type DriveConfig struct {
	CycleTimeMicros int `json:"cycle_time_us"`

	LowSpeedDeciHz  int16 `json:"low_speed_dhz"`
	HighSpeedDeciHz int16 `json:"high_speed_dhz"`

	NominalPowerDeciW          int32  `json:"nominal_power_dw"`
	NominalVoltageDeciV        int32  `json:"nominal_voltage_dv"`
	NominalCurrentDeciA        int32  `json:"nominal_current_da"`
	NominalFreqDeciHz          int16  `json:"nominal_frequency_dhz"`
	NominalSpeedRPM            int32  `json:"nominal_speed_rpm"`
	CosPhiHundredths           int32  `json:"cos_phi_hundredths"`
	ThermalCurrentDeciA        int32  `json:"thermal_current_da"`
	LimitCurrentDeciA          int32  `json:"limit_current_da"`
	RampDivider                int32  `json:"ramp_divider"`
	LeakageInductanceMH        int32  `json:"leakage_inductance_mh"`
	StatorResistanceMOhm       int32  `json:"stator_resistance_mohm"`
	RotorTimeConstantMs        int32  `json:"rotor_time_constant_ms"`
	TorqueCurrentLimitStopMode string `json:"torque_current_limit_stop_mode"`

	AccelRampDs uint16 `json:"accel_ramp_ds"`
	DecelRampDs uint16 `json:"decel_ramp_ds"`

	ResolutionMicrometresPerRev float64 `json:"resolution_um_per_rev"`
	HomingSpeedratio            float64 `json:"homing_speedratio"`
	HomingSensorConfigured      bool    `json:"homing_sensor_configured"`

	DefaultSpeedRatio float64 `json:"default_speedratio"`

	ResetWindowSeconds int `json:"reset_window_s"`

	// AutoResetAllow lists last_error codes that auto-permit a fault
	// reset. Defaults to AutoResetDefault when omitted.
	AutoResetAllow []uint16 `json:"auto_reset_allow,omitempty"`

	PeerHeartbeatSeconds  int `json:"peer_heartbeat_s"`
	PeerLongLivingSeconds int `json:"peer_long_living_s"`
}

// WithDefaults fills zero-valued fields with this drive's fixed invariants
// (the 5s reset window, the two-value auto-reset allow-list, the 15s/1h
// peer heartbeat) so a partial config document is still safe to apply.
func (c DriveConfig) WithDefaults() DriveConfig {
	if c.ResetWindowSeconds == 0 {
		c.ResetWindowSeconds = 5
	}
	if len(c.AutoResetAllow) == 0 {
		c.AutoResetAllow = AutoResetDefault
	}
	if c.PeerHeartbeatSeconds == 0 {
		c.PeerHeartbeatSeconds = 15
	}
	if c.PeerLongLivingSeconds == 0 {
		c.PeerLongLivingSeconds = 3600
	}
	if c.ResolutionMicrometresPerRev == 0 {
		c.ResolutionMicrometresPerRev = 1
	}
	return c
}

// Decode parses a DriveConfig out of raw JSON using tinyjson's
// reflection-free decoder. tinyjson has no struct-tag unmarshaler, so
// decoding goes through its generic Value() (a map[string]any), then
// extracts known keys.
func Decode(raw []byte) (DriveConfig, error) {
	r := tinyjson.Raw(raw)
	val := r.Value()
	if err := r.EnsureEOF(); err != nil {
		return DriveConfig{}, err
	}
	m, ok := val.(map[string]any)
	if !ok {
		return DriveConfig{}, errors.New("atv320 config is not a JSON object")
	}
	return fromMap(m).WithDefaults(), nil
}

// Service publishes a DriveConfig onto the retained config topic and
// notifies a Sink of the diff against whatever was last applied. It never
// issues SDO writes itself: those are computed as a diff and posted onto
// the cycle loop's queue, not executed inline from this callback.
type Service struct {
	conn *bus.Connection
	prev DriveConfig
	have bool
}

func NewService(conn *bus.Connection) *Service {
	return &Service{conn: conn}
}

// Sink receives the nameplate/ramp fields that changed since the last
// applied config, so the caller can post the corresponding SDO writes onto
// its own loop queue.
type Sink interface {
	ApplyDiff(prev, next DriveConfig)
}

// Publish decodes raw and republishes it retained on ConfigTopic, then
// reports the diff to sink if this is not the first config seen.
func (s *Service) Publish(raw []byte, sink Sink) (DriveConfig, error) {
	cfg, err := Decode(raw)
	if err != nil {
		return DriveConfig{}, err
	}
	msg := s.conn.NewMessage(ConfigTopic(), cfg, true)
	s.conn.Publish(msg)

	if s.have && sink != nil {
		sink.ApplyDiff(s.prev, cfg)
	}
	s.prev = cfg
	s.have = true
	return cfg, nil
}

// Run subscribes to the config topic and applies every update it sees
// until ctx is done.
func (s *Service) Run(ctx context.Context, sink Sink) error {
	sub := s.conn.Subscribe(ConfigTopic())
	defer s.conn.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Channel():
			if !ok {
				return errors.New("config subscription closed")
			}
			cfg, ok := msg.Payload.(DriveConfig)
			if !ok {
				continue
			}
			if s.have && sink != nil {
				sink.ApplyDiff(s.prev, cfg)
			}
			s.prev = cfg
			s.have = true
		}
	}
}

func fromMap(m map[string]any) DriveConfig {
	var c DriveConfig
	c.CycleTimeMicros = intOf(m["cycle_time_us"])
	c.LowSpeedDeciHz = int16(intOf(m["low_speed_dhz"]))
	c.HighSpeedDeciHz = int16(intOf(m["high_speed_dhz"]))
	c.NominalPowerDeciW = int32(intOf(m["nominal_power_dw"]))
	c.NominalVoltageDeciV = int32(intOf(m["nominal_voltage_dv"]))
	c.NominalCurrentDeciA = int32(intOf(m["nominal_current_da"]))
	c.NominalFreqDeciHz = int16(intOf(m["nominal_frequency_dhz"]))
	c.NominalSpeedRPM = int32(intOf(m["nominal_speed_rpm"]))
	c.CosPhiHundredths = int32(intOf(m["cos_phi_hundredths"]))
	c.ThermalCurrentDeciA = int32(intOf(m["thermal_current_da"]))
	c.LimitCurrentDeciA = int32(intOf(m["limit_current_da"]))
	c.RampDivider = int32(intOf(m["ramp_divider"]))
	c.LeakageInductanceMH = int32(intOf(m["leakage_inductance_mh"]))
	c.StatorResistanceMOhm = int32(intOf(m["stator_resistance_mohm"]))
	c.RotorTimeConstantMs = int32(intOf(m["rotor_time_constant_ms"]))
	if s, ok := m["torque_current_limit_stop_mode"].(string); ok {
		c.TorqueCurrentLimitStopMode = s
	}
	c.AccelRampDs = uint16(intOf(m["accel_ramp_ds"]))
	c.DecelRampDs = uint16(intOf(m["decel_ramp_ds"]))
	c.ResolutionMicrometresPerRev = floatOf(m["resolution_um_per_rev"])
	c.HomingSpeedratio = floatOf(m["homing_speedratio"])
	if b, ok := m["homing_sensor_configured"].(bool); ok {
		c.HomingSensorConfigured = b
	}
	c.DefaultSpeedRatio = floatOf(m["default_speedratio"])
	c.ResetWindowSeconds = intOf(m["reset_window_s"])
	c.PeerHeartbeatSeconds = intOf(m["peer_heartbeat_s"])
	c.PeerLongLivingSeconds = intOf(m["peer_long_living_s"])
	if arr, ok := m["auto_reset_allow"].([]any); ok {
		for _, v := range arr {
			c.AutoResetAllow = append(c.AutoResetAllow, uint16(intOf(v)))
		}
	}
	return c
}

func intOf(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func floatOf(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
