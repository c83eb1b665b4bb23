package bus

// Motor-domain topic constructors. Every topic below is scoped under
// "motor/<slave>/...": one instance of this module drives a single
// EtherCAT slave, so the slave ID is always the second token.

// StatusTopic is the retained topic carrying the command surface's
// published properties (state_402, hmis, last_error, current) as a single
// snapshot, change-suppressed by the cycle handler.
func StatusTopic(slave string) Topic { return T("motor", slave, "state") }

// ConnectedPeerTopic is the retained topic mirroring the command
// surface's connected_peer property.
func ConnectedPeerTopic(slave string) Topic { return T("motor", slave, "connected_peer") }

// ControlTopic is the request topic external callers publish motion
// commands to; replies arrive on the message's ReplyTo topic via
// Connection.Reply.
func ControlTopic(slave string) Topic { return T("motor", slave, "control") }

// DigitalInputTopic is the per-DI retained topic: each of DI1-DI6 is also
// published individually, change-suppressed, alongside the bitmask folded
// into StatusTopic.
func DigitalInputTopic(slave string, di int) Topic { return T("motor", slave, "di", di) }
