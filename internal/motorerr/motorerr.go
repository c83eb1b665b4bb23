// Package motorerr defines the stable, bus-facing error identifiers returned
// by the command surface and published on the drive's status topics.
package motorerr

// Code is a stable error identifier. It is a string newtype, comparable,
// allocation-free, and implements error so it can be returned directly.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes. Names are chosen to match what a peer sees on the wire,
// so keep them stable once published.
const (
	Success Code = "success"

	OperationCanceled Code = "operation_canceled"
	PermissionDenied  Code = "permission_denied"

	SpeedratioOutOfRange Code = "speedratio_out_of_range"

	FrequencyDriveReportsFault          Code = "frequency_drive_reports_fault"
	FrequencyDriveCommunicationFault    Code = "frequency_drive_communication_fault"
	PositioningPositiveLimitReached     Code = "positioning_positive_limit_reached"
	PositioningNegativeLimitReached     Code = "positioning_negative_limit_reached"
	MotorMissingHomeReference           Code = "motor_missing_home_reference"
	MotorHomeSensorUnconfigured         Code = "motor_home_sensor_unconfigured"
	MotorMethodNotImplemented           Code = "motor_method_not_implemented"

	// Error is a generic fallback for conditions with no dedicated code.
	Error Code = "error"
)

// E wraps a Code with operation context and an optional cause, for internal
// logging where more than the bare code is useful.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error for anything it
// doesn't recognize and Success for a nil error.
func Of(err error) Code {
	if err == nil {
		return Success
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// IsDriveError reports whether code represents a fault condition reported by
// the drive itself (as opposed to communication loss or a command rejection).
func IsDriveError(c Code) bool {
	switch c {
	case FrequencyDriveReportsFault:
		return true
	default:
		return false
	}
}
