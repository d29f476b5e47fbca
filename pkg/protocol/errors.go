package protocol

// ErrorKind enumerates the error taxonomy by kind, not by Go type — matching
// the teacher's preference for sentinel-ish string/bool discriminators
// (tools.Result.IsError) over a custom error type hierarchy.
type ErrorKind string

const (
	// Handshake failures — the connection is closed, never answered as an
	// RPC error.
	ErrAuthFailed      ErrorKind = "AuthFailed"
	ErrPairingRequired ErrorKind = "PairingRequired"
	ErrTokenExpired    ErrorKind = "TokenExpired"

	// Caller errors — returned as a response.error.
	ErrBadRequest      ErrorKind = "BadRequest"
	ErrInvalidRequest  ErrorKind = "BadRequest"
	ErrUnknownMethod   ErrorKind = "UnknownMethod"
	ErrNotFound        ErrorKind = "NotFound"
	ErrInternal        ErrorKind = "Internal"
	ErrSchemaViolation ErrorKind = "SchemaViolation"

	// Storage errors — recovered by refusing further writes to the
	// affected key; not fatal to the process.
	ErrSessionCorrupted   ErrorKind = "SessionCorrupted"
	ErrStorageUnavailable ErrorKind = "StorageUnavailable"

	// Model provider errors — retried via failover; ModelUnavailable
	// surfaces only after the profile list is exhausted.
	ErrModelTimeout     ErrorKind = "ModelTimeout"
	ErrModelUnavailable ErrorKind = "ModelUnavailable"
	ErrRateLimited      ErrorKind = "RateLimited"
	ErrAuthExpired      ErrorKind = "AuthExpired"

	// Tool/approval errors — become synthetic tool results fed back to the
	// model, not turn-terminating failures.
	ErrToolDenied             ErrorKind = "ToolDenied"
	ErrApprovalExpired        ErrorKind = "ApprovalExpired"
	ErrApprovalDigestMismatch ErrorKind = "ApprovalDigestMismatch"

	// Event bus.
	ErrSlowConsumer ErrorKind = "SlowConsumer"

	// Config.
	ErrConfigInvalid ErrorKind = "ConfigInvalid"

	// Context engine — a warning, not a failure; the turn proceeds.
	ErrOverBudget ErrorKind = "OverBudget"
)

// TerminatesTurn reports whether an error of this kind ends the in-flight
// turn outright (spec §7 propagation policy), as opposed to converting to
// a history entry the model can see and continue from.
func (k ErrorKind) TerminatesTurn() bool {
	switch k {
	case ErrAuthFailed, ErrSessionCorrupted:
		return true
	default:
		return false
	}
}

// TerminatesConnection reports whether an error of this kind closes the
// WebSocket connection outright rather than answering an in-flight request.
func (k ErrorKind) TerminatesConnection() bool {
	switch k {
	case ErrAuthFailed, ErrPairingRequired, ErrTokenExpired:
		return true
	default:
		return false
	}
}

// ExitCode maps a startup-time failure kind to the process exit code named
// in spec §6. Non-startup kinds return 0 (no defined exit code).
func (k ErrorKind) ExitCode() int {
	switch k {
	case ErrConfigInvalid:
		return 2
	case ErrStorageUnavailable:
		return 3
	default:
		return 0
	}
}
