package errs

import (
	"errors"
	"fmt"
)

// Kind classifies failures so that handling logic can switch on it instead of
// inspecting arbitrary error shapes.
type Kind int

const (
	// Transient covers dependency failures that may succeed on a later attempt
	// (store/cache/broker unreachable, slow, or breaker-open).
	Transient Kind = iota
	// Fatal covers unrecoverable process-level failures (pool-level errors);
	// the process is expected to terminate and be restarted externally.
	Fatal
	// Poison marks a message that can never be processed (malformed payload);
	// consumers ack and drop it rather than looping on redelivery.
	Poison
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	case Poison:
		return "poison"
	default:
		return "unknown"
	}
}

// Error carries a kind, the failing operation, and a structured context map.
type Error struct {
	Kind    Kind
	Op      string
	Context map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error. Context key/value pairs are passed flat:
// E(errs.Transient, "tasks.delete", err, "user_id", 42).
func E(kind Kind, op string, err error, kv ...any) *Error {
	var ctx map[string]any
	if len(kv) > 0 {
		ctx = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			if k, ok := kv[i].(string); ok {
				ctx[k] = kv[i+1]
			}
		}
	}
	return &Error{Kind: kind, Op: op, Context: ctx, Err: err}
}

// KindOf extracts the kind from an error chain; unclassified errors are
// treated as Transient, the safe default for ack policy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transient
}
