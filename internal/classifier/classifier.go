// Package classifier provides the two content-classification mechanisms used
// by the moderation pipeline: a remote model-backed classifier and a
// deterministic keyword fallback used when the remote service is unreachable.
package classifier

import "errors"

// Mechanism identifies which classifier produced a verdict. It is recorded on
// every persisted message so moderation statistics can be broken down by
// decision source.
type Mechanism string

const (
	// MechanismRemote means the verdict came from the remote model.
	MechanismRemote Mechanism = "remote"

	// MechanismFallback means the verdict came from the local keyword filter.
	MechanismFallback Mechanism = "fallback"
)

// ErrUnavailable is returned by the remote classifier when the verdict could
// not be obtained: transport failure, timeout, non-2xx status, or a payload
// that does not match the expected shape. Callers are expected to fall back
// to local classification; the remote classifier never fabricates a verdict.
var ErrUnavailable = errors.New("classifier: remote service unavailable")

// Verdict is the outcome of classifying a single message body.
type Verdict struct {
	Acceptable bool    // false if the text was flagged as offensive
	Confidence float64 // model score in [0,1]; fixed constants for fallback
}
