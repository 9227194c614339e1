package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// FlagThreshold is the minimum score at which an offensive label causes
	// the message to be flagged.
	FlagThreshold = 0.5

	// maxResponseBytes caps how much of the classification response is read.
	maxResponseBytes = 1 << 20
)

// RemoteConfig holds the settings for the remote classification service.
type RemoteConfig struct {
	Endpoint string        // full URL of the inference endpoint
	Token    string        // bearer token, supplied via environment config
	Timeout  time.Duration // hard deadline for a single classification call
}

// DefaultRemoteConfig returns the production defaults for the remote
// classifier. The endpoint and token must still be supplied by the caller.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Timeout: 10 * time.Second,
	}
}

// Remote calls an external text-classification service. The wire contract is
// the hosted-inference convention: POST {"inputs": <text>} and receive a
// nested array of {label, score} entries.
type Remote struct {
	config RemoteConfig
	client *http.Client
}

// labeledScore is one classification entry in the service response.
type labeledScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// NewRemote creates a Remote classifier with the given configuration. The
// HTTP client enforces the configured timeout on every call.
func NewRemote(config RemoteConfig) *Remote {
	if config.Timeout <= 0 {
		config.Timeout = DefaultRemoteConfig().Timeout
	}
	return &Remote{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Classify sends text to the remote service and interprets the labeled scores
// as a verdict. A label whose lowercased form contains "profane" or
// "offensive", or equals "1", with a score above FlagThreshold flags the
// message. Every failure mode returns an error wrapping ErrUnavailable so the
// caller can decide on fallback; Classify itself never invents a verdict.
func (r *Remote) Classify(ctx context.Context, text string) (Verdict, error) {
	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.Token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Verdict{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	scores, err := parseScores(raw)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return interpret(scores), nil
}

// parseScores decodes the service response. The hosted-inference API returns
// the entries wrapped in an outer array ([[{label, score}, ...]]); a flat
// array is accepted as well.
func parseScores(raw []byte) ([]labeledScore, error) {
	var nested [][]labeledScore
	if err := json.Unmarshal(raw, &nested); err == nil {
		if len(nested) == 0 {
			return nil, fmt.Errorf("empty classification response")
		}
		return nested[0], nil
	}

	var flat []labeledScore
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("malformed classification response")
	}
	return flat, nil
}

// interpret converts labeled scores into a verdict. If no offensive label
// crosses the threshold the text is acceptable; the confidence is the
// offensive label's score if one was present, otherwise 0.
func interpret(scores []labeledScore) Verdict {
	for _, s := range scores {
		if !isOffensiveLabel(s.Label) {
			continue
		}
		if s.Score > FlagThreshold {
			return Verdict{Acceptable: false, Confidence: s.Score}
		}
		return Verdict{Acceptable: true, Confidence: s.Score}
	}
	return Verdict{Acceptable: true, Confidence: 0}
}

// isOffensiveLabel reports whether a label names the offensive/profanity
// class. Models expose this class as "profane", "offensive", or the bare
// positional label "1".
func isOffensiveLabel(label string) bool {
	lower := strings.ToLower(label)
	return strings.Contains(lower, "profane") ||
		strings.Contains(lower, "offensive") ||
		label == "1"
}
