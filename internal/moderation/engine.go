// Package moderation decides whether a candidate chat message is acceptable.
// It prefers the remote classifier and falls back to the deterministic local
// filter when the remote service is unavailable, recording which mechanism
// produced the final verdict. Accepted messages may carry an encouragement
// note; rejected messages always carry a rewrite suggestion.
package moderation

import (
	"context"
	"log"
	"math/rand"
	"sync"

	"github.com/unislot/slot-app/internal/classifier"
)

// EncouragementProbability is the chance an accepted message gets an
// encouragement note attached.
const EncouragementProbability = 0.3

// RemoteClassifier is the remote-service contract consumed by the engine.
// *classifier.Remote satisfies it.
type RemoteClassifier interface {
	Classify(ctx context.Context, text string) (classifier.Verdict, error)
}

// Result is the engine's full verdict for one candidate message: the
// classifier outcome, the mechanism that produced it, and an optional note
// (encouragement if accepted, rewrite suggestion if rejected).
type Result struct {
	Acceptable bool
	Confidence float64
	Mechanism  classifier.Mechanism
	Note       string
}

// Engine orchestrates classifier selection and note attachment. The random
// source used for note selection is injectable so tests can be deterministic.
type Engine struct {
	remote   RemoteClassifier
	fallback *classifier.Fallback

	mu  sync.Mutex // guards rng; rand.Rand is not goroutine-safe
	rng *rand.Rand
}

// remoteOutcome is the tagged result of the remote classification attempt.
// The ok tag makes the fallback branch explicit instead of hiding it in
// error-handling control flow.
type remoteOutcome struct {
	verdict classifier.Verdict
	ok      bool
}

// NewEngine creates an Engine using the given remote classifier and the
// default fallback denylist, seeded from src.
func NewEngine(remote RemoteClassifier, src rand.Source) *Engine {
	return NewEngineWithFallback(remote, classifier.NewFallback(), src)
}

// NewEngineWithFallback creates an Engine with an explicit fallback
// classifier. Intended for tests that need a custom denylist.
func NewEngineWithFallback(remote RemoteClassifier, fallback *classifier.Fallback, src rand.Source) *Engine {
	return &Engine{
		remote:   remote,
		fallback: fallback,
		rng:      rand.New(src),
	}
}

// Moderate judges a single message body. Each call is independent: identical
// text may yield different notes, and no verdict is cached. The remote
// classifier is tried exactly once; on failure the local fallback decides.
func (e *Engine) Moderate(ctx context.Context, text string) Result {
	var (
		verdict   classifier.Verdict
		mechanism classifier.Mechanism
	)

	outcome := e.tryRemote(ctx, text)
	if outcome.ok {
		verdict = outcome.verdict
		mechanism = classifier.MechanismRemote
	} else {
		verdict = e.fallback.Classify(text)
		mechanism = classifier.MechanismFallback
	}

	result := Result{
		Acceptable: verdict.Acceptable,
		Confidence: verdict.Confidence,
		Mechanism:  mechanism,
	}

	if result.Acceptable {
		result.Note = e.pickEncouragement()
	} else {
		result.Note = e.pickSuggestion()
	}
	return result
}

// tryRemote attempts remote classification and tags the outcome. Remote
// failures are recovered locally and never surfaced past the engine.
func (e *Engine) tryRemote(ctx context.Context, text string) remoteOutcome {
	if e.remote == nil {
		return remoteOutcome{}
	}
	verdict, err := e.remote.Classify(ctx, text)
	if err != nil {
		log.Printf("moderation: remote classify failed, using fallback: %v", err)
		return remoteOutcome{}
	}
	return remoteOutcome{verdict: verdict, ok: true}
}

// pickEncouragement returns a random encouragement with probability
// EncouragementProbability, otherwise the empty string.
func (e *Engine) pickEncouragement() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rng.Float64() >= EncouragementProbability {
		return ""
	}
	return encouragements[e.rng.Intn(len(encouragements))]
}

// pickSuggestion returns a random rewrite suggestion. Rejections always
// carry one.
func (e *Engine) pickSuggestion() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return suggestions[e.rng.Intn(len(suggestions))]
}
