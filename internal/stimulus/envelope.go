// Package stimulus handles inbound external input: the normalized envelope
// format, boundary validation, a bounded queue the tick loop drains at tick
// start, and a drop-directory watcher for file-based injection. Malformed
// envelopes are rejected here and never reach the core.
package stimulus

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Envelope is one normalized inbound stimulus. The core requires only an
// embedding and a target-graph selector; everything else is routing and
// prioritization metadata from the ingress side.
type Envelope struct {
	ID        string    `json:"id" yaml:"id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Graph     string    `json:"graph" yaml:"graph"`
	Scope     string    `json:"scope,omitempty" yaml:"scope,omitempty"`
	Source    string    `json:"source,omitempty" yaml:"source,omitempty"`
	Text      string    `json:"text,omitempty" yaml:"text,omitempty"`
	Embedding []float64 `json:"embedding" yaml:"embedding"`
	Priority  float64   `json:"priority,omitempty" yaml:"priority,omitempty"`
	Private   bool      `json:"private,omitempty" yaml:"private,omitempty"`
	Interrupt bool      `json:"interrupt,omitempty" yaml:"interrupt,omitempty"`
}

var (
	// ErrNoEmbedding rejects envelopes without a usable embedding.
	ErrNoEmbedding = errors.New("stimulus: envelope has no embedding")
	// ErrNoGraph rejects envelopes without a target graph selector.
	ErrNoGraph = errors.New("stimulus: envelope has no target graph")
)

// Normalize validates the envelope and fills defaults: a UUID identifier
// when absent, the current time when the timestamp is zero, and a unit
// priority when none is given. Priority is clamped to [0, 1].
func (e *Envelope) Normalize(now time.Time) error {
	if e.Graph == "" {
		return ErrNoGraph
	}
	if len(e.Embedding) == 0 {
		return ErrNoEmbedding
	}
	for i, v := range e.Embedding {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("stimulus: embedding[%d] is not finite", i)
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if e.Priority == 0 {
		e.Priority = 1
	}
	if e.Priority < 0 {
		e.Priority = 0
	} else if e.Priority > 1 {
		e.Priority = 1
	}
	return nil
}
