// Package selector picks the best available model for a task type given
// capability declarations and a fallback order.
package selector

import (
	"context"
	"errors"
	"fmt"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
)

// ErrNoModelAvailable is returned when neither a capable model nor any
// model in the fallback order is currently available.
var ErrNoModelAvailable = errors.New("no model available")

// Prober reports whether a model is currently servable. *llm.Client
// satisfies this via IsAvailable.
type Prober interface {
	IsAvailable(ctx context.Context, model string) bool
}

// Selector holds the immutable capability declarations loaded at startup.
type Selector struct {
	// capabilityOrder preserves declaration order so iteration is
	// deterministic (spec §4.2: "iterate the capability map in
	// declaration order").
	capabilityOrder []string
	capabilities    map[string]models.ModelCapability
	fallbackOrder   []string
	prober          Prober
}

// New builds a Selector. capabilityOrder must list every key present in
// capabilities, in the order they should be tried.
func New(capabilityOrder []string, capabilities map[string]models.ModelCapability, fallbackOrder []string, prober Prober) *Selector {
	return &Selector{
		capabilityOrder: capabilityOrder,
		capabilities:    capabilities,
		fallbackOrder:   fallbackOrder,
		prober:          prober,
	}
}

// Select returns the first declared-capable, available model for
// taskType, falling back to the configured fallback order. It returns
// ErrNoModelAvailable if nothing is available.
func (s *Selector) Select(ctx context.Context, taskType models.TaskType) (string, error) {
	for _, name := range s.capabilityOrder {
		cap, ok := s.capabilities[name]
		if !ok || !cap.SupportedOn[taskType] {
			continue
		}
		if s.prober.IsAvailable(ctx, name) {
			return name, nil
		}
	}

	for _, name := range s.fallbackOrder {
		if s.prober.IsAvailable(ctx, name) {
			return name, nil
		}
	}

	return "", fmt.Errorf("%w: task_type=%s", ErrNoModelAvailable, taskType)
}

// NextFallback returns the first model in the fallback order that is not
// exclude, so a retry never selects the same model twice in a row (spec
// §4.3 step 3c).
func (s *Selector) NextFallback(ctx context.Context, exclude string) (string, error) {
	for _, name := range s.fallbackOrder {
		if name == exclude {
			continue
		}
		if s.prober.IsAvailable(ctx, name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: no fallback other than %s", ErrNoModelAvailable, exclude)
}

// MaxTokens returns the configured token budget for model, or a safe
// default if the model is not declared.
func (s *Selector) MaxTokens(model string) int {
	if cap, ok := s.capabilities[model]; ok && cap.MaxTokens > 0 {
		return cap.MaxTokens
	}
	return 1024
}
