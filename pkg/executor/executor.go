// Package executor transforms one product payload into a validated reply
// map for a single task type, selecting a model, rendering its prompt,
// retrying across fallback models, and falling back to a rule-based
// default on exhaustion.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/catalogops/enrichment-pipeline/pkg/llm"
	"github.com/catalogops/enrichment-pipeline/pkg/models"
	"github.com/catalogops/enrichment-pipeline/pkg/taxonomy"
)

// Generator is the subset of *llm.Client the executor depends on.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, opts llm.GenerateOptions) (map[string]any, error)
}

// ModelSelector is the subset of *selector.Selector the executor depends
// on.
type ModelSelector interface {
	Select(ctx context.Context, taskType models.TaskType) (string, error)
	NextFallback(ctx context.Context, exclude string) (string, error)
	MaxTokens(model string) int
}

// Renderer is the subset of *prompt.FileRenderer the executor depends on.
type Renderer interface {
	Render(taskType models.TaskType, data map[string]any) (system, body string, err error)
}

// Matcher is the subset of *taxonomy.Matcher the executor depends on for
// category_normalization.
type Matcher interface {
	FindBestCategory(raw string) (string, float64)
}

const defaultMaxRetries = 3

// Executor wires a model selector, an LLM client, and a prompt renderer
// into the per-task algorithm from spec §4.3.
type Executor struct {
	Client          Generator
	Selector        ModelSelector
	Renderer        Renderer
	Taxonomy        Matcher
	MaxRetries      int
	QuantizedModels map[string]string
	BodyWordBudget  int
	Logger          *slog.Logger
}

// New builds an Executor with spec-default retry count and body-text
// budget.
func New(client Generator, sel ModelSelector, renderer Renderer, tax Matcher) *Executor {
	return &Executor{
		Client:         client,
		Selector:       sel,
		Renderer:       renderer,
		Taxonomy:       tax,
		MaxRetries:     defaultMaxRetries,
		BodyWordBudget: 400,
		Logger:         slog.Default(),
	}
}

// Execute runs the full algorithm for one task and returns a reply map
// that either validates for taskType or carries fallback_used=true.
func (e *Executor) Execute(ctx context.Context, taskType models.TaskType, payload map[string]any) (map[string]any, error) {
	model, err := e.Selector.Select(ctx, taskType)
	if err != nil {
		return nil, err
	}

	data := e.buildTemplateData(payload)
	system, body, err := e.Renderer.Render(taskType, data)
	if err != nil {
		return nil, fmt.Errorf("render prompt: %w", err)
	}
	prompt := body
	if system != "" {
		prompt = system + "\n\n" + body
	}

	maxRetries := e.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	currentModel := model
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		reply, genErr := e.callModel(ctx, currentModel, prompt, taskType, payload)
		if genErr == nil && llm.Validate(reply, taskType) {
			reply["model_used"] = currentModel
			if taskType == models.TaskCategoryNormalization {
				e.applyCategoryNormalization(reply, payload)
			}
			return reply, nil
		}
		if genErr != nil {
			lastErr = genErr
		} else {
			lastErr = fmt.Errorf("reply failed validation for task_type=%s", taskType)
		}

		next, fbErr := e.Selector.NextFallback(ctx, currentModel)
		if fbErr != nil {
			break
		}
		currentModel = next
		e.Logger.Warn("executor retrying with fallback model", "task_type", taskType, "model", currentModel, "attempt", attempt, "error", lastErr)
	}

	fallback := ruleBasedFallback(taskType)
	if taskType == models.TaskCategoryNormalization {
		e.applyCategoryNormalization(fallback, payload)
	}
	e.Logger.Warn("executor exhausted retries, using rule-based fallback", "task_type", taskType, "last_error", lastErr)
	return fallback, nil
}

func (e *Executor) callModel(ctx context.Context, model, prompt string, taskType models.TaskType, payload map[string]any) (map[string]any, error) {
	resolved := model
	if quant, _ := payload["quantize"].(bool); quant {
		if alt, ok := e.QuantizedModels[model]; ok {
			resolved = alt
		}
	}
	opts := llm.DefaultGenerateOptions(e.Selector.MaxTokens(model))
	return e.Client.Generate(ctx, resolved, prompt, opts)
}

func (e *Executor) buildTemplateData(payload map[string]any) map[string]any {
	data := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		data[k] = v
	}
	if bodyHTML, ok := payload["body_html"].(string); ok {
		data["body_text"] = htmlToText(bodyHTML, e.wordBudget())
	}
	return data
}

func (e *Executor) wordBudget() int {
	if e.BodyWordBudget > 0 {
		return e.BodyWordBudget
	}
	return 400
}

// applyCategoryNormalization fills normalized_category/category_confidence
// using the taxonomy matcher, per spec §4.3's category_normalization
// deviation: the LLM's candidate is used only if it passes the validity
// gate, otherwise the product's original category string is matched
// instead.
func (e *Executor) applyCategoryNormalization(reply map[string]any, payload map[string]any) {
	if e.Taxonomy == nil {
		return
	}

	candidate, _ := reply["category"].(string)
	original, _ := payload["category"].(string)

	target := original
	if candidate != "" && taxonomy.IsValidCandidate(candidate) {
		target = candidate
	}

	path, confidence := e.Taxonomy.FindBestCategory(target)
	reply["normalized_category"] = path
	reply["category_confidence"] = confidence
}
