package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/catalogops/enrichment-pipeline/pkg/llm"
	"github.com/catalogops/enrichment-pipeline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	replies map[string]map[string]any
	err     error
}

func (s *stubGenerator) Generate(_ context.Context, model, _ string, _ llm.GenerateOptions) (map[string]any, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.replies[model], nil
}

type stubSelector struct {
	model     string
	fallbacks []string
}

func (s *stubSelector) Select(_ context.Context, _ models.TaskType) (string, error) {
	return s.model, nil
}

func (s *stubSelector) NextFallback(_ context.Context, exclude string) (string, error) {
	for _, m := range s.fallbacks {
		if m != exclude {
			return m, nil
		}
	}
	return "", errors.New("no fallback")
}

func (s *stubSelector) MaxTokens(string) int { return 512 }

type stubRenderer struct{}

func (stubRenderer) Render(_ models.TaskType, _ map[string]any) (string, string, error) {
	return "", "rendered prompt", nil
}

func TestExecute_HappyPath(t *testing.T) {
	gen := &stubGenerator{replies: map[string]map[string]any{
		"llama3": {"meta_title": "Red Hat", "meta_description": "Buy a red hat.", "seo_keywords": "red,hat"},
	}}
	sel := &stubSelector{model: "llama3", fallbacks: []string{"llama3"}}

	e := New(gen, sel, stubRenderer{}, nil)
	reply, err := e.Execute(context.Background(), models.TaskMetaOptimization, map[string]any{"title": "Red Hat"})
	require.NoError(t, err)
	assert.Equal(t, "Red Hat", reply["meta_title"])
	assert.Equal(t, "llama3", reply["model_used"])
}

func TestExecute_ValidationFailureFallsBackToRuleBased(t *testing.T) {
	gen := &stubGenerator{replies: map[string]map[string]any{
		"llama3":  {"foo": "bar"},
		"mistral": {"foo": "bar"},
	}}
	sel := &stubSelector{model: "llama3", fallbacks: []string{"llama3", "mistral"}}

	e := New(gen, sel, stubRenderer{}, nil)
	e.MaxRetries = 3
	reply, err := e.Execute(context.Background(), models.TaskKeywordAnalysis, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, reply["fallback_used"])
	assert.Equal(t, []any{"product", "features"}, reply["primary_keywords"])
	assert.Equal(t, []any{"quality product features"}, reply["long_tail_keywords"])
}

func TestExecute_CategoryNormalizationUsesMatcherOnRejectedCandidate(t *testing.T) {
	gen := &stubGenerator{replies: map[string]map[string]any{
		"llama3": {"category": "I'm happy to help! Here's the category..."},
	}}
	sel := &stubSelector{model: "llama3", fallbacks: []string{"llama3"}}
	tax := &stubMatcher{path: "Home & Garden > Lighting > Floor Lamps", confidence: 0.62}

	e := New(gen, sel, stubRenderer{}, tax)
	reply, err := e.Execute(context.Background(), models.TaskCategoryNormalization, map[string]any{
		"category": "home lighting > floor lamps",
	})
	require.NoError(t, err)
	assert.Equal(t, "Home & Garden > Lighting > Floor Lamps", reply["normalized_category"])
	assert.Equal(t, 0.62, reply["category_confidence"])
	assert.Equal(t, "home lighting > floor lamps", tax.lastQuery)
}

type stubMatcher struct {
	path       string
	confidence float64
	lastQuery  string
}

func (m *stubMatcher) FindBestCategory(raw string) (string, float64) {
	m.lastQuery = raw
	return m.path, m.confidence
}
