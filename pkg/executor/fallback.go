package executor

import "github.com/catalogops/enrichment-pipeline/pkg/models"

// ruleBasedFallback returns a deterministic, safe default reply for
// taskType once every model attempt has been exhausted (spec §4.3 step
// 4). These exact payloads are carried forward from the reference
// implementation's rule-based defaults since scenario S2 pins the
// keyword_analysis values precisely.
func ruleBasedFallback(taskType models.TaskType) map[string]any {
	switch taskType {
	case models.TaskMetaOptimization:
		return map[string]any{
			"meta_title":       "Optimized Product",
			"meta_description": "Quality product with excellent features and competitive pricing.",
			"seo_keywords":     "product, quality, features, buy",
			"fallback_used":    true,
		}
	case models.TaskContentRewriting:
		return map[string]any{
			"optimized_title":       "Enhanced Product Version",
			"optimized_description": "<p>Improved product description with better features.</p>",
			"content_score":         0.5,
			"improvements":          []any{"Basic content optimization applied"},
			"fallback_used":         true,
		}
	case models.TaskKeywordAnalysis:
		return map[string]any{
			"primary_keywords":    []any{"product", "features"},
			"long_tail_keywords":  []any{"quality product features"},
			"competitor_terms":    []any{"similar products"},
			"difficulty_estimate": "medium",
			"fallback_used":       true,
		}
	case models.TaskTagOptimization:
		return map[string]any{
			"optimized_tags": "product, quality, features",
			"removed_tags":   []any{"old_irrelevant_tag"},
			"added_tags":     []any{"new_relevant_tag"},
			"tag_analysis":   "Basic tag optimization applied",
			"fallback_used":  true,
		}
	case models.TaskSchemaAnalysis:
		return map[string]any{
			"schema_compliance": true,
			"issues":            []any{},
			"fallback_used":     true,
		}
	default:
		return map[string]any{
			"error":         "No fallback defined for this task type",
			"fallback_used": true,
		}
	}
}
