package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply_CleanJSON(t *testing.T) {
	reply := ParseReply(`here you go: {"meta_title": "Red Hat", "seo_keywords": "red,hat",}`)
	assert.Equal(t, "Red Hat", reply["meta_title"])
	assert.Equal(t, "red,hat", reply["seo_keywords"])
}

func TestParseReply_SingleQuotes(t *testing.T) {
	reply := ParseReply(`{'meta_title': 'Red Hat'}`)
	assert.Equal(t, "Red Hat", reply["meta_title"])
}

func TestParseReply_Unparseable(t *testing.T) {
	reply := ParseReply("I'm sorry, I can't help with that")
	assert.Equal(t, "JSON parsing failed", reply["error"])
	assert.NotEmpty(t, reply["raw_response"])
}

func TestValidate_RequiresAllFields(t *testing.T) {
	ok := Validate(map[string]any{"meta_title": "x", "meta_description": "y", "seo_keywords": "z"}, models.TaskMetaOptimization)
	assert.True(t, ok)

	missing := Validate(map[string]any{"meta_title": "x"}, models.TaskMetaOptimization)
	assert.False(t, missing)
}

func TestClient_IsAvailable_TagsHit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/generate" {
			// A catalog miss falls through to the generation probe; refuse it
			// so the miss stays a miss.
			w.WriteHeader(http.StatusNotFound)
			return
		}
		require.Equal(t, "/api/tags", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "llama3"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	assert.True(t, c.IsAvailable(context.Background(), "llama3"))
	assert.False(t, c.IsAvailable(context.Background(), "unknown-model"))
}

func TestClient_IsAvailable_FailsClosedOnTransportError(t *testing.T) {
	c := New("http://127.0.0.1:0", 10*time.Millisecond)
	assert.False(t, c.IsAvailable(context.Background(), "llama3"))
}

func TestClient_Generate_NonOKStatusIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.Generate(context.Background(), "llama3", "prompt", DefaultGenerateOptions(512))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestClient_Generate_ParsesReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"response": `{"meta_title": "Red Hat", "meta_description": "Buy a red hat.", "seo_keywords": "red,hat"}`,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	reply, err := c.Generate(context.Background(), "llama3", "prompt", DefaultGenerateOptions(512))
	require.NoError(t, err)
	assert.Equal(t, "Red Hat", reply["meta_title"])
}
