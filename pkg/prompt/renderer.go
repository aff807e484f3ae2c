// Package prompt renders task-specific prompt templates against a product
// payload.
package prompt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
)

// Renderer renders the template for a task type against arbitrary data.
type Renderer interface {
	Render(taskType models.TaskType, data map[string]any) (system, body string, err error)
}

// FileRenderer loads "<task_type>.tmpl" files from a directory the first
// time they're needed and caches the parsed template, mirroring the
// teacher's prompt-builder split between instructions and rendering.
type FileRenderer struct {
	dir string

	mu        sync.RWMutex
	templates map[models.TaskType]*template.Template
}

// NewFileRenderer builds a FileRenderer rooted at dir.
func NewFileRenderer(dir string) *FileRenderer {
	return &FileRenderer{dir: dir, templates: make(map[models.TaskType]*template.Template)}
}

// systemMarkerStart/End delimit an embedded system-prompt block the way
// the original Jinja2 templates used {% system %}...{% endsystem %};
// text/template has no equivalent custom-tag mechanism, so an
// HTML-comment marker plays the same role.
const (
	systemMarkerStart = "<!--system-->"
	systemMarkerEnd    = "<!--endsystem-->"
)

// Render loads (and caches) the template for taskType, executes it
// against data, and splits out any embedded system-prompt block.
func (r *FileRenderer) Render(taskType models.TaskType, data map[string]any) (string, string, error) {
	tmpl, err := r.templateFor(taskType)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render prompt for %s: %w", taskType, err)
	}

	return splitSystemBlock(buf.String())
}

func (r *FileRenderer) templateFor(taskType models.TaskType) (*template.Template, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[taskType]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tmpl, ok := r.templates[taskType]; ok {
		return tmpl, nil
	}

	path := filepath.Join(r.dir, string(taskType)+".tmpl")
	tmpl, err := template.ParseFiles(path)
	if err != nil {
		return nil, fmt.Errorf("load prompt template %q: %w", path, err)
	}
	r.templates[taskType] = tmpl
	return tmpl, nil
}

func splitSystemBlock(rendered string) (system, body string, err error) {
	start := strings.Index(rendered, systemMarkerStart)
	end := strings.Index(rendered, systemMarkerEnd)
	if start == -1 || end == -1 || end < start {
		return "", rendered, nil
	}
	system = strings.TrimSpace(rendered[start+len(systemMarkerStart) : end])
	body = strings.TrimSpace(rendered[:start] + rendered[end+len(systemMarkerEnd):])
	return system, body, nil
}

// EnsureDir creates dir if it does not already exist, so a fresh
// deployment can be pointed at an empty prompt directory and have
// operators drop templates in afterward.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
