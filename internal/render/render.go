// Package render defines the boundary to the external template system.
//
// The core does not know how templates are compiled; it only consumes a
// render call producing a single-root HTML fragment plus an optional
// script string to run after patching. TemplateRenderer is a small
// html/template-backed implementation used by tests and the CLI; real
// deployments plug in their own Renderer.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sync"
)

// Rendered is the output of one template render.
type Rendered struct {
	// HTML is a single-root fragment.
	HTML string
	// JS is an optional script to execute after the fragment is patched
	// into the live tree. May be empty.
	JS string
}

// Renderer produces markup for a named template. Implementations may
// fetch or compile templates asynchronously; the call returns only when
// the fragment is ready.
type Renderer interface {
	Render(ctx context.Context, templateName string, data any) (Rendered, error)
}

// TemplateRenderer renders from an in-process set of html/template
// templates. Safe for concurrent use.
type TemplateRenderer struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	scripts   map[string]string
}

// NewTemplateRenderer creates an empty renderer.
func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{
		templates: make(map[string]*template.Template),
		scripts:   make(map[string]string),
	}
}

// Register compiles and stores a template under name. Re-registering a
// name replaces the previous template.
func (r *TemplateRenderer) Register(name, text string) error {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return fmt.Errorf("register template %q: %w", name, err)
	}
	r.mu.Lock()
	r.templates[name] = tmpl
	r.mu.Unlock()
	return nil
}

// RegisterScript stores the post-patch script delivered alongside a
// template's markup.
func (r *TemplateRenderer) RegisterScript(name, js string) {
	r.mu.Lock()
	r.scripts[name] = js
	r.mu.Unlock()
}

// Render executes the named template with data.
func (r *TemplateRenderer) Render(ctx context.Context, templateName string, data any) (Rendered, error) {
	if err := ctx.Err(); err != nil {
		return Rendered{}, err
	}
	r.mu.RLock()
	tmpl, ok := r.templates[templateName]
	js := r.scripts[templateName]
	r.mu.RUnlock()
	if !ok {
		return Rendered{}, fmt.Errorf("unknown template %q", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Rendered{}, fmt.Errorf("render template %q: %w", templateName, err)
	}
	return Rendered{HTML: buf.String(), JS: js}, nil
}
