package generate

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"text/template"
)

// Template renders artifact content from text/template sources, one per
// artifact id. Templates see the request as:
//
//	.Subject   subject id
//	.Artifact  artifact id
//	.Attempt   attempt number
//	.Context   evaluation view (condition.Context)
//	.Params    artifact params
//	.Inputs    ready predecessor content
//
// The rendered text is returned as content {"text": ...}.
type Template struct {
	templates map[string]*template.Template
}

// NewTemplate parses sources keyed by artifact id. Missing keys are errors
// at render time so a typo produces an error artifact instead of silent
// "<no value>" text.
func NewTemplate(sources map[string]string) (*Template, error) {
	t := &Template{templates: make(map[string]*template.Template, len(sources))}

	ids := make([]string, 0, len(sources))
	for id := range sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		tmpl, err := template.New(id).Option("missingkey=error").Parse(sources[id])
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", id, err)
		}
		t.templates[id] = tmpl
	}
	return t, nil
}

// Generate implements Generator.
func (t *Template) Generate(ctx context.Context, req Request) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmpl, ok := t.templates[req.ArtifactID]
	if !ok {
		return nil, fmt.Errorf("no template for artifact %q", req.ArtifactID)
	}

	data := map[string]any{
		"Subject":  req.SubjectID,
		"Artifact": req.ArtifactID,
		"Attempt":  req.Attempt,
		"Context":  map[string]any(req.Context),
		"Params":   req.Params,
		"Inputs":   req.Inputs,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", req.ArtifactID, err)
	}
	return map[string]any{"text": buf.String()}, nil
}
