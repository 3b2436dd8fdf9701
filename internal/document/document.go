// Package document parses the three YAML document shapes recognized on a
// project tree — jobs, templates, and constants documents — applying the
// structural discriminator from spec.md §4.2.
package document

import (
	"fmt"

	"github.com/r3e-network/deployengine/internal/model"
	"gopkg.in/yaml.v3"
)

// Kind identifies which of the three recognized shapes a document is.
type Kind string

const (
	KindJob       Kind = "job"
	KindTemplate  Kind = "template"
	KindConstants Kind = "constants"
	KindUnknown   Kind = "unknown"
)

// Sniff classifies a YAML document without fully decoding it: a top-level
// `type: "constants"` wins outright; otherwise the presence of a top-level
// `actions` key marks a job or template, disambiguated by whether
// `version` is also present.
func Sniff(data []byte) (Kind, error) {
	var probe struct {
		Type    string    `yaml:"type"`
		Actions yaml.Node `yaml:"actions"`
		Version yaml.Node `yaml:"version"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return KindUnknown, fmt.Errorf("sniff document: %w", err)
	}

	if probe.Type == "constants" {
		return KindConstants, nil
	}
	if probe.Actions.Kind != 0 {
		if probe.Version.Kind != 0 {
			return KindJob, nil
		}
		return KindTemplate, nil
	}
	return KindUnknown, nil
}

// ParseJob decodes a job document and stamps its SourcePath.
func ParseJob(data []byte, path string) (model.Job, error) {
	var j model.Job
	if err := yaml.Unmarshal(data, &j); err != nil {
		return model.Job{}, fmt.Errorf("parse job %s: %w", path, err)
	}
	if j.Name == "" {
		return model.Job{}, fmt.Errorf("parse job %s: missing name", path)
	}
	j.SourcePath = path
	return j, nil
}

// ParseTemplate decodes a template document and stamps its SourcePath.
func ParseTemplate(data []byte, path string) (model.Template, error) {
	var t model.Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return model.Template{}, fmt.Errorf("parse template %s: %w", path, err)
	}
	if t.Name == "" {
		return model.Template{}, fmt.Errorf("parse template %s: missing name", path)
	}
	t.SourcePath = path
	return t, nil
}

// ParseConstants decodes a constants document: every top-level key other
// than the `type` discriminator is a constant entry (spec.md §3). A
// constants file is strictly required to parse — the caller treats any
// error here as fatal, unlike job/template parse errors.
func ParseConstants(data []byte, path string) (map[string]model.Value, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse constants %s: %w", path, err)
	}

	out := make(map[string]model.Value, len(raw))
	for key, node := range raw {
		if key == "type" {
			continue
		}
		var v model.Value
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("parse constants %s: key %q: %w", path, key, err)
		}
		out[key] = v
	}
	return out, nil
}

// ParseNetworks decodes a networks document: a top-level `networks` list
// (spec.md §6 External Interfaces).
func ParseNetworks(data []byte, path string) ([]model.Network, error) {
	var doc struct {
		Networks []model.Network `yaml:"networks"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse networks %s: %w", path, err)
	}
	return doc.Networks, nil
}
