package pipeline

import (
	"context"
	"regexp"
	"strings"
)

// Match holds the named groups of a recognizer match
type Match map[string]string

// Note maps a named group to a "Label: value" note line
type Note struct {
	Label string
	Group string
}

// Recognizer extracts structured fields that banks embed in free text.
// A cheap keyword gate runs before the regular expression. Text that does not
// match leaves the draft untouched.
//
// The "name" group, when present and non-empty, overwrites the counterparty
// name. Each configured note whose group matched is appended to the notes.
type Recognizer struct {
	name    string
	gate    []string
	pattern *regexp.Regexp
	notes   []Note
	then    func(d *Draft, m Match)
}

// NewRecognizer compiles pattern and returns a recognizer step
func NewRecognizer(name string, gate []string, pattern string, notes ...Note) *Recognizer {
	return &Recognizer{
		name:    name,
		gate:    gate,
		pattern: regexp.MustCompile(pattern),
		notes:   notes,
	}
}

// Then registers a callback run after the name and notes were applied
func (r *Recognizer) Then(fn func(d *Draft, m Match)) *Recognizer {
	r.then = fn
	return r
}

func (r *Recognizer) Name() string {
	return r.name
}

// Match returns the named groups for text, or nil when the gate or the pattern
// does not match.
func (r *Recognizer) Match(text string) Match {
	if !r.gated(text) {
		return nil
	}
	sub := r.pattern.FindStringSubmatch(text)
	if sub == nil {
		return nil
	}
	m := make(Match)
	for i, group := range r.pattern.SubexpNames() {
		if group == "" || i >= len(sub) {
			continue
		}
		m[group] = strings.TrimSpace(sub[i])
	}
	return m
}

func (r *Recognizer) Apply(ctx context.Context, d *Draft) (*Draft, error) {
	m := r.Match(d.Text)
	if m == nil {
		return d, nil
	}
	if name := m["name"]; name != "" {
		d.Entry.SetCounterpartyName(name)
	}
	for _, n := range r.notes {
		if v := m[n.Group]; v != "" {
			d.Entry.AppendNote(n.Label + ": " + v)
		}
	}
	if r.then != nil {
		r.then(d, m)
	}
	return d, nil
}

func (r *Recognizer) gated(text string) bool {
	if len(r.gate) == 0 {
		return true
	}
	for _, g := range r.gate {
		if strings.Contains(text, g) {
			return true
		}
	}
	return false
}
