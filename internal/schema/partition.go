package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Unit is one extraction request's slice of the schema: a whole section,
// or one clause of the expanded section.
type Unit struct {
	Section  string
	Clause   string // empty for whole sections
	Label    string
	Node     *Node
	CatchAll bool
}

// Key is the field the model must return: the clause key for clause
// units, the section key otherwise.
func (u Unit) Key() string {
	if u.Clause != "" {
		return u.Clause
	}
	return u.Section
}

// Path is the unit's location in the record, e.g. "clauses.insurance".
func (u Unit) Path() string {
	if u.Clause != "" {
		return u.Section + "." + u.Clause
	}
	return u.Section
}

// Partition walks the schema in declaration order. Atomic sections become
// one unit; the expanded section becomes one unit per clause, catch-all
// included. The result depends only on the schema.
func Partition(s *Schema) []Unit {
	var units []Unit
	for _, sec := range s.Sections {
		if sec.granularity() != ExpandChildren {
			units = append(units, Unit{Section: sec.Key, Label: sec.DisplayLabel(), Node: sec})
			continue
		}
		for _, c := range sec.Properties {
			units = append(units, Unit{
				Section:  sec.Key,
				Clause:   c.Key,
				Label:    sec.DisplayLabel() + ": " + c.DisplayLabel(),
				Node:     c,
				CatchAll: c.CatchAll,
			})
		}
	}
	return units
}

// ResponseSchema is the JSON Schema a unit's response must satisfy: a
// single object holding exactly the unit's key.
func ResponseSchema(u Unit) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{u.Key(): u.Node.JSONSchema()},
		"required":             []string{u.Key()},
		"additionalProperties": false,
	}
}

// JSONSchema converts a node into a JSON Schema map. Every object property
// is required; the model reports missing facts with the sentinel string
// rather than by omission.
func (n *Node) JSONSchema() map[string]any {
	out := map[string]any{"type": n.Type}
	if n.Description != "" {
		out["description"] = n.Description
	}
	if len(n.Enum) > 0 {
		out["enum"] = n.Enum
	}
	switch n.Type {
	case "object":
		props := make(map[string]any, len(n.Properties))
		required := make([]string, 0, len(n.Properties))
		for _, c := range n.Properties {
			props[c.Key] = c.JSONSchema()
			required = append(required, c.Key)
		}
		out["properties"] = props
		out["required"] = required
		out["additionalProperties"] = false
	case "array":
		if n.Items != nil {
			out["items"] = n.Items.JSONSchema()
		}
	}
	return out
}

// ValidateFragment checks a parsed response against the unit's schema.
func ValidateFragment(u Unit, fragment map[string]any) error {
	b, err := json.Marshal(ResponseSchema(u))
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	url := u.Path() + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	// round-trip so the validator sees plain JSON types
	raw, err := json.Marshal(fragment)
	if err != nil {
		return fmt.Errorf("marshal fragment: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal fragment: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("fragment does not match schema: %w", err)
	}
	return nil
}
