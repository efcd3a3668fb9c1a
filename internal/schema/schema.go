package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joseph-ayodele/lease-abstractor/internal/common"
)

// Granularity controls how a top-level section is split into requests.
type Granularity string

const (
	// Atomic sections are extracted in one request.
	Atomic Granularity = "atomic"
	// ExpandChildren sections get one request per child clause.
	ExpandChildren Granularity = "expand-children"
)

// Node is one field of the target schema. Properties keep declaration
// order, which is also the extraction and export order.
type Node struct {
	Key         string      `json:"key"`
	Label       string      `json:"label,omitempty"`
	Type        string      `json:"type"`
	Description string      `json:"description,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
	Properties  []*Node     `json:"properties,omitempty"`
	Items       *Node       `json:"items,omitempty"`
	Granularity Granularity `json:"granularity,omitempty"`
	CatchAll    bool        `json:"catchAll,omitempty"`
}

// Schema is the full target record shape.
type Schema struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Sections    []*Node `json:"sections"`
}

//go:embed lease.json
var leaseJSON []byte

// Default returns the built-in commercial lease abstract schema.
func Default() (*Schema, error) {
	return Parse(leaseJSON)
}

// LoadFile reads a schema from disk; an empty path yields Default.
func LoadFile(path string) (*Schema, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schema: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a schema.
func Load(r io.Reader) (*Schema, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Schema, error) {
	var s Schema
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, common.NewAppError(common.CodeConfig, "decode schema", errors.Join(common.ErrInvalidInput, err))
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

var validTypes = map[string]bool{
	"object": true, "array": true, "string": true, "number": true, "integer": true, "boolean": true,
}

// Validate checks the structural rules the partitioner relies on.
func (s *Schema) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if len(s.Sections) == 0 {
		add("schema has no sections")
	}
	expanded, catchAlls := 0, 0
	seen := map[string]bool{}
	for _, sec := range s.Sections {
		if sec == nil {
			add("nil section")
			continue
		}
		if seen[sec.Key] {
			add("duplicate section key %q", sec.Key)
		}
		seen[sec.Key] = true
		if sec.CatchAll {
			add("section %q: catchAll is only allowed on a clause of an expanded section", sec.Key)
		}
		switch sec.granularity() {
		case Atomic:
		case ExpandChildren:
			expanded++
			if sec.Type != "object" {
				add("section %q: only object sections can expand children", sec.Key)
			}
			if len(sec.Properties) == 0 {
				add("section %q: expanded section has no clauses", sec.Key)
			}
			for _, c := range sec.Properties {
				if c != nil && c.CatchAll {
					catchAlls++
				}
			}
		default:
			add("section %q: unknown granularity %q", sec.Key, sec.Granularity)
		}
		checkNode(sec, sec.Key, true, sec.granularity() == ExpandChildren, add)
	}
	if expanded > 1 {
		add("at most one section may expand children, found %d", expanded)
	}
	if catchAlls > 1 {
		add("at most one catch-all clause is allowed, found %d", catchAlls)
	}
	if len(problems) > 0 {
		return common.NewAppError(common.CodeConfig, "invalid schema: "+strings.Join(problems, "; "), common.ErrInvalidInput)
	}
	return nil
}

// clauses is true only for an expanded section, whose direct children may
// carry the catch-all flag.
func checkNode(n *Node, path string, keyed, clauses bool, add func(string, ...any)) {
	if keyed && strings.TrimSpace(n.Key) == "" {
		add("%s: empty key", path)
	}
	if !validTypes[n.Type] {
		add("%s: unknown type %q", path, n.Type)
	}
	if n.Type == "array" && n.Items == nil {
		add("%s: array without items", path)
	}
	seen := map[string]bool{}
	for _, c := range n.Properties {
		if c == nil {
			add("%s: nil property", path)
			continue
		}
		if seen[c.Key] {
			add("%s: duplicate key %q", path, c.Key)
		}
		seen[c.Key] = true
		if c.Granularity != "" && c.Granularity != Atomic {
			add("%s.%s: granularity only applies to sections", path, c.Key)
		}
		if c.CatchAll && !clauses {
			add("%s.%s: catchAll is only allowed on a clause of an expanded section", path, c.Key)
		}
		checkNode(c, path+"."+c.Key, true, false, add)
	}
	if n.Items != nil {
		if n.Items.CatchAll {
			add("%s[]: catchAll is only allowed on a clause of an expanded section", path)
		}
		checkNode(n.Items, path+"[]", false, false, add)
	}
}

func (n *Node) granularity() Granularity {
	if n.Granularity == "" {
		return Atomic
	}
	return n.Granularity
}

// DisplayLabel is the label for progress and export, falling back to the key.
func (n *Node) DisplayLabel() string {
	if n.Label != "" {
		return n.Label
	}
	return n.Key
}

// Child returns the direct property with the given key.
func (n *Node) Child(key string) *Node {
	for _, c := range n.Properties {
		if c.Key == key {
			return c
		}
	}
	return nil
}

// Section returns the top-level section with the given key.
func (s *Schema) Section(key string) *Node {
	for _, sec := range s.Sections {
		if sec.Key == key {
			return sec
		}
	}
	return nil
}

// EmptyValue is the empty collection (or zero value) for a node's type.
func (n *Node) EmptyValue() any {
	switch n.Type {
	case "array":
		return []any{}
	case "object":
		return map[string]any{}
	default:
		return ""
	}
}
