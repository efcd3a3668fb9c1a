package schema

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/joseph-ayodele/lease-abstractor/internal/common"
)

const fiveSections = `{
  "name": "t",
  "sections": [
    {"key": "a", "type": "object", "properties": [{"key": "x", "type": "string"}]},
    {"key": "b", "type": "string"},
    {"key": "c", "type": "object", "granularity": "expand-children", "properties": [
      {"key": "c1", "type": "object", "properties": [{"key": "summary", "type": "string"}]},
      {"key": "c2", "type": "object", "properties": [{"key": "summary", "type": "string"}]},
      {"key": "misc", "type": "array", "catchAll": true, "items": {"type": "string"}}
    ]},
    {"key": "d", "type": "array", "items": {"type": "object", "properties": [{"key": "y", "type": "number"}]}},
    {"key": "e", "type": "boolean"}
  ]
}`

func mustParse(t *testing.T, src string) *Schema {
	t.Helper()
	s, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return s
}

func TestPartitionFiveSectionsThreeClauses(t *testing.T) {
	units := Partition(mustParse(t, fiveSections))
	var paths []string
	for _, u := range units {
		paths = append(paths, u.Path())
	}
	want := []string{"a", "b", "c.c1", "c.c2", "c.misc", "d", "e"}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for _, u := range units {
		if u.CatchAll != (u.Path() == "c.misc") {
			t.Fatalf("unit %s catchAll = %v", u.Path(), u.CatchAll)
		}
	}
	if units[2].Key() != "c1" || units[2].Section != "c" {
		t.Fatalf("clause unit = %+v", units[2])
	}
}

func TestPartitionIsDeterministic(t *testing.T) {
	s := mustParse(t, fiveSections)
	if !reflect.DeepEqual(Partition(s), Partition(s)) {
		t.Fatal("partition differs between calls")
	}
}

func TestDefaultSchema(t *testing.T) {
	s, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	units := Partition(s)
	if len(units) != 12 {
		t.Fatalf("units = %d, want 12", len(units))
	}
	catchAll := 0
	for _, u := range units {
		if u.CatchAll {
			catchAll++
			if u.Node.Type != "array" {
				t.Fatalf("catch-all must be a collection, got %s", u.Node.Type)
			}
		}
	}
	if catchAll != 1 {
		t.Fatalf("catch-all units = %d", catchAll)
	}
	if units[4].Label != "Key Clauses: Assignment and Subletting" {
		t.Fatalf("label = %q", units[4].Label)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"duplicate": `{"sections":[{"key":"a","type":"string"},{"key":"a","type":"string"}]}`,
		"two expanded": `{"sections":[
			{"key":"a","type":"object","granularity":"expand-children","properties":[{"key":"x","type":"string"}]},
			{"key":"b","type":"object","granularity":"expand-children","properties":[{"key":"y","type":"string"}]}]}`,
		"two catch-alls": `{"sections":[{"key":"a","type":"object","granularity":"expand-children","properties":[
			{"key":"x","type":"string","catchAll":true},{"key":"y","type":"string","catchAll":true}]}]}`,
		"catch-all outside": `{"sections":[{"key":"a","type":"object","properties":[{"key":"x","type":"string","catchAll":true}]}]}`,
		"empty expanded":    `{"sections":[{"key":"a","type":"object","granularity":"expand-children"}]}`,
		"bad type":          `{"sections":[{"key":"a","type":"date"}]}`,
		"array no items":    `{"sections":[{"key":"a","type":"array"}]}`,
		"no sections":       `{"sections":[]}`,
		"unknown field":     `{"sections":[{"key":"a","type":"string","required":true}]}`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			if !errors.Is(err, common.ErrInvalidInput) {
				t.Fatalf("err = %v, want invalid input", err)
			}
		})
	}
}

func TestResponseSchemaRequiresOnlyUnitKey(t *testing.T) {
	units := Partition(mustParse(t, fiveSections))
	rs := ResponseSchema(units[2])
	if req := rs["required"].([]string); len(req) != 1 || req[0] != "c1" {
		t.Fatalf("required = %v", req)
	}
	props := rs["properties"].(map[string]any)
	if _, ok := props["c1"]; !ok || len(props) != 1 {
		t.Fatalf("properties = %v", props)
	}
}

func TestValidateFragment(t *testing.T) {
	units := Partition(mustParse(t, fiveSections))
	a := units[0]
	if err := ValidateFragment(a, map[string]any{"a": map[string]any{"x": "Not Provided"}}); err != nil {
		t.Fatalf("valid fragment rejected: %v", err)
	}
	err := ValidateFragment(a, map[string]any{"a": map[string]any{"x": 5}})
	if err == nil || !strings.Contains(err.Error(), "does not match") {
		t.Fatalf("err = %v", err)
	}
	if err := ValidateFragment(a, map[string]any{"b": "wrong unit"}); err == nil {
		t.Fatal("fragment for another unit accepted")
	}
	d := units[5]
	if err := ValidateFragment(d, map[string]any{"d": []any{map[string]any{"y": 3.5}}}); err != nil {
		t.Fatalf("array fragment rejected: %v", err)
	}
}
