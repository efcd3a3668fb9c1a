package extract

import (
	"fmt"

	"github.com/joseph-ayodele/lease-abstractor/internal/schema"
)

// Record is the merged result: top-level section key to its value.
type Record map[string]any

// Clone returns a deep copy, so published snapshots never alias the
// record that is still being filled.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// Hooks observe a run. Both are optional.
type Hooks struct {
	// OnUnitStart fires before the request for unit i (0-based) of n.
	OnUnitStart func(u schema.Unit, i, n int)
	// OnSnapshot fires after each merge with a copy of the record so far.
	OnSnapshot func(u schema.Unit, snapshot Record)
}

// UnitError reports the unit that stopped a run.
type UnitError struct {
	Unit  schema.Unit
	Index int
	Err   error
	raw   string
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("extraction of %q (unit %d) failed: %v", e.Unit.Label, e.Index+1, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// Raw is the backend text that could not be used, for diagnostics.
func (e *UnitError) Raw() string { return e.raw }
