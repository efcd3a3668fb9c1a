package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/joseph-ayodele/lease-abstractor/internal/schema"
)

// Row is one leaf value of the record.
type Row struct {
	Section string // section label
	Field   string // path inside the section, e.g. baseRent[0].monthlyAmount
	Value   string
}

// Flatten lists the record's leaves in schema order. Sections missing from
// the record produce no rows. Keys the schema does not declare follow the
// declared ones in key order.
func Flatten(rec map[string]any, s *schema.Schema) []Row {
	var rows []Row
	for _, sec := range s.Sections {
		v, ok := rec[sec.Key]
		if !ok {
			continue
		}
		rows = walk(rows, sec.DisplayLabel(), "", sec, v)
	}
	return rows
}

func walk(rows []Row, section, path string, n *schema.Node, v any) []Row {
	switch t := v.(type) {
	case map[string]any:
		var declared []*schema.Node
		if n != nil {
			declared = n.Properties
		}
		seen := make(map[string]bool, len(declared))
		for _, c := range declared {
			seen[c.Key] = true
			cv, ok := t[c.Key]
			if !ok {
				continue
			}
			rows = walk(rows, section, join(path, c.Key), c, cv)
		}
		var extra []string
		for k := range t {
			if !seen[k] {
				extra = append(extra, k)
			}
		}
		sort.Strings(extra)
		for _, k := range extra {
			rows = walk(rows, section, join(path, k), nil, t[k])
		}
		return rows
	case []any:
		if len(t) == 0 {
			return append(rows, Row{Section: section, Field: path})
		}
		var items *schema.Node
		if n != nil {
			items = n.Items
		}
		for i, item := range t {
			rows = walk(rows, section, fmt.Sprintf("%s[%d]", path, i), items, item)
		}
		return rows
	default:
		return append(rows, Row{Section: section, Field: path, Value: FormatValue(v)})
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// FormatValue renders a scalar JSON value for display.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
