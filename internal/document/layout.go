package document

import (
	"math"
	"sort"
	"strings"
)

// TextItem is a positioned piece of native page text. Coordinates are PDF
// user space: Y grows upwards, X to the right.
type TextItem struct {
	S        string
	X, Y     float64
	W        float64
	FontSize float64
}

const (
	// horizontal gap, in font-size units, above which two glyphs are separate words
	wordGap = 0.2
	// gap above which glyphs on the same baseline start a new run (columns, tab stops)
	runGap = 1.5
	// vertical drift, in font-size units, tolerated on one baseline
	baselineDrift = 0.4
)

func fontUnit(a, b float64) float64 {
	return math.Max(1, math.Max(a, b))
}

// MergeRuns joins glyph-level items that continue each other on the same
// baseline into runs. A run is what counts as one discrete text item.
func MergeRuns(glyphs []TextItem) []TextItem {
	var runs []TextItem
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			fs := fontUnit(last.FontSize, g.FontSize)
			gap := g.X - (last.X + last.W)
			if math.Abs(g.Y-last.Y) <= baselineDrift*fs && gap >= -baselineDrift*fs && gap <= runGap*fs {
				if gap > wordGap*fs && !strings.HasSuffix(last.S, " ") && !strings.HasPrefix(g.S, " ") {
					last.S += " "
				}
				last.S += g.S
				last.W = g.X + g.W - last.X
				if g.FontSize > last.FontSize {
					last.FontSize = g.FontSize
				}
				continue
			}
		}
		runs = append(runs, g)
	}
	// whitespace-only runs carry no text
	out := runs[:0]
	for _, r := range runs {
		if strings.TrimSpace(r.S) != "" {
			out = append(out, r)
		}
	}
	return out
}

// LayoutText rebuilds reading order: lines top to bottom, runs left to right.
func LayoutText(runs []TextItem) string {
	if len(runs) == 0 {
		return ""
	}
	sorted := append([]TextItem(nil), runs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y > sorted[j].Y })

	var lines [][]TextItem
	for _, r := range sorted {
		if n := len(lines); n > 0 {
			head := lines[n-1][0]
			if math.Abs(head.Y-r.Y) <= baselineDrift*fontUnit(head.FontSize, r.FontSize) {
				lines[n-1] = append(lines[n-1], r)
				continue
			}
		}
		lines = append(lines, []TextItem{r})
	}

	var b strings.Builder
	for i, line := range lines {
		sort.SliceStable(line, func(a, c int) bool { return line[a].X < line[c].X })
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, r := range line {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strings.TrimSpace(r.S))
		}
	}
	return b.String()
}
