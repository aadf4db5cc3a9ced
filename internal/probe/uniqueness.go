package probe

import (
	"fmt"
	"sort"
	"strings"

	"sheetcrud/pkg/records"
)

const distinctCapPerColumn = 10000

// UniquenessStats captures bounded distinct-count stats for a grid.
//
// Row counts for uniqueness are per column: a column only counts a row
// toward its denominator when it has a non-empty value in that row.
type UniquenessStats struct {
	// TotalRows is informational only; it is not a ratio denominator.
	TotalRows int

	// PerColumnTotal counts non-empty values per column.
	PerColumnTotal map[string]int

	// PerColumnDistinct holds bounded distinct counts per column.
	PerColumnDistinct map[string]int

	// PerColumnCapped marks columns where distinct counting hit the cap.
	PerColumnCapped map[string]bool

	// ColumnOrder is the stable column order of the grid.
	ColumnOrder []string
}

// Uniqueness computes per-column distinct counts for g.
//
// Distinct counting is bounded by distinctCapPerColumn per column; once a
// column reaches the cap its set is dropped and it is reported as capped.
// Empty values are treated as missing.
func Uniqueness(g records.Grid) UniquenessStats {
	stats := UniquenessStats{
		PerColumnTotal:    make(map[string]int, len(g.Columns)),
		PerColumnDistinct: make(map[string]int, len(g.Columns)),
		PerColumnCapped:   make(map[string]bool, len(g.Columns)),
		ColumnOrder:       append([]string(nil), g.Columns...),
	}
	if len(g.Rows) == 0 || len(g.Columns) == 0 {
		return stats
	}

	sets := make([]map[string]struct{}, len(g.Columns))
	for i := range sets {
		sets[i] = make(map[string]struct{})
	}

	for ri := range g.Rows {
		stats.TotalRows++
		for i, col := range g.Columns {
			v := strings.TrimSpace(g.Cell(ri, i))
			if v == "" {
				continue
			}
			stats.PerColumnTotal[col]++

			if stats.PerColumnCapped[col] {
				continue
			}
			sets[i][v] = struct{}{}
			if len(sets[i]) >= distinctCapPerColumn {
				stats.PerColumnCapped[col] = true
				sets[i] = nil
			}
		}
	}

	for i, col := range g.Columns {
		if stats.PerColumnCapped[col] {
			stats.PerColumnDistinct[col] = distinctCapPerColumn
			continue
		}
		stats.PerColumnDistinct[col] = len(sets[i])
	}
	return stats
}

// FormatUniquenessReport renders stats as a tab-separated table sorted by
// ascending uniqueness ratio. Columns without any value are omitted.
func FormatUniquenessReport(stats UniquenessStats) string {
	if stats.TotalRows <= 0 {
		return "uniqueness: no rows"
	}

	type row struct {
		Col    string
		Dist   int
		Ratio  float64
		Capped bool
		Den    int
	}

	rows := make([]row, 0, len(stats.ColumnOrder))
	for _, col := range stats.ColumnOrder {
		den := stats.PerColumnTotal[col]
		if den <= 0 {
			continue
		}
		d := stats.PerColumnDistinct[col]
		rows = append(rows, row{
			Col:    col,
			Dist:   d,
			Ratio:  float64(d) / float64(den),
			Capped: stats.PerColumnCapped[col],
			Den:    den,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Ratio == rows[j].Ratio {
			return rows[i].Col < rows[j].Col
		}
		return rows[i].Ratio < rows[j].Ratio
	})

	var b strings.Builder
	fmt.Fprintf(&b, "uniqueness report:\trows=%d\n", stats.TotalRows)
	fmt.Fprintf(&b, "%-15s\t%-7s\t%-7s\tratio\tcapped\n", "col", "unique", "rows")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-15s\t%-7d\t%d\t%.1f%%\t%t\n", r.Col, r.Dist, r.Den, r.Ratio*100, r.Capped)
	}
	return strings.TrimRight(b.String(), "\n")
}
