// Package columns implements the table column model shared by listings,
// history views and reports.
package columns

// ScopeInView limits a table to the requested page.
const ScopeInView = "InView"

const DefaultPageSize = 10

type Column struct {
	Key    string `json:"accessorKey"`
	Header string `json:"header"`
}

type Row map[string]any

// Project returns the requested columns in the requested order, minus the
// ones marked hidden. An empty order means the whole catalog. Unknown keys
// are ignored.
func Project(catalog []Column, order []string, visibility map[string]bool) []Column {
	if len(order) == 0 {
		order = make([]string, 0, len(catalog))
		for _, c := range catalog {
			order = append(order, c.Key)
		}
	}
	byKey := make(map[string]Column, len(catalog))
	for _, c := range catalog {
		byKey[c.Key] = c
	}
	used := map[string]bool{}
	out := make([]Column, 0, len(order))
	for _, key := range order {
		c, ok := byKey[key]
		if !ok || used[key] {
			continue
		}
		used[key] = true
		if visible, set := visibility[key]; set && !visible {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Select trims every row down to the projected columns.
func Select(rows []Row, cols []Column) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		trimmed := make(Row, len(cols))
		for _, c := range cols {
			trimmed[c.Key] = r[c.Key]
		}
		out = append(out, trimmed)
	}
	return out
}

// Window returns the [start,end) slice bounds of a zero-based page.
func Window(total, page, size int) (int, int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 0 {
		page = 0
	}
	start := page * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return start, end
}
