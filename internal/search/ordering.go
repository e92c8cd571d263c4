package search

import "strings"

const OrderingParam = "ordering"

// Ordering whitelists the fields a client may order by. Allowed maps the API
// field name to its SQL column.
type Ordering struct {
	Allowed map[string]string
	Default string
}

// SQL renders an ORDER BY body for the comma separated param. Unknown fields
// are dropped; when nothing valid remains the default is used.
func (o Ordering) SQL(param string) string {
	var parts []string
	for _, raw := range strings.Split(param, ",") {
		name := strings.TrimSpace(raw)
		desc := strings.HasPrefix(name, "-")
		name = strings.TrimPrefix(name, "-")
		col, ok := o.Allowed[name]
		if !ok {
			continue
		}
		if desc {
			col += " DESC"
		}
		parts = append(parts, col)
	}
	if len(parts) == 0 {
		return o.Default
	}
	return strings.Join(parts, ", ")
}
