package report

import (
	"cmp"
	"sort"

	"contact-insights-go/internal/types"
)

const (
	FieldContactsNumber  = "Contacts_Number"
	FieldContactDuration = "Total_contacts_duration_in_seconds"
)

// JoinAndSortDescending returns clones of persons carrying valueByID[ID] under
// field, sorted by that value from highest to lowest. Ties keep source order.
// A person whose ID is missing from valueByID fails the whole join.
func JoinAndSortDescending[V cmp.Ordered](persons []types.Person, valueByID map[string]V, field string) ([]types.Person, error) {
	type row struct {
		person types.Person
		value  V
	}
	rows := make([]row, 0, len(persons))
	for _, p := range persons {
		v, ok := valueByID[p.ID]
		if !ok {
			return nil, &types.UnmappedKeyError{Key: p.ID}
		}
		c := p.Clone()
		if c.Extra == nil {
			c.Extra = map[string]any{}
		}
		c.Extra[field] = v
		rows = append(rows, row{person: c, value: v})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].value > rows[j].value })

	out := make([]types.Person, len(rows))
	for i, r := range rows {
		out[i] = r.person
	}
	return out, nil
}

// FillMissing copies values and adds zero for every person it lacks.
func FillMissing[V any](persons []types.Person, values map[string]V, zero V) map[string]V {
	out := make(map[string]V, len(values)+len(persons))
	for k, v := range values {
		out[k] = v
	}
	for _, p := range persons {
		if _, ok := out[p.ID]; !ok {
			out[p.ID] = zero
		}
	}
	return out
}
