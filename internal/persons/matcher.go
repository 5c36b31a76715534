package persons

import (
	"fmt"
	"sort"

	"contact-insights-go/internal/types"
)

// SurnamesMissingFrom returns the candidates whose surname appears nowhere in reference.
func SurnamesMissingFrom(reference, candidates []types.Person) []types.Person {
	known := make(map[string]struct{}, len(reference))
	for _, p := range reference {
		known[p.Surname] = struct{}{}
	}
	var out []types.Person
	for _, p := range candidates {
		if _, ok := known[p.Surname]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// FindAgeBandedNamesakes pairs persons sharing an exact surname whose ages
// differ by exactly bandYears. Each pair holds the later entry of the
// age-sorted surname group first. persons is not reordered.
func FindAgeBandedNamesakes(persons []types.Person, bandYears int) []types.NamesakePair {
	sorted := make([]types.Person, len(persons))
	copy(sorted, persons)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Surname != sorted[j].Surname {
			return sorted[i].Surname < sorted[j].Surname
		}
		return sorted[i].Age < sorted[j].Age
	})

	var pairs []types.NamesakePair
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sorted[end].Surname == sorted[start].Surname {
			end++
		}
		pairs = appendBandPairs(pairs, sorted[start:end], bandYears)
		start = end
	}
	return pairs
}

func appendBandPairs(pairs []types.NamesakePair, group []types.Person, bandYears int) []types.NamesakePair {
	seen := map[int][]int{}
	for i, p := range group {
		for _, age := range [2]int{p.Age - bandYears, p.Age + bandYears} {
			for _, j := range seen[age] {
				pairs = append(pairs, types.NamesakePair{Person: p, Namesake: group[j]})
			}
		}
		seen[p.Age] = append(seen[p.Age], i)
	}
	return pairs
}

// IDToAge caches each person's age by ID.
func IDToAge(persons []types.Person) map[string]int {
	out := make(map[string]int, len(persons))
	for _, p := range persons {
		out[p.ID] = p.Age
	}
	return out
}

// SortBy stable-sorts persons in place by one of the known columns.
func SortBy(persons []types.Person, column string) error {
	var less func(a, b types.Person) bool
	switch column {
	case types.FieldID:
		less = func(a, b types.Person) bool { return a.ID < b.ID }
	case types.FieldName:
		less = func(a, b types.Person) bool { return a.Name < b.Name }
	case types.FieldSurname:
		less = func(a, b types.Person) bool { return a.Surname < b.Surname }
	case types.FieldAge:
		less = func(a, b types.Person) bool { return a.Age < b.Age }
	default:
		return fmt.Errorf("cannot sort persons by %q", column)
	}
	sort.SliceStable(persons, func(i, j int) bool { return less(persons[i], persons[j]) })
	return nil
}
