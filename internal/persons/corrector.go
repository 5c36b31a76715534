package persons

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"contact-insights-go/internal/types"
)

type Policy string

const (
	// PolicyStrict fails the batch on a Latin letter missing from the table.
	PolicyStrict Policy = "strict"
	// PolicyKeep leaves such letters as they are.
	PolicyKeep Policy = "keep"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyKeep:
		return PolicyKeep, nil
	default:
		return "", fmt.Errorf("unknown mistype policy %q", s)
	}
}

// DefaultTable maps Latin letters to their Cyrillic lookalikes.
func DefaultTable() map[rune]rune {
	return map[rune]rune{'a': 'а', 'e': 'е', 'o': 'о'}
}

// ParseTable converts a string-keyed table, as found in config files, into
// runes. Every key and value must be exactly one character.
func ParseTable(m map[string]string) (map[rune]rune, error) {
	out := make(map[rune]rune, len(m))
	for k, v := range m {
		if utf8.RuneCountInString(k) != 1 || utf8.RuneCountInString(v) != 1 {
			return nil, fmt.Errorf("substitution %q -> %q: both sides must be a single character", k, v)
		}
		from, _ := utf8.DecodeRuneInString(k)
		to, _ := utf8.DecodeRuneInString(v)
		out[from] = to
	}
	return out, nil
}

// Corrector replaces Latin letters typed into Cyrillic names.
type Corrector struct {
	Table  map[rune]rune
	Policy Policy
}

// NewCorrector builds a Corrector. An empty table selects DefaultTable.
func NewCorrector(table map[rune]rune, policy Policy) *Corrector {
	if len(table) == 0 {
		table = DefaultTable()
	}
	if policy == "" {
		policy = PolicyStrict
	}
	return &Corrector{Table: table, Policy: policy}
}

// Correct fixes every name containing a Latin letter. The Name field of the
// affected elements of persons is rewritten in place, so the caller must not
// share the slice with anything reading it during the call. Copies of the
// corrected records are returned in source order. On error nothing is modified.
func (c *Corrector) Correct(persons []types.Person) ([]types.Person, error) {
	type fix struct {
		idx  int
		name string
	}
	var fixes []fix
	for i, p := range persons {
		name, mistyped, err := c.correctName(p.Name)
		if err != nil {
			return nil, fmt.Errorf("person %s: %w", p.ID, err)
		}
		if mistyped {
			fixes = append(fixes, fix{idx: i, name: name})
		}
	}

	out := make([]types.Person, 0, len(fixes))
	for _, f := range fixes {
		persons[f.idx].Name = f.name
		out = append(out, persons[f.idx].Clone())
	}
	return out, nil
}

func (c *Corrector) correctName(name string) (string, bool, error) {
	if strings.IndexFunc(name, isLatin) < 0 {
		return name, false, nil
	}
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !isLatin(r) {
			b.WriteRune(r)
			continue
		}
		sub, ok := c.Table[r]
		switch {
		case ok:
			// compose the substitute with the marks typed after it, e.g. е + U+0308
			end := i + 1
			for end < len(runes) && unicode.Is(unicode.Mn, runes[end]) {
				end++
			}
			b.WriteString(norm.NFC.String(string(sub) + string(runes[i+1:end])))
			i = end - 1
		case c.Policy == PolicyKeep:
			b.WriteRune(r)
		default:
			return "", false, &types.UntranslatableCharacterError{Name: name, Char: r}
		}
	}
	return b.String(), true, nil
}

func isLatin(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
