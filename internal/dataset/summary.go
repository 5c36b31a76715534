package dataset

import (
	"contact-insights-go/internal/contacts"
	"contact-insights-go/internal/types"
)

// Summary is a compact description of one dataset pair, logged and written to
// the run manifest.
type Summary struct {
	Dataset            string `toml:"dataset"`
	Persons            int    `toml:"persons"`
	DistinctSurnames   int    `toml:"distinct_surnames"`
	MinAge             int    `toml:"min_age"`
	MaxAge             int    `toml:"max_age"`
	MistypedNames      int    `toml:"mistyped_names"`
	Namesakes          int    `toml:"namesake_pairs"`
	Contacts           int    `toml:"contacts"`
	QualifyingContacts int    `toml:"qualifying_contacts"`
}

func SummarizePersons(name string, persons []types.Person) Summary {
	s := Summary{Dataset: name, Persons: len(persons)}
	surnames := map[string]struct{}{}
	for i, p := range persons {
		surnames[p.Surname] = struct{}{}
		if i == 0 || p.Age < s.MinAge {
			s.MinAge = p.Age
		}
		if i == 0 || p.Age > s.MaxAge {
			s.MaxAge = p.Age
		}
	}
	s.DistinctSurnames = len(surnames)
	return s
}

// AddContacts fills the contact counters of s.
func (s *Summary) AddContacts(list []types.Contact) {
	s.Contacts = len(list)
	s.QualifyingContacts = 0
	for _, c := range list {
		if contacts.Qualifies(c) {
			s.QualifyingContacts++
		}
	}
}
