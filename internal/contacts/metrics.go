package contacts

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"contact-insights-go/internal/aggregator"
	"contact-insights-go/internal/types"
)

// MinQualifyingDuration is the shortest contact counted by the unique-contact
// and age-group metrics. Total durations ignore it.
const MinQualifyingDuration = 5 * time.Minute

type AgeGroupMode string

const (
	// ModeIncremental keeps the best ratio observed after each qualifying
	// contact, even if that group's ratio later drops. A new maximum is
	// credited to the group of the contact's first member, whichever member
	// produced it.
	ModeIncremental AgeGroupMode = "incremental"
	// ModeTouched is ModeIncremental crediting a new maximum to the group
	// whose ratio produced it.
	ModeTouched AgeGroupMode = "touched"
	// ModeGlobal picks the best ratio among the final per-group totals.
	ModeGlobal AgeGroupMode = "global"
)

func ParseAgeGroupMode(s string) (AgeGroupMode, error) {
	switch AgeGroupMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeIncremental:
		return ModeIncremental, nil
	case ModeTouched:
		return ModeTouched, nil
	case ModeGlobal:
		return ModeGlobal, nil
	default:
		return "", fmt.Errorf("unknown age group mode %q", s)
	}
}

func Qualifies(c types.Contact) bool {
	return c.Duration() >= MinQualifyingDuration
}

// UniqueContactsPerMember counts distinct partners per member over qualifying
// contacts. Members without a qualifying contact are absent from the result.
func UniqueContactsPerMember(contacts []types.Contact) map[string]int {
	partners := aggregator.New[string, string]()
	for _, c := range contacts {
		if !Qualifies(c) {
			continue
		}
		partners.Record(c.Member1ID, c.Member2ID)
		partners.Record(c.Member2ID, c.Member1ID)
	}
	return partners.Counts()
}

// TotalDurationPerMember sums every contact's duration, in seconds, onto both members.
func TotalDurationPerMember(contacts []types.Contact) map[string]float64 {
	out := map[string]float64{}
	for _, c := range contacts {
		secs := c.Duration().Seconds()
		out[c.Member1ID] += secs
		out[c.Member2ID] += secs
	}
	return out
}

type ratioTracker struct {
	group int
	ratio float64
}

func (t *ratioTracker) observe(group int, ratio float64) {
	if ratio > t.ratio {
		t.group = group
		t.ratio = ratio
	}
}

// MostTalkativeAgeGroup returns the age group with the highest ratio of distinct
// contact partners to distinct members, as a single-element slice.
func MostTalkativeAgeGroup(contacts []types.Contact, idToAge map[string]int, mode AgeGroupMode) ([]types.AgeGroupRatio, error) {
	members := aggregator.New[int, string]()
	partners := aggregator.New[int, string]()
	ratio := func(group int) float64 {
		return float64(partners.CountOf(group)) / float64(members.CountOf(group))
	}

	var best ratioTracker
	for _, c := range contacts {
		if !Qualifies(c) {
			continue
		}
		g1, err := ageOf(idToAge, c.Member1ID)
		if err != nil {
			return nil, err
		}
		g2, err := ageOf(idToAge, c.Member2ID)
		if err != nil {
			return nil, err
		}

		members.Record(g1, c.Member1ID)
		members.Record(g2, c.Member2ID)
		partners.Record(g1, c.Member2ID)
		partners.Record(g2, c.Member1ID)

		if mode != ModeGlobal {
			credited := g1
			if mode == ModeTouched {
				credited = g2
			}
			best.observe(g1, ratio(g1))
			best.observe(credited, ratio(g2))
		}
	}

	if mode == ModeGlobal {
		groups := make([]int, 0, members.Len())
		for g := range members.Counts() {
			groups = append(groups, g)
		}
		sort.Ints(groups)
		for _, g := range groups {
			best.observe(g, ratio(g))
		}
	}

	return []types.AgeGroupRatio{{AgeGroup: best.group, AvgContacts: best.ratio}}, nil
}

func ageOf(idToAge map[string]int, id string) (int, error) {
	age, ok := idToAge[id]
	if !ok {
		return 0, &types.UnmappedKeyError{Key: id}
	}
	return age, nil
}
