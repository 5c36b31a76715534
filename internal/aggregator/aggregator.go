package aggregator

// Aggregator tracks, per key, the set of distinct values recorded for it and
// the size of that set. A (key, value) pair is counted at most once.
type Aggregator[K comparable, V comparable] struct {
	values map[K]map[V]struct{}
	counts map[K]int
}

func New[K comparable, V comparable]() *Aggregator[K, V] {
	return &Aggregator[K, V]{
		values: map[K]map[V]struct{}{},
		counts: map[K]int{},
	}
}

// Record associates value with key. Repeated pairs are ignored.
func (a *Aggregator[K, V]) Record(key K, value V) {
	set, ok := a.values[key]
	if !ok {
		set = map[V]struct{}{}
		a.values[key] = set
	}
	if _, seen := set[value]; seen {
		return
	}
	set[value] = struct{}{}
	a.counts[key]++
}

// CountOf returns the number of distinct values recorded for key.
func (a *Aggregator[K, V]) CountOf(key K) int {
	return a.counts[key]
}

// Counts returns a snapshot of every key's cardinality.
func (a *Aggregator[K, V]) Counts() map[K]int {
	out := make(map[K]int, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}

func (a *Aggregator[K, V]) Len() int {
	return len(a.counts)
}
