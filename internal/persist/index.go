package persist

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/marketdata-cli/internal/metrics"
)

// Index is the existence index of one entity: the keys loaded from the store
// before the run, plus the keys staged by the run itself. It is owned by the
// single consumer and is not safe for concurrent use.
type Index[K comparable, V any] struct {
	entity string
	policy Policy
	stored map[K]V
	own    map[K]V

	// counted is indexed by Action.
	counted [Skip + 1]prometheus.Counter
}

// NewIndex builds an Index over a snapshot. The snapshot map is not copied
// and must not be modified by the caller afterwards. A nil snapshot is an
// empty store.
func NewIndex[K comparable, V any](entity string, policy Policy, snapshot map[K]V) *Index[K, V] {
	if snapshot == nil {
		snapshot = make(map[K]V)
	}
	x := &Index[K, V]{
		entity: entity,
		policy: policy,
		stored: snapshot,
		own:    make(map[K]V),
	}
	for _, act := range []Action{Insert, Update, Skip} {
		x.counted[act] = metrics.M().Records.WithLabelValues(entity, act.String())
	}
	return x
}

// Lookup finds a key among the run's own writes first, then the snapshot.
func (x *Index[K, V]) Lookup(k K) (V, bool) {
	if v, ok := x.own[k]; ok {
		return v, true
	}
	v, ok := x.stored[k]
	return v, ok
}

// Known reports whether k is stored or already written by this run.
func (x *Index[K, V]) Known(k K) bool {
	_, ok := x.Lookup(k)
	return ok
}

// Stored reports whether k was present before the run started.
func (x *Index[K, V]) Stored(k K) bool {
	_, ok := x.stored[k]
	return ok
}

// Put records v under k as written by this run.
func (x *Index[K, V]) Put(k K, v V) {
	x.own[k] = v
}

// Len is the number of keys written by this run.
func (x *Index[K, V]) Len() int {
	return len(x.own)
}

// Decide classifies k and, unless the answer is Skip, records v as the run's
// value for k. A key the run has already written is always skipped: the first
// record of a run wins over later duplicates.
func (x *Index[K, V]) Decide(k K, v V) Action {
	var act Action
	switch {
	case x.ownHas(k):
		act = Skip
	case x.Stored(k):
		if x.policy == PolicyOverwrite {
			act = Update
		} else {
			act = Skip
		}
	default:
		act = Insert
	}
	if act != Skip {
		x.own[k] = v
	}
	x.counted[act].Inc()
	return act
}

func (x *Index[K, V]) ownHas(k K) bool {
	_, ok := x.own[k]
	return ok
}
