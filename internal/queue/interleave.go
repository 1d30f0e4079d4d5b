package queue

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/conorfennell/lexideck/internal/domain"
)

// Interleaver merges per-type groups of entries into one session order.
// Implementations must not modify the groups they are given.
type Interleaver interface {
	Interleave(groups map[domain.CardType][]Entry, ratio map[domain.CardType]float64) []Entry
}

// TargetRatio shuffles each group and then, at every position, takes the next
// entry from the type that is furthest behind round(len(result) * ratio).
// Ties and exhausted types fall through in vocabulary, grammar, verse order.
type TargetRatio struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewTargetRatio returns a TargetRatio interleaver. A nil rng uses the
// package-level source.
func NewTargetRatio(rng *rand.Rand) *TargetRatio {
	return &TargetRatio{rng: rng}
}

func (tr *TargetRatio) Interleave(groups map[domain.CardType][]Entry, ratio map[domain.CardType]float64) []Entry {
	shuffled := make(map[domain.CardType][]Entry, len(groups))
	total := 0
	for _, t := range domain.CardTypes {
		cp := append([]Entry(nil), groups[t]...)
		tr.shuffle(cp)
		shuffled[t] = cp
		total += len(cp)
	}

	out := make([]Entry, 0, total)
	taken := make(map[domain.CardType]int, len(groups))
	for len(out) < total {
		pick := domain.CardType(0)
		best := math.MinInt
		for _, t := range domain.CardTypes {
			if taken[t] >= len(shuffled[t]) {
				continue
			}
			deficit := int(math.Round(float64(len(out))*ratio[t])) - taken[t]
			if deficit > best {
				pick, best = t, deficit
			}
		}
		out = append(out, shuffled[pick][taken[pick]])
		taken[pick]++
	}
	return out
}

func (tr *TargetRatio) shuffle(es []Entry) {
	swap := func(i, j int) { es[i], es[j] = es[j], es[i] }
	if tr.rng == nil {
		rand.Shuffle(len(es), swap)
		return
	}
	tr.mu.Lock()
	tr.rng.Shuffle(len(es), swap)
	tr.mu.Unlock()
}

// WeightedRoundRobin interleaves deterministically using smooth weighted
// round-robin over the ratios, keeping each group's own order.
type WeightedRoundRobin struct{}

func (WeightedRoundRobin) Interleave(groups map[domain.CardType][]Entry, ratio map[domain.CardType]float64) []Entry {
	total := 0
	for _, t := range domain.CardTypes {
		total += len(groups[t])
	}

	out := make([]Entry, 0, total)
	taken := make(map[domain.CardType]int, len(groups))
	current := make(map[domain.CardType]float64, len(groups))
	for len(out) < total {
		var weightSum float64
		pick := domain.CardType(0)
		for _, t := range domain.CardTypes {
			if taken[t] >= len(groups[t]) || ratio[t] <= 0 {
				continue
			}
			current[t] += ratio[t]
			weightSum += ratio[t]
			if pick == 0 || current[t] > current[pick] {
				pick = t
			}
		}
		if pick == 0 {
			// only zero-weight groups are left
			for _, t := range domain.CardTypes {
				if taken[t] < len(groups[t]) {
					pick = t
					break
				}
			}
		} else {
			current[pick] -= weightSum
		}
		out = append(out, groups[pick][taken[pick]])
		taken[pick]++
	}
	return out
}
