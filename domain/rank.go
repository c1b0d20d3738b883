package domain

import "sort"

// Rank orders tasks into a contiguous 1-based priority ranking.
//
// A task pinned to a valid slot (1..N, first claim wins) occupies exactly
// that slot. Every other task is sorted by descending PriorityScore, earlier
// CreatedAt breaking ties, and fills the remaining slots in order. The result
// contains the same tasks annotated with PriorityRank, in rank order; the
// assigned ranks are always exactly {1..N}.
func Rank(tasks []Task) []Task {
	n := len(tasks)
	if n == 0 {
		return []Task{}
	}

	// Partition into slot claims and the scored pool. A pinned task whose
	// requested slot is out of range or already claimed is demoted into the
	// pool for this pass.
	claimed := make(map[int]Task, n)
	pool := make([]Task, 0, n)
	for _, t := range tasks {
		if t.Pinned && t.PinnedRank != nil {
			slot := *t.PinnedRank
			if slot >= 1 && slot <= n {
				if _, taken := claimed[slot]; !taken {
					claimed[slot] = t
					continue
				}
			}
		}
		pool = append(pool, t)
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].PriorityScore != pool[j].PriorityScore {
			return pool[i].PriorityScore > pool[j].PriorityScore
		}
		return pool[i].CreatedAt < pool[j].CreatedAt
	})

	out := make([]Task, 0, n)
	next := 0
	for slot := 1; slot <= n; slot++ {
		t, pinned := claimed[slot]
		if !pinned {
			if next >= len(pool) {
				// Unreachable: the pool holds one task per unclaimed slot.
				continue
			}
			t = pool[next]
			next++
		}
		rank := slot
		t.PriorityRank = &rank
		out = append(out, t)
	}
	return out
}
