package domain

import "sort"

// SortOrder selects how a filtered view is ordered.
type SortOrder string

const (
	// SortCreatedAsc orders cards by creation time, oldest first.
	SortCreatedAsc SortOrder = "created-asc"
	// SortPriorityAsc orders low, normal, high.
	SortPriorityAsc SortOrder = "priority-asc"
	// SortPriorityDesc orders high, normal, low.
	SortPriorityDesc SortOrder = "priority-desc"
	// SortNormalFirst puts normal-priority cards first, then the rest by
	// ascending priority.
	SortNormalFirst SortOrder = "normal-first"
)

// Filter describes a derived view over a board snapshot. Empty predicate
// sets impose no constraint. When both sets are non-empty, MatchAll toggles
// between requiring every predicate (conjunctive) and any predicate
// (disjunctive).
type Filter struct {
	Priorities []Priority
	Executors  []string
	MatchAll   bool
	Sort       SortOrder
}

// View projects the board's cards through the filter and sort order. It is
// a pure function: the board is never mutated and the result is freshly
// allocated on every call.
func View(b Board, f Filter) []Card {
	out := make([]Card, 0, 16)
	for i := range b.Sections {
		for _, c := range b.Sections[i].Cards {
			if f.matches(c) {
				out = append(out, c.clone())
			}
		}
	}
	f.sortCards(out)
	return out
}

func (f Filter) matches(c Card) bool {
	hasPrio := len(f.Priorities) > 0
	hasExec := len(f.Executors) > 0
	switch {
	case !hasPrio && !hasExec:
		return true
	case hasPrio && hasExec:
		if f.MatchAll {
			return f.matchesPriority(c) && f.matchesExecutor(c)
		}
		return f.matchesPriority(c) || f.matchesExecutor(c)
	case hasPrio:
		return f.matchesPriority(c)
	default:
		return f.matchesExecutor(c)
	}
}

func (f Filter) matchesPriority(c Card) bool {
	for _, p := range f.Priorities {
		if c.Priority == p {
			return true
		}
	}
	return false
}

func (f Filter) matchesExecutor(c Card) bool {
	for _, e := range f.Executors {
		if c.Executor == e {
			return true
		}
	}
	return false
}

func (f Filter) sortCards(cards []Card) {
	switch f.Sort {
	case SortPriorityAsc:
		sort.SliceStable(cards, func(i, j int) bool {
			return cards[i].Priority.Rank() < cards[j].Priority.Rank()
		})
	case SortPriorityDesc:
		sort.SliceStable(cards, func(i, j int) bool {
			return cards[i].Priority.Rank() > cards[j].Priority.Rank()
		})
	case SortNormalFirst:
		sort.SliceStable(cards, func(i, j int) bool {
			return normalFirstKey(cards[i]) < normalFirstKey(cards[j])
		})
	default:
		// created-asc and the zero value
		sort.SliceStable(cards, func(i, j int) bool {
			return cards[i].CreatedAt.Before(cards[j].CreatedAt)
		})
	}
}

// normalFirstKey buckets normal cards ahead of everything else, keeping
// the remainder in ascending priority order. Rank never exceeds 2, so the
// offset keeps the buckets disjoint.
func normalFirstKey(c Card) int {
	if c.Priority == PriorityNormal {
		return 0
	}
	return 1 + c.Priority.Rank()
}
