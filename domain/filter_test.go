package domain

import (
	"testing"
	"time"
)

func filterBoard() Board {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return Board{
		ID: "p1",
		Sections: []Section{
			{ID: "backlog", Title: BacklogTitle, Cards: []Card{
				{ID: "a", Title: "A", Priority: PriorityLow, Executor: "Alice", CreatedAt: base, SectionID: "backlog"},
				{ID: "b", Title: "B", Priority: PriorityNormal, Executor: "Bob", CreatedAt: base.Add(time.Minute), SectionID: "backlog"},
			}},
			{ID: "todo", Title: "To Do", CanDelete: true, Cards: []Card{
				{ID: "c", Title: "C", Priority: PriorityHigh, Executor: "Alice", CreatedAt: base.Add(2 * time.Minute), SectionID: "todo"},
				{ID: "d", Title: "D", Priority: PriorityHigh, Executor: "Carol", CreatedAt: base.Add(3 * time.Minute), SectionID: "todo"},
			}},
		},
	}
}

func ids(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestViewEmptyFilterReturnsAllCards(t *testing.T) {
	got := View(filterBoard(), Filter{})
	if want := []string{"a", "b", "c", "d"}; !equalIDs(ids(got), want) {
		t.Fatalf("got %v, want %v", ids(got), want)
	}
}

func TestViewDisjunctiveIsUnion(t *testing.T) {
	f := Filter{
		Priorities: []Priority{PriorityLow},
		Executors:  []string{"Carol"},
	}
	got := ids(View(filterBoard(), f))
	// Low priority (a) union executor Carol (d), in creation order.
	if want := []string{"a", "d"}; !equalIDs(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestViewConjunctiveIsIntersection(t *testing.T) {
	f := Filter{
		Priorities: []Priority{PriorityHigh},
		Executors:  []string{"Alice"},
		MatchAll:   true,
	}
	got := ids(View(filterBoard(), f))
	// Only c is both high priority and Alice's.
	if want := []string{"c"}; !equalIDs(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestViewSingleDimensionIgnoresMatchAll(t *testing.T) {
	for _, matchAll := range []bool{false, true} {
		f := Filter{Executors: []string{"Alice"}, MatchAll: matchAll}
		got := ids(View(filterBoard(), f))
		if want := []string{"a", "c"}; !equalIDs(got, want) {
			t.Fatalf("matchAll=%v: got %v, want %v", matchAll, got, want)
		}
	}
}

func TestViewSortOrders(t *testing.T) {
	tests := []struct {
		sort SortOrder
		want []string
	}{
		{SortCreatedAsc, []string{"a", "b", "c", "d"}},
		{SortPriorityAsc, []string{"a", "b", "c", "d"}},
		{SortPriorityDesc, []string{"c", "d", "b", "a"}},
		{SortNormalFirst, []string{"b", "a", "c", "d"}},
	}
	for _, tt := range tests {
		got := ids(View(filterBoard(), Filter{Sort: tt.sort}))
		if !equalIDs(got, tt.want) {
			t.Fatalf("sort %s: got %v, want %v", tt.sort, got, tt.want)
		}
	}
}

func TestViewSortIsStableWithinBucket(t *testing.T) {
	b := Board{Sections: []Section{{ID: "s", Cards: []Card{
		{ID: "h1", Priority: PriorityHigh, SectionID: "s"},
		{ID: "n1", Priority: PriorityNormal, SectionID: "s"},
		{ID: "l1", Priority: PriorityLow, SectionID: "s"},
		{ID: "n2", Priority: PriorityNormal, SectionID: "s"},
	}}}}
	got := ids(View(b, Filter{Sort: SortNormalFirst}))
	if want := []string{"n1", "n2", "l1", "h1"}; !equalIDs(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestViewDoesNotMutateBoard(t *testing.T) {
	b := filterBoard()
	got := View(b, Filter{Sort: SortPriorityDesc})
	got[0].Title = "mutated"
	got[0].Assignees = append(got[0].Assignees, UserLite{ID: "x"})
	if b.Sections[1].Cards[0].Title != "C" {
		t.Fatal("view mutation leaked into source board")
	}
	if b.Sections[0].Cards[0].ID != "a" || b.Sections[0].Cards[1].ID != "b" {
		t.Fatal("sorting reordered the source board")
	}
}
