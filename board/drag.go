package board

import (
	"context"

	"taskboard/domain"
)

// TargetKind names what a drag gesture ended on.
type TargetKind string

const (
	// TargetSection means the drop landed on a section's drop zone.
	TargetSection TargetKind = "section"
	// TargetCard means the drop landed on another card. Card targets are
	// rejected: drops are only valid directly on a section.
	TargetCard TargetKind = "card"
	// TargetNone means the drop landed outside any drop zone.
	TargetNone TargetKind = "none"
)

// DropTarget identifies whatever sat under the pointer when the drag ended.
type DropTarget struct {
	Kind TargetKind
	ID   string
}

// DropEvent is the gesture-library-agnostic end state of a drag: which card
// was dragged and what it was dropped on.
type DropEvent struct {
	CardID string
	Target DropTarget
}

// Move is a resolved inter-section relocation.
type Move struct {
	CardID string
	From   string
	To     string
}

// ResolveDrop turns a drop event into a move, or reports that no mutation
// should be issued. The card's current section is found by scanning all
// sections; dropping onto a card, onto nothing, onto an unknown section or
// back onto the source section all resolve to a deliberate no-op.
// Intra-section reordering is not supported: position is insertion order,
// append-on-move.
func ResolveDrop(b domain.Board, ev DropEvent) (Move, bool) {
	if ev.Target.Kind != TargetSection || ev.Target.ID == "" {
		return Move{}, false
	}
	current := b.SectionOf(ev.CardID)
	if current == nil {
		return Move{}, false
	}
	if b.Section(ev.Target.ID) == nil {
		return Move{}, false
	}
	if current.ID == ev.Target.ID {
		return Move{}, false
	}
	return Move{CardID: ev.CardID, From: current.ID, To: ev.Target.ID}, true
}

// HandleDrop applies ResolveDrop against the live board and issues the
// move mutation only when one is warranted. No-op resolutions return nil
// without any remote call.
func (s *Store) HandleDrop(ctx context.Context, ev DropEvent) error {
	move, ok := ResolveDrop(s.board, ev)
	if !ok {
		return nil
	}
	return s.MoveCard(ctx, move.CardID, move.To)
}
