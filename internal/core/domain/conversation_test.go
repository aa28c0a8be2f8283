package domain

import (
	"fmt"
	"sync"
	"testing"
)

func turnN(n int) Turn {
	return Turn{ID: fmt.Sprintf("t%d", n), Question: fmt.Sprintf("q%d", n)}
}

func TestConversationEvictsOldestTurnBeyondWindow(t *testing.T) {
	conv := NewConversation("s", 3)
	for i := 1; i <= 5; i++ {
		conv.Append(turnN(i))
	}
	if conv.Len() != 3 {
		t.Fatalf("expected 3 turns, got %d", conv.Len())
	}
	turns := conv.Turns()
	if turns[0].ID != "t3" || turns[2].ID != "t5" {
		t.Fatalf("expected t3..t5, got %s..%s", turns[0].ID, turns[2].ID)
	}
	last, ok := conv.Last()
	if !ok || last.ID != "t5" {
		t.Fatalf("expected last t5, got %+v", last)
	}
}

func TestConversationRecentAndClear(t *testing.T) {
	conv := NewConversation("s", 0)
	if conv.Window() != DefaultConversationWindow {
		t.Fatalf("expected default window, got %d", conv.Window())
	}
	if conv.Recent(2) != nil {
		t.Fatalf("expected no recent turns for empty conversation")
	}
	for i := 1; i <= 3; i++ {
		conv.Append(turnN(i))
	}
	recent := conv.Recent(2)
	if len(recent) != 2 || recent[0].ID != "t2" || recent[1].ID != "t3" {
		t.Fatalf("unexpected recent turns %+v", recent)
	}
	if len(conv.Recent(10)) != 3 {
		t.Fatalf("expected all turns when n exceeds length")
	}

	conv.Clear()
	if conv.Len() != 0 {
		t.Fatalf("expected empty conversation after Clear")
	}
	if _, ok := conv.Last(); ok {
		t.Fatalf("expected no last turn after Clear")
	}
}

func TestConversationAppendCopiesSlices(t *testing.T) {
	conv := NewConversation("s", 5)
	turn := Turn{ID: "t", PassageIDs: []string{"a"}, Plan: QueryPlan{Filter: Filter{Companies: []Company{CompanyBMW}}}}
	conv.Append(turn)
	turn.PassageIDs[0] = "mutated"
	turn.Plan.Filter.Companies[0] = CompanyFord

	stored, _ := conv.Last()
	if stored.PassageIDs[0] != "a" || stored.Plan.Filter.Companies[0] != CompanyBMW {
		t.Fatalf("stored turn must not alias caller slices, got %+v", stored)
	}
}

func TestSessionExclusiveSerializesAppends(t *testing.T) {
	session := NewSession("s", 1000)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = session.Exclusive(func(conv *Conversation) error {
				conv.Append(turnN(i))
				return nil
			})
		}(i)
	}
	wg.Wait()
	if got := len(session.History()); got != 50 {
		t.Fatalf("expected 50 turns, got %d", got)
	}
	session.Clear()
	if len(session.History()) != 0 {
		t.Fatalf("expected empty history after Clear")
	}
}
