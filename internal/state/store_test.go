package state

import (
	"fmt"
	"sync"
	"testing"
)

func TestStore_ConversationIsLazyAndShared(t *testing.T) {
	s := NewStore(Limits{})
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
	a := s.Conversation("g1")
	b := s.Conversation("g1")
	if a != b {
		t.Fatal("expected the same conversation for the same id")
	}
	if s.Conversation("g2") == a {
		t.Fatal("expected distinct conversations for distinct ids")
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 conversations, got %d", s.Len())
	}
}

func TestConversation_BotTextsEvictOldest(t *testing.T) {
	c := NewStore(Limits{BotTexts: 3}).Conversation("g")
	for i := 0; i < 4; i++ {
		c.RecordBotText(fmt.Sprintf("t%d", i))
	}
	if c.SentRecently("t0") {
		t.Error("expected t0 to be evicted")
	}
	for _, want := range []string{"t1", "t2", "t3"} {
		if !c.SentRecently(want) {
			t.Errorf("expected %q to be remembered", want)
		}
	}
	got := c.RecentBotTexts()
	if len(got) != 3 || got[0] != "t1" || got[2] != "t3" {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestConversation_InboundBacklog(t *testing.T) {
	c := NewStore(Limits{InboundIDs: 10}).Conversation("g")
	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		c.RecordInbound(id)
	}
	pushed, ok := c.InboundBacklog("m2")
	if !ok || pushed != 2 {
		t.Errorf("expected backlog 2 for m2, got %d (ok=%v)", pushed, ok)
	}
	if _, ok := c.InboundBacklog("missing"); ok {
		t.Error("expected untracked id to report ok=false")
	}
	c.ClearInbound()
	if _, ok := c.InboundBacklog("m4"); ok {
		t.Error("expected queue to be cleared")
	}
}

func TestConversation_NicknameCapacityEvictsFirstInserted(t *testing.T) {
	c := NewStore(DefaultLimits()).Conversation("g")
	for i := 0; i < 100; i++ {
		c.RememberNickname(fmt.Sprintf("name%d", i), fmt.Sprintf("%d", 1000+i))
	}
	// Overwriting must not refresh the eviction position.
	c.RememberNickname("name0", "9999")
	if id, _ := c.LookupNickname("name0"); id != "9999" {
		t.Fatalf("expected overwritten id 9999, got %q", id)
	}

	c.RememberNickname("name100", "1100")
	if c.NicknameCount() != 100 {
		t.Fatalf("expected capacity to hold at 100, got %d", c.NicknameCount())
	}
	if _, ok := c.LookupNickname("name0"); ok {
		t.Error("expected the first inserted nickname to be evicted")
	}
	if _, ok := c.LookupNickname("name1"); !ok {
		t.Error("expected name1 to survive")
	}
	if id, ok := c.LookupNickname("name100"); !ok || id != "1100" {
		t.Errorf("expected name100 -> 1100, got %q (ok=%v)", id, ok)
	}
}

func TestConversation_OverwriteKeepsEvictionPosition(t *testing.T) {
	c := NewStore(Limits{Nicknames: 2}).Conversation("g")
	c.RememberNickname("a", "1")
	c.RememberNickname("b", "2")
	c.RememberNickname("a", "9")
	c.RememberNickname("c", "3")
	if _, ok := c.LookupNickname("a"); ok {
		t.Error("expected a to be evicted first despite the overwrite")
	}
	if id, ok := c.LookupNickname("b"); !ok || id != "2" {
		t.Errorf("expected b to survive, got %q %v", id, ok)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(DefaultLimits())
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := s.Conversation(fmt.Sprintf("g%d", i%4))
			c.RecordBotText("hello")
			c.RecordInbound(fmt.Sprintf("m%d", i))
			c.RememberNickname(fmt.Sprintf("n%d", i), "1")
		}(i)
	}
	wg.Wait()
	if s.Len() != 4 {
		t.Errorf("expected 4 conversations, got %d", s.Len())
	}
}
