package steps

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

func newTestStore(t *testing.T) *config.Store {
	t.Helper()
	cfg := config.DefaultConfig()
	return config.NewStore(&cfg, filepath.Join(t.TempDir(), "config.yaml"))
}

func TestForward_WrapsLongReply(t *testing.T) {
	store := newTestStore(t)
	s := newForwardStep(config.ForwardConfig{Threshold: 10}, store, testEnv())
	ch := &richChannel{selfName: "小海豚"}
	long := strings.Repeat("很长的回复", 5)
	pc := newContext(schema.NewMessage(schema.NewMention("42"), schema.NewText(long)))
	pc.Channel = ch

	s.Handle(context.Background(), pc)

	assertKinds(t, pc.Message.Segments, schema.KindForward)
	group := pc.Message.Segments[0].(*schema.ForwardGroup)
	if len(group.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(group.Nodes))
	}
	node := group.Nodes[0]
	if node.UserID != "10000" || node.Name != "小海豚" {
		t.Errorf("unexpected node identity %s/%s", node.UserID, node.Name)
	}
	assertKinds(t, node.Content, schema.KindMention, schema.KindText)

	if got := store.Config().Forward.NodeName; got != "小海豚" {
		t.Errorf("expected resolved name stored, got %q", got)
	}
	saved, err := config.Load(store.Path())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if saved.Forward.NodeName != "小海豚" {
		t.Errorf("expected resolved name persisted, got %q", saved.Forward.NodeName)
	}
}

func TestForward_ConfiguredNameWins(t *testing.T) {
	s := newForwardStep(config.ForwardConfig{Threshold: 1, NodeName: "助手"}, nil, testEnv())
	pc := newContext(schema.NewTextMessage("超过阈值"))
	pc.Channel = &richChannel{selfName: "小海豚"}

	s.Handle(context.Background(), pc)

	group := pc.Message.Segments[0].(*schema.ForwardGroup)
	if group.Nodes[0].Name != "助手" {
		t.Errorf("expected configured name, got %q", group.Nodes[0].Name)
	}
}

func TestForward_FallbackName(t *testing.T) {
	s := newForwardStep(config.ForwardConfig{Threshold: 1}, nil, testEnv())
	pc := newContext(schema.NewTextMessage("超过阈值"))
	pc.Channel = &richChannel{}

	s.Handle(context.Background(), pc)

	group := pc.Message.Segments[0].(*schema.ForwardGroup)
	if group.Nodes[0].Name != "Bot" {
		t.Errorf("expected fallback name, got %q", group.Nodes[0].Name)
	}
}

func TestForward_ShortOrUnsupported(t *testing.T) {
	s := newForwardStep(config.ForwardConfig{Threshold: 10}, nil, testEnv())

	pc := newContext(schema.NewTextMessage("短"))
	pc.Channel = &richChannel{}
	s.Handle(context.Background(), pc)
	assertKinds(t, pc.Message.Segments, schema.KindText)

	pc = newContext(schema.NewTextMessage(strings.Repeat("长", 20)))
	pc.Channel = &fakeChannel{}
	s.Handle(context.Background(), pc)
	assertKinds(t, pc.Message.Segments, schema.KindText)

	pc = newContext(schema.NewMessage(schema.NewText(strings.Repeat("长", 20)), &schema.Image{Ref: "a.png"}))
	pc.Channel = &richChannel{}
	s.Handle(context.Background(), pc)
	assertKinds(t, pc.Message.Segments, schema.KindText, schema.KindImage)
}

// nameLookupChannel runs onLookup inside SelfName.
type nameLookupChannel struct {
	richChannel
	onLookup func()
}

func (n *nameLookupChannel) SelfName(context.Context) (string, error) {
	n.onLookup()
	return "小海豚", nil
}

func TestForward_NameLookupRunsUnlocked(t *testing.T) {
	store := newTestStore(t)
	s := newForwardStep(config.ForwardConfig{Threshold: 1}, store, testEnv())
	ch := &nameLookupChannel{}
	ch.onLookup = func() {
		if !s.mu.TryLock() {
			t.Error("step lock held during name lookup")
			return
		}
		s.mu.Unlock()
	}
	pc := newContext(schema.NewTextMessage("超过阈值"))
	pc.Channel = ch

	s.Handle(context.Background(), pc)

	if got := store.Config().Forward.NodeName; got != "小海豚" {
		t.Errorf("expected resolved name stored, got %q", got)
	}

	// A second reply reuses the cached name.
	ch.onLookup = func() { t.Error("name resolved twice") }
	pc = newContext(schema.NewTextMessage("超过阈值"))
	pc.Channel = ch
	s.Handle(context.Background(), pc)
	if got := pc.Message.Segments[0].(*schema.ForwardGroup).Nodes[0].Name; got != "小海豚" {
		t.Errorf("expected cached name, got %q", got)
	}
}
