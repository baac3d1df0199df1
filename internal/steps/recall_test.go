package steps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/recall"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

func waitDeleted(t *testing.T, ch *fakeChannel, n int) []schema.Receipt {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ch.mu.Lock()
		got := append([]schema.Receipt(nil), ch.deleted...)
		ch.mu.Unlock()
		if len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d deletions before deadline", n)
	return nil
}

func TestRecall_KeywordSendsAndSchedules(t *testing.T) {
	tracker := recall.NewTracker(zerolog.Nop(), nil)
	defer tracker.Close()
	s := newRecallStep(config.RecallConfig{Keywords: []string{"秘密"}}, tracker, testEnv())
	ch := &fakeChannel{}
	pc := newContext(schema.NewTextMessage("这是秘密"))
	pc.Channel = ch

	res := s.Handle(context.Background(), pc)
	if res.Abort {
		t.Fatal("recall must not abort")
	}
	if !pc.Message.IsEmpty() {
		t.Error("expected message cleared after self-send")
	}
	if len(ch.sends()) != 1 {
		t.Fatalf("expected 1 send, got %d", len(ch.sends()))
	}

	deleted := waitDeleted(t, ch, 1)
	if deleted[0].MessageID != "1" || deleted[0].ConversationID != "g1" {
		t.Errorf("unexpected deletion %+v", deleted[0])
	}
}

func TestRecall_ImagesOnlyWhenEnabled(t *testing.T) {
	tracker := recall.NewTracker(zerolog.Nop(), nil)
	defer tracker.Close()

	off := newRecallStep(config.RecallConfig{Delay: 60}, tracker, testEnv())
	pc := newContext(schema.NewMessage(&schema.Image{Ref: "a.png"}))
	pc.Channel = &fakeChannel{}
	off.Handle(context.Background(), pc)
	if pc.Message.IsEmpty() {
		t.Fatal("image recall must be opt-in")
	}

	on := newRecallStep(config.RecallConfig{Delay: 60, RecallImages: true}, tracker, testEnv())
	on.Handle(context.Background(), pc)
	if !pc.Message.IsEmpty() {
		t.Fatal("expected image reply handled by recall")
	}
	if tracker.Pending() != 1 {
		t.Errorf("expected 1 pending recall, got %d", tracker.Pending())
	}
}

func TestRecall_SendFailure(t *testing.T) {
	tracker := recall.NewTracker(zerolog.Nop(), nil)
	defer tracker.Close()
	s := newRecallStep(config.RecallConfig{Keywords: []string{"秘密"}}, tracker, testEnv())
	pc := newContext(schema.NewTextMessage("这是秘密"))
	pc.Channel = &fakeChannel{sendErr: errors.New("offline")}

	res := s.Handle(context.Background(), pc)
	if res.Abort || !pc.Message.IsEmpty() {
		t.Errorf("expected cleared message without abort, got abort=%v", res.Abort)
	}
	if tracker.Pending() != 0 {
		t.Errorf("expected nothing scheduled, got %d", tracker.Pending())
	}
}

func TestRecall_TerminateCancelsPending(t *testing.T) {
	s := newRecallStep(config.RecallConfig{Keywords: []string{"秘密"}, Delay: 3600}, nil, testEnv())
	ch := &fakeChannel{}
	pc := newContext(schema.NewTextMessage("这是秘密"))
	pc.Channel = ch

	s.Handle(context.Background(), pc)
	if err := s.Terminate(context.Background()); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if len(ch.deleted) != 0 {
		t.Errorf("expected cancelled recall, got %d deletions", len(ch.deleted))
	}
}
