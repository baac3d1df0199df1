package steps

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/schema"
	"github.com/crystaldolphin/outpipe/internal/state"
)

// fixedRand always returns the same draw.
type fixedRand float64

func (r fixedRand) Float64() float64 { return float64(r) }

type sentMessage struct {
	conversation string
	msg          *schema.Message
}

// fakeChannel records sends and deletions.
type fakeChannel struct {
	mu       sync.Mutex
	sent     []sentMessage
	deleted  []schema.Receipt
	sendErr  error
	failFrom int // fail sends with index >= failFrom when > 0
}

func (f *fakeChannel) Name() string { return "fake" }

func (f *fakeChannel) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (f *fakeChannel) SendMessage(_ context.Context, conversationID string, msg *schema.Message) (schema.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sent)
	f.sent = append(f.sent, sentMessage{conversation: conversationID, msg: msg.Clone()})
	if f.sendErr != nil && (f.failFrom == 0 || n >= f.failFrom) {
		return schema.Receipt{}, f.sendErr
	}
	return schema.Receipt{Platform: "fake", ConversationID: conversationID, MessageID: strconv.Itoa(n + 1)}, nil
}

func (f *fakeChannel) DeleteMessage(_ context.Context, r schema.Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, r)
	return nil
}

func (f *fakeChannel) sends() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// richChannel adds the optional OneBot-style capabilities.
type richChannel struct {
	fakeChannel
	selfName string
	audioRef string
	ttsErr   error
	lastTTS  string
	voice    schema.VoiceProfile
}

func (r *richChannel) SupportsForward() bool { return true }

func (r *richChannel) SelfName(context.Context) (string, error) { return r.selfName, nil }

func (r *richChannel) TextToSpeech(_ context.Context, text string, voice schema.VoiceProfile) (string, error) {
	r.lastTTS, r.voice = text, voice
	return r.audioRef, r.ttsErr
}

// recordingSleeper captures requested delays without waiting.
type recordingSleeper struct {
	delays []time.Duration
	err    error
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	if s.err != nil {
		return s.err
	}
	return ctx.Err()
}

func testEnv(opts ...Option) *env {
	return newEnv(append([]Option{WithRand(fixedRand(0.5)), WithSleeper(func(context.Context, time.Duration) error { return nil })}, opts...))
}

func newContext(msg *schema.Message) *pipeline.Context {
	return &pipeline.Context{
		RunID:          "run",
		Platform:       "onebot",
		ConversationID: "g1",
		SenderID:       "42",
		SenderName:     "阿明",
		SelfID:         "10000",
		IsLLM:          true,
		Plain:          msg.PlainText(),
		Message:        msg,
		State:          state.NewStore(state.Limits{}).Conversation("g1"),
	}
}

// texts returns the Text contents of segs with zero-width spaces removed.
func texts(segs []schema.Segment) []string {
	var out []string
	for _, seg := range segs {
		if t, ok := seg.(*schema.Text); ok {
			out = append(out, strings.ReplaceAll(t.Content, schema.ZeroWidthSpace, ""))
		}
	}
	return out
}

func kinds(segs []schema.Segment) []schema.SegmentKind {
	out := make([]schema.SegmentKind, len(segs))
	for i, seg := range segs {
		out[i] = seg.Kind()
	}
	return out
}

func assertKinds(t *testing.T, segs []schema.Segment, want ...schema.SegmentKind) {
	t.Helper()
	got := kinds(segs)
	if len(got) != len(want) {
		t.Fatalf("expected kinds %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected kinds %v, got %v", want, got)
		}
	}
}
