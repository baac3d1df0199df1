package host

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/bus"
	"github.com/crystaldolphin/outpipe/internal/channels"
	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/metrics"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/schema"
	"github.com/crystaldolphin/outpipe/internal/state"
	"github.com/crystaldolphin/outpipe/internal/steps"
)

type fixedRand float64

func (r fixedRand) Float64() float64 { return float64(r) }

// syncBuffer is a bytes.Buffer safe to read while deliveries write to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

type fixture struct {
	host    *Host
	states  *state.Store
	bus     *bus.MessageBus
	out     *syncBuffer
	console *channels.ConsoleChannel
}

// newFixture wires the default pipeline to a console channel writing to a buffer.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithSleeper(t, func(context.Context, time.Duration) error { return nil })
}

func newFixtureWithSleeper(t *testing.T, sleep steps.Sleeper) *fixture {
	t.Helper()
	cfg := config.DefaultConfig()
	store := config.NewStore(&cfg, t.TempDir()+"/config.yaml")

	reg, err := steps.NewRegistry(steps.Deps{Config: store},
		steps.WithRand(fixedRand(0.99)),
		steps.WithSleeper(sleep),
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	p, err := pipeline.Build(cfg.Pipeline, reg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	b := bus.NewMessageBus(8)
	out := &syncBuffer{}
	console := channels.NewConsoleChannel(b, strings.NewReader(""), out, zerolog.Nop())
	mgr := channels.NewManager(&cfg, b, zerolog.Nop())
	mgr.Register(console)

	states := state.NewStore(state.Limits{})
	return &fixture{
		host:    New(p, states, mgr, metrics.New(), zerolog.Nop()),
		states:  states,
		bus:     b,
		out:     out,
		console: console,
	}
}

func TestObserve_RecordsInboundAndNickname(t *testing.T) {
	f := newFixture(t)
	msg := bus.NewInboundMessage(bus.ChannelOneBot, "1001", "g1", "你好")
	msg.SetSenderName("小明")
	msg.SetMessageId("m1")
	f.host.Observe(msg)

	conv := f.states.Conversation("onebot:g1")
	if id, ok := conv.LookupNickname("小明"); !ok || id != "1001" {
		t.Errorf("expected nickname mapped to 1001, got %q %v", id, ok)
	}
	if n, ok := conv.InboundBacklog("m1"); !ok || n != 0 {
		t.Errorf("expected m1 tracked with no backlog, got %d %v", n, ok)
	}
}

func TestDeliver_SplitsAndSends(t *testing.T) {
	f := newFixture(t)
	job := bus.NewOutboundMessage(bus.ChannelConsole, channels.ConsoleChatID, "今天天气真好。你觉得呢？")
	job.SetLLM(true)

	delivered, err := f.host.Deliver(context.Background(), job)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !delivered {
		t.Fatal("expected reply to be delivered")
	}
	want := "bot #1: 今天天气真好\nbot #2: 你觉得呢？\n"
	if f.out.String() != want {
		t.Errorf("unexpected output:\n%q\nwant:\n%q", f.out.String(), want)
	}
	conv := f.states.Conversation("console:console")
	if got := conv.RecentBotTexts(); len(got) != 1 {
		t.Errorf("expected the reply recorded once, got %q", got)
	}
}

func TestDeliver_ErrorReplySuppressed(t *testing.T) {
	f := newFixture(t)
	job := bus.NewOutboundMessage(bus.ChannelConsole, channels.ConsoleChatID, "API Error: 500")

	delivered, err := f.host.Deliver(context.Background(), job)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if delivered {
		t.Error("expected error reply to be suppressed")
	}
	if f.out.Len() != 0 {
		t.Errorf("expected nothing sent, got %q", f.out.String())
	}
}

func TestDeliver_UnknownChannel(t *testing.T) {
	f := newFixture(t)
	_, err := f.host.Deliver(context.Background(), bus.NewOutboundMessage(bus.ChannelSlack, "C1", "hi"))
	if err == nil {
		t.Fatal("expected error for unregistered channel")
	}
}

func TestRun_ProcessesBus(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.host.Run(ctx, f.bus) }()

	in := bus.NewInboundMessage(bus.ChannelConsole, "1001", channels.ConsoleChatID, "在吗")
	in.SetSenderName("小明")
	if err := f.bus.PublishInbound(ctx, in); err != nil {
		t.Fatalf("publish inbound: %v", err)
	}
	job := bus.NewOutboundMessage(bus.ChannelConsole, channels.ConsoleChatID, "在的")
	job.SetLLM(true)
	if err := f.bus.PublishOutbound(ctx, job); err != nil {
		t.Fatalf("publish outbound: %v", err)
	}

	conv := f.states.Conversation("console:console")
	deadline := time.Now().Add(2 * time.Second)
	for len(conv.RecentBotTexts()) == 0 || conv.NicknameCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("bus messages were not processed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// waitOutput polls the console output until it contains want.
func waitOutput(t *testing.T, f *fixture, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(f.out.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %q, output so far:\n%s", want, f.out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startHost(t *testing.T, f *fixture) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.host.Run(ctx, f.bus) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctx
}

func TestRun_PacingDoesNotBlockOtherConversations(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f := newFixtureWithSleeper(t, func(ctx context.Context, _ time.Duration) error {
		once.Do(func() { close(entered) })
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	ctx := startHost(t, f)

	slow := bus.NewOutboundMessage(bus.ChannelConsole, channels.ConsoleChatID, "第一句。第二句。")
	slow.SetLLM(true)
	if err := f.bus.PublishOutbound(ctx, slow); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("split step never paused")
	}

	other := bus.NewOutboundMessage(bus.ChannelConsole, "room-b", "在的")
	other.SetLLM(true)
	if err := f.bus.PublishOutbound(ctx, other); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitOutput(t, f, "-> room-b: 在的")
	if strings.Contains(f.out.String(), "第二句") {
		t.Fatal("second segment sent before the pause ended")
	}

	close(release)
	waitOutput(t, f, "第二句")
}

func TestRun_KeepsOrderWithinConversation(t *testing.T) {
	f := newFixture(t)
	ctx := startHost(t, f)

	for _, text := range []string{"一号回复", "二号回复", "三号回复"} {
		job := bus.NewOutboundMessage(bus.ChannelConsole, channels.ConsoleChatID, text)
		job.SetLLM(true)
		if err := f.bus.PublishOutbound(ctx, job); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	waitOutput(t, f, "三号回复")

	out := f.out.String()
	first, second, third := strings.Index(out, "一号回复"), strings.Index(out, "二号回复"), strings.Index(out, "三号回复")
	if first < 0 || !(first < second && second < third) {
		t.Errorf("expected replies in publish order, got:\n%s", out)
	}
}

var _ ChannelLookup = (*channels.Manager)(nil)
var _ schema.Channel = (*channels.ConsoleChannel)(nil)
