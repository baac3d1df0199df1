package channels

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/bus"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

func TestConsole_REPL(t *testing.T) {
	b := bus.NewMessageBus(8)
	in := strings.NewReader(":in 1001 小明 你好\n好的\\n再见\n:in broken\nexit\nignored\n")
	var out bytes.Buffer
	ch := NewConsoleChannel(b, in, &out, zerolog.Nop())

	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if b.InboundSize() != 1 {
		t.Fatalf("expected 1 inbound message, got %d", b.InboundSize())
	}
	msg := <-b.InboundChan()
	if msg.Content() != "你好" || msg.SenderName() != "小明" || msg.MessageId() != "in-1" {
		t.Errorf("unexpected inbound %q %q %q", msg.Content(), msg.SenderName(), msg.MessageId())
	}
	if msg.RoutingKey() != "console:console" {
		t.Errorf("unexpected routing key %q", msg.RoutingKey())
	}

	if b.OutboundSize() != 1 {
		t.Fatalf("expected 1 reply job, got %d", b.OutboundSize())
	}
	job := <-b.OutboundChan()
	if job.Content() != "好的\n再见" {
		t.Errorf("expected escaped newline to be expanded, got %q", job.Content())
	}
	if !job.IsLLM() || job.ReplyTo() != "in-1" || job.SenderId() != "1001" {
		t.Errorf("unexpected job llm=%v replyTo=%q sender=%q", job.IsLLM(), job.ReplyTo(), job.SenderId())
	}
	if !strings.Contains(out.String(), "usage: :in") {
		t.Errorf("expected usage hint for bad :in, got %q", out.String())
	}
}

func TestConsole_SendAndDelete(t *testing.T) {
	var out bytes.Buffer
	ch := NewConsoleChannel(bus.NewMessageBus(1), strings.NewReader(""), &out, zerolog.Nop())
	ctx := context.Background()

	msg := schema.NewMessage(
		&schema.QuoteRef{MessageID: "in-1"},
		schema.NewMention("1001"),
		schema.NewText(schema.ZeroWidthSpace+"hi"+schema.ZeroWidthSpace),
		&schema.Image{Ref: "a.png"},
	)
	r, err := ch.SendMessage(ctx, ConsoleChatID, msg)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if r.MessageID != "1" || r.Platform != "console" {
		t.Errorf("unexpected receipt %+v", r)
	}
	if _, err := ch.SendMessage(ctx, schema.PrivateConversation("10001"), schema.NewTextMessage("err")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := ch.DeleteMessage(ctx, r); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := "bot #1: [reply #in-1] @1001 hi[image a.png]\n" +
		"bot #2 -> private:10001: err\n" +
		"bot: (recalled #1)\n"
	if out.String() != want {
		t.Errorf("unexpected output:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestConsole_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// A reader that never returns data must not block Start past cancellation.
	ch := NewConsoleChannel(bus.NewMessageBus(1), blockingReader{}, &bytes.Buffer{}, zerolog.Nop())
	if err := ch.Start(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) { select {} }
