package steps

import (
	"context"
	"errors"
	"testing"

	"github.com/crystaldolphin/outpipe/internal/config"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

const providerFailure = "请求失败: Error code 500"

func TestError_IgnoreMode(t *testing.T) {
	cfg := config.DefaultConfig().Error
	cfg.Mode = config.ErrorModeIgnore
	s := newErrorStep(cfg, "10001", testEnv())
	pc := newContext(schema.NewTextMessage(providerFailure))

	if res := s.Handle(context.Background(), pc); res.Abort {
		t.Fatal("ignore mode must not abort")
	}
	if pc.Message.PlainText() != providerFailure {
		t.Error("ignore mode must not touch the message")
	}
}

func TestError_BlockMode(t *testing.T) {
	s := newErrorStep(config.DefaultConfig().Error, "", testEnv())
	pc := newContext(schema.NewTextMessage(providerFailure))

	res := s.Handle(context.Background(), pc)
	if !res.Abort || !pc.Message.IsEmpty() {
		t.Fatalf("expected block to clear and abort, got abort=%v msg=%q", res.Abort, pc.Message.PlainText())
	}
}

func TestError_BlockModeCustomMessage(t *testing.T) {
	cfg := config.DefaultConfig().Error
	cfg.CustomMsg = "我有点累了，稍后再聊"
	s := newErrorStep(cfg, "", testEnv())
	pc := newContext(schema.NewTextMessage(providerFailure))

	if res := s.Handle(context.Background(), pc); res.Abort {
		t.Fatal("custom message must let the run continue")
	}
	if got := pc.Message.PlainText(); got != cfg.CustomMsg {
		t.Errorf("expected custom message, got %q", got)
	}
}

func TestError_NoKeyword(t *testing.T) {
	s := newErrorStep(config.DefaultConfig().Error, "", testEnv())
	pc := newContext(schema.NewTextMessage("一切正常"))
	if res := s.Handle(context.Background(), pc); res.Abort {
		t.Error("unexpected abort")
	}
}

func TestError_ForwardToAdmin(t *testing.T) {
	cfg := config.DefaultConfig().Error
	cfg.Mode = config.ErrorModeForward
	s := newErrorStep(cfg, "10001", testEnv())
	ch := &fakeChannel{}
	pc := newContext(schema.NewTextMessage(providerFailure))
	pc.Channel = ch

	res := s.Handle(context.Background(), pc)
	if !res.Abort || !pc.Message.IsEmpty() {
		t.Fatal("expected forward to clear and abort")
	}
	sent := ch.sends()
	if len(sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sent))
	}
	if sent[0].conversation != schema.PrivateConversation("10001") {
		t.Errorf("expected private send to admin, got %q", sent[0].conversation)
	}
	if sent[0].msg.PlainText() != providerFailure {
		t.Errorf("expected original text forwarded, got %q", sent[0].msg.PlainText())
	}
}

func TestError_ForwardFailureStillSuppresses(t *testing.T) {
	cfg := config.DefaultConfig().Error
	cfg.Mode = config.ErrorModeForward
	s := newErrorStep(cfg, "10001", testEnv())
	pc := newContext(schema.NewTextMessage(providerFailure))
	pc.Channel = &fakeChannel{sendErr: errors.New("offline")}

	if res := s.Handle(context.Background(), pc); !res.Abort || !pc.Message.IsEmpty() {
		t.Error("expected reply suppressed even when forwarding fails")
	}
}

func TestError_ForwardWithoutAdmin(t *testing.T) {
	cfg := config.DefaultConfig().Error
	cfg.Mode = config.ErrorModeForward
	s := newErrorStep(cfg, "", testEnv())
	ch := &fakeChannel{}
	pc := newContext(schema.NewTextMessage(providerFailure))
	pc.Channel = ch

	if res := s.Handle(context.Background(), pc); res.Abort {
		t.Fatal("missing admin must not abort")
	}
	if len(ch.sends()) != 0 || pc.Message.PlainText() != providerFailure {
		t.Error("expected message untouched without admin")
	}
}
