// Package host connects the bus to the pipeline: inbound events feed the
// conversation state, reply jobs are post-processed and delivered.
package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/outpipe/internal/bus"
	"github.com/crystaldolphin/outpipe/internal/metrics"
	"github.com/crystaldolphin/outpipe/internal/pipeline"
	"github.com/crystaldolphin/outpipe/internal/schema"
	"github.com/crystaldolphin/outpipe/internal/state"
)

// ChannelLookup finds the adapter for a platform name.
type ChannelLookup interface {
	Get(name string) (schema.Channel, bool)
}

// selfIdentified is implemented by adapters that know the bot's account id.
type selfIdentified interface {
	SelfID() string
}

// Host runs reply jobs through the pipeline. Jobs for one conversation are
// delivered in order; different conversations are delivered concurrently.
type Host struct {
	pipeline *pipeline.Pipeline
	states   *state.Store
	channels ChannelLookup
	metrics  *metrics.Metrics
	log      zerolog.Logger

	lanesMu sync.Mutex
	lanes   map[string][]bus.OutboundMessage // routing key -> queued jobs; present while a worker drains it
}

// New creates a Host. m may be nil.
func New(p *pipeline.Pipeline, states *state.Store, channels ChannelLookup, m *metrics.Metrics, log zerolog.Logger) *Host {
	return &Host{
		pipeline: p,
		states:   states,
		channels: channels,
		metrics:  m,
		log:      log.With().Str("component", "host").Logger(),
		lanes:    make(map[string][]bus.OutboundMessage),
	}
}

// Observe records an inbound message in its conversation: the id feeds the
// reply step's backlog and the sender's name feeds mention resolution.
func (h *Host) Observe(msg bus.InboundMessage) {
	conv := h.states.Conversation(msg.RoutingKey())
	if msg.MessageId() != "" {
		conv.RecordInbound(msg.MessageId())
	}
	if msg.SenderName() != "" && msg.SenderId() != "" {
		conv.RememberNickname(msg.SenderName(), msg.SenderId())
	}
	h.metrics.RecordInbound(string(msg.Channel()))
	h.metrics.SetConversations(h.states.Len())
	h.log.Debug().Str("conversation", msg.RoutingKey()).Str("sender", msg.SenderId()).Str("preview", msg.Preview()).Msg("inbound")
}

// Deliver post-processes job and sends what is left of it.
// It reports false when a step suppressed the reply.
func (h *Host) Deliver(ctx context.Context, job bus.OutboundMessage) (bool, error) {
	ch, ok := h.channels.Get(string(job.Channel()))
	if !ok {
		return false, fmt.Errorf("host: no channel %q", job.Channel())
	}

	msg := job.Message()
	conv := h.states.Conversation(job.RoutingKey())
	h.metrics.SetConversations(h.states.Len())
	pc := &pipeline.Context{
		RunID:            uuid.NewString(),
		Platform:         ch.Name(),
		ConversationID:   job.ChatId(),
		SenderID:         job.SenderId(),
		SenderName:       job.SenderName(),
		InboundMessageID: job.ReplyTo(),
		IsLLM:            job.IsLLM(),
		Plain:            msg.PlainText(),
		Timestamp:        job.Timestamp(),
		Message:          msg,
		State:            conv,
		Channel:          ch,
	}
	if s, ok := ch.(selfIdentified); ok {
		pc.SelfID = s.SelfID()
	}

	delivered := h.pipeline.Run(ctx, pc)
	h.log.Debug().
		Str("run_id", pc.RunID).
		Str("conversation", job.RoutingKey()).
		Bool("delivered", delivered).
		Int("recent_texts", len(conv.RecentBotTexts())).
		Int("nicknames", conv.NicknameCount()).
		Msg("pipeline finished")
	if !delivered {
		return false, nil
	}
	if pc.Message.IsEmpty() {
		return true, nil
	}

	_, err := ch.SendMessage(ctx, pc.ConversationID, pc.Message)
	h.metrics.RecordSend(ch.Name(), err)
	if err != nil {
		return true, fmt.Errorf("host: send to %s: %w", job.RoutingKey(), err)
	}
	return true, nil
}

// Run observes inbound messages and delivers reply jobs until ctx is
// cancelled. Each conversation gets a worker while it has queued jobs, so
// one reply's pacing never holds up another conversation.
func (h *Host) Run(ctx context.Context, b bus.Bus) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case msg := <-b.InboundChan():
				h.Observe(msg)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case job := <-b.OutboundChan():
				if h.enqueue(job) {
					key := job.RoutingKey()
					g.Go(func() error {
						h.drain(ctx, key)
						return nil
					})
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
	return g.Wait()
}

// enqueue adds job to its conversation's lane and reports whether the lane
// was idle, in which case the caller must start a worker for it.
func (h *Host) enqueue(job bus.OutboundMessage) bool {
	key := job.RoutingKey()
	h.lanesMu.Lock()
	defer h.lanesMu.Unlock()
	q, busy := h.lanes[key]
	h.lanes[key] = append(q, job)
	return !busy
}

// drain delivers the lane's jobs in order and removes the lane once empty.
func (h *Host) drain(ctx context.Context, key string) {
	for {
		h.lanesMu.Lock()
		q := h.lanes[key]
		if len(q) == 0 || ctx.Err() != nil {
			delete(h.lanes, key)
			h.lanesMu.Unlock()
			return
		}
		job := q[0]
		h.lanes[key] = q[1:]
		h.lanesMu.Unlock()

		if _, err := h.Deliver(ctx, job); err != nil {
			h.log.Error().Err(err).Str("conversation", key).Msg("delivery failed")
		}
	}
}
