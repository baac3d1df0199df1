package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/bus"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

// ConsoleChatID is the single conversation of the console channel.
const ConsoleChatID = "console"

var consoleExitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

// ConsoleChannel is a terminal REPL for trying the pipeline locally.
//
// A plain line is queued as a bot reply; ":in <id> <name> <text>" simulates a
// user message. A literal "\n" in a line becomes a newline. Delivered
// segments are printed to out.
type ConsoleChannel struct {
	Base
	in  io.Reader
	out io.Writer

	mu        sync.Mutex
	sent      int
	inbound   int
	lastID    string
	lastUser  string
	lastName  string
	outWriter sync.Mutex
}

// NewConsoleChannel creates a ConsoleChannel.
func NewConsoleChannel(b bus.Bus, in io.Reader, out io.Writer, log zerolog.Logger) *ConsoleChannel {
	return &ConsoleChannel{
		Base: NewBase(bus.ChannelConsole, b, nil, log),
		in:   in,
		out:  out,
	}
}

func (c *ConsoleChannel) SupportsForward() bool { return true }

func (c *ConsoleChannel) SelfName(context.Context) (string, error) { return "outpipe", nil }

// Start runs the REPL until ctx is cancelled or input ends.
func (c *ConsoleChannel) Start(ctx context.Context) error {
	c.printf("console ready. Type a reply to post-process, \":in <id> <name> <text>\" to simulate a user, or 'exit'.\n")

	scanner := bufio.NewScanner(c.in)
	for {
		scanDone := make(chan bool, 1)
		go func() {
			scanDone <- scanner.Scan()
		}()

		select {
		case ok := <-scanDone:
			if !ok {
				return scanner.Err()
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if consoleExitCommands[strings.ToLower(line)] {
			return nil
		}
		line = strings.ReplaceAll(line, `\n`, "\n")

		if rest, ok := strings.CutPrefix(line, ":in "); ok {
			if err := c.simulateUser(ctx, rest); err != nil {
				c.printf("! %v\n", err)
			}
			continue
		}
		if err := c.b.PublishOutbound(ctx, c.reply(line)); err != nil {
			return err
		}
	}
}

func (c *ConsoleChannel) simulateUser(ctx context.Context, args string) error {
	fields := strings.SplitN(args, " ", 3)
	if len(fields) < 3 {
		return fmt.Errorf("usage: :in <id> <name> <text>")
	}
	c.mu.Lock()
	c.inbound++
	id := "in-" + strconv.Itoa(c.inbound)
	c.lastID, c.lastUser, c.lastName = id, fields[0], fields[1]
	c.mu.Unlock()

	msg := bus.NewInboundMessage(bus.ChannelConsole, fields[0], ConsoleChatID, fields[2])
	msg.SetSenderName(fields[1])
	msg.SetMessageId(id)
	c.HandleMessage(ctx, msg)
	return nil
}

// reply builds a reply job answering the last simulated user message.
func (c *ConsoleChannel) reply(text string) bus.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	job := bus.NewOutboundMessage(bus.ChannelConsole, ConsoleChatID, text)
	job.SetLLM(true)
	job.SetReplyTo(c.lastID)
	job.SetSender(c.lastUser, c.lastName)
	return job
}

// SendMessage prints msg and returns a sequential receipt.
func (c *ConsoleChannel) SendMessage(_ context.Context, conversationID string, msg *schema.Message) (schema.Receipt, error) {
	c.mu.Lock()
	c.sent++
	id := strconv.Itoa(c.sent)
	c.mu.Unlock()

	var sb strings.Builder
	for _, seg := range msg.Segments {
		sb.WriteString(describe(seg))
	}
	target := ""
	if conversationID != ConsoleChatID {
		target = " -> " + conversationID
	}
	c.printf("bot #%s%s: %s\n", id, target, sb.String())
	return schema.Receipt{Platform: c.Name(), ConversationID: conversationID, MessageID: id}, nil
}

// DeleteMessage prints the recall.
func (c *ConsoleChannel) DeleteMessage(_ context.Context, r schema.Receipt) error {
	c.printf("bot: (recalled #%s)\n", r.MessageID)
	return nil
}

func (c *ConsoleChannel) printf(format string, args ...any) {
	c.outWriter.Lock()
	defer c.outWriter.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
