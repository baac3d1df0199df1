package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/bus"
	"github.com/crystaldolphin/outpipe/internal/config/channel"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

var errOneBotNotConnected = errors.New("onebot: websocket not connected")

// OneBotChannel speaks OneBot v11 over a forward WebSocket (NapCat,
// LLOneBot, go-cqhttp). API calls are correlated with their responses by echo.
type OneBotChannel struct {
	Base
	cfg    channel.OneBotConfig
	dialer *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex

	echo      atomic.Int64
	pendingMu sync.Mutex
	pending   map[string]chan oneBotFrame

	// inbox decouples the read loop from the bus so API responses are never
	// stuck behind a full bus.
	inbox chan bus.InboundMessage

	identityMu sync.RWMutex
	selfID     string
	selfName   string
}

// oneBotFrame is either an event or an API response.
type oneBotFrame struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	MessageID   json.RawMessage `json:"message_id"`
	UserID      json.RawMessage `json:"user_id"`
	GroupID     json.RawMessage `json:"group_id"`
	SelfID      json.RawMessage `json:"self_id"`
	RawMessage  string          `json:"raw_message"`
	Message     json.RawMessage `json:"message"`
	Sender      oneBotSender    `json:"sender"`
	Time        int64           `json:"time"`

	Echo    string          `json:"echo"`
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Wording string          `json:"wording"`
	Data    json.RawMessage `json:"data"`
}

type oneBotSender struct {
	Nickname string `json:"nickname"`
	Card     string `json:"card"`
}

type oneBotRequest struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

type oneBotSegment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// NewOneBotChannel creates a OneBotChannel.
func NewOneBotChannel(cfg channel.OneBotConfig, b bus.Bus, log zerolog.Logger) *OneBotChannel {
	return &OneBotChannel{
		Base:    NewBase(bus.ChannelOneBot, b, cfg.AllowFrom, log),
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pending: make(map[string]chan oneBotFrame),
		inbox:   make(chan bus.InboundMessage, 256),
	}
}

func (c *OneBotChannel) SupportsForward() bool { return true }

// SelfID returns the bot account id learned from get_login_info.
func (c *OneBotChannel) SelfID() string {
	c.identityMu.RLock()
	defer c.identityMu.RUnlock()
	return c.selfID
}

// Start connects and keeps the connection alive until ctx is cancelled.
// Without reconnect_interval the first disconnect ends Start.
func (c *OneBotChannel) Start(ctx context.Context) error {
	if c.cfg.WSURL == "" {
		return fmt.Errorf("onebot: ws_url not configured")
	}
	go c.forwardInbox(ctx)

	for {
		err := c.serve(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		interval := time.Duration(c.cfg.ReconnectInterval) * time.Second
		if interval <= 0 {
			return err
		}
		c.log.Warn().Err(err).Dur("retry_in", interval).Msg("connection lost")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// serve runs one connection until it fails.
func (c *OneBotChannel) serve(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.WSURL, header)
	if err != nil {
		return fmt.Errorf("onebot: dial %s: %w", c.cfg.WSURL, err)
	}
	c.setConn(conn)
	defer func() {
		c.setConn(nil)
		conn.Close()
	}()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.log.Info().Str("ws_url", c.cfg.WSURL).Msg("connected")
	go c.refreshIdentity(ctx)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("onebot: read: %w", err)
		}
		c.dispatch(data)
	}
}

func (c *OneBotChannel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *OneBotChannel) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *OneBotChannel) dispatch(data []byte) {
	var f oneBotFrame
	if err := json.Unmarshal(data, &f); err != nil {
		c.log.Warn().Err(err).Msg("malformed frame")
		return
	}
	if f.Echo != "" {
		c.pendingMu.Lock()
		ch, ok := c.pending[f.Echo]
		c.pendingMu.Unlock()
		if ok {
			ch <- f
		}
		return
	}

	switch f.PostType {
	case "message":
		c.handleMessage(&f)
	case "meta_event", "notice", "request", "message_sent":
		// not needed for post-processing
	default:
		c.log.Debug().Str("post_type", f.PostType).Msg("unhandled frame")
	}
}

func (c *OneBotChannel) handleMessage(f *oneBotFrame) {
	userID := jsonString(f.UserID)
	if userID == "" || userID == c.SelfID() {
		return
	}

	var chatID string
	switch f.MessageType {
	case "group":
		chatID = jsonString(f.GroupID)
	case "private":
		chatID = schema.PrivateConversation(userID)
	default:
		return
	}

	content := messageText(f.Message)
	if content == "" {
		content = f.RawMessage
	}
	msg := bus.NewInboundMessage(bus.ChannelOneBot, userID, chatID, content)
	msg.SetMessageId(jsonString(f.MessageID))
	if f.Sender.Card != "" {
		msg.SetSenderName(f.Sender.Card)
	} else {
		msg.SetSenderName(f.Sender.Nickname)
	}

	select {
	case c.inbox <- msg:
	default:
		c.log.Warn().Str("chat", chatID).Msg("inbox full, dropping inbound message")
	}
}

func (c *OneBotChannel) forwardInbox(ctx context.Context) {
	for {
		select {
		case msg := <-c.inbox:
			c.HandleMessage(ctx, msg)
		case <-ctx.Done():
			return
		}
	}
}

// messageText renders an array-format message as plain text. String-format
// (CQ code) messages are returned as is.
func messageText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var segs []oneBotSegment
	if err := json.Unmarshal(raw, &segs); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, seg := range segs {
		switch seg.Type {
		case "text":
			if t, ok := seg.Data["text"].(string); ok {
				sb.WriteString(t)
			}
		case "at":
			fmt.Fprintf(&sb, "@%v ", seg.Data["qq"])
		case "image":
			sb.WriteString("[image]")
		case "face":
			sb.WriteString("[face]")
		case "record":
			sb.WriteString("[voice]")
		}
	}
	return strings.TrimSpace(sb.String())
}

func (c *OneBotChannel) refreshIdentity(ctx context.Context) {
	if _, err := c.loginInfo(ctx); err != nil {
		c.log.Warn().Err(err).Msg("get_login_info failed")
	}
}

func (c *OneBotChannel) loginInfo(ctx context.Context) (string, error) {
	data, err := c.call(ctx, "get_login_info", struct{}{})
	if err != nil {
		return "", err
	}
	var info struct {
		UserID   json.RawMessage `json:"user_id"`
		Nickname string          `json:"nickname"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return "", fmt.Errorf("onebot: decode login info: %w", err)
	}
	c.identityMu.Lock()
	c.selfID, c.selfName = jsonString(info.UserID), info.Nickname
	c.identityMu.Unlock()
	return info.Nickname, nil
}

// SelfName returns the bot's nickname, asking the implementation when unknown.
func (c *OneBotChannel) SelfName(ctx context.Context) (string, error) {
	c.identityMu.RLock()
	name := c.selfName
	c.identityMu.RUnlock()
	if name != "" {
		return name, nil
	}
	return c.loginInfo(ctx)
}

// call sends an action and waits for the response with the same echo.
func (c *OneBotChannel) call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	conn := c.currentConn()
	if conn == nil {
		return nil, errOneBotNotConnected
	}

	echo := "outpipe-" + strconv.FormatInt(c.echo.Add(1), 10)
	ch := make(chan oneBotFrame, 1)
	c.pendingMu.Lock()
	c.pending[echo] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, echo)
		c.pendingMu.Unlock()
	}()

	data, err := json.Marshal(oneBotRequest{Action: action, Params: params, Echo: echo})
	if err != nil {
		return nil, fmt.Errorf("onebot: marshal %s: %w", action, err)
	}
	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onebot: write %s: %w", action, err)
	}

	timeout := time.Duration(c.cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case resp := <-ch:
		if resp.Status == "failed" || resp.RetCode != 0 {
			return nil, fmt.Errorf("onebot: %s failed: retcode %d %s", action, resp.RetCode, resp.Wording)
		}
		return resp.Data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("onebot: %s: %w", action, ctx.Err())
	}
}

// SendMessage delivers msg to a group id or a private:<user> conversation.
// A message made of one ForwardGroup is sent as a merged forward.
func (c *OneBotChannel) SendMessage(ctx context.Context, conversationID string, msg *schema.Message) (schema.Receipt, error) {
	target, private := schema.SplitConversation(conversationID)
	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return schema.Receipt{}, fmt.Errorf("onebot: invalid conversation id %q", conversationID)
	}
	idKey, kind := "group_id", "group"
	if private {
		idKey, kind = "user_id", "private"
	}

	var action string
	params := map[string]any{idKey: id}
	if fg, ok := msg.Last().(*schema.ForwardGroup); ok && msg.Len() == 1 {
		action = "send_" + kind + "_forward_msg"
		params["messages"] = forwardNodes(fg)
	} else {
		action = "send_" + kind + "_msg"
		params["message"] = encodeSegments(msg.Segments)
	}

	data, err := c.call(ctx, action, params)
	if err != nil {
		return schema.Receipt{}, err
	}
	var sent struct {
		MessageID json.RawMessage `json:"message_id"`
	}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &sent)
	}
	return schema.Receipt{Platform: c.Name(), ConversationID: conversationID, MessageID: jsonString(sent.MessageID)}, nil
}

// DeleteMessage recalls a delivered message.
func (c *OneBotChannel) DeleteMessage(ctx context.Context, r schema.Receipt) error {
	id, err := strconv.ParseInt(r.MessageID, 10, 64)
	if err != nil {
		return fmt.Errorf("onebot: invalid message id %q", r.MessageID)
	}
	_, err = c.call(ctx, "delete_msg", map[string]any{"message_id": id})
	return err
}

// TextToSpeech asks the implementation's group AI voice for a clip url.
func (c *OneBotChannel) TextToSpeech(ctx context.Context, text string, voice schema.VoiceProfile) (string, error) {
	gid, err := strconv.ParseInt(voice.GroupID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("onebot: tts needs a numeric group_id, got %q", voice.GroupID)
	}
	data, err := c.call(ctx, "get_ai_record", map[string]any{
		"character": voice.Character,
		"group_id":  gid,
		"text":      text,
	})
	if err != nil {
		return "", err
	}
	var ref string
	if err := json.Unmarshal(data, &ref); err != nil || ref == "" {
		return "", fmt.Errorf("onebot: get_ai_record returned no clip")
	}
	return ref, nil
}

func encodeSegments(segs []schema.Segment) []oneBotSegment {
	out := make([]oneBotSegment, 0, len(segs))
	for _, seg := range segs {
		switch v := seg.(type) {
		case *schema.Text:
			out = append(out, oneBotSegment{Type: "text", Data: map[string]any{"text": v.Content}})
		case *schema.Mention:
			out = append(out, oneBotSegment{Type: "at", Data: map[string]any{"qq": v.UserID}})
		case *schema.Image:
			data := map[string]any{"file": fileRef(v.Ref)}
			if v.Summary != "" {
				data["summary"] = v.Summary
			}
			out = append(out, oneBotSegment{Type: "image", Data: data})
		case *schema.Face:
			out = append(out, oneBotSegment{Type: "face", Data: map[string]any{"id": v.ID}})
		case *schema.QuoteRef:
			out = append(out, oneBotSegment{Type: "reply", Data: map[string]any{"id": v.MessageID}})
		case *schema.Audio:
			out = append(out, oneBotSegment{Type: "record", Data: map[string]any{"file": fileRef(v.Ref)}})
		case *schema.ForwardGroup:
			// Only a lone group can be sent as a forward; inline the rest.
			for _, n := range v.Nodes {
				out = append(out, encodeSegments(n.Content)...)
			}
		}
	}
	return out
}

func forwardNodes(fg *schema.ForwardGroup) []oneBotSegment {
	nodes := make([]oneBotSegment, 0, len(fg.Nodes))
	for _, n := range fg.Nodes {
		nodes = append(nodes, oneBotSegment{Type: "node", Data: map[string]any{
			"user_id":  n.UserID,
			"nickname": n.Name,
			"content":  encodeSegments(n.Content),
		}})
	}
	return nodes
}

// fileRef turns an absolute local path into a file:// URI.
func fileRef(ref string) string {
	if filepath.IsAbs(ref) {
		return "file://" + filepath.ToSlash(ref)
	}
	return ref
}

// jsonString reads an id that may be encoded as a number or a string.
func jsonString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
