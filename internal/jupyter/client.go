// Package jupyter speaks the Jupyter kernel messaging protocol over a
// websocket. Client holds one connection to a kernel's channels endpoint,
// redialing with backoff when it drops, and exposes the comm primitives the
// widget manager builds on. KernelAdapter bridges a Client into the
// manager's kernel interfaces.
package jupyter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultReconnectMin     = 500 * time.Millisecond
	defaultReconnectMax     = 30 * time.Second

	// Time allowed to write a message to the kernel.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong after a ping.
	pongWait = 60 * time.Second

	// Ping period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Widget state payloads can be large (embedded images, dataframes).
	maxMessageSize = 32 << 20

	sendBufferSize = 256
)

// Config carries the settings for a kernel websocket client.
type Config struct {
	// URL is the kernel channels endpoint,
	// e.g. ws://localhost:8888/api/kernels/<id>/channels.
	URL string
	// Token, when set, rides in an Authorization header on the dial.
	Token string
	// SessionName identifies this client on outgoing message headers.
	// Empty picks a fresh uuid.
	SessionName string
	// Username stamps outgoing message headers. Empty defaults to "widgetd".
	Username string
	// HandshakeTimeout bounds the websocket dial and the kernel_info
	// exchange that follows it. Zero applies a default.
	HandshakeTimeout time.Duration
	// ReconnectMin and ReconnectMax bound the exponential backoff between
	// connection attempts. Zero applies defaults.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// Logger is optional; nil disables logging.
	Logger *zerolog.Logger
}

// Client is a websocket client for one kernel. It survives kernel restarts:
// the run loop redials with backoff, re-runs the kernel_info handshake, and
// fires the one-shot connect subscriptions on every completed handshake.
//
// Comm and iopub dispatch runs on the read loop, so handlers observe
// messages in arrival order.
type Client struct {
	cfg      Config
	kernelID string
	session  string
	username string
	log      zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	send      chan []byte
	connDone  chan struct{}
	connected bool
	closed    bool
	connects  int64

	targets   map[string]func(*Comm, types.CommData)
	comms     map[string]*Comm
	pending   map[string]chan Message
	callbacks map[string]*types.CommCallbacks
	subs      map[int]func()
	nextSub   int

	done chan struct{}
}

// New builds a client from cfg. Call Start to begin connecting.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("kernel channels url is required")
	}
	if cfg.SessionName == "" {
		cfg.SessionName = uuid.NewString()
	}
	if cfg.Username == "" {
		cfg.Username = "widgetd"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = defaultReconnectMin
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = defaultReconnectMax
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Client{
		cfg:       cfg,
		kernelID:  kernelIDFromURL(cfg.URL),
		session:   cfg.SessionName,
		username:  cfg.Username,
		log:       logger.With().Str("component", "jupyter").Logger(),
		targets:   make(map[string]func(*Comm, types.CommData)),
		comms:     make(map[string]*Comm),
		pending:   make(map[string]chan Message),
		callbacks: make(map[string]*types.CommCallbacks),
		subs:      make(map[int]func()),
		done:      make(chan struct{}),
	}, nil
}

// Start launches the connect loop. It returns immediately; use Connected or
// OnConnected to learn when the handshake lands.
func (c *Client) Start(ctx context.Context) {
	go c.run(ctx)
}

// Close stops the connect loop and tears down any live connection. Safe to
// call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	close(c.done)
	if conn != nil {
		conn.Close()
	}
	return nil
}

// Connected reports whether the kernel_info handshake has completed on the
// current connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// KernelID returns the kernel id parsed from the channels URL.
func (c *Client) KernelID() string { return c.kernelID }

// Reconnects counts connections re-established after the first.
func (c *Client) Reconnects() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connects == 0 {
		return 0
	}
	return c.connects - 1
}

// OnConnected registers a one-shot callback for the next completed
// handshake. The returned cancel drops it if it has not fired yet.
func (c *Client) OnConnected(fn func()) (cancel func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// RegisterCommTarget routes kernel-initiated comm_open messages for the
// named target to handler. A second registration replaces the first.
func (c *Client) RegisterCommTarget(name string, handler func(*Comm, types.CommData)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets[name] = handler
}

// UnregisterCommTarget removes the handler for the named target.
func (c *Client) UnregisterCommTarget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.targets, name)
}

// NewComm opens a comm from this side with comm_open. The handle is routed
// before the message is queued, so a prompt kernel reply cannot race the
// registration. An empty commID picks a fresh uuid.
func (c *Client) NewComm(ctx context.Context, target, commID string, data any) (*Comm, error) {
	if commID == "" {
		commID = uuid.NewString()
	}
	raw, err := encodeCommData(data)
	if err != nil {
		return nil, err
	}
	comm := &Comm{client: c, id: commID, target: target}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed()
	}
	c.comms[commID] = comm
	metricCommsOpen.Set(float64(len(c.comms)))
	c.mu.Unlock()

	msg, err := newMessage(c.session, c.username, channelShell, msgCommOpen, commOpenContent{
		CommID:     commID,
		TargetName: target,
		Data:       raw,
	})
	if err == nil {
		err = c.enqueue(ctx, msg)
	}
	if err != nil {
		c.dropComm(comm)
		return nil, err
	}
	return comm, nil
}

// AttachComm builds a handle for a comm the kernel already holds open; no
// comm_open is sent. Attaching an id twice returns two independent handles,
// with incoming traffic routed to the latest.
func (c *Client) AttachComm(target, commID string) (*Comm, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed()
	}
	comm := &Comm{client: c, id: commID, target: target}
	c.comms[commID] = comm
	metricCommsOpen.Set(float64(len(c.comms)))
	return comm, nil
}

// CommInfo asks the kernel which comms it holds for target and returns
// their ids in sorted order.
func (c *Client) CommInfo(ctx context.Context, target string) ([]string, error) {
	msg, err := newMessage(c.session, c.username, channelShell, msgCommInfoRequest, commInfoRequestContent{TargetName: target})
	if err != nil {
		return nil, err
	}
	reply, err := c.request(ctx, msg)
	if err != nil {
		return nil, err
	}
	var content commInfoReplyContent
	if err := json.Unmarshal(reply.Content, &content); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(content.Comms))
	for id, entry := range content.Comms {
		if target != "" && entry.TargetName != target {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// run dials until Close or ctx cancellation, backing off between attempts
// and resetting the backoff after any connection that completed a handshake.
func (c *Client) run(ctx context.Context) {
	backoff := c.cfg.ReconnectMin
	for {
		if c.isClosed() || ctx.Err() != nil {
			return
		}
		wasUp, err := c.runConn(ctx)
		if err == nil {
			return
		}
		if wasUp {
			backoff = c.cfg.ReconnectMin
		}
		c.log.Warn().Err(err).Dur("backoff", backoff).Msg("kernel connection lost")
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.cfg.ReconnectMax {
			backoff = c.cfg.ReconnectMax
		}
	}
}

// runConn owns one dial-to-disconnect cycle. It reports whether the
// handshake completed, and a nil error when the client should stop dialing.
func (c *Client) runConn(ctx context.Context) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "token "+c.cfg.Token)
	}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return false, err
	}

	send := make(chan []byte, sendBufferSize)
	connDone := make(chan struct{})
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return false, nil
	}
	c.conn = conn
	c.send = send
	c.connDone = connDone
	c.mu.Unlock()

	go c.writePump(conn, send, connDone)

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		case <-stop:
			return
		}
		conn.Close()
	}()
	go c.handshake(ctx, conn)

	err = c.readPump(conn)
	close(stop)
	wasUp := c.teardownConn(connDone)
	conn.Close()
	if c.isClosed() || ctx.Err() != nil {
		return wasUp, nil
	}
	return wasUp, err
}

// handshake runs the kernel_info round trip that confirms the kernel is
// responsive before the client reports connected.
func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) {
	hctx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()
	msg, err := newMessage(c.session, c.username, channelShell, msgKernelInfoRequest, struct{}{})
	if err != nil {
		return
	}
	reply, err := c.request(hctx, msg)
	if err != nil {
		c.log.Warn().Err(err).Msg("kernel_info handshake failed")
		conn.Close()
		return
	}
	var info kernelInfoReplyContent
	_ = json.Unmarshal(reply.Content, &info)
	c.markConnected(conn, info)
}

func (c *Client) markConnected(conn *websocket.Conn, info kernelInfoReplyContent) {
	c.mu.Lock()
	if c.conn != conn || c.closed {
		c.mu.Unlock()
		return
	}
	c.connected = true
	c.connects++
	subs := c.subs
	c.subs = make(map[int]func())
	c.mu.Unlock()
	metricConnects.Inc()
	c.log.Info().
		Str("kernel", c.kernelID).
		Str("protocol", info.ProtocolVersion).
		Str("implementation", info.Implementation).
		Msg("kernel connected")
	for _, fn := range subs {
		fn()
	}
}

// teardownConn clears per-connection state and releases everything blocked
// on the connection. Comm handles and target registrations survive; they
// resume routing on the next connection.
func (c *Client) teardownConn(connDone chan struct{}) bool {
	c.mu.Lock()
	wasUp := c.connected
	c.connected = false
	c.conn = nil
	c.send = nil
	c.connDone = nil
	c.pending = make(map[string]chan Message)
	c.callbacks = make(map[string]*types.CommCallbacks)
	c.mu.Unlock()
	close(connDone)
	return wasUp
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readPump reads and dispatches until the connection dies. Runs on the
// runConn goroutine.
func (c *Client) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Warn().Err(err).Msg("dropping undecodable kernel message")
			continue
		}
		metricMessagesReceived.Inc()
		c.dispatch(msg)
	}
}

// writePump owns all writes to conn, including pings.
func (c *Client) writePump(conn *websocket.Conn, send chan []byte, connDone chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case raw := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
			metricMessagesSent.Inc()
			n := len(send)
			for i := 0; i < n; i++ {
				queued := <-send
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
				metricMessagesSent.Inc()
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-connDone:
			return
		}
	}
}

// enqueue queues msg for the write pump of the current connection.
func (c *Client) enqueue(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed()
	}
	send, connDone := c.send, c.connDone
	c.mu.Unlock()
	if send == nil {
		return ErrNotConnected()
	}
	select {
	case send <- raw:
		return nil
	case <-connDone:
		return ErrNotConnected()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// request sends msg on the shell channel and waits for the reply parented
// to it.
func (c *Client) request(ctx context.Context, msg Message) (Message, error) {
	id := msg.Header.MsgID
	ch := make(chan Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Message{}, ErrClosed()
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.enqueue(ctx, msg); err != nil {
		return Message{}, err
	}
	select {
	case reply := <-ch:
		return reply, nil
	case <-c.currentConnDone():
		return Message{}, ErrNotConnected()
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (c *Client) currentConnDone() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connDone != nil {
		return c.connDone
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (c *Client) sendCommMsg(ctx context.Context, commID string, data any, cb *types.CommCallbacks) error {
	raw, err := encodeCommData(data)
	if err != nil {
		return err
	}
	msg, err := newMessage(c.session, c.username, channelShell, msgCommMsg, commMsgContent{CommID: commID, Data: raw})
	if err != nil {
		return err
	}
	if cb != nil {
		c.mu.Lock()
		c.callbacks[msg.Header.MsgID] = cb
		c.mu.Unlock()
	}
	if err := c.enqueue(ctx, msg); err != nil {
		if cb != nil {
			c.mu.Lock()
			delete(c.callbacks, msg.Header.MsgID)
			c.mu.Unlock()
		}
		return err
	}
	return nil
}

// closeComm drops the handle from routing and tells the kernel, when one is
// still there to hear it.
func (c *Client) closeComm(ctx context.Context, comm *Comm) error {
	c.dropComm(comm)
	msg, err := newMessage(c.session, c.username, channelShell, msgCommClose, commCloseContent{CommID: comm.id, Data: json.RawMessage(`{}`)})
	if err != nil {
		return err
	}
	if err := c.enqueue(ctx, msg); err != nil {
		if IsNotConnected(err) || IsClosed(err) {
			return nil
		}
		return err
	}
	return nil
}

// dropComm clears the routing entry unless a later handle took it over.
func (c *Client) dropComm(comm *Comm) {
	c.mu.Lock()
	if c.comms[comm.id] == comm {
		delete(c.comms, comm.id)
	}
	metricCommsOpen.Set(float64(len(c.comms)))
	c.mu.Unlock()
}

func (c *Client) dispatch(msg Message) {
	switch msg.Channel {
	case channelIOPub:
		c.dispatchIOPub(msg)
	default:
		c.resolvePending(msg)
	}
}

func (c *Client) resolvePending(msg Message) {
	parent := msg.ParentHeader.MsgID
	if parent == "" {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[parent]
	if ok {
		delete(c.pending, parent)
	}
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
}

func (c *Client) dispatchIOPub(msg Message) {
	switch msg.Header.MsgType {
	case msgCommOpen:
		c.handleCommOpen(msg)
	case msgCommMsg:
		c.handleCommMsg(msg)
	case msgCommClose:
		c.handleCommClose(msg)
	case msgStatus:
		c.handleStatus(msg)
	case msgStream, msgDisplayData, msgExecuteResult, msgError:
		c.routeOutput(msg)
	case msgClearOutput:
		c.routeClearOutput(msg)
	}
}

func (c *Client) handleCommOpen(msg Message) {
	var content commOpenContent
	if err := json.Unmarshal(msg.Content, &content); err != nil || content.CommID == "" {
		c.log.Warn().Msg("dropping malformed comm_open")
		return
	}
	c.mu.Lock()
	handler := c.targets[content.TargetName]
	var comm *Comm
	if handler != nil {
		comm = &Comm{client: c, id: content.CommID, target: content.TargetName}
		c.comms[content.CommID] = comm
		metricCommsOpen.Set(float64(len(c.comms)))
	}
	c.mu.Unlock()
	if handler == nil {
		c.log.Warn().
			Str("target", content.TargetName).
			Str("comm", content.CommID).
			Msg("comm_open for unregistered target")
		return
	}
	handler(comm, decodeCommData(content.Data))
}

func (c *Client) handleCommMsg(msg Message) {
	var content commMsgContent
	if err := json.Unmarshal(msg.Content, &content); err != nil || content.CommID == "" {
		return
	}
	c.mu.Lock()
	comm := c.comms[content.CommID]
	c.mu.Unlock()
	if comm == nil {
		c.log.Debug().Str("comm", content.CommID).Msg("comm_msg for unknown comm")
		return
	}
	comm.deliver(decodeCommData(content.Data))
}

func (c *Client) handleCommClose(msg Message) {
	var content commCloseContent
	if err := json.Unmarshal(msg.Content, &content); err != nil || content.CommID == "" {
		return
	}
	c.mu.Lock()
	comm := c.comms[content.CommID]
	delete(c.comms, content.CommID)
	metricCommsOpen.Set(float64(len(c.comms)))
	c.mu.Unlock()
	if comm != nil {
		comm.peerClosed()
	}
}

// handleStatus retires message callbacks: an idle status means the kernel
// finished processing the parent message, so no more output is coming.
func (c *Client) handleStatus(msg Message) {
	var content statusContent
	if err := json.Unmarshal(msg.Content, &content); err != nil {
		return
	}
	if content.ExecutionState != "idle" {
		return
	}
	parent := msg.ParentHeader.MsgID
	if parent == "" {
		return
	}
	c.mu.Lock()
	delete(c.callbacks, parent)
	c.mu.Unlock()
}

func (c *Client) routeOutput(msg Message) {
	cb := c.callbacksFor(msg.ParentHeader.MsgID)
	if cb == nil || cb.OnOutput == nil {
		return
	}
	cb.OnOutput(msg.Header.MsgType, msg.Content)
}

func (c *Client) routeClearOutput(msg Message) {
	cb := c.callbacksFor(msg.ParentHeader.MsgID)
	if cb == nil || cb.OnClearOutput == nil {
		return
	}
	var content clearOutputContent
	_ = json.Unmarshal(msg.Content, &content)
	cb.OnClearOutput(content.Wait)
}

func (c *Client) callbacksFor(parent string) *types.CommCallbacks {
	if parent == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callbacks[parent]
}

// kernelIDFromURL pulls the kernel id out of a channels endpoint path such
// as /api/kernels/<id>/channels.
func kernelIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "kernels" {
			return parts[i+1]
		}
	}
	return ""
}
