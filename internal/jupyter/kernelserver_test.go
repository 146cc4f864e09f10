package jupyter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// kernelServer is a scripted stand-in for a kernel channels endpoint. Every
// connection answers kernel_info automatically; everything else goes to the
// per-test handler.
type kernelServer struct {
	t     *testing.T
	srv   *httptest.Server
	onMsg func(k *kernelConn, m Message)

	mu    sync.Mutex
	conns int
	last  *kernelConn
}

// kernelConn is the server side of one websocket connection.
type kernelConn struct {
	t    *testing.T
	conn *websocket.Conn
	mu   sync.Mutex
}

func newKernelServer(t *testing.T, onMsg func(k *kernelConn, m Message)) *kernelServer {
	t.Helper()
	ks := &kernelServer{t: t, onMsg: onMsg}
	upgrader := websocket.Upgrader{}
	ks.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		k := &kernelConn{t: t, conn: conn}
		ks.mu.Lock()
		ks.conns++
		ks.last = k
		ks.mu.Unlock()
		ks.serve(k)
	}))
	t.Cleanup(ks.srv.Close)
	return ks
}

func (ks *kernelServer) url(path string) string {
	return "ws" + strings.TrimPrefix(ks.srv.URL, "http") + path
}

func (ks *kernelServer) connCount() int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.conns
}

// current returns the server side of the newest connection, waiting for the
// first one when needed.
func (ks *kernelServer) current(t *testing.T) *kernelConn {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ks.mu.Lock()
		k := ks.last
		ks.mu.Unlock()
		if k != nil {
			return k
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no kernel connection arrived")
	return nil
}

func (ks *kernelServer) serve(k *kernelConn) {
	defer k.conn.Close()
	for {
		var m Message
		if err := k.conn.ReadJSON(&m); err != nil {
			return
		}
		if m.Header.MsgType == msgKernelInfoRequest {
			k.reply(m, msgKernelInfoReply, kernelInfoReplyContent{
				Status:          "ok",
				ProtocolVersion: protocolVersion,
				Implementation:  "fakekernel",
			})
			continue
		}
		if ks.onMsg != nil {
			ks.onMsg(k, m)
		}
	}
}

func (k *kernelConn) write(m Message) {
	k.mu.Lock()
	defer k.mu.Unlock()
	// Write errors here mean the client went away mid-test; the test will
	// fail on its own assertions.
	_ = k.conn.WriteJSON(m)
}

// reply sends a shell reply parented to req.
func (k *kernelConn) reply(req Message, msgType string, content any) {
	m, err := newMessage("kernel", "kernel", channelShell, msgType, content)
	if err != nil {
		k.t.Errorf("building %s reply: %v", msgType, err)
		return
	}
	m.ParentHeader = req.Header
	k.write(m)
}

// iopub broadcasts an iopub message; a zero parent means kernel-initiated.
func (k *kernelConn) iopub(parent MessageHeader, msgType string, content any) {
	m, err := newMessage("kernel", "kernel", channelIOPub, msgType, content)
	if err != nil {
		k.t.Errorf("building iopub %s: %v", msgType, err)
		return
	}
	m.ParentHeader = parent
	k.write(m)
}

func newTestClient(t *testing.T, ks *kernelServer) *Client {
	t.Helper()
	c, err := New(Config{
		URL:          ks.url("/api/kernels/fake-kernel/channels"),
		SessionName:  "test-session",
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

// startConnected spins up a client against ks and blocks until the first
// handshake lands.
func startConnected(t *testing.T, ks *kernelServer) *Client {
	t.Helper()
	c := newTestClient(t, ks)
	ch := make(chan struct{}, 1)
	c.OnConnected(func() { ch <- struct{}{} })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	t.Cleanup(func() { _ = c.Close() })
	c.Start(ctx)
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("client never connected")
	}
	return c
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
