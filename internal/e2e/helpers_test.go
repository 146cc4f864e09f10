package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Caldeiraaf/ipywidgets/internal/classload"
	"github.com/Caldeiraaf/ipywidgets/internal/document"
	"github.com/Caldeiraaf/ipywidgets/internal/httpapi"
	"github.com/Caldeiraaf/ipywidgets/internal/jupyter"
	"github.com/Caldeiraaf/ipywidgets/internal/persist"
	"github.com/Caldeiraaf/ipywidgets/internal/store"
	"github.com/Caldeiraaf/ipywidgets/internal/widgets"
	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

// wireHeader and wireMessage mirror the kernel websocket envelope so the
// fake kernel below can speak the protocol without reaching into the client
// package's internals.
type wireHeader struct {
	MsgID    string `json:"msg_id"`
	Username string `json:"username"`
	Session  string `json:"session"`
	Date     string `json:"date"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
}

type wireMessage struct {
	Header       wireHeader      `json:"header"`
	ParentHeader wireHeader      `json:"parent_header"`
	Metadata     map[string]any  `json:"metadata"`
	Content      json.RawMessage `json:"content"`
	Channel      string          `json:"channel,omitempty"`
}

func newWireMessage(channel, msgType string, parent wireHeader, content any) wireMessage {
	raw, _ := json.Marshal(content)
	return wireMessage{
		Header: wireHeader{
			MsgID:    uuid.NewString(),
			Username: "kernel",
			Session:  "kernel",
			Date:     time.Now().UTC().Format(time.RFC3339Nano),
			MsgType:  msgType,
			Version:  "5.3",
		},
		ParentHeader: parent,
		Metadata:     map[string]any{},
		Content:      raw,
		Channel:      channel,
	}
}

// fakeKernel is a scripted kernel channels endpoint. It answers kernel_info,
// reports its widget comms on comm_info, and replies to request_state with
// an update carrying the comm's state dict. Incoming updates and opens are
// folded back into the comm table, so saves observe what the daemon sent.
type fakeKernel struct {
	t   *testing.T
	srv *httptest.Server

	mu    sync.Mutex
	comms map[string]map[string]any
	conn  *websocket.Conn
}

func newFakeKernel(t *testing.T) *fakeKernel {
	t.Helper()
	fk := &fakeKernel{t: t, comms: make(map[string]map[string]any)}
	upgrader := websocket.Upgrader{}
	fk.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fk.mu.Lock()
		fk.conn = conn
		fk.mu.Unlock()
		fk.serve(conn)
	}))
	t.Cleanup(fk.srv.Close)
	return fk
}

func (fk *fakeKernel) url() string {
	return "ws" + strings.TrimPrefix(fk.srv.URL, "http") + "/api/kernels/fake-kernel/channels"
}

// addComm seeds a pre-existing widget comm the kernel will report on
// comm_info and answer request_state for.
func (fk *fakeKernel) addComm(id string, state map[string]any) {
	fk.mu.Lock()
	fk.comms[id] = state
	fk.mu.Unlock()
}

func (fk *fakeKernel) serve(conn *websocket.Conn) {
	defer conn.Close()
	var writeMu sync.Mutex
	send := func(m wireMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(m)
	}
	for {
		var m wireMessage
		if err := conn.ReadJSON(&m); err != nil {
			return
		}
		switch m.Header.MsgType {
		case "kernel_info_request":
			send(newWireMessage("shell", "kernel_info_reply", m.Header, map[string]any{
				"status":           "ok",
				"protocol_version": "5.3",
				"implementation":   "fakekernel",
			}))
		case "comm_info_request":
			var req struct {
				TargetName string `json:"target_name"`
			}
			_ = json.Unmarshal(m.Content, &req)
			comms := map[string]map[string]string{}
			if req.TargetName == "" || req.TargetName == types.CommTargetName {
				fk.mu.Lock()
				for id := range fk.comms {
					comms[id] = map[string]string{"target_name": types.CommTargetName}
				}
				fk.mu.Unlock()
			}
			send(newWireMessage("shell", "comm_info_reply", m.Header, map[string]any{
				"status": "ok",
				"comms":  comms,
			}))
		case "comm_msg":
			var content struct {
				CommID string         `json:"comm_id"`
				Data   types.CommData `json:"data"`
			}
			if err := json.Unmarshal(m.Content, &content); err != nil {
				continue
			}
			switch content.Data.Method {
			case types.MethodRequestState:
				fk.mu.Lock()
				state := fk.comms[content.CommID]
				fk.mu.Unlock()
				send(newWireMessage("iopub", "comm_msg", m.Header, map[string]any{
					"comm_id": content.CommID,
					"data":    map[string]any{"method": types.MethodUpdate, "state": state},
				}))
				send(newWireMessage("iopub", "status", m.Header, map[string]any{
					"execution_state": "idle",
				}))
			case types.MethodUpdate:
				fk.mu.Lock()
				cur := fk.comms[content.CommID]
				if cur == nil {
					cur = make(map[string]any)
					fk.comms[content.CommID] = cur
				}
				for k, v := range content.Data.State {
					cur[k] = v
				}
				fk.mu.Unlock()
			}
		case "comm_open":
			var content struct {
				CommID string         `json:"comm_id"`
				Data   types.CommData `json:"data"`
			}
			if err := json.Unmarshal(m.Content, &content); err != nil {
				continue
			}
			fk.mu.Lock()
			fk.comms[content.CommID] = content.Data.State
			fk.mu.Unlock()
		case "comm_close":
			var content struct {
				CommID string `json:"comm_id"`
			}
			if err := json.Unmarshal(m.Content, &content); err != nil {
				continue
			}
			fk.mu.Lock()
			delete(fk.comms, content.CommID)
			fk.mu.Unlock()
		}
	}
}

// openComm pushes a kernel-initiated comm_open to the connected client.
func (fk *fakeKernel) openComm(t *testing.T, id string, state map[string]any) {
	t.Helper()
	fk.mu.Lock()
	conn := fk.conn
	fk.comms[id] = state
	fk.mu.Unlock()
	if conn == nil {
		t.Fatal("no client connection to push comm_open on")
	}
	m := newWireMessage("iopub", "comm_open", wireHeader{}, map[string]any{
		"comm_id":     id,
		"target_name": types.CommTargetName,
		"data":        map[string]any{"state": state},
	})
	if err := conn.WriteJSON(m); err != nil {
		t.Fatalf("push comm_open: %v", err)
	}
}

// service mirrors the daemon's HTTP glue over a live stack.
type service struct {
	mgr    *widgets.Manager
	client *jupyter.Client
	preg   *persist.Registry
}

func (s *service) ListModels() []types.ModelSummary { return s.mgr.ListModels() }
func (s *service) Ready() bool                      { return s.mgr.Ready() }

func (s *service) Status() types.StatusResponse {
	resp := s.mgr.Status()
	resp.Kernel.Connected = s.client.Connected()
	resp.Kernel.Reconnects = uint64(s.client.Reconnects())
	saves, _ := s.preg.Stats()
	resp.SavesTotal = saves
	return resp
}

func (s *service) GetState(ctx context.Context, opts types.GetStateOptions) (types.StateMap, error) {
	return s.mgr.GetState(ctx, opts)
}

func (s *service) SetState(ctx context.Context, state types.StateMap) error {
	return s.mgr.SetState(ctx, state)
}

func (s *service) Save(ctx context.Context) (types.SaveResponse, error) {
	if err := s.preg.SaveAll(ctx); err != nil {
		return types.SaveResponse{}, err
	}
	return types.SaveResponse{Saved: true, Models: len(s.mgr.ListModels())}, nil
}

// stack is one fully wired daemon: kernel client, widget manager, persist
// registry, document host and the HTTP server in front of them.
type stack struct {
	client *jupyter.Client
	mgr    *widgets.Manager
	preg   *persist.Registry
	host   *document.Host
	srv    *httptest.Server
	cancel context.CancelFunc
}

// newStack assembles the daemon against fk the way cmd/widgetd wires it.
// statePath may be empty to run without persistence.
func newStack(t *testing.T, fk *fakeKernel, statePath string) *stack {
	t.Helper()
	log := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())

	client, err := jupyter.New(jupyter.Config{
		URL:          fk.url(),
		SessionName:  "e2e-session",
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
		Logger:       &log,
	})
	if err != nil {
		cancel()
		t.Fatalf("kernel client: %v", err)
	}
	client.Start(ctx)

	host := document.NewHost(log)
	mgr, err := widgets.New(ctx, widgets.ManagerConfig{
		Source:              jupyter.NewKernelAdapter(client),
		Classes:             classload.NewRegistry(),
		Host:                host,
		KernelWaitTimeout:   5 * time.Second,
		StateRequestTimeout: 5 * time.Second,
		Logger:              &log,
	})
	if err != nil {
		cancel()
		t.Fatalf("widget manager: %v", err)
	}

	preg := persist.NewRegistry(log)
	preg.Register("document", mgr, host)
	if statePath != "" {
		fs, err := store.NewFileStore(statePath, log)
		if err != nil {
			cancel()
			t.Fatalf("state store: %v", err)
		}
		preg.SetCallbacks(ctx, fs.Load, fs.Save, types.GetStateOptions{})
	}

	svc := &service{mgr: mgr, client: client, preg: preg}
	srv := httptest.NewServer(httpapi.NewMux(svc))

	st := &stack{client: client, mgr: mgr, preg: preg, host: host, srv: srv, cancel: cancel}
	t.Cleanup(st.close)
	return st
}

func (st *stack) close() {
	st.srv.Close()
	st.preg.Close()
	_ = st.mgr.Close()
	_ = st.client.Close()
	st.cancel()
}

// awaitReady polls /readyz until the startup pass has finished.
func (st *stack) awaitReady(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, _ := httpGet(t, st.srv.URL+"/readyz")
		if resp.StatusCode == http.StatusOK {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("/readyz did not become ready in time; last=%d", resp.StatusCode)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil { t.Fatalf("new req: %v", err) }
	resp, err := http.DefaultClient.Do(req)
	if err != nil { t.Fatalf("do req: %v", err) }
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpDo(t *testing.T, method, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, bytes.NewReader(payload))
	if err != nil { t.Fatalf("new req: %v", err) }
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil { t.Fatalf("do req: %v", err) }
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
