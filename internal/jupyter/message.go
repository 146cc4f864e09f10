package jupyter

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Caldeiraaf/ipywidgets/pkg/types"
)

// protocolVersion is the Jupyter messaging protocol version stamped on
// outgoing headers.
const protocolVersion = "5.3"

// Channels multiplexed over the kernel websocket.
const (
	channelShell = "shell"
	channelIOPub = "iopub"
)

// Message types this client produces or consumes.
const (
	msgKernelInfoRequest = "kernel_info_request"
	msgKernelInfoReply   = "kernel_info_reply"
	msgCommOpen          = "comm_open"
	msgCommMsg           = "comm_msg"
	msgCommClose         = "comm_close"
	msgCommInfoRequest   = "comm_info_request"
	msgCommInfoReply     = "comm_info_reply"
	msgStatus            = "status"
	msgStream            = "stream"
	msgDisplayData       = "display_data"
	msgExecuteResult     = "execute_result"
	msgError             = "error"
	msgClearOutput       = "clear_output"
)

// MessageHeader identifies a single protocol message. Date is kept as the
// raw wire string; kernels disagree on sub-second precision and timezone
// suffixes, and nothing in this client needs to compare timestamps.
type MessageHeader struct {
	MsgID    string `json:"msg_id"`
	Username string `json:"username"`
	Session  string `json:"session"`
	Date     string `json:"date"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
}

// Message is the envelope carried on the kernel websocket. Binary buffers
// are not modeled; widget state rides entirely in Content.
type Message struct {
	Header       MessageHeader   `json:"header"`
	ParentHeader MessageHeader   `json:"parent_header"`
	Metadata     map[string]any  `json:"metadata"`
	Content      json.RawMessage `json:"content"`
	Channel      string          `json:"channel,omitempty"`
}

// newMessage builds an outgoing envelope with a fresh message id.
func newMessage(session, username, channel, msgType string, content any) (Message, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Header: MessageHeader{
			MsgID:    uuid.NewString(),
			Username: username,
			Session:  session,
			Date:     time.Now().UTC().Format(time.RFC3339Nano),
			MsgType:  msgType,
			Version:  protocolVersion,
		},
		Metadata: map[string]any{},
		Content:  raw,
		Channel:  channel,
	}, nil
}

type commOpenContent struct {
	CommID     string          `json:"comm_id"`
	TargetName string          `json:"target_name"`
	Data       json.RawMessage `json:"data"`
}

type commMsgContent struct {
	CommID string          `json:"comm_id"`
	Data   json.RawMessage `json:"data"`
}

type commCloseContent struct {
	CommID string          `json:"comm_id"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type commInfoRequestContent struct {
	TargetName string `json:"target_name,omitempty"`
}

type commInfoEntry struct {
	TargetName string `json:"target_name"`
}

type commInfoReplyContent struct {
	Status string                   `json:"status"`
	Comms  map[string]commInfoEntry `json:"comms"`
}

type kernelInfoReplyContent struct {
	Status          string `json:"status"`
	ProtocolVersion string `json:"protocol_version"`
	Implementation  string `json:"implementation"`
	Banner          string `json:"banner"`
}

type statusContent struct {
	ExecutionState string `json:"execution_state"`
}

type clearOutputContent struct {
	Wait bool `json:"wait"`
}

// decodeCommData interprets a comm payload leniently: a malformed payload
// yields the zero value rather than an error, and the fields it does carry
// survive. Rejecting the whole message would tear down traffic a peer can
// otherwise still handle.
func decodeCommData(raw json.RawMessage) types.CommData {
	var d types.CommData
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &d)
	}
	return d
}

// encodeCommData marshals an outgoing comm payload; nil encodes as {} so
// the peer always finds an object in the data slot.
func encodeCommData(data any) (json.RawMessage, error) {
	if data == nil {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(data)
}
