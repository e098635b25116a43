package sendspin

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	MsgClientHello MessageType = "client/hello"
	MsgServerHello MessageType = "server/hello"
	MsgClientTime  MessageType = "client/time"
	MsgServerTime  MessageType = "server/time"
	MsgGroupJoin   MessageType = "group/join"
	MsgGroupLeave  MessageType = "group/leave"
	MsgGroupVolume MessageType = "group/volume"
	MsgStreamStart MessageType = "stream/start"
	MsgStreamStop  MessageType = "stream/stop"
)

// Envelope wraps every message on the wire.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ClientHelloPayload is the first message a client sends after connecting.
type ClientHelloPayload struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
	Roles    []Role `json:"roles"`
}

// ServerHelloPayload is the server's handshake reply.
type ServerHelloPayload struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
}

// ClientTimePayload carries the client's send timestamp for clock offset
// estimation.
type ClientTimePayload struct {
	T1 int64 `json:"t1"` // client send time, unix micros
}

// ServerTimePayload echoes the client timestamp together with the server
// receive time.
type ServerTimePayload struct {
	T1 int64 `json:"t1"`
	T2 int64 `json:"t2"` // server receive time, unix micros
}

// GroupJoinPayload tells a client it became a member of a group.
type GroupJoinPayload struct {
	GroupID string `json:"group_id"`
	Name    string `json:"name"`
}

// GroupLeavePayload tells a client it was removed from its group.
type GroupLeavePayload struct {
	GroupID string `json:"group_id"`
}

// GroupVolumePayload broadcasts a group volume or mute change.
type GroupVolumePayload struct {
	GroupID string `json:"group_id"`
	Volume  int    `json:"volume"`
	Muted   bool   `json:"muted"`
}

// StreamStartPayload announces a new stream to the members of a group. Only
// metadata travels here; the audio data plane is not part of this protocol.
type StreamStartPayload struct {
	GroupID    string `json:"group_id"`
	Source     string `json:"source"` // "file" or "tone"
	Path       string `json:"path,omitempty"`
	MIME       string `json:"mime,omitempty"`
	FreqHz     int    `json:"freq_hz,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// StreamStopPayload stops the current stream at the given server time.
type StreamStopPayload struct {
	GroupID    string `json:"group_id"`
	StopTimeUs int64  `json:"stop_time_us"`
}

func encodeMessage(msgType MessageType, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
		}
		raw = data
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed message: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("message without a type")
	}
	return env, nil
}

func decodePayload[T any](env Envelope) (T, error) {
	var payload T
	if len(env.Payload) == 0 {
		return payload, fmt.Errorf("%s message without a payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, fmt.Errorf("malformed %s payload: %w", env.Type, err)
	}
	return payload, nil
}
