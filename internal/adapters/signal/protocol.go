package signal

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/domain"
)

const (
	MethodJoin            = "join"
	MethodCreateTransport = "create-transport"
	MethodConnect         = "connect-transport"
	MethodProduce         = "produce"
	MethodConsume         = "consume"
	MethodResumeConsumer  = "resume-consumer"
	MethodStreamURL       = "get-stream-url"
	MethodRoomStats       = "get-room-stats"
	MethodLeave           = "leave"
	MethodPing            = "ping"
)

// Request is one client call. Data is decoded by the method handler.
type Request struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func (r Request) decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidPayload, err.Error())
	}
	return nil
}

type joinRequest struct {
	RoomID      string `json:"roomId"`
	Role        string `json:"role,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type joinResponse struct {
	PeerID          domain.PeerID          `json:"peerId"`
	RTPCapabilities domain.RTPCapabilities `json:"rtpCapabilities"`
	Peers           []domain.Peer          `json:"peers"`
	Producers       []domain.ProducerInfo  `json:"producers"`
}

type createTransportRequest struct {
	Direction domain.Direction `json:"direction"`
}

type connectTransportRequest struct {
	TransportID domain.TransportID `json:"transportId"`
	domain.ConnectParams
}

type produceRequest struct {
	TransportID   domain.TransportID   `json:"transportId"`
	Kind          domain.MediaKind     `json:"kind"`
	RTPParameters domain.RTPParameters `json:"rtpParameters"`
}

type produceResponse struct {
	ProducerID domain.ProducerID `json:"producerId"`
}

type consumeRequest struct {
	TransportID     domain.TransportID     `json:"transportId"`
	ProducerID      domain.ProducerID      `json:"producerId"`
	RTPCapabilities domain.RTPCapabilities `json:"rtpCapabilities"`
}

type resumeConsumerRequest struct {
	ConsumerID domain.ConsumerID `json:"consumerId"`
}

type roomRequest struct {
	RoomID string `json:"roomId,omitempty"`
}

type urlResponse struct {
	URL string `json:"url"`
}

type pongResponse struct {
	Pong bool `json:"pong"`
}

// envelopeKeys are owned by the response envelope and may not appear in a payload.
var envelopeKeys = []string{"type", "id", "success"}

// encodeResponse flattens payload into the response envelope. payload must
// encode to a JSON object or be nil.
func encodeResponse(id int64, payload any) (core.Frame, error) {
	fields := map[string]json.RawMessage{}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, &fields); err != nil {
			return nil, fmt.Errorf("response payload is not an object: %w", err)
		}
	}
	for _, k := range envelopeKeys {
		if _, ok := fields[k]; ok {
			return nil, fmt.Errorf("response payload shadows envelope field %q", k)
		}
	}
	fields["type"] = json.RawMessage(`"response"`)
	fields["id"] = json.RawMessage(fmt.Sprint(id))
	fields["success"] = json.RawMessage("true")
	return json.Marshal(fields)
}

type errorResponse struct {
	Type    string `json:"type"`
	ID      int64  `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func encodeError(id int64, err error) (core.Frame, error) {
	return json.Marshal(errorResponse{
		Type:  "response",
		ID:    id,
		Error: err.Error(),
		Code:  domain.Code(err),
	})
}
