package domain

import (
	"context"
	"errors"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomClosed        = errors.New("room closed")
	ErrPeerNotJoined     = errors.New("peer not joined")
	ErrAlreadyJoined     = errors.New("peer already joined")
	ErrTransportNotFound = errors.New("transport not found")
	ErrProducerNotFound  = errors.New("producer not found")
	ErrConsumerNotFound  = errors.New("consumer not found")
	ErrIncompatibleMedia = errors.New("incompatible media")

	ErrInvalidRoomID       = errors.New("invalid room id")
	ErrInvalidRole         = errors.New("invalid role")
	ErrInvalidPayload      = errors.New("invalid payload")
	ErrDisplayNameTooLong  = errors.New("display name too long")
	ErrWrongDirection      = errors.New("transport direction does not allow this operation")
	ErrDuplicateProducer   = errors.New("peer already produces this kind")
	ErrViewerCannotProduce = errors.New("viewers cannot produce media")
	ErrRateLimited         = errors.New("too many requests")

	ErrStreamNotAvailable = errors.New("not available")

	ErrSubprocessSpawn        = errors.New("subprocess spawn failure")
	ErrSubprocessAbnormalExit = errors.New("subprocess abnormal exit")
	ErrArtifactCleanup        = errors.New("artifact cleanup failure")
)

// Protocol error codes sent to signaling clients.
const (
	CodeRoomNotFound      = "ROOM_NOT_FOUND"
	CodePeerNotJoined     = "PEER_NOT_JOINED"
	CodeAlreadyJoined     = "ALREADY_JOINED"
	CodeTransportNotFound = "TRANSPORT_NOT_FOUND"
	CodeProducerNotFound  = "PRODUCER_NOT_FOUND"
	CodeConsumerNotFound  = "CONSUMER_NOT_FOUND"
	CodeIncompatibleMedia = "INCOMPATIBLE_MEDIA"
	CodeNotAvailable      = "NOT_AVAILABLE"
	CodeBadRequest        = "BAD_REQUEST"
	CodeWrongDirection    = "WRONG_DIRECTION"
	CodeDuplicateProducer = "DUPLICATE_PRODUCER"
	CodeForbidden         = "FORBIDDEN"
	CodeRateLimited       = "RATE_LIMITED"
	CodeTimeout           = "TIMEOUT"
	CodeInternal          = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrRoomNotFound, CodeRoomNotFound},
	{ErrRoomClosed, CodeRoomNotFound},
	{ErrPeerNotJoined, CodePeerNotJoined},
	{ErrAlreadyJoined, CodeAlreadyJoined},
	{ErrTransportNotFound, CodeTransportNotFound},
	{ErrProducerNotFound, CodeProducerNotFound},
	{ErrConsumerNotFound, CodeConsumerNotFound},
	{ErrIncompatibleMedia, CodeIncompatibleMedia},
	{ErrStreamNotAvailable, CodeNotAvailable},
	{ErrInvalidRoomID, CodeBadRequest},
	{ErrInvalidRole, CodeBadRequest},
	{ErrInvalidPayload, CodeBadRequest},
	{ErrDisplayNameTooLong, CodeBadRequest},
	{ErrWrongDirection, CodeWrongDirection},
	{ErrDuplicateProducer, CodeDuplicateProducer},
	{ErrViewerCannotProduce, CodeForbidden},
	{ErrRateLimited, CodeRateLimited},
	{context.DeadlineExceeded, CodeTimeout},
}

// Code maps an error to the protocol code returned to clients.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
