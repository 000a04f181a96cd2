// Package domain contains entities and negotiation records without logic beyond validation.
package domain

import (
	"regexp"

	"github.com/google/uuid"
)

const MaxRoomIDLen = 64

type (
	RoomID      string
	PeerID      string
	TransportID string
	ProducerID  string
	ConsumerID  string
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ParseRoomID validates an externally supplied room id.
// Room ids end up in filesystem paths, so only a safe alphabet is accepted.
func ParseRoomID(s string) (RoomID, error) {
	if !roomIDPattern.MatchString(s) {
		return "", ErrInvalidRoomID
	}
	return RoomID(s), nil
}

func NewPeerID() PeerID           { return PeerID(uuid.NewString()) }
func NewTransportID() TransportID { return TransportID(uuid.NewString()) }
func NewProducerID() ProducerID   { return ProducerID(uuid.NewString()) }
func NewConsumerID() ConsumerID   { return ConsumerID(uuid.NewString()) }
