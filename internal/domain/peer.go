package domain

import "strings"

const MaxDisplayNameLen = 36

type Role string

const (
	RoleParticipant Role = "participant"
	RoleViewer      Role = "viewer"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(s)) {
	case "", RoleParticipant:
		return RoleParticipant, nil
	case RoleViewer:
		return RoleViewer, nil
	}
	return "", ErrInvalidRole
}

// Peer is one connected member of a room.
type Peer struct {
	ID          PeerID `json:"peerId"`
	Role        Role   `json:"role"`
	DisplayName string `json:"displayName,omitempty"`
}

// NewPeer validates the join metadata and assigns a fresh id.
func NewPeer(role Role, displayName string) (*Peer, error) {
	if err := validateDisplayName(displayName); err != nil {
		return nil, err
	}
	if role == "" {
		role = RoleParticipant
	}
	return &Peer{ID: NewPeerID(), Role: role, DisplayName: displayName}, nil
}

func (p *Peer) CanProduce() bool { return p.Role == RoleParticipant }

func validateDisplayName(name string) error {
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}
