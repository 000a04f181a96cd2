package domain

// RoomStats is a read-only snapshot of one room.
type RoomStats struct {
	RoomID            RoomID `json:"roomId"`
	PeerCount         int    `json:"peerCount"`
	TransportCount    int    `json:"transportCount"`
	ProducerCount     int    `json:"producerCount"`
	ConsumerCount     int    `json:"consumerCount"`
	RebroadcastActive bool   `json:"rebroadcastActive"`
}

type RoomInfo struct {
	ID                RoomID `json:"id"`
	PeerCount         int    `json:"peerCount"`
	RebroadcastActive bool   `json:"rebroadcastActive"`
}
