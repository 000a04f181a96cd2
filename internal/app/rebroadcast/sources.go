package rebroadcast

import (
	"slices"

	"github.com/dkeye/roomcast/internal/domain"
)

// Source is one live producer offered to the pipeline.
type Source struct {
	PeerID     domain.PeerID
	ProducerID domain.ProducerID
	Kind       domain.MediaKind
	Codec      domain.RTPCodec
}

// SourceSet is the Media Source Set of one peer.
type SourceSet struct {
	PeerID domain.PeerID
	Audio  *Source
	Video  *Source
}

func (s *SourceSet) Complete() bool { return s.Audio != nil && s.Video != nil }

func (s *SourceSet) empty() bool { return s.Audio == nil && s.Video == nil }

// sources keeps per-peer source sets in arrival order so the layout is stable.
type sources struct {
	order []domain.PeerID
	sets  map[domain.PeerID]*SourceSet
}

func newSources() *sources {
	return &sources{sets: make(map[domain.PeerID]*SourceSet)}
}

func (ss *sources) add(src Source) {
	set, ok := ss.sets[src.PeerID]
	if !ok {
		set = &SourceSet{PeerID: src.PeerID}
		ss.sets[src.PeerID] = set
		ss.order = append(ss.order, src.PeerID)
	}
	s := src
	switch src.Kind {
	case domain.KindAudio:
		set.Audio = &s
	case domain.KindVideo:
		set.Video = &s
	}
}

// removeProducer drops one producer and reports the owning peer.
func (ss *sources) removeProducer(id domain.ProducerID) (domain.PeerID, bool) {
	for _, pid := range ss.order {
		set := ss.sets[pid]
		switch {
		case set.Audio != nil && set.Audio.ProducerID == id:
			set.Audio = nil
		case set.Video != nil && set.Video.ProducerID == id:
			set.Video = nil
		default:
			continue
		}
		if set.empty() {
			ss.removePeer(pid)
		}
		return pid, true
	}
	return "", false
}

func (ss *sources) removePeer(id domain.PeerID) bool {
	if _, ok := ss.sets[id]; !ok {
		return false
	}
	delete(ss.sets, id)
	ss.order = slices.DeleteFunc(ss.order, func(p domain.PeerID) bool { return p == id })
	return true
}

// complete returns copies of the complete sets in arrival order.
func (ss *sources) complete() []SourceSet {
	out := make([]SourceSet, 0, len(ss.order))
	for _, pid := range ss.order {
		if set := ss.sets[pid]; set.Complete() {
			out = append(out, *set)
		}
	}
	return out
}
