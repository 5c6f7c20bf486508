// Package netsync carries machine state from the authoritative world to presentation observers.
// Every message is a full snapshot of one machine; a newer snapshot replaces an older one
// wholesale and there are no acknowledgements or retries.
package netsync

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

// Snapshot is the full state of one machine at a tick. Removed snapshots carry no state.
type Snapshot struct {
	Key     types.Key    `json:"key"`
	Kind    string       `json:"kind"`
	Epoch   int64        `json:"epoch"`
	Seq     uint64       `json:"seq"`
	Tick    uint64       `json:"tick"`
	Removed bool         `json:"removed,omitempty"`
	State   tag.Compound `json:"state,omitempty"`
}

// Supersedes reports whether s replaces other: a later epoch always wins and within an epoch the
// higher sequence number wins.
func (s Snapshot) Supersedes(other Snapshot) bool {
	if s.Epoch != other.Epoch {
		return s.Epoch > other.Epoch
	}
	return s.Seq > other.Seq
}

func (s Snapshot) Marshal() ([]byte, error) {
	bz, err := json.Marshal(s)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal snapshot")
	}
	return bz, nil
}

func UnmarshalSnapshot(bz []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(bz, &s); err != nil {
		return Snapshot{}, eris.Wrap(err, "failed to unmarshal snapshot")
	}
	return s, nil
}

// Sequencer stamps outgoing snapshots. The epoch is fixed when the sequencer is created, so the
// snapshots of a restarted world supersede everything sent before the restart.
type Sequencer struct {
	epoch int64
	seq   atomic.Uint64
}

func NewSequencer() *Sequencer {
	return NewSequencerWithEpoch(time.Now().UnixNano())
}

func NewSequencerWithEpoch(epoch int64) *Sequencer {
	return &Sequencer{epoch: epoch}
}

func (s *Sequencer) Epoch() int64 {
	return s.epoch
}

// Stamp assigns the next sequence number to snapshot.
func (s *Sequencer) Stamp(snapshot *Snapshot) {
	snapshot.Epoch = s.epoch
	snapshot.Seq = s.seq.Add(1)
}
