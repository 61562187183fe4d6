package schema

import (
	"encoding/json"
	"fmt"
)

// SnapshotVersion is the current snapshot wire version.
const SnapshotVersion = 1

// Snapshot is the persisted record of the last-known declared schema per
// table. It is used to report column additions and removals across runs;
// it is never consulted to drop anything.
type Snapshot struct {
	Version int              `json:"version"`
	Models  map[string]Table `json:"models"`
}

// NewSnapshot returns an empty snapshot at the current version.
func NewSnapshot() *Snapshot {
	return &Snapshot{Version: SnapshotVersion, Models: make(map[string]Table)}
}

// DecodeSnapshot parses snapshot bytes. Two forms are accepted: the
// versioned {version, models} object, and the legacy unversioned bare
// map of tableKey to Table, which is upgraded to version 1 in place.
// Any other version is a fatal load error.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}

	if probe.Version == nil {
		// Legacy form: bare map of tableKey -> Table.
		var models map[string]Table
		if err := json.Unmarshal(data, &models); err != nil {
			return nil, fmt.Errorf("parse legacy snapshot: %w", err)
		}
		snap := NewSnapshot()
		for k, v := range models {
			snap.Models[k] = v
		}
		return snap, nil
	}

	if *probe.Version != SnapshotVersion {
		return nil, fmt.Errorf("unknown snapshot version %d", *probe.Version)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if snap.Models == nil {
		snap.Models = make(map[string]Table)
	}
	return &snap, nil
}

// Encode serializes the snapshot. Map keys are emitted in sorted order
// (encoding/json sorts map keys), so the output is deterministic.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DiffColumns compares two declared tables by physical column name and
// returns the names present only in next (added) and only in prev
// (removed), in each table's declaration order.
func DiffColumns(prev, next Table) (added, removed []string) {
	prevSet := make(map[string]bool, len(prev.Columns))
	for _, c := range prev.Columns {
		prevSet[c.PhysicalName()] = true
	}
	nextSet := make(map[string]bool, len(next.Columns))
	for _, c := range next.Columns {
		nextSet[c.PhysicalName()] = true
	}
	for _, c := range next.Columns {
		if !prevSet[c.PhysicalName()] {
			added = append(added, c.PhysicalName())
		}
	}
	for _, c := range prev.Columns {
		if !nextSet[c.PhysicalName()] {
			removed = append(removed, c.PhysicalName())
		}
	}
	return added, removed
}
