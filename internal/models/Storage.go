package models

// SnapshotVersion is bumped whenever the on-disk layout changes.
const SnapshotVersion = 1

// Snapshot is the persistence envelope of the in-memory participant store.
type Snapshot struct {
	Version      int           `json:"version"`
	Participants []Participant `json:"participants"`
	Receipts     []Receipt     `json:"receipts"`
}
