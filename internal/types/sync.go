package types

import "time"

// TargetKind distinguishes the two sync topologies: searching a cloud
// folder for a conventionally-named backup, or tracking one fixed file.
type TargetKind string

const (
	TargetFolder TargetKind = "folder"
	TargetFile   TargetKind = "file"
)

// SyncTarget identifies the remote copy of the database. Kind selects
// which topology is active; ID is the folder ID or file ID accordingly.
type SyncTarget struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
	Name string     `json:"name,omitempty"`
}

// SyncStatus classifies the relationship between the local database and
// its cloud copy.
type SyncStatus string

const (
	// StatusNotConfigured means sync has never been set up; editing is
	// unconstrained.
	StatusNotConfigured SyncStatus = "not_configured"
	// StatusNoCloudBackup means sync is configured but no remote copy
	// exists yet.
	StatusNoCloudBackup SyncStatus = "no_cloud_backup"
	// StatusNeverSynced means a remote copy exists but no sync has ever
	// been confirmed, so neither side is known to be authoritative.
	StatusNeverSynced SyncStatus = "never_synced"
	// StatusInSync means both copies match the last confirmed sync point.
	StatusInSync SyncStatus = "in_sync"
	// StatusLocalOnly means only the local copy changed since last sync.
	StatusLocalOnly SyncStatus = "local_only"
	// StatusCloudOnly means only the cloud copy changed since last sync.
	StatusCloudOnly SyncStatus = "cloud_only"
	// StatusConflict means both copies changed since last sync.
	StatusConflict SyncStatus = "conflict"
	// StatusCheckFailed means the remote could not be reached; the check
	// is inconclusive and editing stays allowed.
	StatusCheckFailed SyncStatus = "check_failed"
)

// SyncState is the evaluator's output: the classified status plus the
// edit-permission decision and display data.
type SyncState struct {
	Status          SyncStatus `json:"status"`
	CanEdit         bool       `json:"canEdit"`
	HasLocalChanges bool       `json:"hasLocalChanges"`
	HasCloudChanges bool       `json:"hasCloudChanges"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	CloudModifiedAt *time.Time `json:"cloudModifiedAt,omitempty"`
	Message         string     `json:"message"`
	Warning         string     `json:"warning,omitempty"`
}

// NeedsResolution reports whether the caller must run the conflict
// resolution protocol before editing can continue.
func (s SyncState) NeedsResolution() bool {
	return !s.CanEdit
}
