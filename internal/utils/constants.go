package utils

import "time"

// ClockSkewBuffer is the tolerance applied when comparing the remote
// modification time against the last-synced timestamp. Remote clocks and
// the local clock are not guaranteed to agree; a remote copy is only
// considered changed when its mtime exceeds lastSyncedAt by more than
// this window.
const ClockSkewBuffer = 60 * time.Second

// BackupRetention is how many safety backups to keep per operation tag.
const BackupRetention = 5

// BackupFileName is the conventional name of the database copy inside a
// folder-based sync target.
const BackupFileName = "moneta.db"

// FingerprintProperty is the remote metadata key carrying the content
// hash of an uploaded database copy.
const FingerprintProperty = "monetaContentHash"

// OAuth scopes
const (
	ScopeDriveFile = "https://www.googleapis.com/auth/drive.file"
	ScopeDrive     = "https://www.googleapis.com/auth/drive"
)

// DefaultScopes is what the sync engine needs: full access to files the
// app created plus read of the configured target.
var DefaultScopes = []string{ScopeDriveFile, ScopeDrive}

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// RevokeEndpoint is where Google OAuth tokens are invalidated on
// disconnect.
const RevokeEndpoint = "https://oauth2.googleapis.com/revoke"

// Schema version
const SchemaVersion = "1.0"
