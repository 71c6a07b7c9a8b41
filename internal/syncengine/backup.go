package syncengine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/esantos/moneta/internal/utils"
)

// Backup tags name the operation a safety copy was taken for. Retention
// is enforced per tag, so frequent pushes never evict the backup taken
// before a destructive pull.
const (
	TagPrePush    = "pre-push"
	TagPrePull    = "pre-pull"
	TagPreRestore = "pre-restore"
	TagPreReset   = "pre-reset"
	TagPreClear   = "pre-clear"
)

// timestampLayout sorts lexically in creation order. Microsecond
// precision keeps names unique even for back-to-back operations.
const timestampLayout = "20060102-150405.000000"

// BackupManager writes timestamped safety copies of the database into a
// single directory and prunes old ones per tag.
type BackupManager struct {
	dir  string
	keep int
	now  func() time.Time
}

// Backup describes one safety copy on disk.
type Backup struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Tag       string    `json:"tag"`
	CreatedAt time.Time `json:"createdAt"`
	Size      int64     `json:"size"`
}

// NewBackupManager creates a manager over dir that keeps the most recent
// `keep` backups per tag. Pass utils.BackupRetention unless a test needs
// a different window.
func NewBackupManager(dir string, keep int) *BackupManager {
	if keep <= 0 {
		keep = utils.BackupRetention
	}
	return &BackupManager{dir: dir, keep: keep, now: time.Now}
}

// Create copies srcPath into the backup directory under a fresh
// tag-and-timestamp name and returns the backup path.
func (m *BackupManager) Create(tag, srcPath string) (string, error) {
	if err := os.MkdirAll(m.dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s.db", tag, m.now().UTC().Format(timestampLayout))
	dst := filepath.Join(m.dir, name)
	if err := copyFile(srcPath, dst); err != nil {
		return "", fmt.Errorf("failed to write backup %s: %w", name, err)
	}
	return dst, nil
}

// Prune deletes the oldest backups for tag beyond the retention window.
func (m *BackupManager) Prune(tag string) error {
	backups, err := m.List(tag)
	if err != nil {
		return err
	}
	for _, b := range backups[min(len(backups), m.keep):] {
		if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to prune backup %s: %w", b.Name, err)
		}
	}
	return nil
}

// List returns the backups for tag, newest first. An empty tag lists all
// backups.
func (m *BackupManager) List(tag string) ([]Backup, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Backup
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		b, ok := parseBackupName(entry.Name())
		if !ok {
			continue
		}
		if tag != "" && b.Tag != tag {
			continue
		}
		if info, err := entry.Info(); err == nil {
			b.Size = info.Size()
		}
		b.Path = filepath.Join(m.dir, b.Name)
		backups = append(backups, b)
	}

	// Timestamped names sort lexically; reverse for newest first.
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Name > backups[j].Name
	})
	return backups, nil
}

// parseBackupName matches <tag>-<timestamp>.db and recovers the tag and
// creation time.
func parseBackupName(name string) (Backup, bool) {
	if !strings.HasSuffix(name, ".db") {
		return Backup{}, false
	}
	base := strings.TrimSuffix(name, ".db")
	if len(base) < len(timestampLayout)+1 {
		return Backup{}, false
	}
	split := len(base) - len(timestampLayout)
	tag, stamp := base[:split-1], base[split:]
	if base[split-1] != '-' || tag == "" {
		return Backup{}, false
	}
	createdAt, err := time.Parse(timestampLayout, stamp)
	if err != nil {
		return Backup{}, false
	}
	return Backup{Name: name, Tag: tag, CreatedAt: createdAt}, true
}

// copyFile copies src to dst, fsyncing before close so a crash cannot
// leave a truncated backup that looks valid.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
