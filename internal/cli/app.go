package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/esantos/moneta/internal/auth"
	"github.com/esantos/moneta/internal/config"
	"github.com/esantos/moneta/internal/fingerprint"
	"github.com/esantos/moneta/internal/remote"
	"github.com/esantos/moneta/internal/syncengine"
	"github.com/esantos/moneta/internal/syncstore"
	"github.com/esantos/moneta/internal/utils"
)

// app bundles the wired collaborators a sync command needs.
type app struct {
	cfg    *config.Config
	store  *syncstore.Store
	engine *syncengine.Engine
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// newApp loads configuration and wires the sync engine. When needRemote
// is false the remote client is left unset and commands that only touch
// local state (disconnect, reset, backups) still work offline and
// unauthenticated.
func newApp(ctx context.Context, needRemote bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	configDir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}

	store, err := syncstore.Open(filepath.Join(configDir, "sync.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open sync store: %w", err)
	}

	dbPath, err := cfg.GetDatabasePath()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	backupsDir, err := cfg.GetBackupsDir()
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var remoteClient remote.Client
	if needRemote {
		remoteClient, err = buildRemote(ctx, cfg, configDir)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	engine := syncengine.New(
		store,
		fingerprint.New(dbPath),
		remoteClient,
		syncengine.NewBackupManager(backupsDir, utils.BackupRetention),
		syncengine.Options{Logger: GetLogger()},
	)
	return &app{cfg: cfg, store: store, engine: engine}, nil
}

func buildRemote(ctx context.Context, cfg *config.Config, configDir string) (remote.Client, error) {
	switch cfg.RemoteProvider {
	case config.ProviderS3:
		return remote.NewS3Client(ctx, remote.S3Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		}, GetLogger())
	case config.ProviderGoogleDrive:
		mgr := auth.NewManager(configDir)
		svc, err := mgr.GetDriveService(ctx, GetGlobalFlags().Profile)
		if err != nil {
			return nil, err
		}
		return remote.NewDriveClient(svc, cfg.MaxRetries, cfg.RetryBaseDelay, GetLogger()), nil
	default:
		return nil, fmt.Errorf("unknown remote provider: %s", cfg.RemoteProvider)
	}
}

// openBrowser launches the default browser for the auth flow.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// getConfigDir returns the config directory, falling back to the home
// directory convention when resolution fails.
func getConfigDir() string {
	dir, err := config.GetConfigDir()
	if err == nil {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "moneta")
}
