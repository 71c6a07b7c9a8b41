package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/esantos/moneta/internal/types"
	"github.com/esantos/moneta/internal/utils"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	serviceName        = "moneta"
	tokenRefreshBuffer = 5 * time.Minute
)

// Manager owns credential storage and the OAuth2 lifecycle for the
// Google Drive remote. The S3 remote authenticates through the AWS
// credential chain and never touches this manager.
type Manager struct {
	configDir      string
	useKeyring     bool
	storage        StorageBackend
	oauthConfig    *oauth2.Config
	storageWarning string
}

// ManagerOptions configures credential storage selection.
type ManagerOptions struct {
	ForceEncryptedFile bool // skip the keyring even when available
	ForcePlainFile     bool // plain JSON files, development only
}

// NewManager creates an auth manager with the default storage chain:
// system keyring, then AES encrypted files, then plain files.
func NewManager(configDir string) *Manager {
	return NewManagerWithOptions(configDir, ManagerOptions{})
}

func NewManagerWithOptions(configDir string, opts ManagerOptions) *Manager {
	mgr := &Manager{configDir: configDir}

	switch {
	case opts.ForcePlainFile:
		mgr.storage = NewPlainFileStorage(configDir)
		mgr.storageWarning = "WARNING: Using unencrypted file storage. Credentials are stored in plain text."
	case opts.ForceEncryptedFile || !keyringAvailable():
		storage, err := NewEncryptedFileStorage(configDir)
		if err != nil {
			mgr.storage = NewPlainFileStorage(configDir)
			mgr.storageWarning = fmt.Sprintf("WARNING: Encryption setup failed (%v). Using plain file storage.", err)
			break
		}
		mgr.storage = storage
		if !opts.ForceEncryptedFile {
			mgr.storageWarning = "INFO: System keyring not available. Using encrypted file storage."
		}
	default:
		mgr.storage = NewKeyringStorage(serviceName)
		mgr.useKeyring = true
	}

	return mgr
}

// keyringAvailable probes the system keyring with a throwaway entry.
func keyringAvailable() bool {
	const probe = "moneta-probe"
	if err := keyring.Set(serviceName, probe, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, probe)
	return true
}

// SetOAuthConfig sets the OAuth2 client used for login and refresh.
func (m *Manager) SetOAuthConfig(clientID, clientSecret string, scopes []string) {
	m.oauthConfig = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}
}

func (m *Manager) GetOAuthConfig() *oauth2.Config {
	return m.oauthConfig
}

// LoadCredentials loads stored credentials for a profile. When the
// stored record carries its OAuth client and none is set yet, the
// manager adopts it so refresh works across runs.
func (m *Manager) LoadCredentials(profile string) (*types.Credentials, error) {
	data, err := m.storage.Load(profile)
	if err != nil {
		return nil, err
	}

	var stored types.StoredCredentials
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	if m.oauthConfig == nil && stored.ClientID != "" {
		m.SetOAuthConfig(stored.ClientID, stored.ClientSecret, stored.Credentials.Scopes)
	}

	creds := stored.Credentials
	return &creds, nil
}

// SaveCredentials persists credentials for a profile.
func (m *Manager) SaveCredentials(profile string, creds *types.Credentials) error {
	stored := types.StoredCredentials{
		Credentials: *creds,
		SavedAt:     time.Now().UTC(),
	}
	if m.oauthConfig != nil {
		stored.ClientID = m.oauthConfig.ClientID
		stored.ClientSecret = m.oauthConfig.ClientSecret
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := m.storage.Save(profile, data); err != nil {
		return err
	}
	return m.addProfileToList(profile)
}

// DeleteCredentials removes credentials for a profile.
func (m *Manager) DeleteCredentials(profile string) error {
	if err := m.storage.Delete(profile); err != nil {
		return err
	}
	return m.removeProfileFromList(profile)
}

// NeedsRefresh reports whether the access token expires inside the
// refresh buffer.
func (m *Manager) NeedsRefresh(creds *types.Credentials) bool {
	return time.Now().Add(tokenRefreshBuffer).After(creds.Expiry)
}

// RefreshCredentials exchanges the refresh token for a fresh access
// token.
func (m *Manager) RefreshCredentials(ctx context.Context, creds *types.Credentials) (*types.Credentials, error) {
	if m.oauthConfig == nil {
		return nil, fmt.Errorf("OAuth config not set")
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    creds.TokenType,
		Expiry:       creds.Expiry,
	}
	newToken, err := m.oauthConfig.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	refreshToken := newToken.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken
	}
	return &types.Credentials{
		AccessToken:  newToken.AccessToken,
		RefreshToken: refreshToken,
		TokenType:    newToken.TokenType,
		Expiry:       newToken.Expiry,
		Scopes:       creds.Scopes,
	}, nil
}

// GetValidCredentials returns usable credentials for a profile,
// refreshing and re-saving them when close to expiry.
func (m *Manager) GetValidCredentials(ctx context.Context, profile string) (*types.Credentials, error) {
	creds, err := m.LoadCredentials(profile)
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			"No credentials found. Run 'moneta auth login' first.").Build())
	}

	if !m.NeedsRefresh(creds) {
		return creds, nil
	}

	newCreds, err := m.RefreshCredentials(ctx, creds)
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthExpired,
			"Token refresh failed. Run 'moneta auth login' to re-authenticate.").Build())
	}
	if err := m.SaveCredentials(profile, newCreds); err != nil {
		return nil, fmt.Errorf("failed to save refreshed credentials: %w", err)
	}
	return newCreds, nil
}

// GetHTTPClient returns an HTTP client that authenticates with the
// given credentials and keeps them fresh.
func (m *Manager) GetHTTPClient(ctx context.Context, creds *types.Credentials) *http.Client {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    creds.TokenType,
		Expiry:       creds.Expiry,
	}
	if m.oauthConfig == nil {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	}
	return m.oauthConfig.Client(ctx, token)
}

// GetDriveService builds a Drive API service for a profile.
func (m *Manager) GetDriveService(ctx context.Context, profile string) (*drive.Service, error) {
	creds, err := m.GetValidCredentials(ctx, profile)
	if err != nil {
		return nil, err
	}
	svc, err := drive.NewService(ctx, option.WithHTTPClient(m.GetHTTPClient(ctx, creds)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return svc, nil
}

// Revoke invalidates the tokens with Google and deletes the stored
// credentials. Deletion happens even when revocation fails, so a logout
// always clears local state.
func (m *Manager) Revoke(ctx context.Context, profile string) error {
	creds, loadErr := m.LoadCredentials(profile)

	var revokeErr error
	if loadErr == nil {
		token := creds.RefreshToken
		if token == "" {
			token = creds.AccessToken
		}
		revokeErr = revokeToken(ctx, token)
	}

	if err := m.DeleteCredentials(profile); err != nil {
		return err
	}
	return revokeErr
}

func revokeToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		utils.RevokeEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token revocation returned status %d", resp.StatusCode)
	}
	return nil
}

// UseKeyring reports whether the system keyring backs credential storage.
func (m *Manager) UseKeyring() bool {
	return m.useKeyring
}

func (m *Manager) ConfigDir() string {
	return m.configDir
}

// GetStorageBackend returns the name of the active storage backend.
func (m *Manager) GetStorageBackend() string {
	return m.storage.Name()
}

// GetStorageWarning returns any warning about degraded storage.
func (m *Manager) GetStorageWarning() string {
	return m.storageWarning
}
