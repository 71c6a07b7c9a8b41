package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/esantos/moneta/internal/auth"
	"github.com/esantos/moneta/internal/utils"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Manage Google Drive authentication for the sync remote",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with Google Drive",
	Long:  "Run the OAuth2 flow and store credentials for the current profile",
	RunE:  runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke and remove stored credentials",
	RunE:  runAuthLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE:  runAuthStatus,
}

var authProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List credential profiles",
	RunE:  runAuthProfiles,
}

var (
	authNoBrowser bool
	clientID      string
	clientSecret  string
)

func init() {
	authLoginCmd.Flags().BoolVar(&authNoBrowser, "no-browser", false, "Use the copy-paste flow instead of a browser")
	authLoginCmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client ID")
	authLoginCmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authProfilesCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	if clientID == "" || clientSecret == "" {
		clientID = os.Getenv("MONETA_CLIENT_ID")
		clientSecret = os.Getenv("MONETA_CLIENT_SECRET")
	}
	if clientID == "" {
		var ok bool
		clientID, clientSecret, ok = auth.GetBundledOAuthClient()
		if !ok {
			return fmt.Errorf("OAuth client ID and secret required. Set via --client-id/--client-secret or MONETA_CLIENT_ID/MONETA_CLIENT_SECRET")
		}
	}

	mgr := auth.NewManager(getConfigDir())
	if warning := mgr.GetStorageWarning(); warning != "" {
		out.Log("%s", warning)
	}
	mgr.SetOAuthConfig(clientID, clientSecret, utils.DefaultScopes)

	creds, err := mgr.Authenticate(context.Background(), flags.Profile, openBrowser,
		auth.OAuthAuthOptions{NoBrowser: authNoBrowser})
	if err != nil {
		return out.WriteError("auth.login", utils.NewCLIError(utils.ErrCodeAuthRequired, err.Error()).Build())
	}

	out.Log("Successfully authenticated!")
	return out.WriteSuccess("auth.login", map[string]interface{}{
		"profile":        flags.Profile,
		"scopes":         creds.Scopes,
		"expiry":         creds.Expiry.Format(time.RFC3339),
		"storageBackend": mgr.GetStorageBackend(),
	})
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr := auth.NewManager(getConfigDir())
	if err := mgr.Revoke(context.Background(), flags.Profile); err != nil {
		out.AddWarning(utils.ErrCodeAuthInvalid,
			fmt.Sprintf("Token revocation incomplete: %v", err), "warning")
	}

	out.Log("Credentials removed for profile: %s", flags.Profile)
	return out.WriteSuccess("auth.logout", map[string]interface{}{
		"profile": flags.Profile,
		"status":  "logged_out",
	})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr := auth.NewManager(getConfigDir())
	if warning := mgr.GetStorageWarning(); warning != "" && flags.Verbose {
		out.Log("%s", warning)
	}

	creds, err := mgr.LoadCredentials(flags.Profile)
	if err != nil {
		return out.WriteSuccess("auth.status", map[string]interface{}{
			"profile":        flags.Profile,
			"authenticated":  false,
			"storageBackend": mgr.GetStorageBackend(),
		})
	}

	return out.WriteSuccess("auth.status", map[string]interface{}{
		"profile":        flags.Profile,
		"authenticated":  true,
		"scopes":         creds.Scopes,
		"expiry":         creds.Expiry.Format(time.RFC3339),
		"needsRefresh":   mgr.NeedsRefresh(creds),
		"expired":        time.Now().After(creds.Expiry),
		"storageBackend": mgr.GetStorageBackend(),
	})
}

func runAuthProfiles(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(flags.OutputFormat, flags.Quiet, flags.Verbose)

	mgr := auth.NewManager(getConfigDir())
	profiles, err := mgr.ListProfiles()
	if err != nil {
		return out.WriteError("auth.profiles", utils.NewCLIError(utils.ErrCodeInternalError, err.Error()).Build())
	}
	if profiles == nil {
		profiles = []string{}
	}
	return out.WriteSuccess("auth.profiles", map[string]interface{}{
		"profiles": profiles,
	})
}
