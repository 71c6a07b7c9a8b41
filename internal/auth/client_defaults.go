package auth

// BundledOAuthClientID and BundledOAuthClientSecret can be set at build
// time via -ldflags. If unset, login requires an explicit OAuth client.
var (
	BundledOAuthClientID     string
	BundledOAuthClientSecret string
)

// GetBundledOAuthClient returns the bundled OAuth client, if any.
func GetBundledOAuthClient() (string, string, bool) {
	if BundledOAuthClientID == "" {
		return "", "", false
	}
	return BundledOAuthClientID, BundledOAuthClientSecret, true
}
