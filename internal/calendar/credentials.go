package calendar

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// OAuth2Credentials is the client section of a Google Cloud Console credentials file.
type OAuth2Credentials struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURIs []string `json:"redirect_uris"`
	AuthURI      string   `json:"auth_uri,omitempty"`
	TokenURI     string   `json:"token_uri,omitempty"`
}

// CredentialsFile is credentials.json as downloaded from Google Cloud Console.
type CredentialsFile struct {
	Installed *OAuth2Credentials `json:"installed,omitempty"`
	Web       *OAuth2Credentials `json:"web,omitempty"`
}

// ParseCredentials accepts the bare client object or the installed/web wrapper.
func ParseCredentials(credentialsJSON string) (*OAuth2Credentials, error) {
	var direct OAuth2Credentials
	if err := json.Unmarshal([]byte(credentialsJSON), &direct); err == nil {
		if direct.ClientID != "" && direct.ClientSecret != "" {
			log.Printf("✅ Parsed direct OAuth2 credentials format")
			return &direct, nil
		}
	}

	var file CredentialsFile
	if err := json.Unmarshal([]byte(credentialsJSON), &file); err != nil {
		return nil, fmt.Errorf("failed to parse credentials as Google format: %w", err)
	}
	if file.Installed != nil && file.Installed.ClientID != "" {
		log.Printf("✅ Parsed Google Cloud Console credentials (installed/desktop format)")
		return file.Installed, nil
	}
	if file.Web != nil && file.Web.ClientID != "" {
		log.Printf("✅ Parsed Google Cloud Console credentials (web format)")
		return file.Web, nil
	}
	return nil, fmt.Errorf("no valid credentials found in JSON - expected 'installed' or 'web' section")
}

// RedirectURL is the first registered redirect, or the out-of-band URN for desktop clients.
func (c *OAuth2Credentials) RedirectURL() string {
	if len(c.RedirectURIs) > 0 && c.RedirectURIs[0] != "" {
		return c.RedirectURIs[0]
	}
	return "urn:ietf:wg:oauth:2.0:oob"
}

func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return tok, nil
}

// SaveToken writes tok with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

func saveCredentials(path, credentialsJSON string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(credentialsJSON), 0o600)
}
