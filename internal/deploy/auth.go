package deploy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"git.home.luguber.info/inful/blogbuilder/internal/config"
)

// createAuth returns a go-git AuthMethod for the given AuthConfig.
// A nil config or empty type means no authentication.
func createAuth(authCfg *config.AuthConfig) (transport.AuthMethod, error) {
	if authCfg == nil || authCfg.Type == "" {
		return nil, nil
	}

	switch authCfg.Type {
	case "token":
		if authCfg.Token == "" {
			return nil, fmt.Errorf("token authentication requires a token")
		}
		// Most Git hosting services accept "token" as the username.
		username := authCfg.Username
		if username == "" {
			username = "token"
		}
		return &githttp.BasicAuth{Username: username, Password: authCfg.Token}, nil

	case "basic":
		if authCfg.Username == "" || authCfg.Password == "" {
			return nil, fmt.Errorf("basic authentication requires username and password")
		}
		return &githttp.BasicAuth{Username: authCfg.Username, Password: authCfg.Password}, nil

	case "ssh":
		keyPath := authCfg.KeyPath
		if keyPath == "" {
			keyPath = filepath.Join(os.Getenv("HOME"), ".ssh", "id_rsa")
		}
		if _, err := os.Stat(keyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("SSH key file does not exist: %s", keyPath)
		}
		keys, err := gitssh.NewPublicKeysFromFile("git", keyPath, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key from %s: %w", keyPath, err)
		}
		return keys, nil

	default:
		return nil, fmt.Errorf("unsupported authentication type: %s", authCfg.Type)
	}
}
