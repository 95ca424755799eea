// Package auth turns user-supplied credentials into a go-git transport
// auth method suited to a remote URL.
package auth

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	gossh "golang.org/x/crypto/ssh"

	"github.com/thiagokokada/simplegit/internal/giterr"
)

const (
	defaultSSHUser   = "git"
	defaultTokenUser = "token"
)

// Credentials holds whatever the user configured; fields irrelevant to the
// remote's protocol are ignored.
type Credentials struct {
	Username string
	Password string
	// Token is sent as the HTTP basic-auth password.
	Token string

	SSHKeyPath    string
	SSHPassphrase string
	SSHAgent      bool
	// KnownHosts overrides the known_hosts file used to verify host keys.
	KnownHosts      string
	InsecureHostKey bool
}

func (c Credentials) Empty() bool {
	return c == Credentials{}
}

// Method returns the auth method for remoteURL. A nil method with a nil
// error means the transport should connect anonymously or use its defaults.
func (c Credentials) Method(remoteURL string) (transport.AuthMethod, error) {
	ep, err := transport.NewEndpoint(remoteURL)
	if err != nil {
		return nil, giterr.Join(giterr.ErrInvalidArgument, err, "parse remote url")
	}
	switch ep.Protocol {
	case "http", "https":
		return c.httpMethod(), nil
	case "ssh":
		return c.sshMethod(ep)
	default:
		return nil, nil
	}
}

func (c Credentials) httpMethod() transport.AuthMethod {
	switch {
	case c.Token != "":
		user := c.Username
		if user == "" {
			user = defaultTokenUser
		}
		return &http.BasicAuth{Username: user, Password: c.Token}
	case c.Username != "" || c.Password != "":
		return &http.BasicAuth{Username: c.Username, Password: c.Password}
	default:
		return nil
	}
}

func (c Credentials) sshMethod(ep *transport.Endpoint) (transport.AuthMethod, error) {
	user := ep.User
	if user == "" {
		user = c.Username
	}
	if user == "" {
		user = defaultSSHUser
	}
	callback, err := c.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	switch {
	case c.SSHKeyPath != "":
		if _, err := os.Stat(c.SSHKeyPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, giterr.Wrapf(giterr.ErrInvalidArgument, "ssh key %s does not exist", c.SSHKeyPath)
			}
			return nil, giterr.Join(giterr.ErrIO, err, "stat ssh key")
		}
		keys, err := ssh.NewPublicKeysFromFile(user, c.SSHKeyPath, c.SSHPassphrase)
		if err != nil {
			return nil, fmt.Errorf("load ssh key %s: %w", c.SSHKeyPath, err)
		}
		if callback != nil {
			keys.HostKeyCallback = callback
		}
		return keys, nil
	case c.SSHAgent:
		agent, err := ssh.NewSSHAgentAuth(user)
		if err != nil {
			return nil, giterr.Join(giterr.ErrTransport, err, "connect ssh agent")
		}
		if callback != nil {
			agent.HostKeyCallback = callback
		}
		return agent, nil
	default:
		return nil, nil
	}
}

func (c Credentials) hostKeyCallback() (gossh.HostKeyCallback, error) {
	if c.InsecureHostKey {
		return gossh.InsecureIgnoreHostKey(), nil //nolint:gosec // opt-in
	}
	if c.KnownHosts == "" {
		return nil, nil
	}
	cb, err := ssh.NewKnownHostsCallback(c.KnownHosts)
	if err != nil {
		return nil, fmt.Errorf("load known hosts %s: %w", c.KnownHosts, err)
	}
	return cb, nil
}
