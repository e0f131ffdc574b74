// Package gitsync mirrors the note directory into a git repository and
// reconciles it with a remote: stage, commit, fetch, merge and push.
package gitsync

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// Config describes the repository and its remote.
type Config struct {
	Dir        string
	RemoteURL  string // empty means local-only
	RemoteName string
	Branch     string
	UserName   string
	UserEmail  string
	// InsecureSkipTLS disables certificate verification for HTTPS remotes.
	InsecureSkipTLS bool
}

func (c Config) withDefaults() Config {
	if c.RemoteName == "" {
		c.RemoteName = "origin"
	}
	if c.Branch == "" {
		c.Branch = "master"
	}
	if c.UserName == "" {
		c.UserName = "Inkwell"
	}
	if c.UserEmail == "" {
		c.UserEmail = "inkwell@localhost"
	}
	return c
}

// AuthType selects how the remote is authenticated.
type AuthType string

const (
	AuthNone     AuthType = "none"
	AuthSSH      AuthType = "ssh"
	AuthPassword AuthType = "password"
)

// Credentials are the secrets for one remote.
type Credentials struct {
	Type       AuthType
	Username   string
	Password   string
	PrivateKey string // path to a private key file
	Passphrase string
}

// CredentialProvider supplies credentials right before a network operation.
type CredentialProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials always returns the same credentials.
type StaticCredentials Credentials

func (s StaticCredentials) Credentials(context.Context) (Credentials, error) {
	return Credentials(s), nil
}

// authMethod turns credentials into a go-git auth method. A nil method lets
// go-git use its defaults (ssh-agent for ssh URLs, anonymous for https).
func (c Credentials) authMethod() (transport.AuthMethod, error) {
	switch c.Type {
	case "", AuthNone:
		return nil, nil
	case AuthSSH:
		user := c.Username
		if user == "" {
			user = "git"
		}
		keys, err := ssh.NewPublicKeysFromFile(user, c.PrivateKey, c.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("load ssh key %s: %w", c.PrivateKey, err)
		}
		return keys, nil
	case AuthPassword:
		return &githttp.BasicAuth{Username: c.Username, Password: c.Password}, nil
	default:
		return nil, fmt.Errorf("unknown auth type %q", c.Type)
	}
}

// ArchiveMessage is the commit message for an archive at t.
func ArchiveMessage(t time.Time) string {
	return "inkwell: archive " + t.UTC().Format(time.RFC3339)
}

func mergeMessage(t time.Time) string {
	return "inkwell: merge " + t.UTC().Format(time.RFC3339)
}
