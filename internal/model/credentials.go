package model

import (
	"context"
	"os"
)

// CredentialProvider supplies a bearer token for the model backend. The
// client has no dependency on any concrete fetching mechanism; local
// backends typically need no credential at all.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticCredential returns the same token on every call. An empty token
// disables the Authorization header.
type StaticCredential string

func (s StaticCredential) Token(context.Context) (string, error) {
	return string(s), nil
}

// EnvCredential reads the token from an environment variable on each call,
// so rotated values are picked up without a restart.
type EnvCredential string

func (e EnvCredential) Token(context.Context) (string, error) {
	return os.Getenv(string(e)), nil
}
