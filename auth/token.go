package auth

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoToken = errors.New("no access token available")

// Store persists the bearer token between runs, the way the browser dashboard
// kept it in local storage. An env var, when set, takes precedence over the file.
type Store struct {
	Path   string
	EnvVar string
}

func NewStore(path, envVar string) *Store {
	return &Store{Path: path, EnvVar: envVar}
}

func (s *Store) Load() (string, error) {
	if s.EnvVar != "" {
		if tok := strings.TrimSpace(os.Getenv(s.EnvVar)); tok != "" {
			return tok, nil
		}
	}
	if s.Path == "" {
		return "", ErrNoToken
	}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", ErrNoToken
	}
	return tok, nil
}

func (s *Store) Save(token string) error {
	if s.Path == "" {
		return fmt.Errorf("token file path not configured")
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	// write then rename so watchers never see a half-written token
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

func (s *Store) Clear() error {
	if s.Path == "" {
		return nil
	}
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// Expiry reads the exp claim of a JWT bearer token without verifying its
// signature; only the server can do that. ok is false for opaque tokens or
// tokens without an exp claim.
func Expiry(token string) (exp time.Time, ok bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	date, err := parsed.Claims.GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}
	return date.Time, true
}

// Subject returns the sub claim, the username for this API.
func Subject(token string) string {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	sub, _ := parsed.Claims.GetSubject()
	return sub
}

// Expired reports whether token carries an exp claim at or before now.
func Expired(token string, now time.Time) bool {
	exp, ok := Expiry(token)
	return ok && !now.Before(exp)
}

// StreamURL attaches the token as the ?token= query parameter the stream
// endpoints authenticate with. An empty token leaves the URL untouched.
func StreamURL(endpoint, token string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid stream endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	if token == "" {
		q.Del("token")
	} else {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
