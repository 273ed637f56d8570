// Package policystore holds the in-memory host → HostConfig map spec §4.5
// describes: the grant/rejection lists that decide whether a request
// carrying a known fake secret is forwarded without prompting, and the
// write-through persistence that keeps pkg/config's on-disk document in
// sync with every mutation.
package policystore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/safareli/http-proxy/pkg/model"
	"github.com/safareli/http-proxy/pkg/pattern"
)

// Persister writes the full config document through to durable storage.
// pkg/config.Store implements this; tests can fake it.
type Persister interface {
	Save(ctx context.Context, hosts map[string]*model.HostConfig) error
}

// Store is the single-operator policy map. Mutations serialize through a
// single writer lock; reads take a shared lock for the duration of the
// lookup only, per spec §4.5's "coarse read-write lock" note.
type Store struct {
	mu        sync.RWMutex
	hosts     map[string]*model.HostConfig
	persister Persister
}

// New creates a Store seeded with hosts (as loaded from config at startup).
// A nil persister disables write-through persistence, which is useful in
// tests that only exercise matching logic.
func New(hosts map[string]*model.HostConfig, persister Persister) *Store {
	if hosts == nil {
		hosts = map[string]*model.HostConfig{}
	}
	return &Store{hosts: hosts, persister: persister}
}

// HostConfig returns the config for host, or nil if the host is unknown.
func (s *Store) HostConfig(host string) *model.HostConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hosts[host]
}

// FindSecretConfig returns the first SecretConfig on host whose FakeSecret
// appears as a substring of any header value, or nil if none match.
func (s *Store) FindSecretConfig(host string, headers map[string][]string) *model.SecretConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := s.hosts[host]
	if cfg == nil {
		return nil
	}
	for _, secret := range cfg.Secrets {
		for _, values := range headers {
			for _, v := range values {
				if strings.Contains(v, secret.FakeSecret) {
					return secret
				}
			}
		}
	}
	return nil
}

// MatchingRejection returns the first rejection pattern on secret that
// matches requestKey, or "" if none match. A pattern whose value AST
// references an unsupported variable does not abort the scan: per spec
// §4.8 it is treated as non-matching and its diagnostic is returned
// alongside any real match so the caller can log it.
func (s *Store) MatchingRejection(secret *model.SecretConfig, requestKey string) (string, []error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return firstMatch(secret.Rejections, requestKey)
}

// MatchingGrant returns the first grant pattern on secret that matches
// requestKey, or "" if none match. See MatchingRejection for the
// unsupported-variable diagnostic behavior.
func (s *Store) MatchingGrant(secret *model.SecretConfig, requestKey string) (string, []error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return firstMatch(secret.Grants, requestKey)
}

func firstMatch(patterns []string, requestKey string) (string, []error) {
	var diagnostics []error
	for _, p := range patterns {
		ok, err := pattern.Match(p, requestKey)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Errorf("match pattern %q: %w", p, err))
			continue
		}
		if ok {
			return p, diagnostics
		}
	}
	return "", diagnostics
}

// AddGrant appends p to secret's grant list if not already present, then
// persists the full config document. Idempotent: adding the same pattern
// twice is a no-op on the second call.
func (s *Store) AddGrant(ctx context.Context, secret *model.SecretConfig, p string) error {
	return s.addPattern(ctx, secret, p, true)
}

// AddRejection appends p to secret's rejection list if not already
// present, then persists the full config document. Idempotent.
func (s *Store) AddRejection(ctx context.Context, secret *model.SecretConfig, p string) error {
	return s.addPattern(ctx, secret, p, false)
}

func (s *Store) addPattern(ctx context.Context, secret *model.SecretConfig, p string, grant bool) error {
	s.mu.Lock()
	list := &secret.Rejections
	if grant {
		list = &secret.Grants
	}
	for _, existing := range *list {
		if existing == p {
			s.mu.Unlock()
			return nil
		}
	}
	*list = append(*list, p)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if s.persister == nil {
		return nil
	}
	return s.persister.Save(ctx, snapshot)
}

// snapshotLocked deep-copies the host map, including every secret's
// grant/rejection slices, so the persister can marshal the snapshot after
// the lock is released without racing a concurrent addPattern append.
func (s *Store) snapshotLocked() map[string]*model.HostConfig {
	snapshot := make(map[string]*model.HostConfig, len(s.hosts))
	for host, cfg := range s.hosts {
		secrets := make([]*model.SecretConfig, len(cfg.Secrets))
		for i, sc := range cfg.Secrets {
			secrets[i] = &model.SecretConfig{
				FakeSecret:       sc.FakeSecret,
				SecretEnvVarName: sc.SecretEnvVarName,
				Grants:           append([]string(nil), sc.Grants...),
				Rejections:       append([]string(nil), sc.Rejections...),
			}
		}
		snapshot[host] = &model.HostConfig{
			GraphqlEndpoints: cfg.GraphqlEndpoints,
			OpenAPISpec:      cfg.OpenAPISpec,
			Secrets:          secrets,
		}
	}
	return snapshot
}

// ResolveRealSecret reads the real credential from the process environment
// by secret.SecretEnvVarName.
func (s *Store) ResolveRealSecret(secret *model.SecretConfig) (string, bool) {
	return os.LookupEnv(secret.SecretEnvVarName)
}
