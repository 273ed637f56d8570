// Package config loads and persists the proxy's on-disk configuration
// document: a JSON object keyed by hostname, per spec §6. Persistence is a
// full re-serialization on every mutation, written atomically so a crash
// mid-write never leaves a truncated document on disk.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/safareli/http-proxy/pkg/model"
)

// secretDoc is the on-disk shape of model.SecretConfig; the JSON field name
// for the fake credential is "secret", not "fakeSecret", per the §6 schema.
type secretDoc struct {
	Secret           string   `json:"secret"`
	SecretEnvVarName string   `json:"secretEnvVarName"`
	Grants           []string `json:"grants,omitempty"`
	Rejections       []string `json:"rejections,omitempty"`
}

type hostDoc struct {
	GraphqlEndpoints []string             `json:"graphqlEndpoints,omitempty"`
	OpenAPISpec      *model.OpenAPISource `json:"openApiSpec,omitempty"`
	Secrets          []secretDoc          `json:"secrets,omitempty"`
}

// Store loads the config document from, and persists it back to, a single
// file on disk via atomic rename.
type Store struct {
	path string
}

// New returns a Store bound to path. path need not exist yet.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the config document. A missing file is not an error: spec §6
// defines it as an empty config.
func (s *Store) Load() (map[string]*model.HostConfig, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]*model.HostConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", s.path, err)
	}

	var doc map[string]hostDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", s.path, err)
	}

	hosts := make(map[string]*model.HostConfig, len(doc))
	for host, hd := range doc {
		secrets := make([]*model.SecretConfig, len(hd.Secrets))
		for i, sd := range hd.Secrets {
			secrets[i] = &model.SecretConfig{
				FakeSecret:       sd.Secret,
				SecretEnvVarName: sd.SecretEnvVarName,
				Grants:           sd.Grants,
				Rejections:       sd.Rejections,
			}
		}
		hosts[host] = &model.HostConfig{
			GraphqlEndpoints: hd.GraphqlEndpoints,
			OpenAPISpec:      hd.OpenAPISpec,
			Secrets:          secrets,
		}
	}
	return hosts, nil
}

// Save serializes hosts in full and writes it to disk atomically: the new
// content lands in a temp file in the same directory, then is renamed over
// the target, so a crash mid-write never corrupts the previous document.
func (s *Store) Save(_ context.Context, hosts map[string]*model.HostConfig) error {
	doc := make(map[string]hostDoc, len(hosts))
	for host, cfg := range hosts {
		secrets := make([]secretDoc, len(cfg.Secrets))
		for i, sc := range cfg.Secrets {
			secrets[i] = secretDoc{
				Secret:           sc.FakeSecret,
				SecretEnvVarName: sc.SecretEnvVarName,
				Grants:           sc.Grants,
				Rejections:       sc.Rejections,
			}
		}
		doc[host] = hostDoc{
			GraphqlEndpoints: cfg.GraphqlEndpoints,
			OpenAPISpec:      cfg.OpenAPISpec,
			Secrets:          secrets,
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')

	return s.writeAtomic(data)
}

func (s *Store) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp config file into place: %w", err)
	}
	return nil
}
