package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/safareli/http-proxy/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsEmptyConfig(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "does-not-exist.json"))

	hosts, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, hosts)
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store := New(path)

	hosts := map[string]*model.HostConfig{
		"api.example.com": {
			GraphqlEndpoints: []string{"/graphql"},
			OpenAPISpec:      &model.OpenAPISource{URL: "https://api.example.com/openapi.json"},
			Secrets: []*model.SecretConfig{
				{
					FakeSecret:       "fake_token_123",
					SecretEnvVarName: "REAL_TOKEN",
					Grants:           []string{"GET /repos/a/b/issues"},
					Rejections:       []string{"GET /admin/*"},
				},
			},
		},
	}

	require.NoError(t, store.Save(context.Background(), hosts))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Contains(t, loaded, "api.example.com")

	cfg := loaded["api.example.com"]
	assert.Equal(t, []string{"/graphql"}, cfg.GraphqlEndpoints)
	require.NotNil(t, cfg.OpenAPISpec)
	assert.Equal(t, "https://api.example.com/openapi.json", cfg.OpenAPISpec.URL)
	require.Len(t, cfg.Secrets, 1)
	assert.Equal(t, "fake_token_123", cfg.Secrets[0].FakeSecret)
	assert.Equal(t, "REAL_TOKEN", cfg.Secrets[0].SecretEnvVarName)
	assert.Equal(t, []string{"GET /repos/a/b/issues"}, cfg.Secrets[0].Grants)
	assert.Equal(t, []string{"GET /admin/*"}, cfg.Secrets[0].Rejections)
}

func TestSave_WritesTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store := New(path)

	require.NoError(t, store.Save(context.Background(), map[string]*model.HostConfig{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, byte('\n'), data[len(data)-1])
}

func TestSave_LeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	store := New(path)

	require.NoError(t, store.Save(context.Background(), map[string]*model.HostConfig{
		"h": {},
	}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "config.json", entries[0].Name())
}

func TestSave_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.json")
	store := New(path)

	require.NoError(t, store.Save(context.Background(), map[string]*model.HostConfig{}))
	_, err := os.Stat(path)
	require.NoError(t, err)
}
