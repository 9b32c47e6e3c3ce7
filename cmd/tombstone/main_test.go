package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig("", "")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, "tombstone.db", cfg.SQLite.Path)
	assert.Equal(t, "tombstone-relationships", cfg.DynamoDB.RelationshipTable)
	assert.Equal(t, "", cfg.TablePrefix())
}

func TestLoadConfig_FileEnvAndFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tombstone.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: mongo
page_size: 25
dynamodb:
  table_prefix: demo-
  shards: 4
`), 0o600))
	t.Setenv("TOMBSTONE_DYNAMODB_ENDPOINT", "http://localhost:8000")

	cfg, err := loadConfig(path, "")
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.Backend)
	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, 4, cfg.DynamoDB.Shards)
	assert.Equal(t, "http://localhost:8000", cfg.DynamoDB.Endpoint)

	cfg, err = loadConfig(path, "dynamodb")
	require.NoError(t, err)
	assert.Equal(t, "dynamodb", cfg.Backend)
	assert.Equal(t, "demo-", cfg.TablePrefix())
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"), "")
	assert.Error(t, err)
}

func TestParseWhere(t *testing.T) {
	where, err := parseWhere([]string{"status=placed", "customer_id=c1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "placed", "customer_id": "c1"}, where)

	where, err = parseWhere(nil)
	require.NoError(t, err)
	assert.Nil(t, where)

	_, err = parseWhere([]string{"status"})
	assert.Error(t, err)
	_, err = parseWhere([]string{"=x"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(LogConfig{Level: "debug"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	logger, err = newLogger(LogConfig{Level: "bogus", Development: true})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
}

func TestDispatchCoversEveryType(t *testing.T) {
	for _, typ := range listCmd.ValidArgs {
		assert.Contains(t, listers, typ)
		assert.Contains(t, deleters, typ)
	}
}
