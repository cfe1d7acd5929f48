package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledgeragent.yaml")
	content := `
agent:
  account_id: "0.0.1001"
logging:
  audit:
    enabled: true
    path: audit/agent.log
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "testnet", cfg.Network.Name)
	assert.Equal(t, "simulated", cfg.Network.Submitter)
	assert.Equal(t, "autonomous", cfg.Agent.Mode)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 2.0, cfg.Retry.BackoffFactor)
	assert.Equal(t, "memory", cfg.Storage.TaskStore.Driver)
	assert.Equal(t, "memory", cfg.TaskQueue.Driver)
	assert.Equal(t, 4, cfg.TaskQueue.Workers)
	assert.Equal(t, []string{"stdout"}, cfg.Logging.Outputs)
	assert.Equal(t, filepath.Join(dir, "audit/agent.log"), cfg.Logging.Audit.Path)
	assert.Equal(t, "warning", cfg.Alerting.MinSeverity)
}

func TestParseDurationsAndEnvSecrets(t *testing.T) {
	t.Setenv("LEDGER_AGENT_KEY", "302e020100300506032b657004220420aa")
	t.Setenv("LEDGER_AGENT_DSN", "user:pass@tcp(db:3306)/agent")

	content := `
network:
  name: mainnet
  timeout: 3s
  submitter: relay
  relay:
    url: https://relay.example
retry:
  initial_delay: 250ms
  max_delay: 4s
agent:
  mode: returnBytes
  account_id: "0.0.1001"
  private_key_env: LEDGER_AGENT_KEY
storage:
  task_store:
    driver: mysql
    dsn_env: LEDGER_AGENT_DSN
`
	cfg, err := Parse([]byte(content), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Network.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 4*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, "302e020100300506032b657004220420aa", cfg.Agent.PrivateKey)
	assert.Equal(t, "user:pass@tcp(db:3306)/agent", cfg.Storage.TaskStore.DSN)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	content := `
agent:
  mode: manual
network:
  submitter: relay
task_queue:
  driver: kafka
`
	_, err := Parse([]byte(content), t.TempDir())
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "agent.mode")
	assert.Contains(t, msg, "agent.account_id")
	assert.Contains(t, msg, "network.relay.url")
	assert.Contains(t, msg, "task_queue.driver")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load("")
	require.Error(t, err)
}
