package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8080"
db:
  dsn: "postgres://localhost/scrapsettle"
gateway:
  base_url: "https://gateway.example.com"
  webhook_secret: "whsec_test"
kafka:
  brokers: ["localhost:9092"]
  topic: "order-notifications"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "whsec_test", cfg.Gateway.WebhookSecret)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "INR", cfg.Orders.Currency)
	assert.Equal(t, int64(10000), cfg.Orders.MinAmountPaise)
}

func TestLoadMissingGatewaySecret(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8080"
db:
  dsn: "postgres://localhost/scrapsettle"
gateway:
  base_url: "https://gateway.example.com"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway config")
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8080"
db:
  dsn: "postgres://localhost/scrapsettle"
gateway:
  base_url: "https://gateway.example.com"
  webhook_secret: "whsec_test"
`)

	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")
	t.Setenv("ORDERS_MIN_AMOUNT_PAISE", "25000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, int64(25000), cfg.Orders.MinAmountPaise)
}
