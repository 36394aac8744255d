package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "ticket-storefront", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "redis", cfg.Storage.InventoryBackend)
	assert.Equal(t, "sandbox", cfg.Payment.CardProcessor)
	assert.Equal(t, 0.01, cfg.Payment.SandboxDeclineRate)
	assert.Equal(t, 30*time.Minute, cfg.Payment.PixExpiry)
	assert.Equal(t, 3, cfg.Payment.BankSlipDueDays)
	assert.Equal(t, 10, cfg.Sales.MaxPerTransaction)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "sale-events", cfg.Notification.Topic)
	assert.Equal(t, 15*time.Minute, cfg.Payment.CardConfirmWindow)
	assert.True(t, cfg.Payment.SimulationEnabled)
	assert.Equal(t, time.Minute, cfg.Sales.SettleGrace)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "MEMORY")
	t.Setenv("STORAGE_INVENTORY_BACKEND", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PAYMENT_SANDBOX_DECLINE_RATE", "0.5")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 0.5, cfg.Payment.SandboxDeclineRate)
}

func validConfig() *Config {
	v := viper.New()
	setDefaults(v)
	return bindConfig(v)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "unknown storage",
			mutate:  func(c *Config) { c.Storage.Backend = "mysql" },
			wantErr: "invalid STORAGE_BACKEND",
		},
		{
			name: "postgres inventory without postgres storage",
			mutate: func(c *Config) {
				c.Storage.Backend = "memory"
				c.Storage.InventoryBackend = "postgres"
			},
			wantErr: "postgres inventory requires postgres storage",
		},
		{
			name:    "decline rate out of range",
			mutate:  func(c *Config) { c.Payment.SandboxDeclineRate = 1.5 },
			wantErr: "PAYMENT_SANDBOX_DECLINE_RATE",
		},
		{
			name:    "stripe without key",
			mutate:  func(c *Config) { c.Payment.CardProcessor = "stripe" },
			wantErr: "PAYMENT_STRIPE_SECRET_KEY",
		},
		{
			name:    "card confirm window must be positive",
			mutate:  func(c *Config) { c.Payment.CardConfirmWindow = 0 },
			wantErr: "PAYMENT_CARD_CONFIRM_WINDOW",
		},
		{
			name: "default webhook secret in production",
			mutate: func(c *Config) {
				c.App.Environment = "production"
			},
			wantErr: "PAYMENT_WEBHOOK_SECRET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvironmentHelpers(t *testing.T) {
	cfg := validConfig()
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestPaymentSimulationEnabled(t *testing.T) {
	cfg := validConfig()
	assert.True(t, cfg.PaymentSimulationEnabled())

	cfg.Payment.SimulationEnabled = false
	assert.False(t, cfg.PaymentSimulationEnabled())

	// production never mounts the manual routes, whatever the flag says
	cfg.Payment.SimulationEnabled = true
	cfg.App.Environment = "production"
	assert.False(t, cfg.PaymentSimulationEnabled())
}
