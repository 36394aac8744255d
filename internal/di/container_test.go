package di

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/pkg/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func memoryConfig() *config.Config {
	return &config.Config{
		App:     config.AppConfig{Name: "storefront", Environment: "test"},
		Storage: config.StorageConfig{Backend: "memory", InventoryBackend: "memory"},
		Payment: config.PaymentConfig{
			CardProcessor:     "sandbox",
			Currency:          "BRL",
			MerchantName:      "TICKET STOREFRONT",
			MerchantCity:      "SAO PAULO",
			PixKey:            "pix@example.com",
			WebhookSecret:     "secret",
			SimulationEnabled: true,
		},
		Sales: config.SalesConfig{MaxPerTransaction: 10},
	}
}

func TestNewContainer_RequiresConnections(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Backend = "postgres"
	_, err := NewContainer(&ContainerConfig{Config: cfg})
	assert.ErrorContains(t, err, "database connection")

	cfg = memoryConfig()
	cfg.Storage.InventoryBackend = "redis"
	_, err = NewContainer(&ContainerConfig{Config: cfg})
	assert.ErrorContains(t, err, "redis connection")
}

func TestNewContainer_MemoryPurchaseEndToEnd(t *testing.T) {
	c, err := NewContainer(&ContainerConfig{Config: memoryConfig()})
	require.NoError(t, err)

	tt, err := c.TicketTypeService.Create(context.Background(), &domain.TicketType{
		EventID:   "ev-1",
		Label:     "Pista",
		UnitPrice: decimal.RequireFromString("75.00"),
		Capacity:  5,
		Active:    true,
	})
	require.NoError(t, err)

	router := c.Router("storefront-test")
	body := `{"ticket_type_id":"` + tt.ID + `","quantity":2,"payment_method":"pix",
		"buyer":{"name":"Maria Silva","email":"maria@example.com","national_id":"529.982.247-25"}}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewBufferString(body)))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"payment_status":"pending"`)
	assert.Contains(t, w.Body.String(), `"pix_payload":"000201`)

	got, err := c.TicketTypeService.Get(context.Background(), tt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Reserved)
	assert.Equal(t, 3, got.Available())
}

func TestContainer_SimulationRoutesNeverInProduction(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		enabled     bool
		wantMounted bool
	}{
		{"enabled outside production", "test", true, true},
		{"disabled by flag", "test", false, false},
		{"production ignores flag", "production", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig()
			cfg.App.Environment = tt.environment
			cfg.Payment.SimulationEnabled = tt.enabled
			c, err := NewContainer(&ContainerConfig{Config: cfg})
			require.NoError(t, err)

			w := httptest.NewRecorder()
			c.Router("storefront-test").ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sales/TS-UNKNOWN/confirm", nil))

			// both answer 404; only the mounted route replies with an envelope
			assert.Equal(t, http.StatusNotFound, w.Code)
			if tt.wantMounted {
				assert.Contains(t, w.Body.String(), `"success":false`)
			} else {
				assert.NotContains(t, w.Body.String(), `"success"`)
			}
		})
	}
}
