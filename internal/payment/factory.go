package payment

import (
	"fmt"
	"strings"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/pkg/config"
)

// ProcessorType selects the card processor
type ProcessorType string

const (
	ProcessorTypeSandbox ProcessorType = "sandbox"
	ProcessorTypeStripe  ProcessorType = "stripe"
)

// NewCardProcessor creates a card processor based on the configured type
func NewCardProcessor(cfg *config.PaymentConfig) (CardProcessor, error) {
	switch ProcessorType(strings.ToLower(cfg.CardProcessor)) {
	case ProcessorTypeSandbox, "":
		sandbox := DefaultSandboxConfig()
		sandbox.DeclineRate = cfg.SandboxDeclineRate
		sandbox.Delay = cfg.SandboxDelay
		return NewSandboxProcessor(sandbox), nil

	case ProcessorTypeStripe:
		return NewStripeProcessor(&StripeConfig{SecretKey: cfg.StripeSecretKey})

	default:
		return nil, fmt.Errorf("unsupported card processor: %s", cfg.CardProcessor)
	}
}

// NewRegistryFromConfig wires every payment method
func NewRegistryFromConfig(cfg *config.PaymentConfig) (*Registry, error) {
	if err := ValidatePixKey(cfg.PixKey); err != nil {
		return nil, err
	}
	processor, err := NewCardProcessor(cfg)
	if err != nil {
		return nil, err
	}

	pix := NewPixBackend(&PixConfig{
		Key:          cfg.PixKey,
		MerchantName: cfg.MerchantName,
		MerchantCity: cfg.MerchantCity,
		Expiry:       cfg.PixExpiry,
		QREnabled:    cfg.PixQREnabled,
	})
	slip := NewBankSlipBackend(&BankSlipConfig{
		BankCode: cfg.BankCode,
		DueDays:  cfg.BankSlipDueDays,
	})

	return NewRegistry(
		pix,
		NewCardBackend(domain.PaymentMethodCreditCard, processor).WithConfirmWindow(cfg.CardConfirmWindow),
		NewCardBackend(domain.PaymentMethodDebitCard, processor).WithConfirmWindow(cfg.CardConfirmWindow),
		slip,
	), nil
}
