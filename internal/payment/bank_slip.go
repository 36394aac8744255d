package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// BankSlipConfig configures BankSlipBackend
type BankSlipConfig struct {
	// BankCode is the 3-digit issuing bank (FEBRABAN) code
	BankCode string
	DueDays  int
}

// DefaultBankSlipConfig returns default configuration
func DefaultBankSlipConfig() *BankSlipConfig {
	return &BankSlipConfig{BankCode: "001", DueDays: 3}
}

const (
	boletoCurrencyBRL  = "9"
	boletoBarcodeLen   = 44
	boletoLineLen      = 47
	boletoMaxCents     = 9999999999
	boletoFactorWindow = 9000
)

var boletoFactorBase = time.Date(1997, time.October, 7, 0, 0, 0, 0, time.UTC)

// BankSlipBackend issues a boleto whose free field encodes the sale code.
// The sale stays pending and is expired by the sweeper after the due date.
type BankSlipBackend struct {
	config *BankSlipConfig
	now    func() time.Time
}

// NewBankSlipBackend creates a new BankSlipBackend
func NewBankSlipBackend(config *BankSlipConfig) *BankSlipBackend {
	if config == nil {
		config = DefaultBankSlipConfig()
	}
	if len(config.BankCode) != 3 || !isDigits(config.BankCode) {
		config.BankCode = "001"
	}
	if config.DueDays <= 0 {
		config.DueDays = 3
	}
	return &BankSlipBackend{config: config, now: time.Now}
}

// Method returns domain.PaymentMethodBankSlip
func (b *BankSlipBackend) Method() domain.PaymentMethod {
	return domain.PaymentMethodBankSlip
}

// Validate checks that the amount fits the barcode
func (b *BankSlipBackend) Validate(req *Request) error {
	if err := validateAmount(req.Amount); err != nil {
		return err
	}
	if req.Amount.Shift(2).GreaterThan(decimal.NewFromInt(boletoMaxCents)) {
		return domain.NewValidationError("amount", "too large for a bank slip")
	}
	return nil
}

// Initiate renders the barcode and typeable line
func (b *BankSlipBackend) Initiate(ctx context.Context, req *Request) (*Result, error) {
	if err := b.Validate(req); err != nil {
		return nil, err
	}

	now := b.now().UTC()
	due := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, b.config.DueDays)

	barcode := BuildBoletoBarcode(b.config.BankCode, due, req.Amount.Shift(2).IntPart(), boletoFreeField(req.SaleCode))
	line, err := BoletoTypeableLine(barcode)
	if err != nil {
		return nil, domain.NewInfrastructureError("bank_slip.typeable_line", err)
	}

	// payable through the whole due date
	expires := due.AddDate(0, 0, 1)
	return &Result{
		Status: domain.PaymentStatusPending,
		Artifact: domain.PaymentArtifact{
			Barcode:      barcode,
			TypeableLine: line,
			DueDate:      &due,
		},
		ExpiresAt: &expires,
	}, nil
}

// BuildBoletoBarcode assembles the 44-digit barcode with its general check digit
func BuildBoletoBarcode(bankCode string, due time.Time, cents int64, freeField string) string {
	body := fmt.Sprintf("%s%s%04d%010d%s", bankCode, boletoCurrencyBRL, BoletoDueFactor(due), cents, freeField)
	dv := BoletoMod11(body)
	return body[:4] + fmt.Sprint(dv) + body[4:]
}

// BoletoDueFactor is the number of days since 1997-10-07, restarting at
// 1000 once 9999 is exceeded
func BoletoDueFactor(due time.Time) int {
	d := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	factor := int(d.Sub(boletoFactorBase).Hours() / 24)
	if factor > 9999 {
		factor = (factor-10000)%boletoFactorWindow + 1000
	}
	return factor
}

// BoletoMod11 is the barcode general check digit: weights 2..9 from the
// right, 0, 1, 10 and 11 map to 1
func BoletoMod11(digits string) int {
	sum, weight := 0, 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	r := 11 - sum%11
	if r == 0 || r == 1 || r == 10 || r == 11 {
		return 1
	}
	return r
}

// BoletoMod10 is the typeable line field check digit
func BoletoMod10(digits string) int {
	sum, weight := 0, 2
	for i := len(digits) - 1; i >= 0; i-- {
		p := int(digits[i]-'0') * weight
		sum += p/10 + p%10
		if weight == 2 {
			weight = 1
		} else {
			weight = 2
		}
	}
	return (10 - sum%10) % 10
}

// BoletoTypeableLine derives the 47-digit linha digitável from a barcode
func BoletoTypeableLine(barcode string) (string, error) {
	if len(barcode) != boletoBarcodeLen || !isDigits(barcode) {
		return "", fmt.Errorf("barcode must be %d digits", boletoBarcodeLen)
	}
	free := barcode[19:]
	f1 := barcode[0:4] + free[0:5]
	f2 := free[5:15]
	f3 := free[15:25]

	var sb strings.Builder
	sb.Grow(boletoLineLen)
	for _, f := range []string{f1, f2, f3} {
		sb.WriteString(f)
		sb.WriteString(fmt.Sprint(BoletoMod10(f)))
	}
	sb.WriteByte(barcode[4])
	sb.WriteString(barcode[5:19])
	return sb.String(), nil
}

// ValidateBoletoBarcode checks length and general check digit
func ValidateBoletoBarcode(barcode string) bool {
	if len(barcode) != boletoBarcodeLen || !isDigits(barcode) {
		return false
	}
	return int(barcode[4]-'0') == BoletoMod11(barcode[:4]+barcode[5:])
}

// boletoFreeField is "0" followed by two digits per sale code character
func boletoFreeField(code string) string {
	body := domain.SaleCodeBody(code)
	var sb strings.Builder
	sb.WriteByte('0')
	for i := 0; i < 12; i++ {
		idx := 0
		if i < len(body) {
			if n := strings.IndexByte(domain.SaleCodeAlphabet, body[i]); n >= 0 {
				idx = n
			}
		}
		sb.WriteString(fmt.Sprintf("%02d", idx))
	}
	return sb.String()
}

var _ Backend = (*BankSlipBackend)(nil)
