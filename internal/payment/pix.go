package payment

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/skip2/go-qrcode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PixConfig configures PixBackend
type PixConfig struct {
	Key          string
	MerchantName string
	MerchantCity string
	Expiry       time.Duration
	QREnabled    bool
	QRSize       int
}

// DefaultPixConfig returns a sandbox configuration
func DefaultPixConfig() *PixConfig {
	return &PixConfig{
		Key:          "pix@storefront.example",
		MerchantName: "TICKET STOREFRONT",
		MerchantCity: "SAO PAULO",
		Expiry:       30 * time.Minute,
		QREnabled:    true,
		QRSize:       256,
	}
}

// PixBackend issues a BR Code payload that embeds the sale code as txid.
// The payment stays pending until a gateway callback confirms it.
type PixBackend struct {
	config *PixConfig
	now    func() time.Time
}

// NewPixBackend creates a new PixBackend
func NewPixBackend(config *PixConfig) *PixBackend {
	if config == nil {
		config = DefaultPixConfig()
	}
	if config.Expiry <= 0 {
		config.Expiry = 30 * time.Minute
	}
	if config.QRSize <= 0 {
		config.QRSize = 256
	}
	return &PixBackend{config: config, now: time.Now}
}

// Method returns domain.PaymentMethodPix
func (b *PixBackend) Method() domain.PaymentMethod {
	return domain.PaymentMethodPix
}

// Validate checks the amount
func (b *PixBackend) Validate(req *Request) error {
	return validateAmount(req.Amount)
}

// Initiate builds the payload and, when enabled, its QR code
func (b *PixBackend) Initiate(ctx context.Context, req *Request) (*Result, error) {
	if err := b.Validate(req); err != nil {
		return nil, err
	}

	payload := BuildPixPayload(&PixPayload{
		Key:          b.config.Key,
		MerchantName: b.config.MerchantName,
		MerchantCity: b.config.MerchantCity,
		Amount:       req.Amount.StringFixed(2),
		TxID:         pixTxID(req.SaleCode),
	})

	artifact := domain.PaymentArtifact{PixPayload: payload}
	if b.config.QREnabled {
		png, err := qrcode.Encode(payload, qrcode.Medium, b.config.QRSize)
		if err != nil {
			return nil, domain.NewInfrastructureError("pix.qrcode", err)
		}
		artifact.PixQRCode = base64.StdEncoding.EncodeToString(png)
	}

	expires := b.now().Add(b.config.Expiry)
	return &Result{
		Status:    domain.PaymentStatusPending,
		Artifact:  artifact,
		ExpiresAt: &expires,
	}, nil
}

// PixPayload holds the fields of a static-key BR Code
type PixPayload struct {
	Key          string
	MerchantName string
	MerchantCity string
	Amount       string
	TxID         string
}

// EMV tags used by the BR Code
const (
	pixTagFormatIndicator = "00"
	pixTagInitiation      = "01"
	pixTagMerchantAccount = "26"
	pixTagMCC             = "52"
	pixTagCurrency        = "53"
	pixTagAmount          = "54"
	pixTagCountry         = "58"
	pixTagMerchantName    = "59"
	pixTagMerchantCity    = "60"
	pixTagAdditionalData  = "62"
	pixTagCRC             = "63"

	pixGUI            = "br.gov.bcb.pix"
	pixCurrencyBRL    = "986"
	pixMaxNameLength  = 25
	pixMaxCityLength  = 15
	pixMaxTxIDLength  = 25
	pixMaxFieldLength = 99
	pixSingleUseFlag  = "12"
	pixPayloadVersion = "01"
)

// PixMaxKeyLength is the longest key whose merchant account field, GUI
// included, still fits the two-digit EMV length
const PixMaxKeyLength = pixMaxFieldLength - len("0014"+pixGUI) - len("01xx")

// ValidatePixKey rejects keys that cannot be encoded in a BR Code
func ValidatePixKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("pix key is required")
	}
	if len(key) > PixMaxKeyLength {
		return fmt.Errorf("pix key is %d bytes, at most %d fit a BR Code", len(key), PixMaxKeyLength)
	}
	return nil
}

// BuildPixPayload renders p as an EMV TLV string terminated by its CRC16
func BuildPixPayload(p *PixPayload) string {
	account := tlv("00", pixGUI) + tlv("01", p.Key)

	var sb strings.Builder
	sb.WriteString(tlv(pixTagFormatIndicator, pixPayloadVersion))
	sb.WriteString(tlv(pixTagInitiation, pixSingleUseFlag))
	sb.WriteString(tlv(pixTagMerchantAccount, account))
	sb.WriteString(tlv(pixTagMCC, "0000"))
	sb.WriteString(tlv(pixTagCurrency, pixCurrencyBRL))
	if p.Amount != "" {
		sb.WriteString(tlv(pixTagAmount, p.Amount))
	}
	sb.WriteString(tlv(pixTagCountry, "BR"))
	sb.WriteString(tlv(pixTagMerchantName, pixText(p.MerchantName, pixMaxNameLength)))
	sb.WriteString(tlv(pixTagMerchantCity, pixText(p.MerchantCity, pixMaxCityLength)))

	txid := p.TxID
	if txid == "" {
		txid = "***"
	}
	sb.WriteString(tlv(pixTagAdditionalData, tlv("05", txid)))

	sb.WriteString(pixTagCRC + "04")
	sb.WriteString(fmt.Sprintf("%04X", CRC16CCITT([]byte(sb.String()))))
	return sb.String()
}

// VerifyPixPayload checks the CRC trailer of a payload
func VerifyPixPayload(payload string) bool {
	if len(payload) < 8 || payload[len(payload)-8:len(payload)-4] != pixTagCRC+"04" {
		return false
	}
	body := payload[:len(payload)-4]
	return fmt.Sprintf("%04X", CRC16CCITT([]byte(body))) == payload[len(payload)-4:]
}

// CRC16CCITT is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF)
func CRC16CCITT(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func tlv(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

// stripMarks decomposes accented letters and drops the combining marks
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// pixText transliterates to printable ASCII, upper-cased and truncated
func pixText(s string, max int) string {
	if plain, _, err := transform.String(stripMarks, s); err == nil {
		s = plain
	}
	var sb strings.Builder
	for _, r := range strings.ToUpper(s) {
		if r >= 0x20 && r < 0x7f {
			sb.WriteRune(r)
		}
		if sb.Len() == max {
			break
		}
	}
	return sb.String()
}

// pixTxID keeps the alphanumerics of the sale code
func pixTxID(code string) string {
	var sb strings.Builder
	for _, r := range code {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			sb.WriteRune(r)
		}
		if sb.Len() == pixMaxTxIDLength {
			break
		}
	}
	return sb.String()
}

var _ Backend = (*PixBackend)(nil)
