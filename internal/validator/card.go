package validator

import "strings"

// Card brands
const (
	BrandVisa       = "Visa"
	BrandMastercard = "Mastercard"
	BrandAmex       = "American Express"
	BrandElo        = "Elo"
	BrandHipercard  = "Hipercard"
	BrandDiners     = "Diners Club"
	BrandDiscover   = "Discover"
	BrandJCB        = "JCB"
	BrandUnknown    = "Unknown"
)

const (
	minCardLength = 13
	maxCardLength = 19
)

// CardCheck is the outcome of ValidateCardNumber. The full number is never
// kept past this point.
type CardCheck struct {
	Valid    bool   `json:"valid"`
	Brand    string `json:"brand,omitempty"`
	LastFour string `json:"last_four,omitempty"`
}

type brandRange struct {
	brand   string
	low     int
	high    int
	digits  int
	lengths []int
}

// Checked top to bottom. Elo and Hipercard overlap the Visa, Mastercard and
// Discover ranges so they come first.
var brandTable = []brandRange{
	{BrandElo, 401178, 401179, 6, nil},
	{BrandElo, 431274, 431274, 6, nil},
	{BrandElo, 438935, 438935, 6, nil},
	{BrandElo, 451416, 451416, 6, nil},
	{BrandElo, 457393, 457393, 6, nil},
	{BrandElo, 457631, 457632, 6, nil},
	{BrandElo, 504175, 504175, 6, nil},
	{BrandElo, 506699, 506778, 6, nil},
	{BrandElo, 509000, 509999, 6, nil},
	{BrandElo, 627780, 627780, 6, nil},
	{BrandElo, 636297, 636297, 6, nil},
	{BrandElo, 636368, 636368, 6, nil},
	{BrandElo, 650031, 650033, 6, nil},
	{BrandElo, 650035, 650051, 6, nil},
	{BrandElo, 650405, 650439, 6, nil},
	{BrandElo, 650485, 650538, 6, nil},
	{BrandElo, 650541, 650598, 6, nil},
	{BrandElo, 650700, 650718, 6, nil},
	{BrandElo, 650720, 650727, 6, nil},
	{BrandElo, 650901, 650920, 6, nil},
	{BrandElo, 651652, 651679, 6, nil},
	{BrandElo, 655000, 655019, 6, nil},
	{BrandElo, 655021, 655058, 6, nil},
	{BrandHipercard, 606282, 606282, 6, nil},
	{BrandHipercard, 3841, 3841, 4, nil},
	{BrandAmex, 34, 34, 2, []int{15}},
	{BrandAmex, 37, 37, 2, []int{15}},
	{BrandDiners, 300, 305, 3, []int{14, 16, 19}},
	{BrandDiners, 36, 36, 2, []int{14, 16, 19}},
	{BrandDiners, 38, 39, 2, []int{14, 16, 19}},
	{BrandJCB, 3528, 3589, 4, []int{16, 17, 18, 19}},
	{BrandDiscover, 6011, 6011, 4, []int{16, 19}},
	{BrandDiscover, 644, 649, 3, []int{16, 19}},
	{BrandDiscover, 65, 65, 2, []int{16, 19}},
	{BrandMastercard, 51, 55, 2, []int{16}},
	{BrandMastercard, 2221, 2720, 4, []int{16}},
	{BrandVisa, 4, 4, 1, []int{13, 16, 19}},
}

// ValidateCardNumber checks length and the Luhn checksum of raw, ignoring
// spaces and dashes, and classifies the brand
func ValidateCardNumber(raw string) CardCheck {
	digits := digitsOnly(raw)
	if len(digits) < minCardLength || len(digits) > maxCardLength {
		return CardCheck{}
	}
	if !Luhn(digits) {
		return CardCheck{}
	}
	return CardCheck{
		Valid:    true,
		Brand:    DetectBrand(digits),
		LastFour: digits[len(digits)-4:],
	}
}

// Luhn reports whether a digit string passes the mod-10 check
func Luhn(digits string) bool {
	if digits == "" {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		n := int(c - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}

// DetectBrand classifies a card number by its leading digits
func DetectBrand(number string) string {
	digits := digitsOnly(number)
	for _, b := range brandTable {
		if len(digits) < b.digits {
			continue
		}
		prefix := atoi(digits[:b.digits])
		if prefix < b.low || prefix > b.high {
			continue
		}
		if len(b.lengths) > 0 && !containsInt(b.lengths, len(digits)) {
			continue
		}
		return b.brand
	}
	return BrandUnknown
}

// MaskCardNumber keeps only the last four digits
func MaskCardNumber(raw string) string {
	digits := digitsOnly(raw)
	if len(digits) < 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
