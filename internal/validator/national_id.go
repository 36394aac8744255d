// Package validator holds the checksum algorithms that gate a purchase:
// the national ID (CPF) check digits and the card number Luhn check.
package validator

const nationalIDLength = 11

// NormalizeNationalID strips everything but digits
func NormalizeNationalID(raw string) string {
	return digitsOnly(raw)
}

// ValidateNationalID reports whether raw is an 11-digit national ID whose
// two trailing check digits match the weighted mod-11 sums. Punctuation is
// ignored, sequences of one repeated digit are rejected.
func ValidateNationalID(raw string) bool {
	digits := digitsOnly(raw)
	if len(digits) != nationalIDLength {
		return false
	}
	if allSame(digits) {
		return false
	}

	d := make([]int, nationalIDLength)
	for i := range digits {
		d[i] = int(digits[i] - '0')
	}

	return checkDigit(d[:9], 10) == d[9] && checkDigit(d[:10], 11) == d[10]
}

// FormatNationalID renders a valid ID as 000.000.000-00; other input is
// returned unchanged
func FormatNationalID(raw string) string {
	digits := digitsOnly(raw)
	if len(digits) != nationalIDLength {
		return raw
	}
	return digits[0:3] + "." + digits[3:6] + "." + digits[6:9] + "-" + digits[9:11]
}

// checkDigit weights digits from startWeight down to 2
func checkDigit(digits []int, startWeight int) int {
	sum := 0
	for i, v := range digits {
		sum += v * (startWeight - i)
	}
	rem := (sum * 10) % 11
	if rem >= 10 {
		return 0
	}
	return rem
}

func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

func digitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
