package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	gstinRegex   = regexp.MustCompile(`^[0-9]{2}[A-Z0-9]{10}[0-9A-Z]Z[0-9A-Z]$`)
	pincodeRegex = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	vehicleRegex = regexp.MustCompile(`^[A-Z0-9]{4,20}$`)
)

const gstinCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ValidateGSTIN checks the format and check digit of a GSTIN
func ValidateGSTIN(gstin string) error {
	if !gstinRegex.MatchString(gstin) {
		return fmt.Errorf("invalid GSTIN format: %s", gstin)
	}
	if want := gstinCheckDigit(gstin[:14]); gstin[14] != want {
		return fmt.Errorf("invalid GSTIN check digit: %s", gstin)
	}
	return nil
}

// gstinCheckDigit computes the base-36 Luhn mod N check character
func gstinCheckDigit(body string) byte {
	n := len(gstinCharset)
	sum := 0
	for i := 0; i < len(body); i++ {
		v := strings.IndexByte(gstinCharset, body[i])
		factor := 1
		if i%2 == 1 {
			factor = 2
		}
		p := v * factor
		sum += p/n + p%n
	}
	return gstinCharset[(n-sum%n)%n]
}

// ValidatePincode validates an Indian postal code
func ValidatePincode(pincode string) error {
	if !pincodeRegex.MatchString(pincode) {
		return fmt.Errorf("invalid pincode: %s", pincode)
	}
	return nil
}

// NormalizeVehicleNo upper-cases a vehicle registration and strips spaces and dashes
func NormalizeVehicleNo(vehicleNo string) string {
	r := strings.NewReplacer(" ", "", "-", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(vehicleNo)))
}

// ValidateVehicleNo validates a normalized vehicle registration
func ValidateVehicleNo(vehicleNo string) error {
	if !vehicleRegex.MatchString(vehicleNo) {
		return fmt.Errorf("invalid vehicle number: %s", vehicleNo)
	}
	return nil
}

// SanitizeString removes potentially harmful characters
func SanitizeString(s string) string {
	sanitized := regexp.MustCompile(`[\x00-\x1f\x7f]`).ReplaceAllString(s, "")
	return sanitized
}
