package utils

// MaskSecret hides a credential for logging. Keys keep a short prefix so they stay
// recognisable, passwords should pass keep=0.
func MaskSecret(s string, keep int) string {
	if s == "" {
		return ""
	}
	if keep <= 0 || len(s) <= keep*2 {
		return "*****"
	}
	return s[:keep] + "*****"
}
