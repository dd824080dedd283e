package roster

import "github.com/inscribcordoba/attendance/internal/persistence"

// IdentityLength is the number of digits in a CUIL.
const IdentityLength = 11

// NormalizeIdentity strips dashes, dots and whitespace from raw and reports
// whether the remainder is exactly eleven ASCII digits.
func NormalizeIdentity(raw string) (string, bool) {
	cleaned := persistence.CleanIdentity(raw)
	if len(cleaned) != IdentityLength {
		return cleaned, false
	}
	for i := 0; i < len(cleaned); i++ {
		if cleaned[i] < '0' || cleaned[i] > '9' {
			return cleaned, false
		}
	}
	return cleaned, true
}
