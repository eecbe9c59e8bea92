// Package validate provides input validation for API path and body parameters.
package validate

// ClientIDMaxLen is the maximum allowed length for a client id (used in
// channel names and registry keys).
const ClientIDMaxLen = 128

// OrderNumberMaxLen bounds the human-facing order number.
const OrderNumberMaxLen = 64

// ClientID validates a subscriber id: alphanumeric, hyphen, underscore;
// 1–ClientIDMaxLen. UUIDs and workstation names both pass.
func ClientID(id string) bool {
	if id == "" || len(id) > ClientIDMaxLen {
		return false
	}
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			continue
		}
		return false
	}
	return true
}

// OrderNumber validates an order number: printable, no control characters or
// path separators; 1–OrderNumberMaxLen.
func OrderNumber(number string) bool {
	if number == "" || len(number) > OrderNumberMaxLen {
		return false
	}
	for _, r := range number {
		if r < 0x20 || r == 0x7f || r == '/' || r == '\\' {
			return false
		}
	}
	return true
}
