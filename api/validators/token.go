package validators

import "strings"

// BearerToken strips an optional "Bearer " prefix from an Authorization value.
func BearerToken(raw string) string {
	token := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
