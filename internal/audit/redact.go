package audit

const redacted = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"password":          {},
	"passwordHash":      {},
	"temporaryPassword": {},
	"token":             {},
	"apiKey":            {},
	"secret":            {},
}

// Redact returns a shallow copy of data with sensitive top-level keys masked.
func Redact(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if _, ok := sensitiveKeys[k]; ok {
			out[k] = redacted
			continue
		}
		out[k] = v
	}
	return out
}
