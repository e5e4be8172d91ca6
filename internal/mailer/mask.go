package mailer

import "strings"

// InvalidEmailPlaceholder replaces addresses that cannot be parsed at all.
const InvalidEmailPlaceholder = "[INVALID_EMAIL]"

// MaskedValuePlaceholder replaces metadata values under sensitive keys.
const MaskedValuePlaceholder = "[MASKED]"

// sensitiveKeyFragments are matched (case-insensitively, substring) against
// metadata keys; any hit masks the value entirely.
var sensitiveKeyFragments = []string{
	"password",
	"token",
	"secret",
	"key",
	"auth",
	"credential",
	"private",
}

// MaskEmail masks an email address for safe logging. The first two characters
// of the local part are kept and the remainder replaced with "*" repeated to
// the original local-part length; the domain is left intact. For example,
// "abcdef@example.com" becomes "ab****@example.com".
//
// Local parts of length <= 2 pass through unmasked. A malformed address with
// no @domain yields the literal "[INVALID_EMAIL]".
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at < 0 || at == len(email)-1 {
		return InvalidEmailPlaceholder
	}

	local := email[:at]
	domain := email[at+1:]

	if len(local) <= 2 {
		return local + "@" + domain
	}

	return local[:2] + strings.Repeat("*", len(local)-2) + "@" + domain
}

// IsSensitiveKey reports whether a metadata key should have its value masked
// before being written to any log sink.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// MaskMetadata returns a copy of metadata with every value under a sensitive
// key replaced by "[MASKED]". All other keys pass through unchanged. A nil
// input yields nil.
func MaskMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}

	masked := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if IsSensitiveKey(k) {
			masked[k] = MaskedValuePlaceholder
			continue
		}
		masked[k] = v
	}
	return masked
}
