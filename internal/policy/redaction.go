package policy

import "regexp"

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern  = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	handlePattern = regexp.MustCompile(`(?i)\b(?:ig|insta|instagram|snap|snapchat|telegram|whatsapp)\s*[:@]\s*[a-zA-Z0-9._]{2,}`)
)

// RedactContactInfo masks off-platform contact details in generated turns.
// Avatars must not leak emails, phone numbers, or social handles before the
// matched users choose to share them.
func RedactContactInfo(input string) (redacted string, changed bool) {
	out := input

	next := emailPattern.ReplaceAllString(out, "[contact removed]")
	changed = changed || next != out
	out = next

	next = handlePattern.ReplaceAllString(out, "[contact removed]")
	changed = changed || next != out
	out = next

	next = phonePattern.ReplaceAllString(out, "[contact removed]")
	changed = changed || next != out
	out = next

	return out, changed
}
