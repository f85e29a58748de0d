package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a free-text field that looks like SQL injection.
type InjectionCheckResult struct {
	Field       string
	Fingerprint string
}

func (r *InjectionCheckResult) Error() string {
	return "possible SQL injection in " + r.Field + " (fingerprint " + r.Fingerprint + ")"
}

// CheckHintForInjection screens user-supplied text that will be embedded into
// a DDL-synthesis prompt. Returns nil when the text is clean.
//
//	CheckHintForInjection("hint", "monthly sales by region")  // nil
//	CheckHintForInjection("hint", "x'; DROP TABLE users--")   // Fingerprint "s&1c" or similar
func CheckHintForInjection(field, text string) *InjectionCheckResult {
	if text == "" {
		return nil
	}
	isSQLi, fingerprint := libinjection.IsSQLi(text)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{Field: field, Fingerprint: string(fingerprint)}
}
