// Package testhelpers provides utilities for testing sheetsmith-engine components.
package testhelpers

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// GenerateTestJWT creates an unsigned token (alg: none) for use when
// verification is disabled. roles may be empty.
func GenerateTestJWT(sub string, orgID int64, roles ...string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	payload := fmt.Sprintf(`{"sub":%q,"org":%d`, sub, orgID)
	if len(roles) > 0 {
		quoted := make([]string, len(roles))
		for i, r := range roles {
			quoted[i] = fmt.Sprintf("%q", r)
		}
		payload += `,"roles":[` + strings.Join(quoted, ",") + `]`
	}
	payload += "}"

	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return fmt.Sprintf("%s.%s.", header, encodedPayload)
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(sub string, orgID int64, roles ...string) string {
	return "Bearer " + GenerateTestJWT(sub, orgID, roles...)
}
