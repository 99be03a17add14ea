package sovos

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"time"
)

// Credentials holds the shared-secret material for request signing.
type Credentials struct {
	Username string
	Password string
	HMACKey  string
}

// signedHeaders computes the Date and Authorization header values for a
// POST to the given endpoint path.
//
// The signing string is the concatenation
// "POST" + "application/json" + timestamp + endpoint + username + password,
// HMAC-SHA1 keyed by the shared secret and base64-encoded. The timestamp
// is the current UTC time formatted as YYYY-MM-DDTHH:mm:ssZ.
func signedHeaders(endpoint string, now time.Time, creds Credentials) (date, authorization string) {
	date = now.UTC().Format("2006-01-02T15:04:05Z")

	message := "POST" + "application/json" + date + endpoint + creds.Username + creds.Password
	mac := hmac.New(sha1.New, []byte(creds.HMACKey))
	mac.Write([]byte(message))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	authorization = "TAX " + creds.Username + ":" + signature
	return date, authorization
}
