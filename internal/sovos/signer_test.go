package sovos

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedHeaders(t *testing.T) {
	creds := Credentials{Username: "apiuser", Password: "apipass", HMACKey: "sekrit"}
	now := time.Date(2024, 7, 18, 15, 4, 5, 0, time.UTC)

	date, authorization := signedHeaders("/Twe/api/rest/calcTax/doc", now, creds)

	assert.Equal(t, "2024-07-18T15:04:05Z", date)

	// Signing string per the upstream guide:
	// POST + application/json + timestamp + endpoint + username + password.
	mac := hmac.New(sha1.New, []byte("sekrit"))
	mac.Write([]byte("POSTapplication/json2024-07-18T15:04:05Z/Twe/api/rest/calcTax/docapiuserapipass"))
	expected := "TAX apiuser:" + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, expected, authorization)
}

func TestSignedHeaders_SignatureShape(t *testing.T) {
	creds := Credentials{Username: "u", Password: "p", HMACKey: "k"}

	_, authorization := signedHeaders("/ep", time.Now(), creds)

	require.True(t, strings.HasPrefix(authorization, "TAX u:"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authorization, "TAX u:"))
	require.NoError(t, err)
	assert.Len(t, raw, sha1.Size, "signature must be a raw SHA1 HMAC")
}

func TestSignedHeaders_UsesUTC(t *testing.T) {
	loc := time.FixedZone("MST", -7*60*60)
	now := time.Date(2024, 1, 2, 20, 0, 0, 0, loc)

	date, _ := signedHeaders("/ep", now, Credentials{Username: "u", Password: "p", HMACKey: "k"})

	assert.Equal(t, "2024-01-03T03:00:00Z", date)
}
