// Package auth provides KuCoin API authentication using HMAC-SHA256 signatures.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCredentials is returned when a credential set cannot be used to sign.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Key scheme versions. Version 1 sends the passphrase as-is; version 2 and
// later send an HMAC of the passphrase.
const (
	KeyVersion1 = "1"
	KeyVersion2 = "2"
	KeyVersion3 = "3"

	DefaultKeyVersion = KeyVersion2
)

// Header names fixed by the KuCoin REST protocol.
const (
	HeaderKey        = "KC-API-KEY"
	HeaderSign       = "KC-API-SIGN"
	HeaderTimestamp  = "KC-API-TIMESTAMP"
	HeaderPassphrase = "KC-API-PASSPHRASE"
	HeaderKeyVersion = "KC-API-KEY-VERSION"
)

// Environment variables read by CredentialsFromEnv.
const (
	EnvAPIKey     = "KUCOIN_API_KEY"
	EnvAPISecret  = "KUCOIN_API_SECRET"
	EnvPassphrase = "KUCOIN_API_PASSPHRASE"
	EnvKeyVersion = "KUCOIN_API_KEY_VERSION"
)

// Credentials holds the API key material for signing requests.
// A Credentials value is never modified after construction and is safe
// for concurrent use.
type Credentials struct {
	apiKey     string
	apiSecret  string
	passphrase string
	keyVersion string
}

// NewCredentials validates and returns a credential set. An empty keyVersion
// selects DefaultKeyVersion.
func NewCredentials(apiKey, apiSecret, passphrase, keyVersion string) (*Credentials, error) {
	if keyVersion == "" {
		keyVersion = DefaultKeyVersion
	}

	c := &Credentials{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		passphrase: passphrase,
		keyVersion: keyVersion,
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// CredentialsFromEnv builds credentials from the KUCOIN_API_* environment
// variables. It returns (nil, nil) when no API key is set.
func CredentialsFromEnv() (*Credentials, error) {
	key := os.Getenv(EnvAPIKey)
	if key == "" {
		return nil, nil
	}
	return NewCredentials(
		key,
		os.Getenv(EnvAPISecret),
		os.Getenv(EnvPassphrase),
		os.Getenv(EnvKeyVersion),
	)
}

func (c *Credentials) validate() error {
	if c == nil {
		return fmt.Errorf("%w: no credential set", ErrInvalidCredentials)
	}
	if c.apiKey == "" {
		return fmt.Errorf("%w: api key is required", ErrInvalidCredentials)
	}
	if c.apiSecret == "" {
		return fmt.Errorf("%w: api secret is required", ErrInvalidCredentials)
	}
	if c.passphrase == "" {
		return fmt.Errorf("%w: passphrase is required", ErrInvalidCredentials)
	}
	v, err := strconv.Atoi(c.keyVersion)
	if err != nil || v < 1 || v > 3 {
		return fmt.Errorf("%w: unsupported key version %q", ErrInvalidCredentials, c.keyVersion)
	}
	return nil
}

// APIKey returns the public API key.
func (c *Credentials) APIKey() string { return c.apiKey }

// KeyVersion returns the key scheme version.
func (c *Credentials) KeyVersion() string { return c.keyVersion }

// LogValue keeps secrets out of logs.
func (c *Credentials) LogValue() slog.Value {
	if c == nil {
		return slog.StringValue("<none>")
	}
	return slog.GroupValue(
		slog.String("api_key", redact(c.apiKey)),
		slog.String("key_version", c.keyVersion),
	)
}

func redact(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

// Headers are the authentication headers for a single request.
type Headers struct {
	Key        string
	Sign       string
	Timestamp  string
	Passphrase string
	KeyVersion string
}

// Apply writes the headers onto h.
func (h Headers) Apply(header http.Header) {
	header.Set(HeaderKey, h.Key)
	header.Set(HeaderSign, h.Sign)
	header.Set(HeaderTimestamp, h.Timestamp)
	header.Set(HeaderPassphrase, h.Passphrase)
	header.Set(HeaderKeyVersion, h.KeyVersion)
}

// Sign generates authentication headers for one request.
//
// endpoint is the request path plus the "?"-prefixed query string exactly as
// it goes on the wire; body is the raw request body ("" for none). now should
// be captured immediately before the call.
//
// Prehash format: timestamp_ms + METHOD + endpoint + body
func (c *Credentials) Sign(method, endpoint, body string, now time.Time) (Headers, error) {
	if err := c.validate(); err != nil {
		return Headers{}, err
	}

	timestamp := strconv.FormatInt(now.UnixMilli(), 10)
	prehash := timestamp + strings.ToUpper(method) + endpoint + body

	return Headers{
		Key:        c.apiKey,
		Sign:       c.digest(prehash),
		Timestamp:  timestamp,
		Passphrase: c.encodedPassphrase(),
		KeyVersion: c.keyVersion,
	}, nil
}

// SignHTTPRequest signs req and attaches the headers. body must be the exact
// bytes that will be sent.
func (c *Credentials) SignHTTPRequest(req *http.Request, body []byte) error {
	headers, err := c.Sign(req.Method, req.URL.RequestURI(), string(body), time.Now())
	if err != nil {
		return err
	}
	headers.Apply(req.Header)
	return nil
}

// encodedPassphrase returns the passphrase as transmitted for the key version.
func (c *Credentials) encodedPassphrase() string {
	if c.keyVersion == KeyVersion1 {
		return c.passphrase
	}
	return c.digest(c.passphrase)
}

// digest returns base64(HMAC-SHA256(secret, msg)).
func (c *Credentials) digest(msg string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(msg))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
