// Package commerce implements the retailer backend adapters behind the
// domain retailer.Backend port.
package commerce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// AmazonConfig holds configuration for the Product Advertising API
type AmazonConfig struct {
	// Host is the PA-API endpoint host (e.g. webservices.amazon.ca)
	Host string
	// BaseURL overrides the request URL when set; signing still uses Host
	BaseURL string
	// Region is the AWS region used in the credential scope
	Region string
	// Marketplace is the marketplace domain (e.g. www.amazon.ca)
	Marketplace string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// amazonService is the service name in the credential scope
const amazonService = "ProductAdvertisingAPI"

// Errors for Amazon configuration
var (
	ErrAmazonConfigMissingHost   = errors.New("amazon: host is required")
	ErrAmazonConfigMissingRegion = errors.New("amazon: region is required")
)

// NewAmazonConfig creates a config with defaults for the Canadian marketplace
func NewAmazonConfig() *AmazonConfig {
	return &AmazonConfig{
		Host:           "webservices.amazon.ca",
		Region:         "us-east-1",
		Marketplace:    "www.amazon.ca",
		TimeoutSeconds: 10,
	}
}

// Validate validates the Amazon configuration
func (c *AmazonConfig) Validate() error {
	if c.Host == "" {
		return ErrAmazonConfigMissingHost
	}
	if c.Region == "" {
		return ErrAmazonConfigMissingRegion
	}
	if c.Marketplace == "" {
		c.Marketplace = "www.amazon.ca"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
	return nil
}

// hmacSHA256 computes one link of the signing key chain
func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// hexSHA256 hex-encodes the SHA-256 of data
func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// signingKey derives the date-scoped key via the nested HMAC chain:
// secret -> date -> region -> service -> "aws4_request".
func (c *AmazonConfig) signingKey(secretKey, dateStamp string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secretKey), []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(c.Region))
	kService := hmacSHA256(kRegion, []byte(amazonService))
	return hmacSHA256(kService, []byte("aws4_request"))
}

// canonicalHeaders renders lowercase-sorted headers plus the signed-header
// list, per the canonical request format.
func canonicalHeaders(headers map[string]string) (canonical, signed string) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, strings.ToLower(k))
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(":")
		b.WriteString(strings.TrimSpace(headers[k]))
		b.WriteString("\n")
	}
	return b.String(), strings.Join(keys, ";")
}

// SignRequest attaches the signature, date and target headers to a PA-API
// request. The canonical request covers method, path, sorted headers and
// the payload hash; the string-to-sign binds it to the date-scoped key.
func (c *AmazonConfig) SignRequest(req *http.Request, accessKey, secretKey, target string, payload []byte, now time.Time) {
	amzDate := now.UTC().Format("20060102T150405Z")
	dateStamp := now.UTC().Format("20060102")

	headers := map[string]string{
		"content-encoding": "amz-1.0",
		"content-type":     "application/json; charset=utf-8",
		"host":             c.Host,
		"x-amz-date":       amzDate,
		"x-amz-target":     target,
	}
	canonHeaders, signedHeaders := canonicalHeaders(headers)

	canonicalRequest := strings.Join([]string{
		req.Method,
		req.URL.Path,
		req.URL.RawQuery,
		canonHeaders,
		signedHeaders,
		hexSHA256(payload),
	}, "\n")

	scope := fmt.Sprintf("%s/%s/%s/aws4_request", dateStamp, c.Region, amazonService)
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	signature := hex.EncodeToString(hmacSHA256(c.signingKey(secretKey, dateStamp), []byte(stringToSign)))

	for k, v := range headers {
		if k == "host" {
			continue
		}
		req.Header.Set(k, v)
	}
	req.Host = c.Host
	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		accessKey, scope, signedHeaders, signature))
}
