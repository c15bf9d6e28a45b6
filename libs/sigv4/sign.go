// Package sigv4 implements AWS Signature Version 4 request signing.
//
// The queue provider speaks plain signed HTTP, so signing is done here
// rather than through a vendor SDK. Everything is a pure function of its
// inputs; the caller supplies the timestamp, which keeps signatures
// reproducible in tests.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	algorithm  = "AWS4-HMAC-SHA256"
	timeFormat = "20060102T150405Z"
	dateFormat = "20060102"
)

type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Service         string
}

func (c Credentials) validate() error {
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return errors.New("sigv4: access key and secret key are required")
	}
	if c.Region == "" || c.Service == "" {
		return errors.New("sigv4: region and service are required")
	}
	return nil
}

// Sign computes the SigV4 authorization header for the given request and
// returns the complete header set to transmit: the caller's headers plus
// Host, X-Amz-Date and Authorization. The X-Amz-Date header and the
// timestamp inside the signature always match.
func Sign(method, rawURL string, headers map[string]string, body []byte, creds Credentials, now time.Time) (map[string]string, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, errors.New("sigv4: url has no host")
	}

	amzDate := now.UTC().Format(timeFormat)
	dateStamp := amzDate[:8]

	signed := make(map[string]string, len(headers)+2)
	for k, v := range headers {
		signed[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	signed["host"] = u.Host
	signed["x-amz-date"] = amzDate

	names := make([]string, 0, len(signed))
	for k := range signed {
		names = append(names, k)
	}
	sort.Strings(names)

	var canonicalHeaders strings.Builder
	for _, name := range names {
		canonicalHeaders.WriteString(name)
		canonicalHeaders.WriteString(":")
		canonicalHeaders.WriteString(signed[name])
		canonicalHeaders.WriteString("\n")
	}
	signedHeaders := strings.Join(names, ";")

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	canonicalRequest := strings.Join([]string{
		strings.ToUpper(method),
		path,
		canonicalQuery(u.Query()),
		canonicalHeaders.String(),
		signedHeaders,
		sha256Hex(body),
	}, "\n")

	scope := strings.Join([]string{dateStamp, creds.Region, creds.Service, "aws4_request"}, "/")
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	signature := hex.EncodeToString(hmacSHA256(signingKey(creds, dateStamp), stringToSign))

	out := make(map[string]string, len(headers)+3)
	for k, v := range headers {
		out[k] = v
	}
	out["Host"] = u.Host
	out["X-Amz-Date"] = amzDate
	out["Authorization"] = algorithm +
		" Credential=" + creds.AccessKeyID + "/" + scope +
		", SignedHeaders=" + signedHeaders +
		", Signature=" + signature
	return out, nil
}

// signingKey derives the per-day, per-region, per-service key via the fixed
// four-step HMAC chain seeded from the secret key.
func signingKey(creds Credentials, dateStamp string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+creds.SecretAccessKey), dateStamp)
	kRegion := hmacSHA256(kDate, creds.Region)
	kService := hmacSHA256(kRegion, creds.Service)
	return hmacSHA256(kService, "aws4_request")
}

// canonicalQuery renders query parameters sorted by name then value, with
// RFC 3986 escaping (QueryEscape would emit '+' for spaces, which the
// provider rejects).
func canonicalQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, uriEscape(k)+"="+uriEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

func uriEscape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			b.WriteString("%")
			b.WriteString(strings.ToUpper(hex.EncodeToString([]byte{c})))
		}
	}
	return b.String()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
