// Package snstest signs SNS envelopes with a throwaway certificate and serves
// that certificate through an in-process transport.
package snstest

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // SignatureVersion 1 signs with SHA1.
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	go_json "github.com/goccy/go-json"

	"github.com/garrettladley/sesgate/internal/sns"
)

const (
	DefaultCertURL = "https://sns.us-east-1.amazonaws.com/SimpleNotificationService-test.pem"
	DefaultTopic   = "arn:aws:sns:us-east-1:123456789012:inbound-mail"
)

type Signer struct {
	Key     *rsa.PrivateKey
	Cert    *x509.Certificate
	CertPEM []byte
	CertURL string

	fetches atomic.Int64
}

func NewSigner(tb testing.TB) *Signer {
	tb.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("generate key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "sns.amazonaws.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		tb.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		tb.Fatalf("parse certificate: %v", err)
	}

	return &Signer{
		Key:     key,
		Cert:    cert,
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		CertURL: DefaultCertURL,
	}
}

// Sign fills the signature fields of n. SignatureVersion defaults to 2.
func (s *Signer) Sign(tb testing.TB, n *sns.Notification) {
	tb.Helper()

	n.Kind = sns.ParseKind(n.Type)
	if n.SignatureVersion == "" {
		n.SignatureVersion = sns.SignatureVersion2
	}
	if n.SigningCertURL == "" {
		n.SigningCertURL = s.CertURL
	}

	canonical, err := sns.StringToSign(*n)
	if err != nil {
		tb.Fatalf("string to sign: %v", err)
	}

	var (
		algo   crypto.Hash
		digest []byte
	)
	switch n.SignatureVersion {
	case sns.SignatureVersion1:
		sum := sha1.Sum([]byte(canonical)) //nolint:gosec
		algo, digest = crypto.SHA1, sum[:]
	default:
		sum := sha256.Sum256([]byte(canonical))
		algo, digest = crypto.SHA256, sum[:]
	}

	sig, err := rsa.SignPKCS1v15(rand.Reader, s.Key, algo, digest)
	if err != nil {
		tb.Fatalf("sign: %v", err)
	}
	n.Signature = base64.StdEncoding.EncodeToString(sig)
}

// Envelope signs n and renders it in the SNS wire format.
func (s *Signer) Envelope(tb testing.TB, n sns.Notification) []byte {
	tb.Helper()
	s.Sign(tb, &n)
	return Marshal(tb, n)
}

// Marshal renders n in the SNS wire format without touching its signature.
func Marshal(tb testing.TB, n sns.Notification) []byte {
	tb.Helper()

	doc := map[string]string{
		"Type":             n.Type,
		"MessageId":        n.MessageID,
		"TopicArn":         n.TopicARN,
		"Message":          n.Message,
		"Timestamp":        n.Timestamp,
		"SignatureVersion": n.SignatureVersion,
		"Signature":        n.Signature,
		"SigningCertURL":   n.SigningCertURL,
	}
	if n.Subject != "" {
		doc["Subject"] = n.Subject
	}
	if n.Token != "" {
		doc["Token"] = n.Token
	}
	if n.SubscribeURL != "" {
		doc["SubscribeURL"] = n.SubscribeURL
	}
	if n.UnsubscribeURL != "" {
		doc["UnsubscribeURL"] = n.UnsubscribeURL
	}

	data, err := go_json.Marshal(doc)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return data
}

// Transport serves CertPEM for CertURL and 404 for everything else.
func (s *Signer) Transport() http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.String() != s.CertURL {
			return Response(req, http.StatusNotFound, nil), nil
		}
		s.fetches.Add(1)
		return Response(req, http.StatusOK, s.CertPEM), nil
	})
}

// Fetches counts certificate downloads served by Transport.
func (s *Signer) Fetches() int64 { return s.fetches.Load() }

func Response(req *http.Request, status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(body)),
		Request:    req,
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

// Notification returns an unsigned Notification envelope carrying message.
func Notification(message string) sns.Notification {
	return sns.Notification{
		Type:      string(sns.KindNotification),
		MessageID: "a1b2c3d4-0000-4000-8000-000000000001",
		TopicARN:  DefaultTopic,
		Message:   message,
		Timestamp: "2026-10-18T12:00:00.000Z",
	}
}

// Confirmation returns an unsigned SubscriptionConfirmation envelope.
func Confirmation(subscribeURL string) sns.Notification {
	return sns.Notification{
		Type:         string(sns.KindSubscriptionConfirmation),
		MessageID:    "a1b2c3d4-0000-4000-8000-000000000002",
		TopicARN:     DefaultTopic,
		Message:      "You have chosen to subscribe to the topic.",
		Timestamp:    "2026-10-18T12:00:00.000Z",
		Token:        "2336412f37fb687f5d51e6e241d09c805a5a57b30d712f794cc5f6a988666d92768dd60a747ba6f3beb71854e285d6ad02428b09ceece29417f1f02d609c582afbacc99c583a916b9981dd2728f4ae6fdb82efd087cc3b7849e05798d2d2785c03b0879594eeac82c01f235d0e717736",
		SubscribeURL: subscribeURL,
	}
}
