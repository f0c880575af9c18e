package sns

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // SignatureVersion 1 is SHA1withRSA by definition.
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"hash"
	"strings"
	"time"
)

const (
	SignatureVersion1 = "1"
	SignatureVersion2 = "2"
)

var (
	errUnsupportedSignatureVersion = errors.New("unsupported signature version")
	errUnsignableKind              = errors.New("message type has no signing scheme")
	errCertificateExpired          = errors.New("signing certificate is not valid at this time")
	errNotRSAKey                   = errors.New("signing certificate does not carry an RSA key")
)

// StringToSign builds the canonical string SNS signs: selected keys in byte
// order, each key and value followed by a newline. Subject is only part of the
// string when the envelope carried one.
func StringToSign(n Notification) (string, error) {
	type field struct{ key, value string }

	var fields []field
	switch n.Kind {
	case KindNotification:
		fields = append(fields, field{"Message", n.Message}, field{"MessageId", n.MessageID})
		if n.Subject != "" {
			fields = append(fields, field{"Subject", n.Subject})
		}
		fields = append(fields,
			field{"Timestamp", n.Timestamp},
			field{"TopicArn", n.TopicARN},
			field{"Type", n.Type},
		)
	case KindSubscriptionConfirmation, KindUnsubscribeConfirmation:
		fields = append(fields,
			field{"Message", n.Message},
			field{"MessageId", n.MessageID},
			field{"SubscribeURL", n.SubscribeURL},
			field{"Timestamp", n.Timestamp},
			field{"Token", n.Token},
			field{"TopicArn", n.TopicARN},
			field{"Type", n.Type},
		)
	default:
		return "", fmt.Errorf("%w: %q", errUnsignableKind, n.Type)
	}

	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f.key)
		b.WriteByte('\n')
		b.WriteString(f.value)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func signatureHash(version string) (crypto.Hash, func() hash.Hash, error) {
	switch version {
	case SignatureVersion1:
		return crypto.SHA1, sha1.New, nil
	case SignatureVersion2:
		return crypto.SHA256, sha256.New, nil
	default:
		return 0, nil, fmt.Errorf("%w: %q", errUnsupportedSignatureVersion, version)
	}
}

// VerifySignature checks n.Signature against cert at instant now.
func VerifySignature(n Notification, cert *x509.Certificate, now time.Time) error {
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return errCertificateExpired
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return errNotRSAKey
	}

	algo, newHash, err := signatureHash(n.SignatureVersion)
	if err != nil {
		return err
	}

	sig, err := base64.StdEncoding.DecodeString(n.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	canonical, err := StringToSign(n)
	if err != nil {
		return err
	}

	h := newHash()
	h.Write([]byte(canonical))
	if err := rsa.VerifyPKCS1v15(pub, algo, h.Sum(nil), sig); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	return nil
}
