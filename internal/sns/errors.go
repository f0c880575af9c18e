package sns

import "errors"

var (
	ErrMalformed       = errors.New("malformed notification")
	ErrUnknownTopic    = errors.New("unknown topic")
	ErrBadSignature    = errors.New("signature verification failed")
	ErrHostNotAllowed  = errors.New("host not allowed")
	ErrInvalidTopicARN = errors.New("invalid topic arn")

	// ErrCertificateUnavailable means the signing host could not be reached or
	// did not answer 200. The delivery may still be authentic.
	ErrCertificateUnavailable = errors.New("signing certificate unavailable")
)
