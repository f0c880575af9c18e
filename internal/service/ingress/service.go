package ingress

import (
	"context"
	"errors"
	"fmt"

	"github.com/garrettladley/sesgate/internal/objectstore"
	"github.com/garrettladley/sesgate/internal/ses"
)

var (
	ErrNoContent            = errors.New("notification carries no message content")
	ErrStorageFailure       = errors.New("object storage failure")
	ErrSinkFailure          = errors.New("inbound email sink failure")
	ErrConfirmRejected      = errors.New("subscription confirmation rejected")
	ErrConfirmURLNotAllowed = errors.New("subscription confirmation url not allowed")
	ErrUnsupportedMediaType = errors.New("unsupported content type")
)

// StorageError reports a failed object fetch. It matches ErrStorageFailure.
type StorageError struct {
	Ref   objectstore.Ref
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Ref, e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }

// RejectedError reports a confirmation GET that did not return 2xx. StatusCode
// is zero when no response arrived. It matches ErrConfirmRejected.
type RejectedError struct {
	StatusCode int
	Cause      error
}

func (e *RejectedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%v: %v", ErrConfirmRejected, e.Cause)
	}
	return fmt.Sprintf("%v: status %d", ErrConfirmRejected, e.StatusCode)
}

func (e *RejectedError) Unwrap() error { return e.Cause }

func (e *RejectedError) Is(target error) bool { return target == ErrConfirmRejected }

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeDelivered Outcome = "delivered"
	OutcomeIgnored   Outcome = "ignored"
)

type ProcessRequest struct {
	Body []byte
	// MessageType and TopicARN carry the X-Amz-Sns-* headers, if sent.
	MessageType string
	TopicARN    string
	ContentType string
}

type Result struct {
	Outcome        Outcome
	InboundEmailID string
	Reason         ses.Reason
}

type Service interface {
	// ProcessNotification authenticates, decodes and acts on one SNS delivery.
	// Returns sns.ErrMalformed, sns.ErrUnknownTopic or sns.ErrBadSignature if
	// the delivery is not accepted.
	// Returns ErrConfirmURLNotAllowed or ErrConfirmRejected if a subscription
	// confirmation fails.
	// Returns ErrNoContent if a Received notification has no message.
	// Returns ErrStorageFailure or ErrSinkFailure if the message could not be
	// fetched or stored; the caller should let SNS redeliver.
	ProcessNotification(ctx context.Context, req ProcessRequest) (Result, error)
}
