package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/garrettladley/sesgate/internal/service/ingress"
	"github.com/garrettladley/sesgate/internal/sns"
	"github.com/garrettladley/sesgate/internal/xerrors"
	"github.com/garrettladley/sesgate/internal/xhttp"
	"github.com/garrettladley/sesgate/internal/xslog"
)

const certificateRetryAfter = 30 * time.Second

type Inbound struct {
	service ingress.Service
}

// NewInbound returns a handler for SNS deliveries. A nil service means the
// ingress is not configured and every request gets 404.
func NewInbound(service ingress.Service) *Inbound {
	return &Inbound{service: service}
}

// HandleNotification handles POST /inbound-notifications requests.
func (h *Inbound) HandleNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.service == nil {
		xerrors.WriteError(ctx, w, xerrors.NotFound(
			xerrors.WithCode("ingress_not_configured"),
			xerrors.WithMessage("inbound email ingress is not configured"),
		))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			xerrors.WriteError(ctx, w, xerrors.RequestTooLarge(
				xerrors.WithCode("body_too_large"),
				xerrors.WithMessage("notification body too large"),
			))
			return
		}
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("failed to read request body"), xerrors.WithCause(err)))
		return
	}

	req := ingress.ProcessRequest{
		Body:        body,
		MessageType: r.Header.Get(sns.HeaderMessageType),
		TopicARN:    r.Header.Get(sns.HeaderTopicARN),
		ContentType: xhttp.MediaType(r),
	}

	result, err := h.service.ProcessNotification(ctx, req)
	if err != nil {
		xerrors.WriteError(ctx, w, toHTTPError(err))
		return
	}

	xslog.FromContext(ctx).DebugContext(ctx, "notification processed",
		xslog.Outcome(string(result.Outcome)),
		xslog.Reason(string(result.Reason)),
		xslog.InboundEmailID(result.InboundEmailID))

	switch result.Outcome {
	case ingress.OutcomeConfirmed:
		w.WriteHeader(http.StatusOK)
	default:
		xhttp.WriteNoContent(w)
	}
}

func toHTTPError(err error) *xerrors.Error {
	switch {
	case errors.Is(err, sns.ErrMalformed):
		return xerrors.BadRequest(xerrors.WithCode("malformed_notification"), xerrors.WithMessage("malformed notification"), xerrors.WithCause(err))
	case errors.Is(err, ingress.ErrUnsupportedMediaType):
		return xerrors.BadRequest(xerrors.WithCode("unsupported_content_type"), xerrors.WithMessage("unsupported content type"), xerrors.WithCause(err))
	case errors.Is(err, ingress.ErrNoContent):
		return xerrors.BadRequest(xerrors.WithCode("no_content"), xerrors.WithMessage("notification carries no message content"), xerrors.WithCause(err))
	case errors.Is(err, sns.ErrUnknownTopic):
		return xerrors.Unauthorized(xerrors.WithCode("unknown_topic"), xerrors.WithMessage("unknown topic"), xerrors.WithCause(err))
	case errors.Is(err, sns.ErrBadSignature):
		return xerrors.Unauthorized(xerrors.WithCode("invalid_signature"), xerrors.WithMessage("invalid signature"), xerrors.WithCause(err))
	case errors.Is(err, sns.ErrCertificateUnavailable):
		return xerrors.ServiceUnavailable(xerrors.WithCode("certificate_unavailable"), xerrors.WithMessage("signing certificate unavailable"), xerrors.WithRetryAfter(certificateRetryAfter), xerrors.WithCause(err))
	case errors.Is(err, ingress.ErrConfirmURLNotAllowed):
		return xerrors.UnprocessableEntity(xerrors.WithCode("confirmation_url_not_allowed"), xerrors.WithMessage("subscription confirmation url not allowed"), xerrors.WithCause(err))
	case errors.Is(err, ingress.ErrConfirmRejected):
		return xerrors.UnprocessableEntity(xerrors.WithCode("confirmation_rejected"), xerrors.WithMessage("subscription confirmation rejected"), xerrors.WithCause(err))
	case errors.Is(err, ingress.ErrStorageFailure):
		return xerrors.Internal(xerrors.WithCode("storage_failure"), xerrors.WithMessage("failed to fetch stored message"), xerrors.WithCause(err))
	case errors.Is(err, ingress.ErrSinkFailure):
		return xerrors.Internal(xerrors.WithCode("sink_failure"), xerrors.WithMessage("failed to store inbound email"), xerrors.WithCause(err))
	default:
		return xerrors.Internal(xerrors.WithMessage("failed to process notification"), xerrors.WithCause(err))
	}
}
