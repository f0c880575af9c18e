package xslog

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/garrettladley/sesgate/internal/version"
	"github.com/garrettladley/sesgate/internal/xhttp"
)

const (
	keyError = "error"
)

func Error(err error) slog.Attr {
	return slog.String(keyError, err.Error())
}

func RequestID(requestID string) slog.Attr {
	const requestIDKey = "request_id"
	return slog.String(requestIDKey, requestID)
}

func Stack() slog.Attr {
	const stackKey = "stack"
	return slog.String(stackKey, string(debug.Stack()))
}

func HTTPStatus(status int) slog.Attr {
	const statusKey = "status"
	return slog.Int(statusKey, status)
}

func Duration(duration time.Duration) slog.Attr {
	const durationKey = "duration"
	return slog.Duration(durationKey, duration)
}

func RequestMethod(r *http.Request) slog.Attr {
	const methodKey = "method"
	return slog.String(methodKey, r.Method)
}

func RequestPath(r *http.Request) slog.Attr {
	const pathKey = "path"
	return slog.String(pathKey, r.URL.Path)
}

func IP(ip string) slog.Attr {
	const ipKey = "ip"
	return slog.String(ipKey, ip)
}

func RequestIP(r *http.Request) slog.Attr {
	return IP(xhttp.GetRequestIP(r))
}

func Version() slog.Attr {
	const versionKey = "version"
	return slog.String(versionKey, version.Get())
}

func TopicARN(arn string) slog.Attr {
	const topicKey = "topic_arn"
	return slog.String(topicKey, arn)
}

func MessageID(id string) slog.Attr {
	const messageIDKey = "message_id"
	return slog.String(messageIDKey, id)
}

func MessageType(t string) slog.Attr {
	const messageTypeKey = "message_type"
	return slog.String(messageTypeKey, t)
}

func CertURL(url string) slog.Attr {
	const certURLKey = "cert_url"
	return slog.String(certURLKey, url)
}

func URL(url string) slog.Attr {
	const urlKey = "url"
	return slog.String(urlKey, url)
}

func Bucket(bucket string) slog.Attr {
	const bucketKey = "bucket"
	return slog.String(bucketKey, bucket)
}

func ObjectKey(key string) slog.Attr {
	const objectKeyKey = "object_key"
	return slog.String(objectKeyKey, key)
}

func Region(region string) slog.Attr {
	const regionKey = "region"
	return slog.String(regionKey, region)
}

func Outcome(outcome string) slog.Attr {
	const outcomeKey = "outcome"
	return slog.String(outcomeKey, outcome)
}

func Reason(reason string) slog.Attr {
	const reasonKey = "reason"
	return slog.String(reasonKey, reason)
}

func InboundEmailID(id string) slog.Attr {
	const inboundEmailIDKey = "inbound_email_id"
	return slog.String(inboundEmailIDKey, id)
}

func Bytes(n int) slog.Attr {
	const bytesKey = "bytes"
	return slog.Int(bytesKey, n)
}

func Count(count int) slog.Attr {
	const countKey = "count"
	return slog.Int(countKey, count)
}

func Sink(name string) slog.Attr {
	const sinkKey = "sink"
	return slog.String(sinkKey, name)
}

// Envelope records the raw SNS body. Log it at debug level only.
func Envelope(raw []byte) slog.Attr {
	const envelopeKey = "envelope"
	return slog.String(envelopeKey, string(raw))
}
