package middleware

import (
	"net/http"

	"github.com/garrettladley/sesgate/internal/xerrors"
	"github.com/garrettladley/sesgate/internal/xslog"
)

// Recovery turns a panic into a 500 so SNS retries the delivery.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			ctx := r.Context()
			xslog.FromContext(ctx).ErrorContext(ctx, "panic recovered",
				xslog.RequestGroup(r),
				xslog.ErrorGroupWithStack(rec),
			)
			xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithCode("panic")))
		}()
		next.ServeHTTP(w, r)
	})
}
