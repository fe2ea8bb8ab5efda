package observability

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5/middleware"
)

// InitSentry configures error reporting. With an empty DSN Sentry stays
// disabled and the capture helpers are no-ops. The returned func flushes
// buffered events.
func InitSentry(dsn, environment, release string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, err
	}
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureRequestError reports an unhandled request error with the request
// id and route tagged.
func CaptureRequestError(r *http.Request, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("request_id", middleware.GetReqID(r.Context()))
		scope.SetTag("method", r.Method)
		scope.SetExtra("path", r.URL.Path)
		sentry.CaptureException(err)
	})
}
