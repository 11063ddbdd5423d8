package httpmw

import (
	"net/http"
	"runtime/debug"

	"github.com/keithlinneman/webassets/internal/log"
	"github.com/keithlinneman/webassets/internal/xerrors"
)

// Recover converts handler panics into 500 responses. The panic value and
// stack are logged; onPanic (optional) feeds the panic counter.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					// client went away mid-write, let net/http handle it
					panic(rec)
				}

				if onPanic != nil {
					onPanic()
				}

				var err error
				if e, ok := rec.(error); ok {
					err = xerrors.Wrap(e, "panic")
				} else {
					err = xerrors.Newf("panic: %v", rec)
				}

				L := logger
				if L == nil {
					L = log.FromContext(r.Context())
				}
				if L != nil {
					L.With(
						"http.request.method", r.Method,
						"url.path", r.URL.Path,
						"stack", string(debug.Stack()),
					).Error(r.Context(), err, "httpserver panic recovered")
				}

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
