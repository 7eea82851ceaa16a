package jmapapi

import (
	"encoding/json"
	"net/http"

	"github.com/hrmny/jig/logger"
)

// ProblemDetails is the uniform error body for every non-2xx response.
type ProblemDetails struct {
	Type   string  `json:"type"`
	Status int     `json:"status"`
	Detail string  `json:"detail"`
	Limit  *string `json:"limit"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("error encoding JSON response", "error", err)
	}
}

func writeProblem(w http.ResponseWriter, status int, problemType, detail string) {
	writeJSON(w, status, ProblemDetails{
		Type:   problemType,
		Status: status,
		Detail: detail,
	})
}

// problemWriter buffers the status code so the backstop middleware can
// attach a problem body to error responses that would otherwise go out
// empty.
type problemWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	sentHeader  bool
	wroteBody   bool
}

func (pw *problemWriter) WriteHeader(code int) {
	if pw.wroteHeader {
		return
	}
	pw.status = code
	pw.wroteHeader = true
}

func (pw *problemWriter) Write(b []byte) (int, error) {
	if !pw.sentHeader {
		if !pw.wroteHeader {
			pw.status = http.StatusOK
			pw.wroteHeader = true
		}
		pw.ResponseWriter.WriteHeader(pw.status)
		pw.sentHeader = true
	}
	pw.wroteBody = true
	return pw.ResponseWriter.Write(b)
}

// finish flushes a buffered header, filling in a generic problem body for
// error statuses whose handler wrote none.
func (pw *problemWriter) finish() {
	if pw.sentHeader || !pw.wroteHeader {
		return
	}
	if pw.status >= 400 {
		pw.Header().Set("Content-Type", "application/json")
		pw.ResponseWriter.WriteHeader(pw.status)
		pw.sentHeader = true
		body, _ := json.Marshal(ProblemDetails{
			Type:   "unexpected error",
			Status: pw.status,
			Detail: "unexpected error",
		})
		_, _ = pw.ResponseWriter.Write(body)
		pw.wroteBody = true
		return
	}
	pw.ResponseWriter.WriteHeader(pw.status)
	pw.sentHeader = true
}

// problemBackstopMiddleware guarantees no error response leaves with an
// empty body: anything that reaches the client carries a ProblemDetails
// JSON document.
func problemBackstopMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pw := &problemWriter{ResponseWriter: w}
		next.ServeHTTP(pw, r)
		pw.finish()
	})
}
