package server

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Problem types for RFC 7807 Problem Details responses.
const (
	ProblemTypeNotFound    = "https://omicsview.dev/problems/not-found"
	ProblemTypeBadRequest  = "https://omicsview.dev/problems/bad-request"
	ProblemTypeInternal    = "https://omicsview.dev/problems/internal-error"
	ProblemTypeRateLimited = "https://omicsview.dev/problems/rate-limited"
)

var problemTypes = map[int]string{
	http.StatusNotFound:            ProblemTypeNotFound,
	http.StatusBadRequest:          ProblemTypeBadRequest,
	http.StatusInternalServerError: ProblemTypeInternal,
	http.StatusTooManyRequests:     ProblemTypeRateLimited,
}

// Problem is the RFC 7807 body the stub sends for every rejected request.
// The client surfaces Detail in its ServerError.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// newProblem fills the type and title from the status code.
func newProblem(status int, detail string, r *http.Request) Problem {
	typ, ok := problemTypes[status]
	if !ok {
		typ = "about:blank"
	}
	return Problem{
		Type:     typ,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
}

// WriteProblem writes p as application/problem+json.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteProblem(w, newProblem(http.StatusBadRequest, detail, r))
}

func notFound(w http.ResponseWriter, r *http.Request) {
	WriteProblem(w, newProblem(http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path, r))
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	WriteProblem(w, newProblem(http.StatusInternalServerError, err.Error(), r))
}

// rateLimited rejects a request and tells the caller when a token frees up.
func rateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
	}
	WriteProblem(w, newProblem(http.StatusTooManyRequests, "request rate exceeded", r))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
