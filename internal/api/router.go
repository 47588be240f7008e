package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/soaringjerry/kalpha/internal/logger"
	"github.com/soaringjerry/kalpha/internal/middleware"
	"github.com/soaringjerry/kalpha/internal/services"
	"github.com/soaringjerry/kalpha/internal/utils"
)

const defaultMaxBodyBytes int64 = 1 << 20

// RouterConfig wires the router. A nil Auth leaves the alpha routes open and
// MaxDistinctValues <= 0 keeps the service default.
type RouterConfig struct {
	Logger            *logger.Logger
	Auth              *services.AuthService
	Limiter           *middleware.RateLimiter
	MaxBodyBytes      int64
	MaxDistinctValues int
}

type Router struct {
	log       *logger.Logger
	agreement *services.AgreementService
	auth      *services.AuthService
	limiter   *middleware.RateLimiter
	maxBody   int64
}

func NewRouter(cfg RouterConfig) *Router {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Router{
		log:       log,
		agreement: services.NewAgreementService(log).WithMaxDistinctValues(cfg.MaxDistinctValues),
		auth:      cfg.Auth,
		limiter:   cfg.Limiter,
		maxBody:   maxBody,
	}
}

func (rt *Router) Register(mux *http.ServeMux) {
	mux.Handle("/api/alpha", rt.protect(http.HandlerFunc(rt.handleAlpha)))        // POST
	mux.Handle("/api/alpha/csv", rt.protect(http.HandlerFunc(rt.handleAlphaCSV))) // POST
	mux.Handle("/api/auth/token", rt.limiter.Limit(http.HandlerFunc(rt.handleToken)))
}

func (rt *Router) protect(h http.Handler) http.Handler {
	h = rt.limiter.Limit(h)
	if rt.auth == nil {
		return h
	}
	return middleware.WithAuth(middleware.RequireAuth(h))
}

// POST /api/alpha?format=json|coincidence|summary
// { ratings: [[1, null, "x"], ...], metric?: "nominal" }
func (rt *Router) handleAlpha(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rt.methodNotAllowed(w, r)
		return
	}
	var req services.AgreementRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, rt.maxBody))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		rt.writeError(w, r, decodeError(err))
		return
	}
	res, err := rt.agreement.Compute(&req)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeResult(w, r, res)
}

// POST /api/alpha/csv
// body: rater_id,unit_id,value
func (rt *Router) handleAlphaCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rt.methodNotAllowed(w, r)
		return
	}
	res, err := rt.agreement.ComputeLongCSV(&maxBytesReader{r: http.MaxBytesReader(w, r.Body, rt.maxBody)})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeResult(w, r, res)
}

// writeResult renders res as JSON, or as CSV when ?format=coincidence|summary.
func (rt *Router) writeResult(w http.ResponseWriter, r *http.Request, res *services.AgreementResult) {
	var (
		b   []byte
		err error
	)
	format := r.URL.Query().Get("format")
	switch format {
	case "", "json":
		writeJSON(w, http.StatusOK, res)
		return
	case "coincidence":
		b, err = services.ExportCoincidenceCSV(res)
	case "summary":
		b, err = services.ExportSummaryCSV(res)
	default:
		rt.writeError(w, r, services.NewInvalidError("unsupported format"))
		return
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+format+".csv")
	w.Header().Set("X-Report-ID", res.ID)
	_, _ = w.Write(b)
}

// POST /api/auth/token
// { client_id, secret }
func (rt *Router) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rt.methodNotAllowed(w, r)
		return
	}
	if rt.auth == nil {
		rt.writeError(w, r, services.NewNotFoundError("authentication is not enabled"))
		return
	}
	var req struct {
		ClientID string `json:"client_id"`
		Secret   string `json:"secret"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, rt.maxBody)).Decode(&req); err != nil {
		rt.writeError(w, r, decodeError(err))
		return
	}
	res, err := rt.auth.IssueToken(req.ClientID, req.Secret)
	if err != nil {
		rt.log.Warn("token request rejected", "client_id", req.ClientID, "request_id", middleware.RequestIDFromContext(r.Context()))
		rt.writeError(w, r, err)
		return
	}
	rt.log.Info("token issued", "client_id", res.ClientID)
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      res.Token,
		"token_type": "Bearer",
		"client_id":  res.ClientID,
		"expires_in": int(res.ExpiresIn.Seconds()),
	})
}

func (rt *Router) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"error":   "method_not_allowed",
		"message": utils.T(locale, "error.method"),
	})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	se, ok := services.AsServiceError(err)
	if !ok {
		rt.log.Error("request failed", "error", err, "request_id", middleware.RequestIDFromContext(r.Context()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "internal",
			"message": utils.T(locale, "error.internal"),
		})
		return
	}
	writeJSON(w, statusFor(se.Code), map[string]string{
		"error":   string(se.Code),
		"message": utils.T(locale, "error."+string(se.Code)),
		"detail":  se.Message,
	})
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func decodeError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return services.NewTooLargeError("request body too large")
	}
	if errors.Is(err, io.EOF) {
		return services.NewInvalidError("request body required")
	}
	return services.NewInvalidError("malformed json: " + strings.TrimPrefix(err.Error(), "json: "))
}

// maxBytesReader turns the body-limit error into a ServiceError so the CSV
// parser reports it as too_large instead of a malformed line.
type maxBytesReader struct {
	r   io.Reader
	err error
}

func (m *maxBytesReader) Read(p []byte) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	n, err := m.r.Read(p)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		m.err = services.NewTooLargeError("request body too large")
		return n, m.err
	}
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
