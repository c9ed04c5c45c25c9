package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/af-corp/quieter-gateway/internal/auth"
	"github.com/af-corp/quieter-gateway/internal/catalog"
	"github.com/af-corp/quieter-gateway/internal/httputil"
	"github.com/af-corp/quieter-gateway/internal/router"
	"github.com/af-corp/quieter-gateway/internal/types"
)

const maxBodyBytes = 1 << 20

// ProviderStates reports upstream circuit breaker states for /health.
type ProviderStates interface {
	States() []router.ProviderState
}

// Handler holds dependencies for the gateway HTTP handlers.
type Handler struct {
	svc       *Service
	version   string
	providers ProviderStates
}

func NewHandler(svc *Service, version string, providers ProviderStates) *Handler {
	return &Handler{svc: svc, version: version, providers: providers}
}

// Routes mounts the tenant-facing endpoints. authn is applied to everything
// except /health; limits wraps the metered query endpoints.
func (h *Handler) Routes(r chi.Router, authn, limits func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Post("/proxy", h.Proxy)
		r.Get("/v1/models", h.ListModels)
		r.Get("/v1/balance", h.Balance)
		r.Get("/v1/usage", h.Usage)

		r.Group(func(r chi.Router) {
			if limits != nil {
				r.Use(limits)
			}
			r.Post("/query", h.Query)
			r.Post("/v1/query", h.Query)
		})
	})
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	DB        string                 `json:"db"`
	Providers []router.ProviderState `json:"providers,omitempty"`
}

// Health handles GET /health. It is unauthenticated and pings the database.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Version: h.version, DB: "ok"}
	if h.providers != nil {
		resp.Providers = h.providers.States()
	}
	status := http.StatusOK
	if err := h.svc.Ping(ctx); err != nil {
		slog.Error("health check failed", "error", err)
		resp.Status = "error"
		resp.DB = "unreachable"
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, reqID, status, resp)
}

// queryBody is the JSON accepted by /query and /proxy.
type queryBody struct {
	Prompt      *string        `json:"prompt"`
	Model       string         `json:"model"`
	MaxTokens   *int           `json:"maxTokens"`
	Temperature *float64       `json:"temperature"`
	System      string         `json:"system"`
	Metadata    map[string]any `json:"metadata"`
}

// Query handles POST /query and POST /v1/query.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.Write(w, reqID, httputil.ErrAuth, "Not authenticated")
		return
	}

	req, err := decodeQuery(w, r, reqID, authInfo)
	if err != nil {
		writeError(w, reqID, err)
		return
	}

	resp, err := h.svc.Query(r.Context(), req)
	if err != nil {
		logRequestError(reqID, authInfo.TenantID, err)
		writeError(w, reqID, err)
		return
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, resp)
}

// Proxy handles POST /proxy, the scrub-only dry run.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.Write(w, reqID, httputil.ErrAuth, "Not authenticated")
		return
	}

	req, err := decodeQuery(w, r, reqID, authInfo)
	if err != nil {
		writeError(w, reqID, err)
		return
	}

	resp, err := h.svc.Proxy(r.Context(), req)
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, resp)
}

type modelObject struct {
	ID               string   `json:"id"`
	Object           string   `json:"object"`
	OwnedBy          string   `json:"owned_by"`
	Tier             string   `json:"tier"`
	PriceInputPer1K  float64  `json:"price_input_per_1k"`
	PriceOutputPer1K float64  `json:"price_output_per_1k"`
	QualityScore     *float64 `json:"quality_score,omitempty"`
}

type modelListResponse struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}

// ListModels handles GET /v1/models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	models, err := h.svc.ListModels(r.Context())
	if err != nil {
		logRequestError(reqID, "", err)
		writeError(w, reqID, err)
		return
	}

	data := make([]modelObject, 0, len(models))
	for _, m := range models {
		data = append(data, toModelObject(m))
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, modelListResponse{Object: "list", Data: data})
}

func toModelObject(m catalog.ModelConfig) modelObject {
	return modelObject{
		ID:               m.ID,
		Object:           "model",
		OwnedBy:          m.Provider,
		Tier:             m.Tier,
		PriceInputPer1K:  m.PriceInputPer1K,
		PriceOutputPer1K: m.PriceOutputPer1K,
		QualityScore:     m.QualityScore,
	}
}

// Balance handles GET /v1/balance.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.Write(w, reqID, httputil.ErrAuth, "Not authenticated")
		return
	}

	b, err := h.svc.Balance(r.Context(), authInfo.TenantID)
	if err != nil {
		logRequestError(reqID, authInfo.TenantID, err)
		writeError(w, reqID, err)
		return
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, b)
}

// Usage handles GET /v1/usage?limit=N.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	authInfo, ok := auth.AuthFromContext(r.Context())
	if !ok {
		httputil.Write(w, reqID, httputil.ErrAuth, "Not authenticated")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.Write(w, reqID, httputil.ErrBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := h.svc.Usage(r.Context(), authInfo.TenantID, limit)
	if err != nil {
		logRequestError(reqID, authInfo.TenantID, err)
		writeError(w, reqID, err)
		return
	}
	httputil.WriteJSON(w, reqID, http.StatusOK, map[string]any{"object": "list", "data": recs})
}

func decodeQuery(w http.ResponseWriter, r *http.Request, reqID string, authInfo *auth.AuthInfo) (*types.QueryRequest, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, newError(KindInvalidInput, "Failed to read request body", err)
	}

	var qb queryBody
	if err := json.Unmarshal(body, &qb); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "prompt" {
			return nil, newError(KindInvalidInput, "prompt must be a string", err)
		}
		return nil, newError(KindInvalidInput, "Invalid JSON: "+err.Error(), err)
	}
	if qb.Prompt == nil || *qb.Prompt == "" {
		return nil, newError(KindInvalidInput, "prompt is required and must be a non-empty string", nil)
	}

	model := qb.Model
	if model == "" {
		model = catalog.AutoModel
	}

	return &types.QueryRequest{
		RequestID:   reqID,
		TenantID:    authInfo.TenantID,
		Plan:        authInfo.Plan,
		Prompt:      *qb.Prompt,
		System:      qb.System,
		Model:       model,
		MaxTokens:   types.ClampMaxTokens(qb.MaxTokens),
		Temperature: types.ClampTemperature(qb.Temperature),
		Metadata:    qb.Metadata,
		ReceivedAt:  time.Now(),
	}, nil
}

func logRequestError(reqID, tenantID string, err error) {
	var gerr *Error
	if errors.As(err, &gerr) && gerr.Kind != KindInternal {
		return
	}
	slog.Error("request failed", "request_id", reqID, "tenant_id", tenantID, "error", err)
}
