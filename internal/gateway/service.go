package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/af-corp/quieter-gateway/internal/billing"
	"github.com/af-corp/quieter-gateway/internal/catalog"
	"github.com/af-corp/quieter-gateway/internal/config"
	"github.com/af-corp/quieter-gateway/internal/filter"
	"github.com/af-corp/quieter-gateway/internal/ledger"
	"github.com/af-corp/quieter-gateway/internal/policy"
	"github.com/af-corp/quieter-gateway/internal/router/adapters"
	"github.com/af-corp/quieter-gateway/internal/scrub"
	"github.com/af-corp/quieter-gateway/internal/telemetry"
	"github.com/af-corp/quieter-gateway/internal/types"
)

// Upstream sends a completion to the named provider.
type Upstream interface {
	Complete(ctx context.Context, provider string, req *adapters.CompletionRequest) (*adapters.Completion, error)
}

// ModelResolver maps a requested model id (or "auto") to a catalog entry.
type ModelResolver interface {
	Resolve(ctx context.Context, requested string) (catalog.ModelConfig, error)
}

// UsageLedger is the subset of *ledger.Ledger the service needs.
type UsageLedger interface {
	Settle(ctx context.Context, s ledger.Success) (string, error)
	RecordFailure(ctx context.Context, f ledger.Failure) (string, error)
	Balance(ctx context.Context, tenantID string) (ledger.Balance, error)
	Usage(ctx context.Context, tenantID string, limit int) ([]ledger.UsageRecord, error)
	Ping(ctx context.Context) error
}

// ModelPolicy decides whether a tenant may use a model.
type ModelPolicy interface {
	AllowModel(ctx context.Context, tenantID, plan string, model policy.ModelInput) policy.Decision
}

// SpendRecorder tracks daily spend for the budget check.
type SpendRecorder interface {
	RecordSpend(ctx context.Context, tenantID string, costCents int64) error
}

// RequestCounter counts requests for instance telemetry.
type RequestCounter interface {
	RecordRequest(kind string)
}

// Deps wires a Service. Filters, Policy, Spend, Metrics and Counter are optional.
type Deps struct {
	Scrubber *scrub.Scrubber
	Filters  *filter.Chain
	Resolver ModelResolver
	Catalog  catalog.Catalog
	Policy   ModelPolicy
	Upstream Upstream
	Ledger   UsageLedger
	Spend    SpendRecorder
	Metrics  *telemetry.Metrics
	Counter  RequestCounter
	Config   func() config.LedgerConfig
}

// Service runs the metered query pipeline and the scrub-only dry run.
type Service struct {
	scrubber *scrub.Scrubber
	filters  *filter.Chain
	resolver ModelResolver
	catalog  catalog.Catalog
	policy   ModelPolicy
	upstream Upstream
	ledger   UsageLedger
	spend    SpendRecorder
	metrics  *telemetry.Metrics
	counter  RequestCounter
	cfg      func() config.LedgerConfig
	now      func() time.Time
}

func NewService(d Deps) *Service {
	cfg := d.Config
	if cfg == nil {
		cfg = func() config.LedgerConfig { return config.DefaultConfig().Ledger }
	}
	return &Service{
		scrubber: d.Scrubber,
		filters:  d.Filters,
		resolver: d.Resolver,
		catalog:  d.Catalog,
		policy:   d.Policy,
		upstream: d.Upstream,
		ledger:   d.Ledger,
		spend:    d.Spend,
		metrics:  d.Metrics,
		counter:  d.Counter,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Query scrubs the request, resolves a model, calls the provider and settles
// usage. Ledger failures are logged and counted but never fail the request.
func (s *Service) Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResponse, error) {
	if s.counter != nil {
		s.counter.RecordRequest(telemetry.KindQuery)
	}
	if req.Prompt == "" {
		return nil, newError(KindInvalidInput, "prompt is required", nil)
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = s.now()
	}

	summary, err := s.runFilters(ctx, req)
	if err != nil {
		return nil, err
	}

	prompt := s.scrubber.Scrub(req.Prompt)
	system := s.scrubber.Scrub(req.System)
	redactions := prompt.Redactions + system.Redactions
	s.recordRedactions(prompt, system)

	model, err := s.resolver.Resolve(ctx, req.Model)
	if err != nil {
		return nil, resolveError(req.Model, err)
	}

	if s.policy != nil {
		d := s.policy.AllowModel(ctx, req.TenantID, req.Plan, policy.ModelInput{
			ID:       model.ID,
			Provider: model.Provider,
			Tier:     model.Tier,
		})
		if !d.Allowed {
			slog.Warn("model denied by policy",
				"request_id", req.RequestID,
				"tenant_id", req.TenantID,
				"model", model.ID,
				"reason", d.Reason,
			)
			msg := "Model " + model.ID + " is not available on your plan"
			if d.Reason != "" {
				msg += ": " + d.Reason
			}
			return nil, newError(KindModelDenied, msg, nil)
		}
	}

	upstreamStart := s.now()
	completion, err := s.upstream.Complete(ctx, model.Provider, &adapters.CompletionRequest{
		Model:       model.UpstreamModel,
		System:      system.Text,
		Prompt:      prompt.Text,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	latency := s.now().Sub(upstreamStart)
	if err != nil {
		slog.Error("upstream request failed",
			"request_id", req.RequestID,
			"tenant_id", req.TenantID,
			"model", model.ID,
			"provider", model.Provider,
			"error", err,
		)
		s.recordFailure(ctx, req, redactions)
		s.recordRequest(req, model, "error", latency, 0, 0, 0)
		return nil, newError(KindUpstream, "Upstream model request failed", err)
	}

	cost := billing.ComputeCost(model, completion.InputTokens, completion.OutputTokens)
	latencyMs := latency.Milliseconds()

	s.settle(ctx, ledger.Success{
		RequestID:    req.RequestID,
		TenantID:     req.TenantID,
		ModelID:      model.ID,
		LatencyMs:    latencyMs,
		InputTokens:  completion.InputTokens,
		OutputTokens: completion.OutputTokens,
		Redactions:   redactions,
		ProviderCost: cost.ProviderCents,
		BilledCost:   cost.BilledCents,
	})
	s.recordRequest(req, model, "success", latency, completion.InputTokens, completion.OutputTokens, cost.BilledCents)

	slog.Info("query completed",
		"request_id", req.RequestID,
		"tenant_id", req.TenantID,
		"model", model.ID,
		"provider", model.Provider,
		"redactions", redactions,
		"input_tokens", completion.InputTokens,
		"output_tokens", completion.OutputTokens,
		"billed_cents", cost.BilledCents,
		"latency_ms", latencyMs,
	)

	return &types.QueryResponse{
		OK:         true,
		RequestID:  req.RequestID,
		Prompt:     prompt.Text,
		Redactions: redactions,
		Model:      model.ID,
		Provider:   model.Provider,
		LatencyMs:  latencyMs,
		Response:   completion.Text,
		Usage: types.Usage{
			InputTokens:  completion.InputTokens,
			OutputTokens: completion.OutputTokens,
			TotalTokens:  completion.InputTokens + completion.OutputTokens,
		},
		ProviderCostCents: cost.ProviderCents,
		BilledCents:       cost.BilledCents,
		Filters:           summary,
	}, nil
}

// Proxy scrubs the prompt and metadata without calling a provider or metering.
func (s *Service) Proxy(_ context.Context, req *types.QueryRequest) (*types.ProxyResponse, error) {
	if s.counter != nil {
		s.counter.RecordRequest(telemetry.KindProxy)
	}
	if req.Prompt == "" {
		return nil, newError(KindInvalidInput, "prompt is required", nil)
	}

	res, meta := s.scrubber.ScrubRequest(scrub.Request{Text: req.Prompt, Metadata: req.Metadata})
	s.recordRedactions(res)

	categories := make(map[string]int)
	for name, enabled := range s.scrubber.Categories() {
		if enabled {
			categories[name] = res.Counts[scrub.Category(name)]
		}
	}

	return &types.ProxyResponse{
		OK:         true,
		RequestID:  req.RequestID,
		Prompt:     res.Text,
		Metadata:   meta,
		Redactions: res.Redactions,
		Categories: categories,
	}, nil
}

// ListModels returns the enabled catalog entries.
func (s *Service) ListModels(ctx context.Context) ([]catalog.ModelConfig, error) {
	models, err := s.catalog.EnabledModels(ctx)
	if err != nil {
		return nil, newError(KindInternal, "Failed to load models", err)
	}
	return models, nil
}

// Balance returns the tenant's balance row.
func (s *Service) Balance(ctx context.Context, tenantID string) (ledger.Balance, error) {
	b, err := s.ledger.Balance(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ledger.ErrBalanceNotFound) {
			return ledger.Balance{}, newError(KindNotFound, "No balance for this tenant", err)
		}
		return ledger.Balance{}, newError(KindInternal, "Failed to load balance", err)
	}
	return b, nil
}

// Usage returns the tenant's most recent usage rows.
func (s *Service) Usage(ctx context.Context, tenantID string, limit int) ([]ledger.UsageRecord, error) {
	recs, err := s.ledger.Usage(ctx, tenantID, limit)
	if err != nil {
		return nil, newError(KindInternal, "Failed to load usage", err)
	}
	return recs, nil
}

// Ping checks the ledger's storage.
func (s *Service) Ping(ctx context.Context) error {
	return s.ledger.Ping(ctx)
}

func (s *Service) runFilters(ctx context.Context, req *types.QueryRequest) (*types.FilterSummary, error) {
	out := s.filters.Run(ctx, req.Texts()...)
	if b := out.Blocked; b != nil {
		slog.Warn("request blocked by filter",
			"request_id", req.RequestID,
			"tenant_id", req.TenantID,
			"filter", b.Filter,
			"detections", b.Detections,
			"score", b.Score,
		)
		s.recordFilter(*b)
		return nil, newError(KindContentBlocked, b.Message, nil)
	}

	flagged := out.Flagged()
	if len(flagged) == 0 {
		return nil, nil
	}
	summary := &types.FilterSummary{}
	for _, r := range flagged {
		s.recordFilter(r)
		fa := &types.FilterAction{Action: string(r.Action), Detections: r.Detections, Score: r.Score}
		switch r.Filter {
		case "secrets":
			summary.Secrets = fa
		case "injection":
			summary.Injection = fa
		}
	}
	return summary, nil
}

func (s *Service) recordFilter(r filter.Result) {
	if s.metrics != nil {
		s.metrics.RecordFilterAction(r.Filter, string(r.Action))
	}
}

// ledgerContext detaches ledger writes from client cancellation and bounds
// them by the configured write timeout.
func (s *Service) ledgerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.cfg().WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (s *Service) settle(ctx context.Context, succ ledger.Success) {
	lctx, cancel := s.ledgerContext(ctx)
	defer cancel()

	if _, err := s.ledger.Settle(lctx, succ); err != nil {
		if errors.Is(err, ledger.ErrDuplicateRequest) {
			slog.Warn("usage already settled", "request_id", succ.RequestID, "tenant_id", succ.TenantID)
			return
		}
		slog.Error("usage settle failed",
			"request_id", succ.RequestID,
			"tenant_id", succ.TenantID,
			"billed_cents", succ.BilledCost,
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.RecordLedgerFailure("settle")
		}
		return
	}

	if s.spend != nil && succ.BilledCost > 0 {
		if err := s.spend.RecordSpend(lctx, succ.TenantID, succ.BilledCost); err != nil {
			slog.Warn("daily spend not recorded", "tenant_id", succ.TenantID, "error", err)
		}
	}
}

func (s *Service) recordFailure(ctx context.Context, req *types.QueryRequest, redactions int) {
	lctx, cancel := s.ledgerContext(ctx)
	defer cancel()

	_, err := s.ledger.RecordFailure(lctx, ledger.Failure{
		RequestID:  req.RequestID,
		TenantID:   req.TenantID,
		Redactions: redactions,
	})
	if err != nil && !errors.Is(err, ledger.ErrDuplicateRequest) {
		slog.Error("usage failure record failed", "request_id", req.RequestID, "tenant_id", req.TenantID, "error", err)
		if s.metrics != nil {
			s.metrics.RecordLedgerFailure("record_failure")
		}
	}
}

func (s *Service) recordRedactions(results ...scrub.Result) {
	if s.metrics == nil {
		return
	}
	counts := make(map[string]int)
	for _, r := range results {
		for cat, n := range r.Counts {
			counts[string(cat)] += n
		}
	}
	s.metrics.RecordRedactions(counts)
}

func (s *Service) recordRequest(req *types.QueryRequest, model catalog.ModelConfig, status string, upstream time.Duration, in, out, billed int64) {
	if s.metrics == nil {
		return
	}
	total := s.now().Sub(req.ReceivedAt)
	overhead := total - upstream
	if overhead < 0 {
		overhead = 0
	}
	s.metrics.RecordRequest(telemetry.RequestLabels{
		Endpoint:     "query",
		Model:        model.ID,
		Provider:     model.Provider,
		Status:       status,
		UpstreamMs:   float64(upstream.Milliseconds()),
		OverheadMs:   float64(overhead.Milliseconds()),
		InputTokens:  in,
		OutputTokens: out,
		BilledCents:  billed,
	})
}

func resolveError(requested string, err error) error {
	switch {
	case errors.Is(err, catalog.ErrModelNotFound):
		return newError(KindModelNotFound, "Model "+requested+" not found or disabled", err)
	case errors.Is(err, catalog.ErrNoModelsConfigured):
		return newError(KindNoModels, "No models are configured", err)
	default:
		return newError(KindInternal, "Failed to resolve model", err)
	}
}
