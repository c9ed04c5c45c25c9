package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/af-corp/quieter-gateway/internal/config"
	"github.com/open-policy-agent/opa/v1/rego"
)

const query = "[data.quieter.policy.allow, data.quieter.policy.reason]"

// Input is the document a model-access policy is evaluated against.
type Input struct {
	Tenant TenantInput `json:"tenant"`
	Model  ModelInput  `json:"model"`
	Time   TimeInput   `json:"time"`
}

type TenantInput struct {
	ID   string `json:"id"`
	Plan string `json:"plan"`
}

type ModelInput struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Tier     string `json:"tier"`
}

type TimeInput struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Evaluator decides whether a tenant may use a resolved model.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyFilterConfig
	now      func() time.Time
}

// NewEvaluator creates a policy evaluator. Call Load to compile policies.
func NewEvaluator(cfg func() config.PolicyFilterConfig) *Evaluator {
	return &Evaluator{cfg: cfg, now: time.Now}
}

func (e *Evaluator) Enabled() bool { return e.cfg().Enabled }

// Load compiles Rego modules from the bundle path.
func (e *Evaluator) Load(ctx context.Context) error {
	cfg := e.cfg()
	modules, err := ReadBundle(cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", cfg.BundlePath)
		return nil
	}
	if err := e.LoadFromModules(ctx, modules); err != nil {
		return err
	}
	slog.Info("opa policies loaded", "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from module sources keyed by file name.
func (e *Evaluator) LoadFromModules(ctx context.Context, modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(query)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Evaluate runs the policy against the given input.
func (e *Evaluator) Evaluate(ctx context.Context, input Input) (Decision, error) {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	if prepared == nil {
		// Enabled without policies: fail closed.
		return Decision{Reason: "no policies loaded"}, nil
	}

	timeout := e.cfg().EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Reason: "no policy result"}, nil
	}

	// [allow, reason]
	arr, ok := results[0].Expressions[0].Value.([]any)
	if !ok || len(arr) < 2 {
		return Decision{Reason: "unexpected policy result format"}, nil
	}
	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return Decision{Allowed: allowed, Reason: reason}, nil
}

// AllowModel checks tenant access to a model. Disabled evaluators allow
// everything; evaluation errors deny.
func (e *Evaluator) AllowModel(ctx context.Context, tenantID, plan string, model ModelInput) Decision {
	if !e.Enabled() {
		return Decision{Allowed: true}
	}
	now := e.now().UTC()
	d, err := e.Evaluate(ctx, Input{
		Tenant: TenantInput{ID: tenantID, Plan: plan},
		Model:  model,
		Time:   TimeInput{Hour: now.Hour(), Day: now.Weekday().String()},
	})
	if err != nil {
		slog.Error("policy evaluation failed", "tenant_id", tenantID, "model", model.ID, "error", err)
		return Decision{Reason: "policy evaluation failed"}
	}
	return d
}
