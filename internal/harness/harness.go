package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/pagecache/internal/cache"
	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/query"
	"github.com/roach88/pagecache/internal/schema"
	"github.com/roach88/pagecache/internal/store"
)

// DefaultBatchID labels GetMany calls when a scenario names no batch id.
const DefaultBatchID = "test-batch-default"

// Harness executes scenario steps against one cache.
type Harness struct {
	cache    *cache.Cache
	store    *store.Store
	registry *schema.Registry
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh database in a temporary directory, which is
// removed afterwards. A step failing its expect clause or an assertion
// failing marks the result failed; a returned error means the scenario
// could not be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "pagecache-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"), store.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario store: %w", err)
	}

	batchID := scenario.BatchID
	if batchID == "" {
		batchID = DefaultBatchID
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := schema.NewRegistry(st)
	h := &Harness{
		cache: cache.New(st, reg,
			cache.WithLogger(logger),
			cache.WithBatchIDs(cache.NewFixedGenerator(batchID)),
		),
		store:    st,
		registry: reg,
		logger:   logger,
	}
	defer h.cache.Close()

	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to set up scenario %s: %w", scenario.Name, err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step, result)
	}
	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, h) {
		result.AddError(msg)
	}
	return result, nil
}

// setup registers the scenario's types and invalidators.
func (h *Harness) setup(ctx context.Context, scenario *Scenario) error {
	schemas, err := schema.CompileSource(scenario.Types)
	if err != nil {
		return fmt.Errorf("types: %w", err)
	}
	for _, sc := range schemas {
		if err := h.cache.Register(ctx, sc); err != nil {
			return err
		}
	}
	for typeName, raw := range scenario.Invalidators {
		sc, err := h.registry.Lookup(typeName)
		if err != nil {
			return fmt.Errorf("invalidator %s: %w", typeName, err)
		}
		rule, err := schema.ConvertAttributes(sc, raw)
		if err != nil {
			return fmt.Errorf("invalidator %s: %w", typeName, err)
		}
		h.cache.RegisterInvalidator(typeName, ruleInvalidator(rule))
	}
	return nil
}

// ruleInvalidator rejects pages whose attributes equal every value in rule.
func ruleInvalidator(rule page.Attributes) cache.Invalidator {
	return func(_ context.Context, p page.Page) (bool, error) {
		if len(rule) == 0 {
			return true, nil
		}
		for name, want := range rule {
			got, ok := p.Attributes[name]
			if !ok || !page.Equal(got, want) {
				return true, nil
			}
		}
		return false, nil
	}
}

// executeStep runs one step, records it in the trace and checks its
// expect clause.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) {
	output, err := h.invoke(ctx, step)

	outcome := OutcomeOK
	if err != nil {
		outcome = string(page.CodeOf(err))
		if outcome == "" {
			outcome = "ERROR"
		}
		output = nil
	}
	result.addTrace(step.Op, step.URI, outcome, output)
	h.logger.Debug("step executed", "step", i, "op", step.Op, "uri", step.URI, "outcome", outcome)

	for _, msg := range checkExpect(step, outcome, output, err) {
		result.AddError(fmt.Sprintf("step %d (%s %s): %s", i, step.Op, step.URI, msg))
	}
}

// invoke calls the cache operation named by step.Op and returns its trace
// output.
func (h *Harness) invoke(ctx context.Context, step Step) (any, error) {
	switch step.Op {
	case OpStore:
		return h.storePage(ctx, step)
	case OpGet:
		uri, err := page.Parse(step.URI)
		if err != nil {
			return nil, err
		}
		return h.cache.Get(ctx, uri)
	case OpGetMany:
		return h.getMany(ctx, step)
	case OpFind:
		return h.find(ctx, step)
	case OpDelete:
		uri, err := page.Parse(step.URI)
		if err != nil {
			return nil, err
		}
		deleted, err := h.cache.Delete(ctx, uri)
		return FoundOutput{Found: deleted}, err
	case OpInvalidate:
		uri, err := page.Parse(step.URI)
		if err != nil {
			return nil, err
		}
		ok, err := h.cache.Invalidate(ctx, uri)
		return FoundOutput{Found: ok}, err
	case OpInvalidatePrefix:
		uri, err := page.Parse(step.URI)
		if err != nil {
			return nil, err
		}
		n, err := h.cache.InvalidatePrefix(ctx, uri.Root, uri.Type, uri.ID)
		return CountOutput{Count: n}, err
	case OpChildren:
		uri, err := page.Parse(step.URI)
		if err != nil {
			return nil, err
		}
		pages, err := h.cache.Children(ctx, uri)
		return pageURIs(pages), err
	case OpChain:
		uri, err := page.Parse(step.URI)
		if err != nil {
			return nil, err
		}
		pages, err := h.cache.ProvenanceChain(ctx, uri)
		return pageURIs(pages), err
	case OpLatest:
		uri, err := page.Parse(step.URI)
		if err != nil {
			return nil, err
		}
		version, err := h.cache.ResolveLatest(ctx, uri.Root, uri.Type, uri.ID)
		return VersionOutput{Version: version}, err
	default:
		return nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

// Trace outputs.
type (
	StoreOutput   struct{ Created bool `json:"created"` }
	FoundOutput   struct{ Found bool `json:"found"` }
	CountOutput   struct{ Count int `json:"count"` }
	VersionOutput struct{ Version int64 `json:"version"` }
)

func (h *Harness) storePage(ctx context.Context, step Step) (any, error) {
	uri, err := page.Parse(step.URI)
	if err != nil {
		return nil, err
	}
	sc, err := h.registry.Lookup(uri.Type)
	if err != nil {
		return nil, err
	}
	attrs, err := schema.ConvertAttributes(sc, step.Attributes)
	if err != nil {
		return nil, err
	}
	var parent *page.URI
	if step.Parent != "" {
		p, err := page.Parse(step.Parent)
		if err != nil {
			return nil, err
		}
		parent = &p
	}
	created, err := h.cache.Store(ctx, page.New(uri, attrs), parent)
	return StoreOutput{Created: created}, err
}

func (h *Harness) getMany(ctx context.Context, step Step) (any, error) {
	uris := make([]page.URI, len(step.URIs))
	for i, s := range step.URIs {
		u, err := page.Parse(s)
		if err != nil {
			return nil, err
		}
		uris[i] = u
	}
	results, err := h.cache.GetMany(ctx, uris)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(results))
	for i, r := range results {
		if r.Found() {
			out[i] = r.Page.URI.String()
		}
	}
	return out, nil
}

func (h *Harness) find(ctx context.Context, step Step) (any, error) {
	sc, err := h.registry.Lookup(step.Type)
	if err != nil {
		return nil, err
	}
	eq := make(map[string]page.Value, len(step.Where))
	for name, raw := range step.Where {
		kind, err := query.FieldKind(sc, name)
		if err != nil {
			return nil, err
		}
		v, err := schema.ConvertValue(kind, raw)
		if err != nil {
			return nil, page.WrapError(page.ErrCodeFormat, "", fmt.Sprintf("where %q", name), err)
		}
		eq[name] = v
	}
	pages, err := h.cache.Find(ctx, step.Type, query.Filter(eq, step.Match))
	return pageURIs(pages), err
}

func pageURIs(pages []page.Page) []string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.URI.String())
	}
	return out
}
