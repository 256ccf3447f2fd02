package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/pagecache/internal/page"
	"github.com/roach88/pagecache/internal/schema"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", event.Seq, event.Op, event.URI, event.Outcome)
		}
	}
	return buf.String()
}

// checkExpect compares a step's outcome with its expect clause. A step
// without one must succeed.
func checkExpect(step Step, outcome string, output any, err error) []string {
	exp := step.Expect
	if exp == nil {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		return nil
	}
	if exp.Error != "" {
		if outcome != exp.Error {
			return []string{fmt.Sprintf("expected error %s, got %s", exp.Error, outcome)}
		}
		return nil
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var msgs []string
	mismatch := func(field string, want, got any) {
		msgs = append(msgs, fmt.Sprintf("%s: expected %v, got %v", field, want, got))
	}
	switch out := output.(type) {
	case StoreOutput:
		if exp.Created != nil && *exp.Created != out.Created {
			mismatch("created", *exp.Created, out.Created)
		}
	case FoundOutput:
		if exp.Found != nil && *exp.Found != out.Found {
			mismatch("found", *exp.Found, out.Found)
		}
	case CountOutput:
		if exp.Count != nil && *exp.Count != out.Count {
			mismatch("count", *exp.Count, out.Count)
		}
	case VersionOutput:
		if exp.Version != nil && *exp.Version != out.Version {
			mismatch("version", *exp.Version, out.Version)
		}
	case []string:
		if exp.URIs != nil && !slices.Equal(exp.URIs, out) {
			mismatch("uris", exp.URIs, out)
		}
	case page.Page:
		msgs = append(msgs, compareAttributes(out, exp.Attributes)...)
	}
	return msgs
}

// compareAttributes checks that p carries every expected attribute.
func compareAttributes(p page.Page, expected map[string]any) []string {
	var msgs []string
	for _, name := range sortedKeys(expected) {
		got, ok := p.Attributes[name]
		if !ok {
			msgs = append(msgs, fmt.Sprintf("attribute %s: missing", name))
			continue
		}
		want, err := schema.ConvertValue(got.Kind(), expected[name])
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("attribute %s: %v", name, err))
			continue
		}
		if !page.Equal(got, want) {
			msgs = append(msgs, fmt.Sprintf("attribute %s: expected %v, got %v", name, want, got))
		}
	}
	return msgs
}

// assertTraceContains checks that a step with the given op, and URI and
// outcome when set, appears in the trace.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Op != a.Op {
			continue
		}
		if a.URI != "" && event.URI != a.URI {
			continue
		}
		if a.Outcome != "" && event.Outcome != a.Outcome {
			continue
		}
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op %s uri %q outcome %q", a.Op, a.URI, a.Outcome),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrences of ops appear in the
// given order. Intervening steps are allowed.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if _, seen := positions[event.Op]; !seen {
			positions[event.Op] = i
		}
	}
	last := -1
	for _, op := range a.Ops {
		pos, ok := positions[op]
		if !ok {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", a.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
		if pos < last {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("order %v", a.Ops),
				Actual:   fmt.Sprintf("%s at step %d precedes the previous op", op, pos+1),
				Trace:    trace,
			}
		}
		last = pos
	}
	return nil
}

// assertTraceCount checks the number of steps with a.Op.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == a.Op {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d %s step(s)", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks the stored row under a.URI, regardless of its
// validity. The expect keys "exists", "valid" and "parent" check the row
// itself; any other key is an attribute.
func assertFinalState(ctx context.Context, h *Harness, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Type: AssertFinalState, Expected: expected, Actual: actual}
	}
	uri, err := page.Parse(a.URI)
	if err != nil {
		return fail("a concrete URI", err.Error())
	}
	sc, err := h.registry.Lookup(uri.Type)
	if err != nil {
		return fail(a.URI, err.Error())
	}
	p, err := h.store.ReadPage(ctx, sc, uri)
	exists := err == nil
	if err != nil && !page.IsNotFound(err) {
		return fail(a.URI, err.Error())
	}

	if want, ok := a.Expect["exists"]; ok && want != exists {
		return fail(fmt.Sprintf("%s exists=%v", a.URI, want), fmt.Sprintf("exists=%v", exists))
	}
	if !exists {
		if a.Expect["exists"] == false {
			return nil
		}
		return fail(a.URI+" stored", "not stored")
	}

	attrs := make(map[string]any)
	for key, want := range a.Expect {
		switch key {
		case "exists":
		case "valid":
			if want != p.Valid {
				return fail(fmt.Sprintf("%s valid=%v", a.URI, want), fmt.Sprintf("valid=%v", p.Valid))
			}
		case "parent":
			if want != p.ParentString() {
				return fail(fmt.Sprintf("%s parent=%v", a.URI, want), fmt.Sprintf("parent=%s", p.ParentString()))
			}
		default:
			attrs[key] = want
		}
	}
	if msgs := compareAttributes(p, attrs); len(msgs) > 0 {
		return fail(a.URI+" attributes", strings.Join(msgs, "; "))
	}
	return nil
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, h *Harness) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(ctx, h, a)
		default:
			err = fmt.Errorf("unknown assertion type: %s", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
