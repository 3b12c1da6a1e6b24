package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/config"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/store"
)

// fakeStage counts invocations and fails a scripted number of times.
// The delay, if set, applies only to those scripted failing calls.
type fakeStage struct {
	node     domain.Node
	failures int
	err      error
	calls    int
	delay    time.Duration
}

func (s *fakeStage) Node() domain.Node { return s.node }

func (s *fakeStage) Apply(ctx context.Context, _ *domain.Workflow) (any, error) {
	s.calls++
	if s.delay > 0 && s.calls <= s.failures {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.calls <= s.failures {
		return nil, s.err
	}
	return map[string]any{"ok": true, "attempt": s.calls}, nil
}

func newTestRuntime(t *testing.T, st store.Store) *Runtime {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return New(Config{
		Store:       st,
		Cfg:         cfg,
		BackoffBase: time.Millisecond,
	})
}

func storedWorkflow(t *testing.T, st store.Store, sourceID string) *domain.Workflow {
	t.Helper()
	wf := domain.NewWorkflow(&domain.RawItem{
		SourceID: sourceID,
		Source:   "test",
		Payload:  map[string]any{"text": "hello"},
	}, 30*time.Minute)
	if err := st.CreateWorkflow(context.Background(), wf, 0); err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	return wf
}

func TestRunNode_SucceedsFirstAttempt(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st)
	wf := storedWorkflow(t, st, "run-ok")

	stage := &fakeStage{node: domain.NodeNormalize}
	frag, kerr := rt.RunNode(context.Background(), wf, stage)

	if kerr != nil {
		t.Fatalf("unexpected error: %v", kerr)
	}
	if stage.calls != 1 {
		t.Errorf("calls = %d, want 1", stage.calls)
	}
	if frag.(map[string]any)["ok"] != true {
		t.Error("fragment must be returned")
	}
	if len(wf.Errors) != 0 {
		t.Errorf("errors = %d, want 0", len(wf.Errors))
	}
}

func TestRunNode_RetryableRecovers(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st)
	wf := storedWorkflow(t, st, "run-retry")

	stage := &fakeStage{
		node:     domain.NodeEvidenceRetrieve,
		failures: 2,
		err:      domain.Kindf(domain.KindRetryable, "upstream 503"),
	}

	_, kerr := rt.RunNode(context.Background(), wf, stage)
	if kerr != nil {
		t.Fatalf("unexpected error: %v", kerr)
	}
	if stage.calls != 3 {
		t.Errorf("calls = %d, want 3", stage.calls)
	}
	// Two failed attempts recorded with increasing attempt numbers.
	if len(wf.Errors) != 2 {
		t.Fatalf("errors = %d, want 2", len(wf.Errors))
	}
	if wf.Errors[0].Attempt != 1 || wf.Errors[1].Attempt != 2 {
		t.Errorf("attempts = %d,%d, want 1,2", wf.Errors[0].Attempt, wf.Errors[1].Attempt)
	}
	if wf.Errors[0].Kind != domain.KindRetryable {
		t.Errorf("kind = %s, want Retryable", wf.Errors[0].Kind)
	}
	if wf.RetryCounts["evidence"] != 2 {
		t.Errorf("retry_counts.evidence = %d, want 2", wf.RetryCounts["evidence"])
	}

	// The error records were persisted behind CAS.
	stored, err := st.GetWorkflow(context.Background(), wf.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(stored.Errors) != 2 {
		t.Errorf("stored errors = %d, want 2", len(stored.Errors))
	}
}

func TestRunNode_RetriesExhausted(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st)
	wf := storedWorkflow(t, st, "run-exhaust")

	stage := &fakeStage{
		node:     domain.NodeEvidenceRetrieve,
		failures: 100,
		err:      domain.Kindf(domain.KindRetryable, "always down"),
	}

	_, kerr := rt.RunNode(context.Background(), wf, stage)
	if kerr == nil {
		t.Fatal("expected error after exhaustion")
	}
	if kerr.Kind != domain.KindRetryable {
		t.Errorf("kind = %s, want Retryable", kerr.Kind)
	}
	if stage.calls != 3 {
		t.Errorf("calls = %d, want 3 (retry_max_attempts)", stage.calls)
	}
}

func TestRunNode_ValidationFailsImmediately(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st)
	wf := storedWorkflow(t, st, "run-validation")

	stage := &fakeStage{
		node:     domain.NodeEntityExtract,
		failures: 100,
		err:      domain.Kindf(domain.KindValidation, "bad payload"),
	}

	_, kerr := rt.RunNode(context.Background(), wf, stage)
	if kerr == nil || kerr.Kind != domain.KindValidation {
		t.Fatalf("kind = %v, want Validation", kerr)
	}
	if stage.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", stage.calls)
	}
	if wf.RetryCounts["entity"] != 0 {
		t.Error("validation failures must not count as retries")
	}
}

func TestRunNode_TimeoutClassified(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st)
	wf := storedWorkflow(t, st, "run-timeout")

	// One slow attempt under a tight node timeout, then fast success.
	rt.cfg.NodeTimeouts[domain.NodeNormalize.String()] = 10 * time.Millisecond
	stage := &fakeStage{
		node:     domain.NodeNormalize,
		failures: 1,
		err:      errors.New("unused"),
		delay:    50 * time.Millisecond,
	}
	// Only the first (failing) call is delayed; the retry runs fast.

	_, kerr := rt.RunNode(context.Background(), wf, stage)
	if kerr != nil {
		t.Fatalf("unexpected error: %v", kerr)
	}
	if len(wf.Errors) == 0 || wf.Errors[0].Kind != domain.KindTimeout {
		t.Errorf("first error kind = %v, want Timeout", wf.Errors)
	}
}

func TestRunNode_CancelTombstone(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st)
	wf := storedWorkflow(t, st, "run-cancel")
	_ = st.SetCancel(context.Background(), wf.ID, 0)

	stage := &fakeStage{node: domain.NodeNormalize}
	_, kerr := rt.RunNode(context.Background(), wf, stage)

	if kerr == nil || kerr.Kind != domain.KindCancelled {
		t.Fatalf("kind = %v, want Cancelled", kerr)
	}
	if stage.calls != 0 {
		t.Error("cancelled workflow must not execute the stage")
	}
}

func TestRunNode_UnclassifiedDefaultsToRetryable(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st)
	wf := storedWorkflow(t, st, "run-unclassified")

	stage := &fakeStage{
		node:     domain.NodeDraftAdvisory,
		failures: 100,
		err:      errors.New("some residual failure"),
	}

	_, kerr := rt.RunNode(context.Background(), wf, stage)
	if kerr == nil || kerr.Kind != domain.KindRetryable {
		t.Fatalf("kind = %v, want Retryable", kerr)
	}
}

// --- Claim stages ---

type fakeClaimStage struct {
	node     domain.Node
	failures int
	err      error
	calls    int
}

func (s *fakeClaimStage) Node() domain.Node { return s.node }

func (s *fakeClaimStage) Apply(_ context.Context, _ *domain.Workflow, _ domain.Claim, res *domain.ClaimResult) error {
	s.calls++
	if s.calls <= s.failures {
		return s.err
	}
	res.Veracity = 0.9
	return nil
}

func TestRunClaimStage_Retries(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st)
	wf := storedWorkflow(t, st, "claim-retry")

	stage := &fakeClaimStage{
		node:     domain.NodeEvidenceRetrieve,
		failures: 1,
		err:      domain.Kindf(domain.KindRetryable, "flaky"),
	}
	res := &domain.ClaimResult{ClaimID: "c0"}

	attempts, kerr := rt.RunClaimStage(context.Background(), wf, stage, domain.Claim{ID: "c0"}, res)
	if kerr != nil {
		t.Fatalf("unexpected error: %v", kerr)
	}
	if stage.calls != 2 {
		t.Errorf("calls = %d, want 2", stage.calls)
	}
	if res.Veracity != 0.9 {
		t.Error("result slot must be filled")
	}
	// The failed attempt is returned for merge-time aggregation,
	// not written to the workflow record from the fan-out goroutine.
	if len(attempts) != 1 || attempts[0].Kind != domain.KindRetryable {
		t.Errorf("attempts = %v, want one Retryable", attempts)
	}
	if len(wf.Errors) != 0 {
		t.Errorf("workflow errors = %d, want 0", len(wf.Errors))
	}
}

func TestRunClaimStage_PermanentFailure(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st)
	wf := storedWorkflow(t, st, "claim-perm")

	stage := &fakeClaimStage{
		node:     domain.NodeVeracityAssess,
		failures: 100,
		err:      domain.Kindf(domain.KindPermanentUpstream, "model gone"),
	}

	attempts, kerr := rt.RunClaimStage(context.Background(), wf, stage, domain.Claim{}, &domain.ClaimResult{})
	if kerr == nil || kerr.Kind != domain.KindPermanentUpstream {
		t.Fatalf("kind = %v, want PermanentUpstreamFailure", kerr)
	}
	if stage.calls != 1 {
		t.Errorf("calls = %d, want 1", stage.calls)
	}
	if len(attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(attempts))
	}
}
