package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/bus"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/config"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/runtime"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/stages"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/store"
)

// fakeBus records outbound publishes.
type fakeBus struct {
	mu            sync.Mutex
	alerts        []bus.AlertPayload
	notifications []bus.NotificationPayload
}

func (f *fakeBus) PublishAlert(_ context.Context, a bus.AlertPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeBus) PublishNotification(_ context.Context, n bus.NotificationPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeBus) alertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

func (f *fakeBus) notificationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notifications)
}

func newTestOrchestrator(t *testing.T, set *stages.Set) (*Orchestrator, *store.MemStore, *fakeBus) {
	t.Helper()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	st := store.NewMemStore()
	fb := &fakeBus{}

	rt := runtime.New(runtime.Config{
		Store:       st,
		Cfg:         cfg,
		BackoffBase: time.Millisecond,
	})

	if set == nil {
		set = stages.DefaultSet(stages.Deps{})
	}

	orch := New(Config{
		Store:     st,
		Publisher: fb,
		Runtime:   rt,
		Stages:    set,
		Cfg:       cfg,
		Owner:     "test-orch",
	})
	return orch, st, fb
}

func rawItem(sourceID, text string) *domain.RawItem {
	return &domain.RawItem{
		SourceID:   sourceID,
		Source:     "reddit",
		Payload:    map[string]any{"text": text},
		IngestedAt: time.Now().UTC(),
	}
}

const calmText = "A pleasant community event took place in the city today."

const riskyText = "Unconfirmed rumor: flood killed 40 people, panic and evacuation underway. Fire reported near the hospital."

// --- Scenario: happy-path low-risk ---

func TestProcessRawItem_HappyPathLowRisk(t *testing.T) {
	orch, st, fb := newTestOrchestrator(t, nil)
	ctx := context.Background()

	if err := orch.ProcessRawItem(ctx, rawItem("a", calmText)); err != nil {
		t.Fatalf("process: %v", err)
	}

	wf, err := st.GetWorkflow(ctx, domain.WorkflowID("a"))
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}

	if wf.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", wf.Status)
	}
	for _, key := range []string{"normalize", "entity", "claims", "risk", "draft", "translate", "publish"} {
		if _, ok := wf.Results[key]; !ok {
			t.Errorf("results missing key %s", key)
		}
	}
	if len(wf.Errors) != 0 {
		t.Errorf("errors = %d, want 0", len(wf.Errors))
	}
	if fb.notificationCount() != 1 {
		t.Errorf("notifications = %d, want 1", fb.notificationCount())
	}
	if fb.alertCount() != 0 {
		t.Errorf("alerts = %d, want 0", fb.alertCount())
	}

	// Terminal workflow leaves the in-flight index.
	inflight, _ := st.InFlightList(ctx)
	if len(inflight) != 0 {
		t.Errorf("in-flight = %v, want empty", inflight)
	}

	// The last checkpoint covers the terminal node.
	cp, err := st.LatestCheckpoint(ctx, wf.ID)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if cp.Node != domain.NodePublish {
		t.Errorf("checkpoint node = %s, want publish", cp.Node)
	}
}

// --- Scenario: high-risk review approve ---

func TestProcessRawItem_HighRiskReviewApprove(t *testing.T) {
	orch, st, fb := newTestOrchestrator(t, nil)
	ctx := context.Background()

	if err := orch.ProcessRawItem(ctx, rawItem("b", riskyText)); err != nil {
		t.Fatalf("process: %v", err)
	}

	id := domain.WorkflowID("b")
	wf, _ := st.GetWorkflow(ctx, id)

	if wf.Status != domain.StatusAwaitingReview {
		t.Fatalf("status = %s, want AWAITING_REVIEW", wf.Status)
	}
	if wf.RiskScore == nil || *wf.RiskScore < orch.cfg.ReviewThreshold {
		t.Fatalf("risk = %v, want >= threshold", wf.RiskScore)
	}
	if wf.Review == nil || wf.Review.RequestedAt.IsZero() {
		t.Error("review.requested_at must be set")
	}

	if fb.alertCount() != 1 || fb.alerts[0].Kind != "review_requested" {
		t.Fatalf("alerts = %v, want one review_requested", fb.alerts)
	}

	pending, _ := st.ReviewList(ctx, 0, 10)
	if len(pending) != 1 || pending[0] != id {
		t.Errorf("review index = %v, want [%s]", pending, id)
	}

	// Operator decision, the way the review coordinator writes it.
	wf.Review.Decision = domain.DecisionApprove
	wf.Review.DecidedBy = "op-7"
	now := time.Now().UTC()
	wf.Review.DecidedAt = &now
	if err := wf.MarkResuming(); err != nil {
		t.Fatalf("resuming: %v", err)
	}
	if err := st.SaveWorkflow(ctx, wf, 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = st.ReviewRemove(ctx, id)

	if err := orch.ResumeDecided(ctx, id); err != nil {
		t.Fatalf("resume: %v", err)
	}

	wf, _ = st.GetWorkflow(ctx, id)
	if wf.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", wf.Status)
	}
	if wf.Review.Decision != domain.DecisionApprove || wf.Review.DecidedBy != "op-7" {
		t.Error("review decision must be preserved")
	}
	if _, ok := wf.Results["publish"]; !ok {
		t.Error("post-review nodes must have run")
	}
}

// --- Scenario: duplicate delivery ---

func TestProcessRawItem_DuplicateDelivery(t *testing.T) {
	orch, st, fb := newTestOrchestrator(t, nil)
	ctx := context.Background()

	if err := orch.ProcessRawItem(ctx, rawItem("c", calmText)); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := orch.ProcessRawItem(ctx, rawItem("c", calmText)); err != nil {
		t.Fatalf("second: %v", err)
	}

	wf, err := st.GetWorkflow(ctx, domain.WorkflowID("c"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if wf.Status != domain.StatusCompleted {
		t.Errorf("status = %s", wf.Status)
	}
	// No duplicate side effects.
	if fb.notificationCount() != 1 {
		t.Errorf("notifications = %d, want 1", fb.notificationCount())
	}
}

// --- Scenario: transient node failure ---

// flakyEvidence fails a scripted number of times, then delegates.
type flakyEvidence struct {
	inner    stages.ClaimStage
	failures int
	mu       sync.Mutex
	calls    int
}

func (s *flakyEvidence) Node() domain.Node { return domain.NodeEvidenceRetrieve }

func (s *flakyEvidence) Apply(ctx context.Context, wf *domain.Workflow, claim domain.Claim, res *domain.ClaimResult) error {
	s.mu.Lock()
	s.calls++
	calls := s.calls
	s.mu.Unlock()

	if calls <= s.failures {
		return domain.Kindf(domain.KindRetryable, "fact-check 503")
	}
	return s.inner.Apply(ctx, wf, claim, res)
}

func TestProcessRawItem_TransientEvidenceFailure(t *testing.T) {
	set := stages.DefaultSet(stages.Deps{})
	set.Evidence = &flakyEvidence{inner: &stages.EvidenceRetrieveStage{}, failures: 2}

	orch, st, _ := newTestOrchestrator(t, set)
	ctx := context.Background()

	// One claim only, so the retry counter is unambiguous.
	if err := orch.ProcessRawItem(ctx, rawItem("d", "Bridge collapsed near the station.")); err != nil {
		t.Fatalf("process: %v", err)
	}

	wf, _ := st.GetWorkflow(ctx, domain.WorkflowID("d"))
	if wf.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", wf.Status)
	}
	if wf.RetryCounts["evidence"] != 2 {
		t.Errorf("retry_counts.evidence = %d, want 2", wf.RetryCounts["evidence"])
	}
	if len(wf.Errors) != 2 {
		t.Fatalf("errors = %d, want 2", len(wf.Errors))
	}
	for i, e := range wf.Errors {
		if e.Kind != domain.KindRetryable {
			t.Errorf("errors[%d].kind = %s, want Retryable", i, e.Kind)
		}
		if e.Attempt != i+1 {
			t.Errorf("errors[%d].attempt = %d, want %d", i, e.Attempt, i+1)
		}
	}
}

// --- Scenario: validation failure ---

type failingStage struct {
	node domain.Node
	err  error
}

func (s *failingStage) Node() domain.Node { return s.node }

func (s *failingStage) Apply(context.Context, *domain.Workflow) (any, error) {
	return nil, s.err
}

func TestProcessRawItem_ValidationFailsWorkflow(t *testing.T) {
	set := stages.DefaultSet(stages.Deps{})
	set.Entity = &failingStage{
		node: domain.NodeEntityExtract,
		err:  domain.Kindf(domain.KindValidation, "unsupported payload shape"),
	}

	orch, st, fb := newTestOrchestrator(t, set)
	ctx := context.Background()

	if err := orch.ProcessRawItem(ctx, rawItem("e", calmText)); err != nil {
		t.Fatalf("process must ack a terminally failed workflow, got %v", err)
	}

	wf, _ := st.GetWorkflow(ctx, domain.WorkflowID("e"))
	if wf.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", wf.Status)
	}
	found := false
	for _, e := range wf.Errors {
		if e.Kind == domain.KindValidation {
			found = true
		}
	}
	if !found {
		t.Error("errors must record the Validation kind")
	}
	if fb.alertCount() != 1 {
		t.Errorf("alerts = %d, want 1 failure alert", fb.alertCount())
	}
	if fb.notificationCount() != 0 {
		t.Errorf("notifications = %d, want 0", fb.notificationCount())
	}
}

// --- Scenario: all claims failed ---

func TestProcessRawItem_AllClaimsFailed(t *testing.T) {
	set := stages.DefaultSet(stages.Deps{})
	set.Evidence = &brokenEvidence{}

	orch, st, _ := newTestOrchestrator(t, set)
	ctx := context.Background()

	if err := orch.ProcessRawItem(ctx, rawItem("f", "Bridge collapsed near the station.")); err != nil {
		t.Fatalf("process: %v", err)
	}

	wf, _ := st.GetWorkflow(ctx, domain.WorkflowID("f"))
	if wf.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", wf.Status)
	}
	found := false
	for _, e := range wf.Errors {
		if e.Kind == domain.KindAllClaimsFailed {
			found = true
		}
	}
	if !found {
		t.Errorf("errors must record AllClaimsFailed, got %v", wf.Errors)
	}
}

type brokenEvidence struct{}

func (s *brokenEvidence) Node() domain.Node { return domain.NodeEvidenceRetrieve }

func (s *brokenEvidence) Apply(context.Context, *domain.Workflow, domain.Claim, *domain.ClaimResult) error {
	return domain.Kindf(domain.KindPermanentUpstream, "model endpoint gone")
}

// --- Scenario: crash mid-pipeline, recovery resumes ---

func TestRecover_CrashMidPipeline(t *testing.T) {
	ctx := context.Background()
	item := rawItem("g", calmText)

	// Reference: an uninterrupted run.
	refOrch, refStore, _ := newTestOrchestrator(t, nil)
	if err := refOrch.ProcessRawItem(ctx, item); err != nil {
		t.Fatalf("reference run: %v", err)
	}
	ref, _ := refStore.GetWorkflow(ctx, domain.WorkflowID("g"))

	// Crash simulation: the process died after the EntityExtract
	// checkpoint, before ClaimExtract started. No live owner lease.
	orch, st, _ := newTestOrchestrator(t, nil)
	wf := domain.NewWorkflow(item, 30*time.Minute)
	if err := st.CreateWorkflow(ctx, wf, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = wf.MarkRunning()

	for _, n := range []domain.Node{domain.NodeNormalize, domain.NodeEntityExtract} {
		stage, _ := orch.stages.ForNode(n)
		frag, err := stage.Apply(ctx, wf)
		if err != nil {
			t.Fatalf("stage %s: %v", n, err)
		}
		wf.SetResult(n, frag)
	}
	wf.CurrentNode = domain.NodeClaimExtract
	if err := orch.saveState(ctx, wf); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := orch.checkpoint(ctx, wf, domain.NodeEntityExtract, 1); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	_ = st.InFlightAdd(ctx, wf.ID)

	// Recovery pass adopts the orphan and finishes the pipeline.
	if err := orch.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	got, _ := st.GetWorkflow(ctx, wf.ID)
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}

	// Terminal state matches the uninterrupted run (modulo timestamps).
	if got.Status != ref.Status {
		t.Errorf("status mismatch: %s vs %s", got.Status, ref.Status)
	}
	if len(got.Results) != len(ref.Results) {
		t.Errorf("results keys = %d, want %d", len(got.Results), len(ref.Results))
	}
	for key := range ref.Results {
		if _, ok := got.Results[key]; !ok {
			t.Errorf("results missing %s", key)
		}
	}
	if len(got.Errors) != len(ref.Errors) {
		t.Errorf("errors = %d, want %d", len(got.Errors), len(ref.Errors))
	}
}

func TestRecover_SkipsReviewAndOwned(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	// Parked workflow: recovery must not touch it.
	if err := orch.ProcessRawItem(ctx, rawItem("h", riskyText)); err != nil {
		t.Fatalf("process: %v", err)
	}
	id := domain.WorkflowID("h")

	if err := orch.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	wf, _ := st.GetWorkflow(ctx, id)
	if wf.Status != domain.StatusAwaitingReview {
		t.Errorf("status = %s, review parking must survive recovery", wf.Status)
	}

	// A workflow held by a live owner is not adopted.
	ok, _, _ := st.AcquireLock(ctx, store.LeaseKey("wf-other"), "another-orch", time.Minute)
	if !ok {
		t.Fatal("setup: lease")
	}
	other := domain.NewWorkflow(rawItem("i", calmText), time.Minute)
	other.ID = "wf-other"
	_ = st.CreateWorkflow(ctx, other, 0)
	_ = other.MarkRunning()
	_ = st.SaveWorkflow(ctx, other, 0)
	_ = st.InFlightAdd(ctx, "wf-other")

	if err := orch.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	after, _ := st.GetWorkflow(ctx, "wf-other")
	if after.Status != domain.StatusRunning {
		t.Errorf("owned workflow must be left alone, status = %s", after.Status)
	}
}

// --- Cancellation ---

func TestCancel_AwaitingReviewIsImmediate(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	if err := orch.ProcessRawItem(ctx, rawItem("j", riskyText)); err != nil {
		t.Fatalf("process: %v", err)
	}
	id := domain.WorkflowID("j")

	if err := orch.Cancel(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	wf, _ := st.GetWorkflow(ctx, id)
	if wf.Status != domain.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", wf.Status)
	}

	pending, _ := st.ReviewList(ctx, 0, 10)
	if len(pending) != 0 {
		t.Errorf("review index = %v, want empty", pending)
	}
}

func TestCancel_TerminalRejected(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	if err := orch.ProcessRawItem(ctx, rawItem("k", calmText)); err != nil {
		t.Fatalf("process: %v", err)
	}
	id := domain.WorkflowID("k")

	err := orch.Cancel(ctx, id)
	if !errors.Is(err, ErrTerminal) {
		t.Errorf("cancel of completed workflow = %v, want ErrTerminal", err)
	}

	wf, _ := st.GetWorkflow(ctx, id)
	if wf.Status != domain.StatusCompleted {
		t.Error("completed workflow must stay completed")
	}
}

func TestCancel_NotFound(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, nil)
	if err := orch.Cancel(context.Background(), "missing"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("err = %v, want ErrWorkflowNotFound", err)
	}
}

// --- Fan-out merge ordering ---

func TestFanOut_MergeOrderStable(t *testing.T) {
	orch, st, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	// Three claims extracted in a fixed order.
	text := "Flood killed 3 people. Fire destroyed 2 shops. Police confirmed 5 arrests."
	if err := orch.ProcessRawItem(ctx, rawItem("m", text)); err != nil {
		t.Fatalf("process: %v", err)
	}

	wf, _ := st.GetWorkflow(ctx, domain.WorkflowID("m"))
	raw, ok := wf.Result(domain.NodeClaimExtract)
	if !ok {
		t.Fatal("claims result missing")
	}

	// After the store round-trip the merged list arrives as []any.
	list, ok := raw.([]any)
	if !ok {
		t.Fatalf("claims result type %T", raw)
	}
	if len(list) != 3 {
		t.Fatalf("claim results = %d, want 3", len(list))
	}
	for i, entry := range list {
		m := entry.(map[string]any)
		want := string(rune('0' + i))
		if m["claim_id"] != "c"+want {
			t.Errorf("slot %d claim_id = %v, want c%s", i, m["claim_id"], want)
		}
	}
}
