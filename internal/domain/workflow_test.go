package domain

import (
	"testing"
	"time"
)

// --- Status machine ---

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusCompleted, false},
		{StatusRunning, StatusRunning, true},
		{StatusRunning, StatusAwaitingReview, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusAwaitingReview, StatusResuming, true},
		{StatusAwaitingReview, StatusCompleted, true}, // reject
		{StatusAwaitingReview, StatusRunning, false},
		{StatusResuming, StatusRunning, true},
		{StatusResuming, StatusAwaitingReview, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusFailed, StatusRunning, false},
		{StatusCancelled, StatusRunning, false},
		// cancel from any non-terminal
		{StatusPending, StatusCancelled, true},
		{StatusRunning, StatusCancelled, true},
		{StatusAwaitingReview, StatusCancelled, true},
		{StatusResuming, StatusCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []Status{StatusPending, StatusRunning, StatusAwaitingReview, StatusResuming}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

// --- Workflow identity ---

func TestWorkflowID_Deterministic(t *testing.T) {
	a := WorkflowID("source-1")
	b := WorkflowID("source-1")
	c := WorkflowID("source-2")

	if a != b {
		t.Errorf("same source_id must map to same workflow_id: %s != %s", a, b)
	}
	if a == c {
		t.Error("different source_ids must map to different workflow_ids")
	}
}

// --- Workflow mutators ---

func testItem() *RawItem {
	return &RawItem{
		SourceID:   "src-1",
		Source:     "reddit",
		Payload:    map[string]any{"text": "calm"},
		IngestedAt: time.Now(),
	}
}

func TestNewWorkflow(t *testing.T) {
	wf := NewWorkflow(testItem(), 30*time.Minute)

	if wf.Status != StatusPending {
		t.Errorf("status = %s, want PENDING", wf.Status)
	}
	if wf.CurrentNode != NodeNormalize {
		t.Errorf("current_node = %s, want normalize", wf.CurrentNode)
	}
	if wf.ID != WorkflowID("src-1") {
		t.Error("workflow id must be deterministic from source_id")
	}
	if wf.Deadline.Before(wf.CreatedAt) {
		t.Error("deadline must be after created_at")
	}
}

func TestWorkflow_MarkFailed_RecordsError(t *testing.T) {
	wf := NewWorkflow(testItem(), time.Minute)
	_ = wf.MarkRunning()

	if err := wf.MarkFailed(NodeEntityExtract, KindValidation, "bad payload"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wf.Status != StatusFailed {
		t.Errorf("status = %s, want FAILED", wf.Status)
	}
	if len(wf.Errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(wf.Errors))
	}
	if wf.Errors[0].Kind != KindValidation {
		t.Errorf("kind = %s, want Validation", wf.Errors[0].Kind)
	}
}

func TestWorkflow_MarkAwaitingReview_SetsReview(t *testing.T) {
	wf := NewWorkflow(testItem(), time.Minute)
	_ = wf.MarkRunning()

	now := time.Now()
	if err := wf.MarkAwaitingReview(now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wf.Review == nil || !wf.Review.RequestedAt.Equal(now) {
		t.Error("review.requested_at must be set")
	}
}

func TestWorkflow_InvalidTransition(t *testing.T) {
	wf := NewWorkflow(testItem(), time.Minute)
	_ = wf.MarkRunning()
	_ = wf.MarkCompleted()

	if err := wf.MarkCancelled("late"); err == nil {
		t.Error("cancel of completed workflow must fail")
	}
}

func TestWorkflow_IncRetry(t *testing.T) {
	wf := NewWorkflow(testItem(), time.Minute)

	if n := wf.IncRetry(NodeEvidenceRetrieve); n != 1 {
		t.Errorf("first retry = %d, want 1", n)
	}
	if n := wf.IncRetry(NodeEvidenceRetrieve); n != 2 {
		t.Errorf("second retry = %d, want 2", n)
	}
	if wf.RetryCounts["evidence"] != 2 {
		t.Errorf("retry_counts.evidence = %d, want 2", wf.RetryCounts["evidence"])
	}
}

// --- Review lease ---

func TestReview_LeaseValid(t *testing.T) {
	now := time.Now()
	expires := now.Add(30 * time.Minute)
	r := &Review{LeaseToken: "tok", LeaseOperator: "op", LeaseExpiresAt: &expires}

	if !r.LeaseValid("tok", now) {
		t.Error("live lease with matching token must be valid")
	}
	if r.LeaseValid("other", now) {
		t.Error("mismatched token must be invalid")
	}
	if r.LeaseValid("tok", expires.Add(time.Second)) {
		t.Error("expired lease must be invalid")
	}
}

// --- Error taxonomy ---

func TestClassifyError(t *testing.T) {
	if k := ClassifyError(Kindf(KindValidation, "bad")); k != KindValidation {
		t.Errorf("kind = %s, want Validation", k)
	}
	if k := ClassifyError(ErrCancelled); k != KindCancelled {
		t.Errorf("kind = %s, want Cancelled", k)
	}
	if k := ClassifyError(ErrEmptySourceID); k != KindRetryable {
		t.Errorf("kind = %s, want Retryable default", k)
	}
}

func TestErrorKind_Retryable(t *testing.T) {
	if !KindRetryable.Retryable() || !KindTimeout.Retryable() {
		t.Error("Retryable and Timeout must be retryable")
	}
	if KindValidation.Retryable() || KindPermanentUpstream.Retryable() || KindCancelled.Retryable() {
		t.Error("Validation, PermanentUpstreamFailure, Cancelled must not be retryable")
	}
}
