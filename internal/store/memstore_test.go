package store

import (
	"context"
	"testing"
	"time"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

func testWorkflow(sourceID string) *domain.Workflow {
	return domain.NewWorkflow(&domain.RawItem{
		SourceID: sourceID,
		Source:   "test",
		Payload:  map[string]any{"text": "hello"},
	}, 30*time.Minute)
}

// --- Encoding ---

func TestEncodeDecodeWorkflow(t *testing.T) {
	wf := testWorkflow("enc-1")
	wf.SetResult(domain.NodeNormalize, map[string]any{"text": "hello"})

	raw, err := EncodeWorkflow(wf, 7)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Version prefix comes first, before the JSON body.
	if raw[0] != '7' || raw[1] != '\n' {
		t.Errorf("value must start with version prefix, got %q", raw[:2])
	}

	decoded, err := DecodeWorkflow(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Version != 7 {
		t.Errorf("version = %d, want 7", decoded.Version)
	}
	if decoded.ID != wf.ID || decoded.SourceID != wf.SourceID {
		t.Error("identity fields must round-trip")
	}
	if _, ok := decoded.Result(domain.NodeNormalize); !ok {
		t.Error("results must round-trip")
	}
}

func TestDecodeWorkflow_Malformed(t *testing.T) {
	if _, err := DecodeWorkflow([]byte("no-newline")); err == nil {
		t.Error("value without version prefix must fail")
	}
	if _, err := DecodeWorkflow([]byte("abc\n{}")); err == nil {
		t.Error("non-numeric version must fail")
	}
}

// --- CAS ---

func TestMemStore_CreateAndGet(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	wf := testWorkflow("cas-1")

	if err := s.CreateWorkflow(ctx, wf, 0); err != nil {
		t.Fatalf("create: %v", err)
	}
	if wf.Version != 1 {
		t.Errorf("version after create = %d, want 1", wf.Version)
	}

	if err := s.CreateWorkflow(ctx, testWorkflow("cas-1"), 0); err != ErrAlreadyExists {
		t.Errorf("duplicate create = %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetWorkflow(ctx, wf.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != wf.ID {
		t.Error("get must return the created workflow")
	}
}

func TestMemStore_SaveWorkflow_CAS(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	wf := testWorkflow("cas-2")
	_ = s.CreateWorkflow(ctx, wf, 0)

	// A stale copy read before the next write.
	stale, _ := s.GetWorkflow(ctx, wf.ID)

	_ = wf.MarkRunning()
	if err := s.SaveWorkflow(ctx, wf, 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	if wf.Version != 2 {
		t.Errorf("version after save = %d, want 2", wf.Version)
	}

	// The stale writer must be rejected.
	_ = stale.MarkRunning()
	if err := s.SaveWorkflow(ctx, stale, 0); err != ErrVersionConflict {
		t.Errorf("stale save = %v, want ErrVersionConflict", err)
	}
}

func TestMemStore_GetMissing(t *testing.T) {
	s := NewMemStore()
	if _, err := s.GetWorkflow(context.Background(), "absent"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// --- Locks ---

func TestMemStore_Locks(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	ok, _, err := s.AcquireLock(ctx, DedupKey("s1"), "wf-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v/%v, want ok", ok, err)
	}

	ok, current, err := s.AcquireLock(ctx, DedupKey("s1"), "wf-2", time.Minute)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok || current != "wf-1" {
		t.Errorf("second acquire = %v/%q, want false/wf-1", ok, current)
	}

	if err := s.ReleaseLock(ctx, DedupKey("s1"), "wf-2"); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	// Release by a non-owner must not free the lock.
	if ok, _, _ := s.AcquireLock(ctx, DedupKey("s1"), "wf-3", time.Minute); ok {
		t.Error("lock must still be held after non-owner release")
	}

	_ = s.ReleaseLock(ctx, DedupKey("s1"), "wf-1")
	if ok, _, _ := s.AcquireLock(ctx, DedupKey("s1"), "wf-3", time.Minute); !ok {
		t.Error("lock must be free after owner release")
	}
}

// --- Review index ---

func TestMemStore_ReviewIndex_Ordered(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	base := time.Now()

	_ = s.ReviewAdd(ctx, "wf-b", base.Add(2*time.Second))
	_ = s.ReviewAdd(ctx, "wf-a", base)
	_ = s.ReviewAdd(ctx, "wf-c", base.Add(4*time.Second))

	ids, err := s.ReviewList(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"wf-a", "wf-b", "wf-c"}
	if len(ids) != len(want) {
		t.Fatalf("len = %d, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %s, want %s", i, ids[i], want[i])
		}
	}

	_ = s.ReviewRemove(ctx, "wf-b")
	ids, _ = s.ReviewList(ctx, 0, 10)
	if len(ids) != 2 {
		t.Errorf("len after remove = %d, want 2", len(ids))
	}

	// Paging.
	page, _ := s.ReviewList(ctx, 1, 1)
	if len(page) != 1 || page[0] != "wf-c" {
		t.Errorf("page = %v, want [wf-c]", page)
	}
}

// --- Pub/sub ---

func TestMemStore_PubSub(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	ch, stop, err := s.Subscribe(ctx, ChannelEvents)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	if err := s.Publish(ctx, ChannelEvents, []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-ch:
		if string(msg) != "hello" {
			t.Errorf("msg = %q, want hello", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

// --- Checkpoints ---

func TestMemStore_Checkpoints(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	if _, err := s.LatestCheckpoint(ctx, "wf-1"); err != ErrNotFound {
		t.Errorf("missing checkpoint = %v, want ErrNotFound", err)
	}

	cp := &domain.Checkpoint{WorkflowID: "wf-1", Node: domain.NodeEntityExtract, Attempt: 1, CreatedAt: time.Now()}
	if err := s.PutCheckpoint(ctx, cp, 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.LatestCheckpoint(ctx, "wf-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.Node != domain.NodeEntityExtract {
		t.Errorf("node = %s, want entity", got.Node)
	}

	// Later checkpoint supersedes.
	cp2 := &domain.Checkpoint{WorkflowID: "wf-1", Node: domain.NodeClaimExtract, Attempt: 1, CreatedAt: time.Now()}
	_ = s.PutCheckpoint(ctx, cp2, 0)
	got, _ = s.LatestCheckpoint(ctx, "wf-1")
	if got.Node != domain.NodeClaimExtract {
		t.Errorf("latest node = %s, want claims", got.Node)
	}
}
