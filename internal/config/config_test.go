package config

import (
	"testing"
	"time"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ReviewThreshold != 0.7 {
		t.Errorf("review_threshold = %v, want 0.7", cfg.ReviewThreshold)
	}
	if cfg.ClaimParallelism != 4 {
		t.Errorf("claim_parallelism = %d, want 4", cfg.ClaimParallelism)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("retry_max_attempts = %d, want 3", cfg.RetryMaxAttempts)
	}
	if cfg.DLQAttemptCap != 5 {
		t.Errorf("dlq_attempt_cap = %d, want 5", cfg.DLQAttemptCap)
	}
	if cfg.WorkflowTTL != 7*24*time.Hour {
		t.Errorf("workflow_ttl = %v, want 168h", cfg.WorkflowTTL)
	}
	if cfg.ReviewLease != 30*time.Minute {
		t.Errorf("review_lease = %v, want 30m", cfg.ReviewLease)
	}
	if cfg.ObserverQueueSize != 100 {
		t.Errorf("observer_queue_size = %d, want 100", cfg.ObserverQueueSize)
	}
	if cfg.ShutdownGrace != 30*time.Second {
		t.Errorf("shutdown_grace = %v, want 30s", cfg.ShutdownGrace)
	}
}

func TestLoad_NodeTimeoutDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		node domain.Node
		want time.Duration
	}{
		{domain.NodeNormalize, 5 * time.Second},
		{domain.NodeEntityExtract, 30 * time.Second},
		{domain.NodeEvidenceRetrieve, 60 * time.Second},
		{domain.NodeRiskScore, 5 * time.Second},
		{domain.NodePublish, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := cfg.NodeTimeout(tt.node); got != tt.want {
			t.Errorf("NodeTimeout(%s) = %v, want %v", tt.node, got, tt.want)
		}
	}
}
