package api

import (
	"time"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

// WorkflowResponse — снимок Workflow для операторов.
// Payload и результаты отдаются как есть; секретов в них нет.
type WorkflowResponse struct {
	WorkflowID  string             `json:"workflow_id"`
	SourceID    string             `json:"source_id"`
	Source      string             `json:"source"`
	Status      string             `json:"status"`
	CurrentNode string             `json:"current_node"`
	RiskScore   *float64           `json:"risk_score,omitempty"`
	Results     map[string]any     `json:"results,omitempty"`
	Errors      []domain.NodeError `json:"errors,omitempty"`
	RetryCounts map[string]int     `json:"retry_counts,omitempty"`
	Review      *ReviewResponse    `json:"review,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ReviewResponse — блок review в снимке Workflow.
type ReviewResponse struct {
	RequestedAt time.Time  `json:"requested_at"`
	Decision    string     `json:"decision,omitempty"`
	DecidedBy   string     `json:"decided_by,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	Feedback    string     `json:"feedback,omitempty"`
	ClaimedBy   string     `json:"claimed_by,omitempty"`
	LeaseUntil  *time.Time `json:"lease_until,omitempty"`
}

// workflowResponse собирает снимок из доменной записи.
func workflowResponse(wf *domain.Workflow) WorkflowResponse {
	resp := WorkflowResponse{
		WorkflowID:  wf.ID,
		SourceID:    wf.SourceID,
		Source:      wf.Source,
		Status:      string(wf.Status),
		CurrentNode: wf.CurrentNode.String(),
		RiskScore:   wf.RiskScore,
		Results:     wf.Results,
		Errors:      wf.Errors,
		RetryCounts: wf.RetryCounts,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}
	if wf.Review != nil {
		resp.Review = &ReviewResponse{
			RequestedAt: wf.Review.RequestedAt,
			Decision:    string(wf.Review.Decision),
			DecidedBy:   wf.Review.DecidedBy,
			DecidedAt:   wf.Review.DecidedAt,
			Feedback:    wf.Review.Feedback,
			ClaimedBy:   wf.Review.LeaseOperator,
			LeaseUntil:  wf.Review.LeaseExpiresAt,
		}
	}
	return resp
}

// ClaimRequest — тело запроса claim.
type ClaimRequest struct {
	Operator string `json:"operator"`
}

// ClaimResponse — выданная аренда.
type ClaimResponse struct {
	LeaseToken string `json:"lease_token"`
}

// DecideRequest — тело запроса decide.
type DecideRequest struct {
	LeaseToken string `json:"lease_token"`
	Decision   string `json:"decision"`
	Feedback   string `json:"feedback,omitempty"`
}
