package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Workflows
	mux.Handle("GET /api/v1/workflows/{id}", chain(http.HandlerFunc(h.GetWorkflow)))
	mux.Handle("POST /api/v1/workflows/{id}/cancel", chain(http.HandlerFunc(h.CancelWorkflow)))

	// Reviews
	mux.Handle("GET /api/v1/reviews", chain(http.HandlerFunc(h.ListReviews)))
	mux.Handle("POST /api/v1/reviews/{id}/claim", chain(http.HandlerFunc(h.ClaimReview)))
	mux.Handle("POST /api/v1/reviews/{id}/decide", chain(http.HandlerFunc(h.DecideReview)))

	// Advisories
	mux.Handle("GET /api/v1/advisories", chain(http.HandlerFunc(h.ListAdvisories)))
	mux.Handle("GET /api/v1/advisories/{id}", chain(http.HandlerFunc(h.GetAdvisory)))
}
