package pipeline

import (
	"fmt"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

// Step — результат маршрутизации после завершения узла.
type Step struct {
	// Node — следующий узел (валиден, если не Done и не AwaitReview).
	Node domain.Node

	// AwaitReview — конвейер паркуется на human-review.
	AwaitReview bool

	// Done — конвейер завершён.
	Done bool
}

// First возвращает входной узел конвейера.
func First() domain.Node {
	return domain.NodeNormalize
}

// HasFanOut возвращает true, если после узла выполняется
// per-claim fan-out (между ClaimExtract и RiskScore).
func HasFanOut(n domain.Node) bool {
	return n == domain.NodeClaimExtract
}

// After возвращает следующий шаг после успешного завершения узла n.
//
// Порог сравнивается как risk >= threshold (строго по контракту: ≥, не >).
// Узел RiskScore паркует workflow, только если решение оператора ещё
// не принято: при возобновлении после approve маршрут идёт в DraftAdvisory.
func After(n domain.Node, wf *domain.Workflow, threshold float64) (Step, error) {
	switch n {
	case domain.NodeNormalize:
		return Step{Node: domain.NodeEntityExtract}, nil

	case domain.NodeEntityExtract:
		return Step{Node: domain.NodeClaimExtract}, nil

	case domain.NodeClaimExtract:
		// Fan-out выполняется оркестратором; следующий основной узел — risk.
		return Step{Node: domain.NodeRiskScore}, nil

	case domain.NodeRiskScore:
		if wf.RiskScore == nil {
			return Step{}, fmt.Errorf("risk node completed without score")
		}
		if *wf.RiskScore >= threshold && !reviewDecided(wf) {
			return Step{AwaitReview: true}, nil
		}
		return Step{Node: domain.NodeDraftAdvisory}, nil

	case domain.NodeDraftAdvisory:
		return Step{Node: domain.NodeTranslate}, nil

	case domain.NodeTranslate:
		return Step{Node: domain.NodePublish}, nil

	case domain.NodePublish:
		return Step{Done: true}, nil

	default:
		return Step{}, fmt.Errorf("unknown pipeline node: %s", n)
	}
}

// ResumeNode возвращает узел, с которого продолжается конвейер после
// решения оператора approve.
func ResumeNode() domain.Node {
	return domain.NodeDraftAdvisory
}

// reviewDecided возвращает true, если решение оператора уже записано.
func reviewDecided(wf *domain.Workflow) bool {
	return wf.Review != nil && wf.Review.Decision != ""
}
