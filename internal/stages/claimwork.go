package stages

import (
	"context"
	"sort"
	"strings"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

// Таксономия тем по ключевым словам.
var topicKeywords = map[string][]string{
	"flood":          {"flood", "rain", "water level", "overflow", "inundat"},
	"fire":           {"fire", "blaze", "smoke", "burn"},
	"earthquake":     {"earthquake", "tremor", "seismic", "magnitude"},
	"health":         {"outbreak", "virus", "disease", "hospital", "infection", "vaccine"},
	"violence":       {"riot", "attack", "shooting", "mob", "clash"},
	"infrastructure": {"bridge", "road", "power", "collapse", "train", "metro"},
}

// TopicAssignStage — назначение тем утверждению.
type TopicAssignStage struct{}

// Node возвращает узел стадии.
func (s *TopicAssignStage) Node() domain.Node {
	return domain.NodeTopicAssign
}

// Apply записывает темы в слот результата claim.
func (s *TopicAssignStage) Apply(_ context.Context, _ *domain.Workflow, claim domain.Claim, res *domain.ClaimResult) error {
	lower := strings.ToLower(claim.Text)

	var topics []string
	for topic, words := range topicKeywords {
		for _, w := range words {
			if strings.Contains(lower, w) {
				topics = append(topics, topic)
				break
			}
		}
	}
	if len(topics) == 0 {
		topics = []string{"general"}
	}

	// Порядок тем детерминирован для стабильного merge.
	sort.Strings(topics)
	res.Topics = topics
	return nil
}

// EvidenceRetrieveStage — поиск свидетельств по утверждению.
type EvidenceRetrieveStage struct {
	// FactCheck — внешняя коллаборация (nil — локальный корпус).
	FactCheck Collaborator
}

// Node возвращает узел стадии.
func (s *EvidenceRetrieveStage) Node() domain.Node {
	return domain.NodeEvidenceRetrieve
}

// Apply записывает свидетельства в слот результата claim.
func (s *EvidenceRetrieveStage) Apply(ctx context.Context, wf *domain.Workflow, claim domain.Claim, res *domain.ClaimResult) error {
	if s.FactCheck != nil {
		output, err := s.FactCheck.Apply(ctx, map[string]any{
			"claim":  claim.Text,
			"source": wf.Source,
		})
		if err != nil {
			return err
		}
		res.Evidence = evidenceFrom(output)
		return nil
	}

	// Локальный детерминированный корпус: стойка зависит от категоричности
	// формулировки, чтобы последующая NLI-оценка была воспроизводимой.
	stance := "support"
	if strings.Contains(strings.ToLower(claim.Text), "unconfirmed") ||
		strings.Contains(strings.ToLower(claim.Text), "rumor") ||
		strings.Contains(strings.ToLower(claim.Text), "rumour") {
		stance = "refute"
	}

	res.Evidence = []map[string]any{
		{
			"source":  "internal-corpus",
			"snippet": claim.Text,
			"stance":  stance,
		},
	}
	return nil
}

// evidenceFrom разбирает ответ fact-check коллаборации.
func evidenceFrom(output map[string]any) []map[string]any {
	raw, ok := output["evidence"].([]any)
	if !ok {
		return nil
	}
	evidence := make([]map[string]any, 0, len(raw))
	for _, e := range raw {
		if m, ok := e.(map[string]any); ok {
			evidence = append(evidence, m)
		}
	}
	return evidence
}

// VeracityAssessStage — NLI-оценка достоверности утверждения.
type VeracityAssessStage struct{}

// Node возвращает узел стадии.
func (s *VeracityAssessStage) Node() domain.Node {
	return domain.NodeVeracityAssess
}

// Apply вычисляет veracity по стойкам свидетельств.
func (s *VeracityAssessStage) Apply(_ context.Context, _ *domain.Workflow, _ domain.Claim, res *domain.ClaimResult) error {
	if len(res.Evidence) == 0 {
		// Нет свидетельств — неопределённость.
		res.Veracity = 0.5
		return nil
	}

	var support, refute int
	for _, e := range res.Evidence {
		switch e["stance"] {
		case "support":
			support++
		case "refute":
			refute++
		}
	}

	total := support + refute
	if total == 0 {
		res.Veracity = 0.5
		return nil
	}
	res.Veracity = float64(support) / float64(total)
	return nil
}
