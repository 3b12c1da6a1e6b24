package stages

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

// Весовые коэффициенты риск-модели.
const (
	weightHazard = 0.5
	weightDoubt  = 0.35
	weightVolume = 0.15
)

// Сигнальные слова опасности.
var hazardKeywords = []string{
	"killed", "dead", "died", "outbreak", "explosion", "collapse",
	"flood", "fire", "earthquake", "riot", "attack", "panic",
	"urgent", "emergency", "evacuate", "poison", "contaminated",
}

// RiskScoreStage — агрегирующая оценка риска.
type RiskScoreStage struct{}

// Node возвращает узел стадии.
func (s *RiskScoreStage) Node() domain.Node {
	return domain.NodeRiskScore
}

// Apply вычисляет risk_score из сигналов текста и merged per-claim
// результатов. Оценка записывается в workflow и возвращается фрагментом.
func (s *RiskScoreStage) Apply(_ context.Context, wf *domain.Workflow) (any, error) {
	text, err := normalizedText(wf)
	if err != nil {
		return nil, err
	}

	hazard := hazardScore(text)
	doubt := doubtScore(wf)
	volume := volumeScore(len(wf.Claims))

	risk := weightHazard*hazard + weightDoubt*doubt + weightVolume*volume
	risk = clamp01(risk)

	wf.RiskScore = &risk

	return map[string]any{
		"risk_score": risk,
		"signals": map[string]any{
			"hazard": hazard,
			"doubt":  doubt,
			"volume": volume,
		},
	}, nil
}

// hazardScore — доля сработавших сигнальных слов, насыщение на четырёх.
func hazardScore(text string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, w := range hazardKeywords {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	return clamp01(float64(hits) / 4)
}

// doubtScore — недоверие по merged veracity: 1 - средняя достоверность.
// Без claims остаётся умеренная неопределённость.
func doubtScore(wf *domain.Workflow) float64 {
	results := claimResults(wf)
	if len(results) == 0 {
		return 0.5
	}

	var sum float64
	var counted int
	for _, r := range results {
		if r.Failed {
			continue
		}
		sum += r.Veracity
		counted++
	}
	if counted == 0 {
		return 0.5
	}
	return clamp01(1 - sum/float64(counted))
}

// volumeScore — насыщение по количеству claims (пять и больше — максимум).
func volumeScore(claims int) float64 {
	return clamp01(float64(claims) / 5)
}

// claimResults достаёт merged результаты fan-out из workflow.
// После рестарта фрагмент приходит из хранилища в JSON-форме —
// перечитываем его в типизированный список.
func claimResults(wf *domain.Workflow) []domain.ClaimResult {
	v, ok := wf.Result(domain.NodeClaimExtract)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []domain.ClaimResult:
		return list
	case []any:
		body, err := json.Marshal(list)
		if err != nil {
			return nil
		}
		var results []domain.ClaimResult
		if err := json.Unmarshal(body, &results); err != nil {
			return nil
		}
		return results
	default:
		// До merge фрагмент — вывод экстракции, не результаты.
		return nil
	}
}

// clamp01 ограничивает значение отрезком [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
