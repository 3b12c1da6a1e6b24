package stages

import (
	"context"
	"strings"
	"unicode"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

// NormalizeStage — очистка текста и детект языка.
type NormalizeStage struct{}

// Node возвращает узел стадии.
func (s *NormalizeStage) Node() domain.Node {
	return domain.NodeNormalize
}

// Apply нормализует payload RawItem.
func (s *NormalizeStage) Apply(_ context.Context, wf *domain.Workflow) (any, error) {
	text, err := payloadText(wf.Payload)
	if err != nil {
		return nil, err
	}

	normalized := collapseWhitespace(text)
	if normalized == "" {
		return nil, domain.Kindf(domain.KindValidation, "text is empty after normalization")
	}

	return map[string]any{
		"text":     normalized,
		"language": detectLanguage(normalized),
		"length":   len(normalized),
	}, nil
}

// collapseWhitespace схлопывает пробельные последовательности в один пробел.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// detectLanguage — эвристика определения языка по письменности.
// Полноценная идентификация — забота ML-коллаборации; здесь достаточно
// отличить деванагари от латиницы.
func detectLanguage(s string) string {
	var devanagari, latin int
	for _, r := range s {
		switch {
		case r >= 0x0900 && r <= 0x097F:
			devanagari++
		case unicode.IsLetter(r) && r < 0x0250:
			latin++
		}
	}
	if devanagari > latin {
		return "hi"
	}
	return "en"
}
