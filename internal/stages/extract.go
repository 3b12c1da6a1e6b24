package stages

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

// EntityExtractStage — извлечение именованных сущностей.
type EntityExtractStage struct{}

// Node возвращает узел стадии.
func (s *EntityExtractStage) Node() domain.Node {
	return domain.NodeEntityExtract
}

// Apply извлекает сущности из нормализованного текста.
func (s *EntityExtractStage) Apply(_ context.Context, wf *domain.Workflow) (any, error) {
	text, err := normalizedText(wf)
	if err != nil {
		return nil, err
	}

	entities := extractEntities(text)

	out := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		out = append(out, map[string]any{"text": e})
	}
	return map[string]any{
		"entities": out,
		"count":    len(out),
	}, nil
}

// extractEntities собирает последовательности слов с заглавной буквы.
// Первое слово предложения учитывается только в составе цепочки.
func extractEntities(text string) []string {
	words := strings.Fields(text)
	seen := make(map[string]bool)
	var entities []string

	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		entity := strings.Join(current, " ")
		current = current[:0]
		if len(entity) < 3 || seen[entity] {
			return
		}
		seen[entity] = true
		entities = append(entities, entity)
	}

	sentenceStart := true
	for _, w := range words {
		trimmed := strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
		capitalized := trimmed != "" && unicode.IsUpper([]rune(trimmed)[0])

		switch {
		case capitalized && sentenceStart && len(current) == 0:
			// Одиночное заглавное слово в начале предложения — не сущность.
		case capitalized:
			current = append(current, trimmed)
		default:
			flush()
		}

		sentenceStart = strings.HasSuffix(w, ".") || strings.HasSuffix(w, "!") || strings.HasSuffix(w, "?")
	}
	flush()

	return entities
}

// ClaimExtractStage — извлечение проверяемых утверждений.
type ClaimExtractStage struct{}

// Node возвращает узел стадии.
func (s *ClaimExtractStage) Node() domain.Node {
	return domain.NodeClaimExtract
}

// Apply извлекает claims и записывает их в workflow.
// Ноль утверждений — валидный результат: конвейер идёт дальше к RiskScore
// с пустыми per-claim результатами.
func (s *ClaimExtractStage) Apply(_ context.Context, wf *domain.Workflow) (any, error) {
	text, err := normalizedText(wf)
	if err != nil {
		return nil, err
	}

	claims := ExtractClaims(text)
	wf.Claims = claims

	out := make([]map[string]any, 0, len(claims))
	for _, c := range claims {
		out = append(out, map[string]any{
			"claim_id": c.ID,
			"text":     c.Text,
			"span":     c.Span,
		})
	}
	return map[string]any{
		"claims": out,
		"count":  len(out),
	}, nil
}

// Маркеры проверяемых утверждений: числа, отчётные глаголы, категоричность.
var claimMarkers = []string{
	"killed", "dead", "died", "injured", "collapsed", "destroyed",
	"confirmed", "reported", "announced", "claims", "according to",
	"will", "caused", "spread", "outbreak", "evacuated",
}

// ExtractClaims делит текст на предложения и отбирает те, что похожи
// на проверяемые утверждения. Порядок claims стабилен между повторами.
func ExtractClaims(text string) []domain.Claim {
	var claims []domain.Claim

	offset := 0
	for _, sentence := range splitSentences(text) {
		start := strings.Index(text[offset:], sentence)
		if start < 0 {
			start = 0
		}
		start += offset
		end := start + len(sentence)
		offset = end

		if !looksLikeClaim(sentence) {
			continue
		}

		claims = append(claims, domain.Claim{
			ID:   fmt.Sprintf("c%d", len(claims)),
			Text: sentence,
			Span: [2]int{start, end},
		})
	}

	return claims
}

// splitSentences — грубое деление на предложения.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(b.String())
			if s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// looksLikeClaim проверяет наличие маркеров утверждения.
func looksLikeClaim(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, m := range claimMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	// Предложение с числом тоже считается проверяемым.
	for _, r := range sentence {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
