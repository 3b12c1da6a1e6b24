package stages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

// Advisory — публикуемое предупреждение.
type Advisory struct {
	// WorkflowID — workflow-источник (идемпотентный ключ архива).
	WorkflowID string `json:"workflow_id"`

	// Headline — заголовок.
	Headline string `json:"headline"`

	// Body — текст предупреждения.
	Body string `json:"body"`

	// Severity — серьёзность (info, warn, critical) по risk_score.
	Severity string `json:"severity"`

	// Language — язык оригинала.
	Language string `json:"language"`

	// Topics — объединённые темы по всем claims.
	Topics []string `json:"topics,omitempty"`

	// RiskScore — итоговая оценка риска.
	RiskScore float64 `json:"risk_score"`

	// Translations — переводы: язык → {headline, body}.
	Translations map[string]map[string]string `json:"translations,omitempty"`

	// PublishedAt — время публикации.
	PublishedAt time.Time `json:"published_at"`
}

// DraftAdvisoryStage — черновик предупреждения.
type DraftAdvisoryStage struct{}

// Node возвращает узел стадии.
func (s *DraftAdvisoryStage) Node() domain.Node {
	return domain.NodeDraftAdvisory
}

// Apply собирает черновик из нормализованного текста и результатов оценки.
func (s *DraftAdvisoryStage) Apply(_ context.Context, wf *domain.Workflow) (any, error) {
	text, err := normalizedText(wf)
	if err != nil {
		return nil, err
	}
	if wf.RiskScore == nil {
		return nil, domain.Kindf(domain.KindValidation, "draft requires a risk score")
	}

	frag, err := fragmentOf(wf, domain.NodeNormalize)
	if err != nil {
		return nil, err
	}
	language, _ := frag["language"].(string)
	if language == "" {
		language = "en"
	}

	risk := *wf.RiskScore
	topics := mergedTopics(wf)

	return map[string]any{
		"headline": headlineOf(text),
		"body":     advisoryBody(text, topics, risk),
		"severity": severityOf(risk),
		"language": language,
		"topics":   topics,
	}, nil
}

// headlineOf — первое предложение, усечённое до 80 символов.
func headlineOf(text string) string {
	sentences := splitSentences(text)
	head := text
	if len(sentences) > 0 {
		head = sentences[0]
	}
	runes := []rune(head)
	if len(runes) > 80 {
		return string(runes[:77]) + "..."
	}
	return head
}

// advisoryBody собирает тело предупреждения.
func advisoryBody(text string, topics []string, risk float64) string {
	var b strings.Builder
	b.WriteString(text)
	if len(topics) > 0 {
		b.WriteString("\n\nTopics: ")
		b.WriteString(strings.Join(topics, ", "))
	}
	fmt.Fprintf(&b, "\nAssessed risk: %.2f", risk)
	return b.String()
}

// severityOf отображает risk_score в серьёзность.
func severityOf(risk float64) string {
	switch {
	case risk >= 0.7:
		return "critical"
	case risk >= 0.4:
		return "warn"
	default:
		return "info"
	}
}

// mergedTopics объединяет темы всех успешных claims.
func mergedTopics(wf *domain.Workflow) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, r := range claimResults(wf) {
		if r.Failed {
			continue
		}
		for _, t := range r.Topics {
			if !seen[t] {
				seen[t] = true
				topics = append(topics, t)
			}
		}
	}
	return topics
}

// TranslateStage — перевод предупреждения на целевые языки.
type TranslateStage struct {
	// Translator — внешняя коллаборация перевода (nil — локальная заглушка).
	Translator Collaborator

	// Languages — целевые языки.
	Languages []string
}

// Node возвращает узел стадии.
func (s *TranslateStage) Node() domain.Node {
	return domain.NodeTranslate
}

// Apply переводит черновик на каждый целевой язык.
func (s *TranslateStage) Apply(ctx context.Context, wf *domain.Workflow) (any, error) {
	draft, err := fragmentOf(wf, domain.NodeDraftAdvisory)
	if err != nil {
		return nil, err
	}
	headline, _ := draft["headline"].(string)
	body, _ := draft["body"].(string)
	source, _ := draft["language"].(string)

	translations := make(map[string]map[string]string, len(s.Languages))
	for _, lang := range s.Languages {
		if lang == source {
			continue
		}

		if s.Translator != nil {
			output, err := s.Translator.Apply(ctx, map[string]any{
				"headline": headline,
				"body":     body,
				"from":     source,
				"to":       lang,
			})
			if err != nil {
				return nil, err
			}
			h, _ := output["headline"].(string)
			b, _ := output["body"].(string)
			translations[lang] = map[string]string{"headline": h, "body": b}
			continue
		}

		// Заглушка без коллаборации: помечаем целевой язык.
		translations[lang] = map[string]string{
			"headline": fmt.Sprintf("[%s] %s", lang, headline),
			"body":     fmt.Sprintf("[%s] %s", lang, body),
		}
	}

	return map[string]any{"translations": translations}, nil
}

// PublishStage — публикация и архивирование предупреждения.
type PublishStage struct {
	// Archive — архив предупреждений (nil — без архивирования).
	Archive AdvisoryArchive
}

// Node возвращает узел стадии.
func (s *PublishStage) Node() domain.Node {
	return domain.NodePublish
}

// Apply собирает финальное предупреждение и пишет его в архив.
// Запись идемпотентна по workflow_id: повтор после сбоя перезаписывает
// ту же строку.
func (s *PublishStage) Apply(ctx context.Context, wf *domain.Workflow) (any, error) {
	draft, err := fragmentOf(wf, domain.NodeDraftAdvisory)
	if err != nil {
		return nil, err
	}
	trans, err := fragmentOf(wf, domain.NodeTranslate)
	if err != nil {
		return nil, err
	}
	if wf.RiskScore == nil {
		return nil, domain.Kindf(domain.KindValidation, "publish requires a risk score")
	}

	adv := &Advisory{
		WorkflowID:   wf.ID,
		RiskScore:    *wf.RiskScore,
		PublishedAt:  time.Now().UTC(),
		Translations: decodeTranslations(trans["translations"]),
	}
	adv.Headline, _ = draft["headline"].(string)
	adv.Body, _ = draft["body"].(string)
	adv.Severity, _ = draft["severity"].(string)
	adv.Language, _ = draft["language"].(string)
	adv.Topics = stringsOf(draft["topics"])

	if s.Archive != nil {
		if err := s.Archive.SaveAdvisory(ctx, adv); err != nil {
			return nil, domain.Kindf(domain.KindRetryable, "archive advisory: %v", err)
		}
	}

	return map[string]any{
		"published":    true,
		"advisory_id":  adv.WorkflowID,
		"severity":     adv.Severity,
		"published_at": adv.PublishedAt.Format(time.RFC3339),
	}, nil
}

// decodeTranslations разбирает фрагмент переводов (возможно после JSON-цикла).
func decodeTranslations(v any) map[string]map[string]string {
	out := make(map[string]map[string]string)
	switch m := v.(type) {
	case map[string]map[string]string:
		return m
	case map[string]any:
		for lang, tr := range m {
			entry := make(map[string]string)
			if tm, ok := tr.(map[string]any); ok {
				for k, val := range tm {
					if s, ok := val.(string); ok {
						entry[k] = s
					}
				}
			} else if tm, ok := tr.(map[string]string); ok {
				entry = tm
			}
			out[lang] = entry
		}
	}
	return out
}

// stringsOf разбирает список строк из фрагмента.
func stringsOf(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
