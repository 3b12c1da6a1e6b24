package stages

import (
	"context"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

// Stage — одна стадия основного конвейера.
type Stage interface {
	// Node возвращает узел, который реализует стадия.
	Node() domain.Node

	// Apply выполняет стадию над текущим состоянием workflow и
	// возвращает фрагмент результата. Либо полный фрагмент, либо ошибка —
	// частичный результат не допускается.
	Apply(ctx context.Context, wf *domain.Workflow) (any, error)
}

// ClaimStage — стадия per-claim подконвейера.
//
// Мутирует только свой слот результата; слоты преаллоцированы по порядку
// извлечения claims, поэтому merge не требует синхронизации.
type ClaimStage interface {
	// Node возвращает узел подконвейера.
	Node() domain.Node

	// Apply выполняет стадию для одного утверждения.
	Apply(ctx context.Context, wf *domain.Workflow, claim domain.Claim, res *domain.ClaimResult) error
}

// Set — полный набор стадий конвейера.
//
// Набор закрыт (DAG фиксирован), поэтому вместо реестра по имени —
// структура с полем на узел и исчерпывающий выбор в ForNode.
type Set struct {
	Normalize    Stage
	Entity       Stage
	ClaimExtract Stage
	Risk         Stage
	Draft        Stage
	Translate    Stage
	Publish      Stage

	Topic    ClaimStage
	Evidence ClaimStage
	Veracity ClaimStage
}

// ForNode возвращает стадию основного конвейера для узла.
func (s *Set) ForNode(n domain.Node) (Stage, bool) {
	switch n {
	case domain.NodeNormalize:
		return s.Normalize, s.Normalize != nil
	case domain.NodeEntityExtract:
		return s.Entity, s.Entity != nil
	case domain.NodeClaimExtract:
		return s.ClaimExtract, s.ClaimExtract != nil
	case domain.NodeRiskScore:
		return s.Risk, s.Risk != nil
	case domain.NodeDraftAdvisory:
		return s.Draft, s.Draft != nil
	case domain.NodeTranslate:
		return s.Translate, s.Translate != nil
	case domain.NodePublish:
		return s.Publish, s.Publish != nil
	default:
		return nil, false
	}
}

// ClaimStages возвращает per-claim подконвейер в порядке выполнения.
func (s *Set) ClaimStages() []ClaimStage {
	return []ClaimStage{s.Topic, s.Evidence, s.Veracity}
}

// AdvisoryArchive — архив опубликованных предупреждений.
// Реализуется internal/repo; стадии Publish нужна только идемпотентная запись.
type AdvisoryArchive interface {
	SaveAdvisory(ctx context.Context, adv *Advisory) error
}

// Deps — зависимости стадий по умолчанию.
type Deps struct {
	// FactCheck — коллаборация поиска свидетельств (nil — локальная эвристика).
	FactCheck Collaborator

	// Translator — коллаборация перевода (nil — локальная эвристика).
	Translator Collaborator

	// Archive — архив предупреждений (nil — публикация без архивирования).
	Archive AdvisoryArchive

	// Languages — целевые языки перевода.
	Languages []string
}

// DefaultSet собирает набор стадий по умолчанию.
func DefaultSet(deps Deps) *Set {
	langs := deps.Languages
	if len(langs) == 0 {
		langs = []string{"hi", "mr"}
	}

	return &Set{
		Normalize:    &NormalizeStage{},
		Entity:       &EntityExtractStage{},
		ClaimExtract: &ClaimExtractStage{},
		Risk:         &RiskScoreStage{},
		Draft:        &DraftAdvisoryStage{},
		Translate:    &TranslateStage{Translator: deps.Translator, Languages: langs},
		Publish:      &PublishStage{Archive: deps.Archive},

		Topic:    &TopicAssignStage{},
		Evidence: &EvidenceRetrieveStage{FactCheck: deps.FactCheck},
		Veracity: &VeracityAssessStage{},
	}
}
