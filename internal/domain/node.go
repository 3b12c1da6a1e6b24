package domain

// Node — узел фиксированного конвейера верификации.
//
// Набор узлов закрыт: конвейер не авторизуется пользователем, поэтому
// вместо реестра по имени используется перечисление с исчерпывающей
// обработкой в switch.
type Node string

const (
	// NodeNormalize — очистка текста, детект языка.
	NodeNormalize Node = "normalize"

	// NodeEntityExtract — извлечение именованных сущностей.
	NodeEntityExtract Node = "entity"

	// NodeClaimExtract — извлечение проверяемых утверждений (claims).
	NodeClaimExtract Node = "claims"

	// NodeRiskScore — агрегирующая оценка риска [0,1].
	NodeRiskScore Node = "risk"

	// NodeDraftAdvisory — черновик предупреждения.
	NodeDraftAdvisory Node = "draft"

	// NodeTranslate — перевод предупреждения.
	NodeTranslate Node = "translate"

	// NodePublish — публикация и архивирование предупреждения.
	NodePublish Node = "publish"
)

// Узлы per-claim подконвейера (fan-out после NodeClaimExtract).
const (
	// NodeTopicAssign — назначение тем утверждению.
	NodeTopicAssign Node = "topic"

	// NodeEvidenceRetrieve — поиск свидетельств по утверждению.
	NodeEvidenceRetrieve Node = "evidence"

	// NodeVeracityAssess — NLI-оценка достоверности утверждения.
	NodeVeracityAssess Node = "veracity"
)

// MainNodes — узлы основного конвейера в порядке выполнения.
// Fan-out per-claim выполняется между NodeClaimExtract и NodeRiskScore.
var MainNodes = []Node{
	NodeNormalize,
	NodeEntityExtract,
	NodeClaimExtract,
	NodeRiskScore,
	NodeDraftAdvisory,
	NodeTranslate,
	NodePublish,
}

// ClaimNodes — per-claim подконвейер в порядке выполнения.
var ClaimNodes = []Node{
	NodeTopicAssign,
	NodeEvidenceRetrieve,
	NodeVeracityAssess,
}

// IsClaimNode возвращает true для узлов per-claim подконвейера.
func (n Node) IsClaimNode() bool {
	switch n {
	case NodeTopicAssign, NodeEvidenceRetrieve, NodeVeracityAssess:
		return true
	default:
		return false
	}
}

// String возвращает имя узла.
func (n Node) String() string {
	return string(n)
}
