package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

const (
	defaultCollaboratorTimeout = 30 * time.Second
	maxResponseBody            = 10 * 1024 * 1024 // 10 MB
)

// Collaborator — внешняя коллаборация с единственным методом.
//
// Внутренности коллаборации непрозрачны; ошибки возвращаются как
// domain.KindError, всё неклассифицированное runtime считает Retryable.
type Collaborator interface {
	Apply(ctx context.Context, input map[string]any) (map[string]any, error)
}

// HTTPCollaborator — коллаборация через HTTP JSON endpoint.
//
// POST input → JSON output. Классификация ответа:
//   - 2xx — успех
//   - 408, 429, 5xx — Retryable
//   - 4xx — PermanentUpstreamFailure
type HTTPCollaborator struct {
	// Endpoint — URL сервиса.
	Endpoint string

	// Client — HTTP клиент (nil — клиент по умолчанию).
	Client *http.Client
}

// NewHTTPCollaborator создаёт коллаборацию для endpoint.
func NewHTTPCollaborator(endpoint string) *HTTPCollaborator {
	return &HTTPCollaborator{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: defaultCollaboratorTimeout},
	}
}

// Apply выполняет запрос к сервису.
func (c *HTTPCollaborator) Apply(ctx context.Context, input map[string]any) (map[string]any, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, domain.Kindf(domain.KindValidation, "marshal collaborator input: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, domain.Kindf(domain.KindValidation, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: defaultCollaboratorTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.Kindf(domain.KindRetryable, "collaborator request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, domain.Kindf(domain.KindRetryable, "read response: %v", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// продолжаем ниже
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return nil, domain.Kindf(domain.KindRetryable, "collaborator status %d", resp.StatusCode)
	default:
		return nil, domain.Kindf(domain.KindPermanentUpstream, "collaborator status %d", resp.StatusCode)
	}

	var output map[string]any
	if err := json.Unmarshal(raw, &output); err != nil {
		return nil, domain.Kindf(domain.KindPermanentUpstream, "malformed collaborator response: %v", err)
	}
	return output, nil
}

// CollaboratorFunc — адаптер функции к интерфейсу Collaborator.
type CollaboratorFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// Apply вызывает функцию.
func (f CollaboratorFunc) Apply(ctx context.Context, input map[string]any) (map[string]any, error) {
	return f(ctx, input)
}

var _ Collaborator = (*HTTPCollaborator)(nil)
var _ Collaborator = (CollaboratorFunc)(nil)

// payloadText достаёт текст из payload RawItem.
func payloadText(payload map[string]any) (string, error) {
	if payload == nil {
		return "", domain.Kindf(domain.KindValidation, "item payload is empty")
	}
	text, ok := payload["text"].(string)
	if !ok || text == "" {
		return "", domain.Kindf(domain.KindValidation, "item payload has no text")
	}
	return text, nil
}

// fragmentOf достаёт фрагмент результата узла как map.
func fragmentOf(wf *domain.Workflow, node domain.Node) (map[string]any, error) {
	v, ok := wf.Result(node)
	if !ok {
		return nil, domain.Kindf(domain.KindValidation, "missing %s result", node)
	}
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	default:
		// После цикла через JSON фрагмент приходит как map; всё иное — контрактная ошибка.
		body, err := json.Marshal(v)
		if err != nil {
			return nil, domain.Kindf(domain.KindValidation, "malformed %s result", node)
		}
		var parsed map[string]any
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, domain.Kindf(domain.KindValidation, "malformed %s result: %v", node, err)
		}
		return parsed, nil
	}
}

// normalizedText возвращает нормализованный текст workflow.
func normalizedText(wf *domain.Workflow) (string, error) {
	frag, err := fragmentOf(wf, domain.NodeNormalize)
	if err != nil {
		return "", err
	}
	text, _ := frag["text"].(string)
	if text == "" {
		return "", domain.Kindf(domain.KindValidation, "normalize result has no text")
	}
	return text, nil
}
