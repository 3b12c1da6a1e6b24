package orchestrator

import (
	"context"
	"sync"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/domain"
)

// runFanOut выполняет per-claim подконвейеры с ограниченным
// параллелизмом и детерминированным merge.
//
// Каждый claim пишет в преаллоцированный слот по порядку извлечения,
// поэтому merged вывод стабилен между повторами и не требует
// синхронизации сверх завершения подзадач.
//
// Политика merge:
//   - ждём завершения ВСЕХ подконвейеров (успех или per-claim фатал)
//   - упавшие claims фиксируются с ошибкой, но не прерывают workflow
//   - упали ВСЕ — workflow падает с kind=AllClaimsFailed
func (o *Orchestrator) runFanOut(ctx context.Context, wf *domain.Workflow) *domain.KindError {
	claims := wf.Claims

	// Ноль claims — валидный случай: конвейер идёт к RiskScore
	// с пустыми результатами.
	if len(claims) == 0 {
		wf.SetResult(domain.NodeClaimExtract, []domain.ClaimResult{})
		return nil
	}

	parallelism := o.cfg.ClaimParallelism
	if parallelism <= 0 {
		parallelism = 1
	}

	results := make([]domain.ClaimResult, len(claims))
	attempts := make([][]domain.NodeError, len(claims))
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for i := range claims {
		wg.Add(1)
		go func(slot int, claim domain.Claim) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			res := &results[slot]
			res.ClaimID = claim.ID

			for _, stage := range o.stages.ClaimStages() {
				errs, kerr := o.runtime.RunClaimStage(ctx, wf, stage, claim, res)
				attempts[slot] = append(attempts[slot], errs...)
				if kerr != nil {
					res.Failed = true
					res.Error = kerr.Error()
					return
				}
			}
		}(i, claims[i])
	}

	wg.Wait()

	// Merge: однопоточная агрегация попыток в журнал workflow.
	for _, slotErrs := range attempts {
		for _, e := range slotErrs {
			wf.Errors = append(wf.Errors, e)
			if e.Kind.Retryable() {
				wf.IncRetry(e.Node)
			}
		}
	}

	if cancelled, err := o.store.IsCancelled(ctx, wf.ID); err == nil && cancelled {
		return domain.NewKindError(domain.KindCancelled, domain.ErrCancelled)
	}

	failed := 0
	for i := range results {
		if results[i].Failed {
			failed++
		}
	}

	if failed == len(results) {
		return domain.Kindf(domain.KindAllClaimsFailed, "all %d claim sub-pipelines failed", failed)
	}

	wf.SetResult(domain.NodeClaimExtract, results)
	return nil
}
