// Package supervisor управляет жизненным циклом процесса оркестрации.
//
// На старте: объявляет топологию шины, запускает потребителей raw-items
// (по одному на воркера), подписку на review.decided, напоминания
// review и восстановительный проход по осиротевшим workflow.
//
// На остановке: прекращает приём сообщений, дожидается in-flight узлов
// в пределах shutdown_grace, отпускает owner-leases (истекают сами)
// и выходит. Обрабатываются graceful (SIGTERM) и жёсткая отмена.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/bus"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/config"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/orchestrator"
	"github.com/adityashenoy-ai/CrisisLens-MumbaiHacks/internal/review"
)

// recoveryInterval — период фонового восстановительного прохода.
const recoveryInterval = time.Minute

// Supervisor связывает потребителей шины с оркестратором и ведёт
// жизненный цикл процесса.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger

	conn      *bus.Connection
	publisher *bus.Publisher
	orch      *orchestrator.Orchestrator
	coord     *review.Coordinator

	consumers     []*bus.Consumer
	stopReminders func()

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Supervisor.
type Config struct {
	Cfg       *config.Config
	Logger    *slog.Logger
	Conn      *bus.Connection
	Publisher *bus.Publisher
	Orch      *orchestrator.Orchestrator
	Coord     *review.Coordinator
}

// New создаёт Supervisor.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:       cfg.Cfg,
		logger:    logger,
		conn:      cfg.Conn,
		publisher: cfg.Publisher,
		orch:      cfg.Orch,
		coord:     cfg.Coord,
	}
}

// Start запускает все компоненты. Не блокирует.
//
// Рабочий контекст отвязан от контекста вызова: SIGTERM останавливает
// приём через Stop, а выполняющиеся узлы дорабатывают grace-окно и
// только потом получают жёсткую отмену.
func (s *Supervisor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelFunc = cancel

	if err := bus.SetupTopology(ctx, s.conn); err != nil {
		return err
	}

	// Восстановительный проход до приёма нового трафика: осиротевшие
	// workflow возобновляются раньше, чем их перекроют свежие доставки.
	if err := s.orch.Recover(ctx); err != nil {
		s.logger.Warn("startup recovery pass failed", "error", err)
	}

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	for i := 0; i < workers; i++ {
		consumer := bus.NewConsumer(s.conn, s.publisher, s.logger, bus.ConsumerConfig{
			Queue:        bus.QueueRawItems,
			Exchange:     bus.ExchangeRawItems,
			RoutingKey:   bus.RoutingKeyRaw,
			Handler:      s.orch.HandleRawItem,
			OnDeadLetter: s.orch.HandleDeadLetter,
			Prefetch:     1,
			AttemptCap:   s.cfg.DLQAttemptCap,
		})
		s.consumers = append(s.consumers, consumer)

		s.wg.Add(1)
		go func(c *bus.Consumer) {
			defer s.wg.Done()
			if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("raw-items consumer error", "error", err)
			}
		}(consumer)
	}

	// Push-подписка на решения операторов.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.orch.ListenReviewDecisions(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("review decision listener error", "error", err)
		}
	}()

	// Периодический восстановительный проход: подбирает workflow,
	// чьи владельцы умерли между graceful-остановками.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(recoveryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.orch.Recover(ctx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Warn("recovery pass failed", "error", err)
				}
			}
		}
	}()

	s.stopReminders = s.coord.StartReminders(ctx)

	s.logger.Info("supervisor started", "workers", workers)
	return nil
}

// Stop останавливает приём и дожидается in-flight работы.
func (s *Supervisor) Stop() {
	s.logger.Info("supervisor stopping", "grace", s.cfg.ShutdownGrace)

	// 1. Прекращаем приём новых сообщений.
	for _, c := range s.consumers {
		c.Stop()
	}

	// 2. Дожидаемся in-flight узлов в пределах grace-окна.
	deadline := time.Now().Add(s.cfg.ShutdownGrace)
	for s.orch.ActiveCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	if n := s.orch.ActiveCount(); n > 0 {
		// Owner-leases истекут, другой процесс подберёт работу с чекпоинта.
		s.logger.Warn("drain window elapsed with workflows in flight", "count", n)
	}

	// 3. Гасим фоновые циклы.
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	if s.stopReminders != nil {
		s.stopReminders()
	}
	s.wg.Wait()

	s.logger.Info("supervisor stopped")
}
