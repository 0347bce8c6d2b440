// Package alerts derives discrete budget alert levels from utilization and
// rate-limits the resulting notifications to level transitions.
package alerts

import (
	"context"
	"fmt"
	"sync"

	"github.com/YatraLedger/yatra-ledger-backend/logger"
	"github.com/YatraLedger/yatra-ledger-backend/store"
	"github.com/YatraLedger/yatra-ledger-backend/types"
	"go.uber.org/zap"
)

// Level is the discrete alert banding derived from budget utilization.
type Level int

const (
	LevelNormal   Level = iota // utilization below 75
	LevelWarning               // 75 up to but excluding 90
	LevelCritical              // 90 and above
)

const (
	warningThreshold  = 75.0
	criticalThreshold = 90.0
)

// String provides a string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "normal"
	}
}

// LevelFor maps a utilization percentage to its alert level.
func LevelFor(utilization float64) Level {
	switch {
	case utilization >= criticalThreshold:
		return LevelCritical
	case utilization >= warningThreshold:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// Evaluator tracks the last observed level per trip within the current
// session and fires a notification only on an upward crossing into warning
// or critical. The first observation of a trip establishes its level without
// firing. State is session-scoped and deliberately not persisted; the
// durable reminder bookkeeping lives in its own store.
type Evaluator struct {
	notifier store.Notifier
	log      *zap.SugaredLogger

	mu   sync.Mutex
	last map[string]Level
}

// NewEvaluator creates an Evaluator delivering through notifier.
func NewEvaluator(notifier store.Notifier) *Evaluator {
	return &Evaluator{
		notifier: notifier,
		log:      logger.GetLogger().Named("budget_alerts"),
		last:     make(map[string]Level),
	}
}

// Observe records the trip's current snapshot and fires at most one
// notification when its level rose since the previous observation.
// Delivery failures are logged and swallowed; alerting is best-effort and
// must never disturb the recomputation path.
func (e *Evaluator) Observe(ctx context.Context, snapshot types.TripSnapshot) {
	level := LevelFor(snapshot.BudgetUtilization)

	e.mu.Lock()
	previous, seen := e.last[snapshot.ID]
	e.last[snapshot.ID] = level
	e.mu.Unlock()

	if !seen {
		// First observation establishes the baseline; no transition yet.
		return
	}
	if level <= previous || level == LevelNormal {
		return
	}

	title, body := alertMessage(snapshot, level)
	tag := fmt.Sprintf("budget-%s-%s", level, snapshot.ID)
	if err := e.notifier.Notify(ctx, title, body, tag); err != nil {
		e.log.Warnw("Budget alert delivery failed",
			"tripId", snapshot.ID,
			"level", level.String(),
			"error", err,
		)
		return
	}

	e.log.Infow("Budget alert fired",
		"tripId", snapshot.ID,
		"level", level.String(),
		"utilization", snapshot.BudgetUtilization,
	)
}

// Forget drops the session state for a trip, e.g. when it is no longer
// watched. The next observation starts a fresh baseline.
func (e *Evaluator) Forget(tripID string) {
	e.mu.Lock()
	delete(e.last, tripID)
	e.mu.Unlock()
}

func alertMessage(snapshot types.TripSnapshot, level Level) (title, body string) {
	if level == LevelCritical {
		return "Budget alert",
			fmt.Sprintf("%s has consumed %.0f%% of its budget.", snapshot.Name, snapshot.BudgetUtilization)
	}
	return "Budget heads-up",
		fmt.Sprintf("%s is at %.0f%% of its budget.", snapshot.Name, snapshot.BudgetUtilization)
}
