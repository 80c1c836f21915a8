package hedger

import (
	"fmt"
	"sync"
	"time"

	"github.com/jackleonard0102/ibtrading/internal/domain"
)

const (
	maxLogLines = 100
	maxAlerts   = 20
)

// AlertLog keeps the operator-facing activity feed: a bounded log of
// recent hedging activity lines and a bounded list of order alerts.
// Both are in-memory only and served over the API; persistence of the
// audit trail is the order repository's job.
type AlertLog struct {
	mu     sync.Mutex
	lines  []string
	alerts []domain.HedgeAlert
}

// NewAlertLog creates an empty alert log
func NewAlertLog() *AlertLog {
	return &AlertLog{}
}

// Record appends an order alert and a matching log line, evicting the
// oldest entries beyond the bounds.
func (l *AlertLog) Record(alert domain.HedgeAlert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.alerts = append(l.alerts, alert)
	if len(l.alerts) > maxAlerts {
		l.alerts = l.alerts[len(l.alerts)-maxAlerts:]
	}

	line := fmt.Sprintf("%s %s %s qty=%d status=%s",
		alert.Timestamp.Format("15:04:05"), alert.Symbol, alert.Action, alert.Quantity, alert.Status)
	if alert.Details != "" {
		line += " " + alert.Details
	}
	l.appendLineLocked(line)
}

// Logf appends a formatted activity line without an alert
func (l *AlertLog) Logf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLineLocked(time.Now().Format("15:04:05") + " " + fmt.Sprintf(format, args...))
}

func (l *AlertLog) appendLineLocked(line string) {
	l.lines = append(l.lines, line)
	if len(l.lines) > maxLogLines {
		l.lines = l.lines[len(l.lines)-maxLogLines:]
	}
}

// Alerts returns a copy of the retained alerts, oldest first
func (l *AlertLog) Alerts() []domain.HedgeAlert {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.HedgeAlert, len(l.alerts))
	copy(out, l.alerts)
	return out
}

// Lines returns a copy of the retained activity lines, oldest first
func (l *AlertLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}
