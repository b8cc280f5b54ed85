// Package progress publishes evaluation status snapshots to interested
// listeners. Publishing is fire-and-forget: sink failures are logged and
// never affect evaluation correctness.
package progress

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/webbench/benchd/internal/models"
)

// Sink receives evaluation status snapshots.
type Sink interface {
	Publish(evaluationID string, snapshot models.StatusSnapshot)
}

// NATSSink streams snapshots onto a NATS subject per evaluation.
type NATSSink struct {
	nc            *nats.Conn
	subjectPrefix string
	logger        *slog.Logger
}

// NewNATSSink creates a sink publishing to <prefix>.<evaluationID>.
func NewNATSSink(nc *nats.Conn, subjectPrefix string, logger *slog.Logger) *NATSSink {
	if logger == nil {
		logger = slog.Default()
	}
	if subjectPrefix == "" {
		subjectPrefix = "benchd.evaluations"
	}
	return &NATSSink{nc: nc, subjectPrefix: subjectPrefix, logger: logger}
}

func (s *NATSSink) Publish(evaluationID string, snapshot models.StatusSnapshot) {
	b, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Warn("failed to marshal status snapshot", "evaluation", evaluationID, "error", err)
		return
	}

	subject := fmt.Sprintf("%s.%s", s.subjectPrefix, evaluationID)
	if err := s.nc.Publish(subject, b); err != nil {
		s.logger.Warn("failed to publish status snapshot", "subject", subject, "error", err)
	}
}

// LogSink writes snapshots to the log, for local runs without a broker.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(evaluationID string, snapshot models.StatusSnapshot) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("evaluation progress",
		"evaluation", evaluationID,
		"status", snapshot.Status,
		"progress", snapshot.ProgressPercent,
		"completed", snapshot.CompletedTasks,
		"total", snapshot.TotalTasks,
	)
}

// NopSink discards snapshots.
type NopSink struct{}

func (NopSink) Publish(string, models.StatusSnapshot) {}
