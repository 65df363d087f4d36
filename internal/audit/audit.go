// Package audit records finished runs as an activity plus a message-send detail.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/dispatch"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 50
)

// Store is where audit rows go. CreateMessageDetail must be called after
// CreateActivity because the detail references the activity id.
type Store interface {
	CreateActivity(ctx context.Context, activity *models.Activity) error
	CreateMessageDetail(ctx context.Context, detail *models.MessageSendDetail) error
	ListActivities(ctx context.Context, page, limit int) ([]models.ActivityWithDetail, int64, error)
}

// RunWriter is implemented by stores that can write both rows atomically.
type RunWriter interface {
	WriteRun(ctx context.Context, activity *models.Activity, detail *models.MessageSendDetail) error
}

// Persister turns run reports into audit rows. Write failures are logged and
// never reach the caller.
type Persister struct {
	store Store
}

func NewPersister(store Store) *Persister {
	return &Persister{store: store}
}

// RecordRun implements dispatch.Recorder.
func (p *Persister) RecordRun(ctx context.Context, report dispatch.Report) {
	logger := log.WithFields(log.Fields{"run": report.RunID, "actor": report.Actor.ID})
	if err := p.record(ctx, report); err != nil {
		logger.Errorf("Failed to persist send activity: %v", err)
		return
	}
	logger.Debug("Send activity persisted")
}

func (p *Persister) record(ctx context.Context, report dispatch.Report) error {
	activity, detail, err := Build(report)
	if err != nil {
		return err
	}

	if w, ok := p.store.(RunWriter); ok {
		return w.WriteRun(ctx, activity, detail)
	}
	if err := p.store.CreateActivity(ctx, activity); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	if err := p.store.CreateMessageDetail(ctx, detail); err != nil {
		return fmt.Errorf("create message detail for activity %s: %w", activity.ID, err)
	}
	return nil
}

// Build maps a report to its activity and detail rows.
func Build(report dispatch.Report) (*models.Activity, *models.MessageSendDetail, error) {
	rows, err := json.Marshal(report.Summary.Rows)
	if err != nil {
		return nil, nil, fmt.Errorf("encode recipient rows: %w", err)
	}

	status := models.StatusSuccess
	if report.Summary.FailedBatches > 0 {
		status = models.StatusError
	}
	createdAt := report.FinishedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	activity := &models.Activity{
		Base:      models.NewBase(),
		UserID:    report.Actor.ID,
		Type:      models.ActivitySendMessages,
		Detail:    fmt.Sprintf("Envío masivo de %s finalizado", report.Category),
		Status:    status,
		CreatedAt: createdAt.UTC(),
	}
	detail := &models.MessageSendDetail{
		Base:         models.NewBase(),
		ActivityID:   activity.ID,
		RunID:        report.RunID,
		Messages:     report.Summary.Attempts,
		EmailsOK:     report.Summary.EmailOK,
		WhatsAppOK:   report.Summary.WhatsAppOK,
		FailedGroups: report.Summary.FailedBatches,
		Rows:         string(rows),
	}
	return activity, detail, nil
}

// PageBounds clamps page and limit to the allowed ranges.
func PageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return page, min(limit, MaxPageSize)
}
