package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/db"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
)

const (
	insertActivitySQL = `INSERT INTO activities (id, user_id, type, detail, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	insertDetailSQL   = `INSERT INTO message_send_details (id, activity_id, run_id, messages, emails_ok, whatsapp_ok, failed_batches, rows) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	countActivitiesSQL = `SELECT count(*) FROM activities`
	listActivitiesSQL  = `SELECT a.id, a.user_id, a.type, a.detail, a.status, a.created_at,
       d.id, d.run_id, d.messages, d.emails_ok, d.whatsapp_ok, d.failed_batches, d.rows
FROM activities a
LEFT JOIN message_send_details d ON d.activity_id = a.id
ORDER BY a.created_at DESC
LIMIT $1 OFFSET $2`
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresStore keeps audit rows in Postgres and writes a run in one transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(sqlDB *sql.DB) *PostgresStore {
	return &PostgresStore{db: sqlDB}
}

func (s *PostgresStore) CreateActivity(ctx context.Context, activity *models.Activity) error {
	return insertActivity(ctx, s.db, activity)
}

func (s *PostgresStore) CreateMessageDetail(ctx context.Context, detail *models.MessageSendDetail) error {
	return insertDetail(ctx, s.db, detail)
}

// WriteRun inserts both rows in one transaction, retrying serialization conflicts.
func (s *PostgresStore) WriteRun(ctx context.Context, activity *models.Activity, detail *models.MessageSendDetail) error {
	return db.Try(func() error {
		return db.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
			if err := insertActivity(ctx, tx, activity); err != nil {
				return err
			}
			detail.ActivityID = activity.ID
			return insertDetail(ctx, tx, detail)
		})
	})
}

func insertActivity(ctx context.Context, ex execer, a *models.Activity) error {
	a.GenIDIfEmpty()
	if _, err := ex.ExecContext(ctx, insertActivitySQL, a.ID, a.UserID, a.Type, a.Detail, a.Status, a.CreatedAt); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func insertDetail(ctx context.Context, ex execer, d *models.MessageSendDetail) error {
	d.GenIDIfEmpty()
	rows := d.Rows
	if rows == "" {
		rows = "[]"
	}
	if _, err := ex.ExecContext(ctx, insertDetailSQL, d.ID, d.ActivityID, d.RunID, d.Messages, d.EmailsOK, d.WhatsAppOK, d.FailedGroups, rows); err != nil {
		return fmt.Errorf("insert message detail: %w", err)
	}
	return nil
}

// ListActivities returns a page of activities, newest first, with their details.
func (s *PostgresStore) ListActivities(ctx context.Context, page, limit int) ([]models.ActivityWithDetail, int64, error) {
	page, limit = PageBounds(page, limit)

	var total int64
	if err := s.db.QueryRowContext(ctx, countActivitiesSQL).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, listActivitiesSQL, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var out []models.ActivityWithDetail
	for rows.Next() {
		var (
			a                                    models.ActivityWithDetail
			detailID, runID, detailRows          sql.NullString
			messages, emailsOK, waOK, failedBtch sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &a.Detail, &a.Status, &a.CreatedAt,
			&detailID, &runID, &messages, &emailsOK, &waOK, &failedBtch, &detailRows); err != nil {
			return nil, 0, fmt.Errorf("scan activity: %w", err)
		}
		if detailID.Valid {
			a.SendDetail = &models.MessageSendDetail{
				Base:         models.Base{ID: detailID.String},
				ActivityID:   a.ID,
				RunID:        runID.String,
				Messages:     int(messages.Int64),
				EmailsOK:     int(emailsOK.Int64),
				WhatsAppOK:   int(waOK.Int64),
				FailedGroups: int(failedBtch.Int64),
				Rows:         detailRows.String,
			}
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate activities: %w", err)
	}
	return out, total, nil
}
