package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/broadcast"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/clinics"
)

type MessagesRepo struct {
	db *sql.DB
}

func NewMessagesRepo(db *sql.DB) *MessagesRepo {
	return &MessagesRepo{db: db}
}

const messageColumns = `
	id, emergency_request_id, clinic_id,
	channel, recipient, content,
	status, retry_count, retryable,
	provider_message_id, error_message,
	sent_at, delivered_at, failed_at,
	created_at, updated_at
`

func (r *MessagesRepo) Create(ctx context.Context, m broadcast.Message) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (
			id, emergency_request_id, clinic_id,
			channel, recipient, content,
			status, retry_count, retryable,
			provider_message_id, error_message,
			sent_at, delivered_at, failed_at,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		m.ID,
		m.EmergencyRequestID,
		m.ClinicID,
		string(m.Channel),
		m.Recipient,
		m.Content,
		string(m.Status),
		m.RetryCount,
		m.Retryable,
		nullString(m.ProviderMessageID),
		nullString(m.ErrorMessage),
		m.SentAt,
		m.DeliveredAt,
		m.FailedAt,
		m.CreatedAt,
		m.UpdatedAt,
	)
	return err
}

func (r *MessagesRepo) GetByID(ctx context.Context, id string) (broadcast.Message, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return broadcast.Message{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1
	`, id)

	m, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return broadcast.Message{}, ErrNotFound
		}
		return broadcast.Message{}, err
	}
	return m, nil
}

func (r *MessagesRepo) ListByRequest(ctx context.Context, requestID string) ([]broadcast.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE emergency_request_id = $1
		ORDER BY created_at ASC
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (r *MessagesRepo) ListSweepable(ctx context.Context, staleBefore time.Time, maxRetries int) ([]broadcast.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (status = 'failed' AND retryable AND retry_count < $2)
		   OR (status = 'queued' AND updated_at < $1)
		ORDER BY created_at ASC
	`, staleBefore, maxRetries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (r *MessagesRepo) GetByProviderMessageID(ctx context.Context, providerID string) (broadcast.Message, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return broadcast.Message{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE provider_message_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, providerID)

	m, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return broadcast.Message{}, ErrNotFound
		}
		return broadcast.Message{}, err
	}
	return m, nil
}

// CompareAndSetStatus gana solo si el row sigue en `from`; el WHERE hace
// de guard y RowsAffected dice quién ganó la carrera.
func (r *MessagesRepo) CompareAndSetStatus(ctx context.Context, id string, from, to broadcast.Status, patch broadcast.StatusPatch) (bool, error) {
	if !broadcast.CanTransition(from, to) {
		return false, nil
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET
			status = $3,
			updated_at = $4,
			retry_count = COALESCE($5, retry_count),
			retryable = COALESCE($6, retryable),
			provider_message_id = COALESCE($7, provider_message_id),
			error_message = COALESCE($8, error_message),
			sent_at = COALESCE($9, sent_at),
			delivered_at = COALESCE($10, delivered_at),
			failed_at = COALESCE($11, failed_at)
		WHERE id = $1 AND status = $2
	`,
		id,
		string(from),
		string(to),
		time.Now(),
		patch.RetryCount,
		patch.Retryable,
		patch.ProviderMessageID,
		patch.ErrorMessage,
		patch.SentAt,
		patch.DeliveredAt,
		patch.FailedAt,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanMessage(row rowScanner) (broadcast.Message, error) {
	var m broadcast.Message
	var channel, status string
	var providerID, errMsg sql.NullString
	var sentAt, deliveredAt, failedAt sql.NullTime

	if err := row.Scan(
		&m.ID,
		&m.EmergencyRequestID,
		&m.ClinicID,
		&channel,
		&m.Recipient,
		&m.Content,
		&status,
		&m.RetryCount,
		&m.Retryable,
		&providerID,
		&errMsg,
		&sentAt,
		&deliveredAt,
		&failedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return broadcast.Message{}, err
	}

	m.Channel = clinics.Channel(channel)
	m.Status = broadcast.Status(status)
	m.ProviderMessageID = providerID.String
	m.ErrorMessage = errMsg.String
	if sentAt.Valid {
		t := sentAt.Time
		m.SentAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		m.DeliveredAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		m.FailedAt = &t
	}
	return m, nil
}

func collectMessages(rows *sql.Rows) ([]broadcast.Message, error) {
	out := make([]broadcast.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
