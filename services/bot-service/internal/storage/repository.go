package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/bulkflow/libs/db"
	"github.com/md-rashed-zaman/bulkflow/services/bot-service/internal/model"
)

// Repository reads the booking catalog (services, slots) and the chat-user
// roster. Slot mutation happens only in the reservation engine.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ListActiveServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, duration_min, active
		FROM services
		WHERE active
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.DurationMin, &s.Active); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// ListAvailableDates returns the distinct UTC dates (earliest first, at most
// limit) that still have future slots with capacity remaining.
func (r *Repository) ListAvailableDates(ctx context.Context, serviceID string, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT to_char(start_ts AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS d
		FROM slots
		WHERE service_id = $1
			AND booked_count < capacity
			AND start_ts > $2
		ORDER BY d
		LIMIT $3
	`, serviceID, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// ListOpenSlots returns slots for the service within [dayStart, dayEnd) that
// still have capacity, ordered by start time.
func (r *Repository) ListOpenSlots(ctx context.Context, serviceID string, dayStart, dayEnd time.Time) ([]model.Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, service_id, start_ts, end_ts, capacity, booked_count
		FROM slots
		WHERE service_id = $1
			AND booked_count < capacity
			AND start_ts >= $2
			AND start_ts < $3
		ORDER BY start_ts
	`, serviceID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.Slot
	for rows.Next() {
		var s model.Slot
		if err := rows.Scan(&s.ID, &s.ServiceID, &s.Start, &s.End, &s.Capacity, &s.BookedCount); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (r *Repository) ListConfirmedBookings(ctx context.Context, chatID string) ([]model.BookingSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.id, s.name, sl.start_ts
		FROM bookings b
		JOIN services s ON s.id = b.service_id
		JOIN slots sl ON sl.id = b.slot_id
		WHERE b.chat_id = $1 AND b.status = 'CONFIRMED'
		ORDER BY sl.start_ts
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.BookingSummary
	for rows.Next() {
		var b model.BookingSummary
		if err := rows.Scan(&b.ID, &b.ServiceName, &b.Start); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (r *Repository) UpsertUser(ctx context.Context, u model.ChatUser) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tg_users (chat_id, username, first_name, last_name, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (chat_id) DO UPDATE
		SET username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name
	`, u.ChatID, u.Username, u.FirstName, u.LastName)
	return err
}

// --- admin surface ---

func (r *Repository) CreateService(ctx context.Context, s model.Service) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (id, name, duration_min, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, s.ID, s.Name, s.DurationMin, s.Active)
	return err
}

func (r *Repository) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, duration_min, active FROM services ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.DurationMin, &s.Active); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (r *Repository) CreateSlot(ctx context.Context, s model.Slot) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO slots (id, service_id, start_ts, end_ts, capacity, booked_count)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (id) DO NOTHING
	`, s.ID, s.ServiceID, s.Start, s.End, s.Capacity)
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

func (r *Repository) ListSlots(ctx context.Context, serviceID string) ([]model.Slot, error) {
	query := `
		SELECT id, service_id, start_ts, end_ts, capacity, booked_count
		FROM slots
		ORDER BY start_ts
	`
	args := []any{}
	if serviceID != "" {
		query = `
			SELECT id, service_id, start_ts, end_ts, capacity, booked_count
			FROM slots
			WHERE service_id = $1
			ORDER BY start_ts
		`
		args = append(args, serviceID)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []model.Slot
	for rows.Next() {
		var s model.Slot
		if err := rows.Scan(&s.ID, &s.ServiceID, &s.Start, &s.End, &s.Capacity, &s.BookedCount); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

type RecentBooking struct {
	ID          string
	ChatID      string
	Status      string
	ServiceName string
	Start       time.Time
}

func (r *Repository) RecentBookings(ctx context.Context, limit int) ([]RecentBooking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.chat_id, b.status, s.name, sl.start_ts
		FROM bookings b
		JOIN services s ON s.id = b.service_id
		JOIN slots sl ON sl.id = b.slot_id
		ORDER BY b.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []RecentBooking
	for rows.Next() {
		var b RecentBooking
		if err := rows.Scan(&b.ID, &b.ChatID, &b.Status, &b.ServiceName, &b.Start); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// SeedDemo inserts a demo service with six hourly slots starting on the
// next full hour after now.
func (r *Repository) SeedDemo(ctx context.Context, now time.Time) error {
	if err := r.CreateService(ctx, model.Service{ID: "demo_call", Name: "Demo Call", DurationMin: 30, Active: true}); err != nil {
		return err
	}
	base := now.UTC().Truncate(time.Hour)
	for i := 1; i <= 6; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		_, err := r.CreateSlot(ctx, model.Slot{
			ServiceID: "demo_call",
			Start:     start,
			End:       start.Add(30 * time.Minute),
			Capacity:  1,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
