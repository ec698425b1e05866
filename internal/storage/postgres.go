// Package storage persists click events in PostgreSQL. The table is an
// append-only event log: inserts and aggregate reads only.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mgrafton/linktally/internal/domain"
	"github.com/mgrafton/linktally/pkg/logger"
)

// defaultRecentLimit caps Recent queries when the caller passes no limit.
const defaultRecentLimit = 20

const insertEventSQL = `INSERT INTO click_events (link_url, user_agent, ip_address)
VALUES ($1, $2, $3)
RETURNING id, clicked_at`

const countByDestinationSQL = `SELECT COUNT(*) FROM click_events WHERE link_url = $1`

const countAllSQL = `SELECT COUNT(*) FROM click_events`

const recentSQL = `SELECT id, link_url, clicked_at, user_agent, ip_address
FROM click_events
ORDER BY clicked_at DESC, id DESC
LIMIT $1`

// Store writes and counts click events in PostgreSQL.
type Store struct {
	db           *sql.DB
	destinations domain.Destinations
	log          logger.Logger
}

// NewStore creates a Store over the given database handle.
func NewStore(db *sql.DB, destinations domain.Destinations, log logger.Logger) *Store {
	return &Store{
		db:           db,
		destinations: destinations,
		log:          log,
	}
}

// Append validates the event's link URL against the allow-list and inserts
// one row. The clicked-at timestamp is assigned by the database. The insert
// is committed before Append returns, so callers may safely broadcast the
// returned event.
func (s *Store) Append(ctx context.Context, event domain.ClickEvent) (domain.ClickEvent, error) {
	if err := s.destinations.Validate(event.LinkURL); err != nil {
		return domain.ClickEvent{}, err
	}

	row := s.db.QueryRowContext(ctx, insertEventSQL,
		event.LinkURL,
		nullIfEmpty(event.UserAgent),
		nullIfEmpty(event.IPAddress),
	)

	if err := row.Scan(&event.ID, &event.ClickedAt); err != nil {
		return domain.ClickEvent{}, fmt.Errorf("insert click event: %w", err)
	}

	s.log.Debug("Click event stored",
		logger.Int64("id", event.ID),
		logger.String("link_url", event.LinkURL),
	)

	return event, nil
}

// CountByDestination returns the number of stored clicks for one URL.
func (s *Store) CountByDestination(ctx context.Context, url string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, countByDestinationSQL, url).Scan(&count); err != nil {
		return 0, fmt.Errorf("count clicks for %s: %w", url, err)
	}
	return count, nil
}

// CountAll returns the total number of stored clicks.
func (s *Store) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, countAllSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count clicks: %w", err)
	}
	return count, nil
}

// Stats reads per-destination counts and the overall total as three
// independent queries. Consistency between the three values is only
// guaranteed when no writes are in flight.
func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	amazon, err := s.CountByDestination(ctx, s.destinations.Amazon)
	if err != nil {
		return domain.Stats{}, err
	}

	walmart, err := s.CountByDestination(ctx, s.destinations.Walmart)
	if err != nil {
		return domain.Stats{}, err
	}

	total, err := s.CountAll(ctx)
	if err != nil {
		return domain.Stats{}, err
	}

	return domain.Stats{Amazon: amazon, Walmart: walmart, Total: total}, nil
}

// Recent returns up to limit events, most recent first. It rides the
// (link_url, clicked_at desc) index for per-destination scans and the
// primary key order otherwise.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.ClickEvent, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	rows, err := s.db.QueryContext(ctx, recentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent clicks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := make([]domain.ClickEvent, 0, limit)
	for rows.Next() {
		var (
			event     domain.ClickEvent
			userAgent sql.NullString
			ipAddress sql.NullString
		)
		if err := rows.Scan(&event.ID, &event.LinkURL, &event.ClickedAt, &userAgent, &ipAddress); err != nil {
			return nil, fmt.Errorf("scan click event: %w", err)
		}
		event.UserAgent = userAgent.String
		event.IPAddress = ipAddress.String
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent clicks: %w", err)
	}

	return events, nil
}

// Destinations returns the allow-list the store validates against.
func (s *Store) Destinations() domain.Destinations {
	return s.destinations
}

// Ping verifies the database connection, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// nullIfEmpty maps empty optional strings to SQL NULL.
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
