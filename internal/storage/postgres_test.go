package storage_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mgrafton/linktally/internal/domain"
	"github.com/mgrafton/linktally/internal/storage"
	"github.com/mgrafton/linktally/pkg/logger"
)

const (
	testAmazonURL  = "https://www.amazon.com"
	testWalmartURL = "https://www.walmart.com"
)

func newTestStore(t *testing.T) (*storage.Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	destinations := domain.Destinations{Amazon: testAmazonURL, Walmart: testWalmartURL}
	return storage.NewStore(db, destinations, logger.NewNop()), mock
}

func TestAppend_StoresEvent(t *testing.T) {
	store, mock := newTestStore(t)

	clickedAt := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO click_events")).
		WithArgs(testAmazonURL, "agent/1.0", "203.0.113.9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "clicked_at"}).AddRow(int64(42), clickedAt))

	stored, err := store.Append(context.Background(), domain.ClickEvent{
		LinkURL:   testAmazonURL,
		UserAgent: "agent/1.0",
		IPAddress: "203.0.113.9",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if stored.ID != 42 {
		t.Errorf("id: got %d, want 42", stored.ID)
	}
	if !stored.ClickedAt.Equal(clickedAt) {
		t.Errorf("clicked_at: got %v, want %v", stored.ClickedAt, clickedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAppend_RejectsUnlistedURL(t *testing.T) {
	store, mock := newTestStore(t)

	_, err := store.Append(context.Background(), domain.ClickEvent{
		LinkURL: "https://evil.com",
	})
	if !errors.Is(err, domain.ErrInvalidLinkURL) {
		t.Fatalf("expected ErrInvalidLinkURL, got %v", err)
	}

	// Validation failure must not touch the database.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database access: %v", err)
	}
}

func TestAppend_InsertFailure(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO click_events")).
		WillReturnError(errors.New("connection reset"))

	_, err := store.Append(context.Background(), domain.ClickEvent{LinkURL: testWalmartURL})
	if err == nil {
		t.Fatal("expected error from failed insert, got nil")
	}
}

func TestCountByDestination(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM click_events WHERE link_url = $1")).
		WithArgs(testAmazonURL).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))

	count, err := store.CountByDestination(context.Background(), testAmazonURL)
	if err != nil {
		t.Fatalf("CountByDestination: %v", err)
	}
	if count != 7 {
		t.Errorf("count: got %d, want 7", count)
	}
}

func TestStats_SumsDestinations(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM click_events WHERE link_url = $1")).
		WithArgs(testAmazonURL).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM click_events WHERE link_url = $1")).
		WithArgs(testWalmartURL).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM click_events")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}

	if stats.Amazon != 2 || stats.Walmart != 1 || stats.Total != 3 {
		t.Errorf("stats: got %+v, want {2 1 3}", stats)
	}
	if stats.Total != stats.Amazon+stats.Walmart {
		t.Errorf("total %d != amazon %d + walmart %d", stats.Total, stats.Amazon, stats.Walmart)
	}
}

func TestStats_ReadFailure(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM click_events WHERE link_url = $1")).
		WillReturnError(errors.New("relation does not exist"))

	if _, err := store.Stats(context.Background()); err == nil {
		t.Fatal("expected error from failed count, got nil")
	}
}

func TestRecent_MostRecentFirst(t *testing.T) {
	store, mock := newTestStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "link_url", "clicked_at", "user_agent", "ip_address"}).
		AddRow(int64(3), testWalmartURL, now, "agent/1.0", nil).
		AddRow(int64(2), testAmazonURL, now.Add(-time.Minute), nil, "203.0.113.9")

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY clicked_at DESC")).
		WithArgs(5).
		WillReturnRows(rows)

	events, err := store.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ID != 3 || events[0].LinkURL != testWalmartURL {
		t.Errorf("first event: got %+v", events[0])
	}
	if events[1].UserAgent != "" || events[1].IPAddress != "203.0.113.9" {
		t.Errorf("null handling: got %+v", events[1])
	}
}
