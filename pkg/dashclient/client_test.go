package dashclient_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgrafton/linktally/internal/domain"
	"github.com/mgrafton/linktally/pkg/dashclient"
	"github.com/mgrafton/linktally/pkg/logger"
)

const (
	amazonURL  = "https://www.amazon.com"
	walmartURL = "https://www.walmart.com"
)

var testDestinations = domain.Destinations{Amazon: amazonURL, Walmart: walmartURL}

// sseFrame formats one event frame.
func sseFrame(eventType string, data any) string {
	payload, _ := json.Marshal(data)
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, payload)
}

// newStreamServer serves a fixed stats payload and a scripted live stream.
func newStreamServer(t *testing.T, stats domain.Stats, frames ...string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(stats))
	})
	mux.HandleFunc("/api/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok, "response writer must support flushing")

		for _, frame := range frames {
			_, err := fmt.Fprint(w, frame)
			require.NoError(t, err)
			flusher.Flush()
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// collectUpdates runs one Stream pass and returns every snapshot change.
func collectUpdates(t *testing.T, srv *httptest.Server) []dashclient.Snapshot {
	t.Helper()

	updates := make(chan dashclient.Snapshot, 32)
	client := dashclient.New(srv.URL, testDestinations,
		dashclient.WithLogger(logger.NewNop()),
		dashclient.WithUpdateFunc(func(s dashclient.Snapshot) { updates <- s }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.Stream(ctx)
	require.Error(t, err, "a finite scripted stream always ends in an error")

	close(updates)
	var got []dashclient.Snapshot
	for s := range updates {
		got = append(got, s)
	}
	return got
}

func TestStream_AppliesNewClicks(t *testing.T) {
	srv := newStreamServer(t,
		domain.Stats{Amazon: 1, Walmart: 0, Total: 1},
		sseFrame("connected", map[string]string{"message": "dashboard stream established"}),
		sseFrame("newClick", map[string]any{"linkUrl": amazonURL, "timestamp": "2026-08-31T12:00:00Z", "total": 2}),
		sseFrame("newClick", map[string]any{"linkUrl": walmartURL, "timestamp": "2026-08-31T12:00:01Z", "total": 3}),
	)

	updates := collectUpdates(t, srv)
	require.NotEmpty(t, updates)

	final := updates[len(updates)-1]
	assert.Equal(t, domain.Stats{Amazon: 2, Walmart: 1, Total: 3}, final.Stats)
	assert.False(t, final.Online, "stream end must mark the client offline")
}

func TestStream_ConnectedHandshakeResyncs(t *testing.T) {
	srv := newStreamServer(t,
		domain.Stats{Amazon: 4, Walmart: 2, Total: 6},
		sseFrame("connected", map[string]string{"message": "dashboard stream established"}),
	)

	updates := collectUpdates(t, srv)
	require.GreaterOrEqual(t, len(updates), 2)

	assert.True(t, updates[0].Online, "handshake marks the client online")
	assert.Equal(t, domain.Stats{Amazon: 4, Walmart: 2, Total: 6}, updates[1].Stats,
		"handshake loads the server's aggregate counts")
}

func TestStream_StatsUpdateReplacesSnapshot(t *testing.T) {
	srv := newStreamServer(t,
		domain.Stats{},
		sseFrame("statsUpdate", domain.Stats{Amazon: 10, Walmart: 5, Total: 15}),
	)

	updates := collectUpdates(t, srv)
	require.NotEmpty(t, updates)
	assert.Equal(t, domain.Stats{Amazon: 10, Walmart: 5, Total: 15}, updates[len(updates)-1].Stats)
}

func TestStream_FallsBackToLocalTotal(t *testing.T) {
	// A newClick without a total still advances the overall count.
	srv := newStreamServer(t,
		domain.Stats{},
		sseFrame("newClick", map[string]any{"linkUrl": amazonURL, "timestamp": "2026-08-31T12:00:00Z"}),
	)

	updates := collectUpdates(t, srv)
	require.NotEmpty(t, updates)

	final := updates[len(updates)-1]
	assert.Equal(t, int64(1), final.Stats.Amazon)
	assert.Equal(t, int64(1), final.Stats.Total)
}

func TestStream_IgnoresHeartbeatsAndUnknownEvents(t *testing.T) {
	srv := newStreamServer(t,
		domain.Stats{},
		": heartbeat 2026-08-31T12:00:00Z\n\n",
		sseFrame("somethingElse", map[string]string{"x": "y"}),
		sseFrame("newClick", map[string]any{"linkUrl": walmartURL, "total": 1}),
	)

	updates := collectUpdates(t, srv)
	require.NotEmpty(t, updates)
	assert.Equal(t, domain.Stats{Walmart: 1, Total: 1}, updates[len(updates)-1].Stats)
}

func TestResync(t *testing.T) {
	srv := newStreamServer(t, domain.Stats{Amazon: 7, Walmart: 3, Total: 10})
	client := dashclient.New(srv.URL, testDestinations)

	require.NoError(t, client.Resync(context.Background()))
	assert.Equal(t, domain.Stats{Amazon: 7, Walmart: 3, Total: 10}, client.Snapshot().Stats)
}

func TestResync_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "Internal Server Error"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := dashclient.New(srv.URL, testDestinations)
	err := client.Resync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}

func TestRun_ReconnectsAfterDrop(t *testing.T) {
	connects := make(chan struct{}, 4)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, _ *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(domain.Stats{}))
	})
	mux.HandleFunc("/api/live", func(w http.ResponseWriter, _ *http.Request) {
		connects <- struct{}{}
		w.Header().Set("Content-Type", "text/event-stream")
		// Drop immediately so Run has to reconnect.
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := dashclient.New(srv.URL, testDestinations,
		dashclient.WithBackoff(10*time.Millisecond, 20*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-connects:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for reconnect")
		}
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
