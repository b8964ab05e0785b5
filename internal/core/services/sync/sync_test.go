package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

type fakeHealth struct {
	samples   []*domain.HealthSample
	watermark string
}

func (f *fakeHealth) After(_ context.Context, watermark string, limit int) ([]*domain.HealthSample, error) {
	var out []*domain.HealthSample
	for _, s := range f.samples {
		if domain.FormatTime(s.Time) > watermark {
			out = append(out, s)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeHealth) Watermark(_ context.Context, _ string) (string, error) {
	return f.watermark, nil
}

func (f *fakeHealth) SetWatermark(_ context.Context, _, value string) error {
	f.watermark = value
	return nil
}

func newClient(t *testing.T, url string, health HealthSource) *Client {
	t.Helper()
	c := NewClient(health, func() Options {
		return Options{URL: url, Token: "secret", Retries: 3, Timeout: 5 * time.Second}
	})
	c.backoffBase = time.Millisecond
	return c
}

func writeTempDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "piwardrive.db")
	require.NoError(t, os.WriteFile(path, []byte("sqlite payload"), 0o644))
	return path
}

func TestUploadDatabaseRetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "piwardrive.db", header.Filename)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newClient(t, server.URL, &fakeHealth{})
	err := client.UploadDatabase(context.Background(), writeTempDB(t))

	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestUploadDatabaseFailsAfterRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newClient(t, server.URL, &fakeHealth{})
	err := client.UploadDatabase(context.Background(), writeTempDB(t))

	require.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestUploadDatabaseNoRemote(t *testing.T) {
	client := NewClient(&fakeHealth{}, func() Options { return Options{} })
	err := client.UploadDatabase(context.Background(), "unused")
	assert.ErrorIs(t, err, ErrNoRemote)
}

func healthAt(sec int) *domain.HealthSample {
	return &domain.HealthSample{
		Time:       time.Date(2026, 8, 26, 12, 0, sec, 0, time.UTC),
		CPUPercent: 12.5,
	}
}

func TestSyncNewRecordsAdvancesWatermark(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	health := &fakeHealth{samples: []*domain.HealthSample{healthAt(0), healthAt(1), healthAt(2)}}
	client := newClient(t, server.URL, health)

	shipped, err := client.SyncNewRecords(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 3, shipped)
	assert.Equal(t, domain.FormatTime(healthAt(2).Time), health.watermark)

	// A second run has nothing left to ship.
	shipped, err = client.SyncNewRecords(context.Background(), 100)
	require.NoError(t, err)
	assert.Zero(t, shipped)
}

func TestSyncNewRecordsKeepsWatermarkOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	health := &fakeHealth{samples: []*domain.HealthSample{healthAt(0)}, watermark: ""}
	client := newClient(t, server.URL, health)

	_, err := client.SyncNewRecords(context.Background(), 100)
	require.Error(t, err)
	assert.Empty(t, health.watermark, "watermark must not advance on failure")
}

func TestSyncNewRecordsRespectsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	health := &fakeHealth{samples: []*domain.HealthSample{healthAt(0), healthAt(1), healthAt(2)}}
	client := newClient(t, server.URL, health)

	shipped, err := client.SyncNewRecords(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, shipped)

	shipped, err = client.SyncNewRecords(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, shipped)
}
