package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ecfr-snapshot/internal/ecfr"
	"github.com/JakeFAU/ecfr-snapshot/internal/snapshot"
)

// fakeStore serves a fixed snapshot, or a configured error.
type fakeStore struct {
	snap ecfr.Snapshot
	err  error
}

func (f *fakeStore) Write(context.Context, ecfr.Snapshot) error { return nil }

func (f *fakeStore) Load(context.Context) (ecfr.Snapshot, error) {
	if f.err != nil {
		return ecfr.Snapshot{}, f.err
	}
	return f.snap, nil
}

func populatedStore() *fakeStore {
	return &fakeStore{snap: ecfr.Snapshot{
		AsOfDate: "2025-03-10",
		Agencies: map[string]ecfr.AgencyMetrics{
			"Department of Labor":    {Agency: "Department of Labor", WordCount: 1200, Checksum: "abc123"},
			"Department of Commerce": {Agency: "Department of Commerce", WordCount: 900, Checksum: "def456"},
		},
	}}
}

func get(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_ListAgencies_SortedNames(t *testing.T) {
	t.Parallel()

	server := NewServer(populatedStore(), nil)
	rec := get(t, server, "/v1/agencies")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		AsOfDate string   `json:"asOfDate"`
		Agencies []string `json:"agencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "2025-03-10", body.AsOfDate)
	require.Equal(t, []string{"Department of Commerce", "Department of Labor"}, body.Agencies)
}

func TestServer_ListAgencyMetrics(t *testing.T) {
	t.Parallel()

	server := NewServer(populatedStore(), nil)
	rec := get(t, server, "/v1/agencies/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Metrics []ecfr.AgencyMetrics `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Metrics, 2)
	require.Equal(t, "Department of Commerce", body.Metrics[0].Agency)
	require.Equal(t, 900, body.Metrics[0].WordCount)
}

func TestServer_GetAgencyChecksum(t *testing.T) {
	t.Parallel()

	server := NewServer(populatedStore(), nil)
	rec := get(t, server, "/v1/agencies/Department%20of%20Labor/checksum")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Department of Labor", body["name"])
	require.Equal(t, "abc123", body["checksum"])
}

func TestServer_GetAgencyChecksum_UnknownAgency(t *testing.T) {
	t.Parallel()

	server := NewServer(populatedStore(), nil)
	rec := get(t, server, "/v1/agencies/No%20Such%20Agency/checksum")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "agency not found")
}

func TestServer_NoSnapshotYet(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeStore{err: snapshot.ErrNoSnapshot}, nil)

	for _, path := range []string{
		"/v1/agencies",
		"/v1/agencies/metrics",
		"/v1/agencies/Anything/checksum",
		"/readyz",
	} {
		rec := get(t, server, path)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestServer_Healthz_AlwaysOK(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeStore{err: snapshot.ErrNoSnapshot}, nil)
	rec := get(t, server, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Readyz_WithSnapshot(t *testing.T) {
	t.Parallel()

	server := NewServer(populatedStore(), nil)
	rec := get(t, server, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RequestIDHeader(t *testing.T) {
	t.Parallel()

	server := NewServer(populatedStore(), nil)
	rec := get(t, server, "/healthz")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
