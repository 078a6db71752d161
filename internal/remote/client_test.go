package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheVisher/pawkit-sync/internal/common"
	"github.com/TheVisher/pawkit-sync/internal/models"
)

func deviceMeta() models.DeviceMetadata {
	return models.DeviceMetadata{DeviceID: "device-1", Active: true}
}

func TestPushCreateSendsHeadersAndBody(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/entities/card", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get(common.AuthorizationHeaderName))
		assert.Equal(t, "device-1", r.Header.Get(common.DeviceIDHeaderName))
		assert.Equal(t, "true", r.Header.Get(common.DeviceActiveHeaderName))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(PushResponse{Version: 5, ModifiedAt: time.Now().UTC()})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticTokenSource("token-1"), deviceMeta, nil)
	resp, err := c.Push(context.Background(), &models.QueueItem{
		EntityType:  models.EntityCard,
		EntityID:    "c1",
		Op:          models.OpCreate,
		Payload:     models.Fields{models.FieldTitle: "Example"},
		BaseVersion: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), resp.Version)
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, "Example", got.Fields[models.FieldTitle])
}

func TestPushConflictCarriesServerRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(conflictBody{
			Message: "version conflict",
			Record: &Record{
				Type:    models.EntityCard,
				ID:      "c1",
				Fields:  models.Fields{models.FieldTitle: "Server copy"},
				Version: 9,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticTokenSource("token-1"), deviceMeta, nil)
	_, err := c.Push(context.Background(), &models.QueueItem{
		EntityType: models.EntityCard,
		EntityID:   "c1",
		Op:         models.OpUpdate,
		Payload:    models.Fields{models.FieldTitle: "Local copy"},
	})

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, KindConflict, re.Kind)
	require.NotNil(t, re.ServerRecord)
	assert.Equal(t, int64(9), re.ServerRecord.Version)
	assert.Equal(t, "Server copy", re.ServerRecord.Fields[models.FieldTitle])
}

func TestStatusErrorTaxonomy(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
	}{
		{http.StatusInternalServerError, KindRetryable},
		{http.StatusBadGateway, KindRetryable},
		{http.StatusTooManyRequests, KindRetryable},
		{http.StatusBadRequest, KindValidation},
		{http.StatusUnprocessableEntity, KindValidation},
		{http.StatusUnauthorized, KindUnauthorized},
		{http.StatusForbidden, KindUnauthorized},
		{http.StatusNotFound, KindNotFound},
		{http.StatusConflict, KindConflict},
	}
	c := &Client{}
	for _, tt := range tests {
		e := c.statusError(tt.status, nil)
		assert.Equal(t, tt.kind, e.Kind, "status %d", tt.status)
	}
}

func TestNetworkFailureIsRetryable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", StaticTokenSource("t"), deviceMeta, nil)
	err := c.Ping(context.Background())

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.True(t, re.Retryable())
}

func TestPullSendsWatermark(t *testing.T) {
	since := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, since.Format(time.RFC3339Nano), r.URL.Query().Get("since"))
		json.NewEncoder(w).Encode(PullResponse{
			Records:    []Record{{Type: models.EntityCard, ID: "c1", Version: 2}},
			ServerTime: since.Add(time.Hour),
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticTokenSource("t"), deviceMeta, nil)
	resp, err := c.Pull(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, resp.Records, 1)

	e := resp.Records[0].Entity()
	assert.True(t, e.Synced)
	assert.Equal(t, int64(2), e.ServerVersion)
}

func TestCheckedTokenSourceRejectsExpired(t *testing.T) {
	clock := func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	expired := signedToken(t, clock().Add(-time.Hour))
	src := &CheckedTokenSource{Source: StaticTokenSource(expired), Clock: clock}
	_, err := src.Token(context.Background())
	assert.ErrorIs(t, err, common.ErrTokenExpired)

	valid := signedToken(t, clock().Add(time.Hour))
	src = &CheckedTokenSource{Source: StaticTokenSource(valid), Clock: clock}
	got, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, valid, got)
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	s, err := token.SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}
