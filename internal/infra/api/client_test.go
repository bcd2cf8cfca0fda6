package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mystery-hunt-client/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL+"/", opts...)
}

func TestGetLevelsSendsBearerToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/game/levels/7", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"id":"level-1","name":"Harbour","isUnlocked":true,"isCompleted":false,
			"questions":[{"id":"1","levelId":"level-1","question":"Where?","type":"text","attempts":0,
			"status":{"completed":false,"pending":false}}]}]`))
	})

	levels, err := client.GetLevels(context.Background(), "tok", "7")
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, "Where?", levels[0].Questions[0].Prompt)
	assert.Equal(t, domain.DefaultMaxAttempts, levels[0].Questions[0].AttemptLimit())
}

func TestGetLevelUsesNumericID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/game/levels/3/", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"level-3","name":"Cliffs","questions":[]}`))
	})

	level, err := client.GetLevel(context.Background(), "tok", "level-3")
	require.NoError(t, err)
	assert.Equal(t, "Cliffs", level.Name)
}

func TestSubmitTextAnswerAsJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/game/question/42/submit/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "lighthouse", body["answer"])
		_, _ = w.Write([]byte(`{"correct":null,"pending":true,"message":"Answer submitted for review."}`))
	})

	res, err := client.SubmitAnswer(context.Background(), "tok", "42", domain.TextAnswer("lighthouse"))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPending, res.Verdict())
}

func TestSubmitFileAnswerAsMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("answer_image")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "door.png", header.Filename)
		assert.Equal(t, "png-bytes", string(data))
		_, _ = w.Write([]byte(`{"correct":true,"present":{"id":"9","type":"image","title":"Map","image":"55"}}`))
	})

	res, err := client.SubmitAnswer(context.Background(), "tok", "42", domain.FileAnswer("door.png", "image/png", []byte("png-bytes")))
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictCorrect, res.Verdict())
	require.NotNil(t, res.Present)
	assert.Equal(t, "55", res.Present.AssetRef())
}

func TestErrorBodyDecoding(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail", http.StatusBadRequest, `{"detail":"You have already answered this question."}`, "You have already answered this question."},
		{"message", http.StatusBadRequest, `{"message":"Invalid pin"}`, "Invalid pin"},
		{"raw text", http.StatusBadGateway, `upstream unavailable`, "upstream unavailable"},
		{"empty", http.StatusNotFound, ``, "Not Found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.SubmitAnswer(context.Background(), "tok", "1", domain.TextAnswer("x"))
			var apiErr *domain.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.want, apiErr.Detail)
		})
	}
}

func TestDuplicateDetected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"You have already answered this question."}`))
	})
	_, err := client.SubmitAnswer(context.Background(), "tok", "1", domain.TextAnswer("x"))
	assert.True(t, domain.IsAlreadyAnswered(err))
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"completedLevels":["level-1"],"totalAttempts":4}`))
	}, WithRetry(3, time.Millisecond))

	p, err := client.GetUserProgress(context.Background(), "tok", "7")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 4, p.TotalAttempts)
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}, WithRetry(3, time.Millisecond))

	_, err := client.GetLevels(context.Background(), "tok", "7")
	assert.True(t, domain.IsAuth(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmitIsNeverRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, WithRetry(3, time.Millisecond))

	_, err := client.SubmitAnswer(context.Background(), "tok", "1", domain.TextAnswer("x"))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchAssetReturnsBlob(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/game/image/ABC/", r.URL.Path)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg"))
	})

	blob, err := client.FetchAsset(context.Background(), "tok", "ABC")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", blob.ContentType)
	assert.Equal(t, "jpeg", string(blob.Data))
}

func TestTokenChecksSkipNetwork(t *testing.T) {
	var calls atomic.Int32
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`[]`))
	}, withClock(func() time.Time { return now }))

	_, err := client.GetLevels(context.Background(), "", "7")
	assert.ErrorIs(t, err, domain.ErrMissingToken)

	expired := signed(t, now.Add(-time.Minute))
	_, err = client.GetLevels(context.Background(), expired, "7")
	var authErr *domain.AuthError
	assert.True(t, errors.As(err, &authErr))
	assert.Equal(t, int32(0), calls.Load())

	valid := signed(t, now.Add(time.Hour))
	_, err = client.GetLevels(context.Background(), valid, "7")
	require.NoError(t, err)
	_, err = client.GetLevels(context.Background(), "opaque-session-token", "7")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "player-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestNumericLevelID(t *testing.T) {
	assert.Equal(t, "3", numericLevelID("level-3"))
	assert.Equal(t, "12", numericLevelID("12"))
}
