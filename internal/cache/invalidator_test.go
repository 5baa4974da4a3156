package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHTTPInvalidatorPostsUserID(t *testing.T) {
	var gotBody, gotAuth, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	inv := NewHTTPInvalidator(srv.URL+"/", "secret", time.Second)
	require.NoError(t, inv.Invalidate(context.Background(), "u1"))
	require.Equal(t, "u1", gotBody)
	require.Equal(t, "Bearer secret", gotAuth)
	require.Equal(t, "text/plain", gotType)
}

func TestHTTPInvalidatorReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewHTTPInvalidator(srv.URL, "", time.Second).Invalidate(context.Background(), "u1")
	var invErr *InvalidationError
	require.ErrorAs(t, err, &invErr)
	require.Equal(t, http.StatusServiceUnavailable, invErr.Status)
}

func TestMultiInvalidatorTriesEveryMember(t *testing.T) {
	first := &recordingInvalidator{calls: make(chan string, 1)}
	second := &recordingInvalidator{calls: make(chan string, 1)}
	boom := errors.New("boom")

	err := MultiInvalidator{failingInvalidator{err: boom}, first, second}.Invalidate(context.Background(), "u1")
	require.ErrorIs(t, err, boom)
	require.Equal(t, "u1", first.next(t))
	require.Equal(t, "u1", second.next(t))
}

type failingInvalidator struct {
	err error
}

func (f failingInvalidator) Invalidate(context.Context, string) error { return f.err }
