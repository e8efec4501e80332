package httpclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/researchportal/datashare-coordinator/internal/httpclient"
)

// newTestServer creates a new test server with keep-alives disabled.
// This prevents flaky tests when running in parallel, as closing a server
// with keep-alives enabled can affect other tests sharing the HTTP transport.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestDefaultClient_Get(t *testing.T) {
	t.Parallel()

	var gotPath, gotQuery, gotAccept string
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"resourceType":"Bundle"}`))
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient(server.URL)

	params := url.Values{}
	params.Set("status", "in-progress")

	body, err := client.Get(context.Background(), "/Task", params)
	require.NoError(t, err)

	assert.Equal(t, []byte(`{"resourceType":"Bundle"}`), body)
	assert.Equal(t, "/Task", gotPath)
	assert.Equal(t, "status=in-progress", gotQuery)
	assert.Equal(t, "application/fhir+json", gotAccept)
}

func TestDefaultClient_Get_AbsoluteURLVerbatim(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Task", r.URL.Path)
		assert.Equal(t, "page=2", r.URL.RawQuery)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	// Base URL points elsewhere; the absolute target must win.
	client := httpclient.NewDefaultClient("http://other.invalid")

	_, err := client.Get(context.Background(), server.URL+"/Task?page=2", nil)
	require.NoError(t, err)
}

func TestDefaultClient_Post(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/fhir+json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"T1"}`))
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient(server.URL)

	body, err := client.Post(context.Background(), "/Task", []byte(`{"resourceType":"Task"}`))
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"id":"T1"}`), body)
}

func TestDefaultClient_Put(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/QuestionnaireResponse/qr-1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient(server.URL)

	_, err := client.Put(context.Background(), "/QuestionnaireResponse/qr-1", []byte(`{}`))
	require.NoError(t, err)
}

func TestDefaultClient_BearerToken(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret-token"})
	client := httpclient.NewDefaultClient(server.URL, httpclient.WithTokenSource(ts))

	_, err := client.Get(context.Background(), "/Task", nil)
	require.NoError(t, err)
}

func TestDefaultClient_ErrorStatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
	}{
		{name: "bad request", statusCode: http.StatusBadRequest},
		{name: "unauthorized", statusCode: http.StatusUnauthorized},
		{name: "not found", statusCode: http.StatusNotFound},
		{name: "internal server error", statusCode: http.StatusInternalServerError},
		{name: "bad gateway", statusCode: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte("failure detail"))
			}))
			defer server.Close()

			client := httpclient.NewDefaultClient(server.URL)

			_, err := client.Get(context.Background(), "/Task", nil)
			require.Error(t, err)

			httpErr, ok := httpclient.AsHTTPError(err)
			require.True(t, ok, "expected an *HTTPError, got %T", err)
			assert.Equal(t, tt.statusCode, httpErr.StatusCode)
			assert.Contains(t, httpErr.Message, "failure detail")
		})
	}
}

func TestDefaultClient_ContextCancellation(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient(server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, "/Task", nil)
	require.Error(t, err)
}

func TestDefaultClient_BaseURL(t *testing.T) {
	t.Parallel()

	client := httpclient.NewDefaultClient("https://fhir.example.org/")
	assert.Equal(t, "https://fhir.example.org", client.BaseURL())
}
