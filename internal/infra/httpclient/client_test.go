package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uniedit/payflow/internal/infra/config"
)

func TestNew_UserAgent(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := New(config.HTTPClientConfig{
		ResponseTimeout: time.Second,
		UserAgent:       "payflow/test",
	})

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "Stripe/v1 GoBindings")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"payflow/test", "Stripe/v1 GoBindings"}, got)
	assert.Equal(t, "Stripe/v1 GoBindings", req.Header.Get("User-Agent"))
}

func TestNew_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := New(config.HTTPClientConfig{ResponseTimeout: 20 * time.Millisecond})
	_, err := client.Get(srv.URL)
	assert.Error(t, err)
}
