package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"binwatch/internal/config"
	"binwatch/internal/models"
)

func testConfig(baseURL string) config.TwilioConfig {
	return config.TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "+15550001",
		To:         "+15550002",
		BaseURL:    baseURL,
	}
}

func TestTwilio_NotConfigured(t *testing.T) {
	n := NewTwilio(config.TwilioConfig{AccountSID: "AC123"})

	assert.False(t, n.Configured())
	res := n.Send(context.Background(), models.BinYellow, 90)
	assert.Equal(t, Result{Error: ReasonNotConfigured}, res)
}

func TestTwilio_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "Alert: Yellow Bin is 85% full. Please empty it soon.", r.PostForm.Get("Body"))
		assert.Equal(t, "+15550001", r.PostForm.Get("From"))
		assert.Equal(t, "+15550002", r.PostForm.Get("To"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM42","status":"queued"}`))
	}))
	defer server.Close()

	res := NewTwilio(testConfig(server.URL)).Send(context.Background(), models.BinYellow, 85)
	assert.Equal(t, Result{Sent: true, SID: "SM42"}, res)
}

func TestTwilio_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}))
	defer server.Close()

	res := NewTwilio(testConfig(server.URL)).Send(context.Background(), models.BinGreen, 95)
	assert.False(t, res.Sent)
	assert.Contains(t, res.Error, "Invalid 'To' Phone Number")
}

func TestTwilio_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	res := NewTwilio(testConfig(url)).Send(context.Background(), models.BinBlue, 99)
	assert.False(t, res.Sent)
	assert.NotEmpty(t, res.Error)
}
