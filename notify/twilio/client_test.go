package twilio

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{AccountSID: "AC1"}, nil)
	assert.Error(t, err)

	c, err := NewClient(Config{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+1555"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.twilio.com/2010-04-01/Accounts/AC1/Messages.json", c.endpoint)
}

func TestSendMessage(t *testing.T) {
	var (
		gotPath string
		gotForm url.Values
		gotUser string
		gotPass string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		assert.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"sid": "SM123", "status": "queued"}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{AccountSID: "AC42", AuthToken: "secret", FromNumber: "+14155238886", BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	require.NoError(t, c.SendMessage(context.Background(), "+919876543210", "hello"))
	assert.Equal(t, "/2010-04-01/Accounts/AC42/Messages.json", gotPath)
	assert.Equal(t, "AC42", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, "whatsapp:+14155238886", gotForm.Get("From"))
	assert.Equal(t, "whatsapp:+919876543210", gotForm.Get("To"))
	assert.Equal(t, "hello", gotForm.Get("Body"))
}

func TestSendMessageErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "api error body",
			status:   http.StatusBadRequest,
			body:     `{"status": 400, "code": 21211, "message": "Invalid 'To' Phone Number"}`,
			wantCode: 21211,
			wantMsg:  "Invalid 'To' Phone Number",
		},
		{
			name:    "plain text body",
			status:  http.StatusServiceUnavailable,
			body:    "upstream unavailable\n",
			wantMsg: "upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c, err := NewClient(Config{AccountSID: "AC1", AuthToken: "t", FromNumber: "+1", BaseURL: srv.URL}, srv.Client())
			require.NoError(t, err)

			err = c.SendMessage(context.Background(), "+1555", "hi")
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}
