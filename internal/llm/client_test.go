package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigured(t *testing.T) {
	require.False(t, New("", "", "").Configured())
	require.True(t, New("http://localhost:1234", "", "m").Configured())
}

func TestComplete_unconfiguredReturnsError(t *testing.T) {
	c := New("", "", "")
	_, err := c.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
}

func TestComplete_sendsAuthHeaderAndParsesResponse(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{Choices: []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: "the reply"}}}})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-key", "test-model")
	out, err := c.Complete(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	require.Equal(t, "the reply", out)
	require.Equal(t, "Bearer secret-key", gotAuth)
	require.Equal(t, "test-model", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
}

func TestComplete_nonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL, "", "m")
	_, err := c.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
}

func TestComplete_emptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer srv.Close()

	c := New(srv.URL, "", "m")
	_, err := c.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
}
