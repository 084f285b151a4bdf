package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/chat2vis/config"
	"github.com/dyike/chat2vis/internal/server"
	"github.com/dyike/chat2vis/internal/service"
	"github.com/dyike/chat2vis/models"
)

type echoHandler struct{}

func (echoHandler) Handle(_ context.Context, text, _ string) (*models.Answer, error) {
	if text == "fail" {
		return nil, errors.New("model unavailable")
	}
	return &models.Answer{Content: "echo: " + text}, nil
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	srv := httptest.NewServer(server.New(cfg, service.NewChatService(echoHandler{}, nil, nil)).Handler())
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second)
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	require.NoError(t, c.Health(ctx))

	id, err := c.NewSession(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	reply, err := c.Ask(ctx, id, "hello")
	require.NoError(t, err)
	assert.Equal(t, id, reply.SessionID)
	assert.Equal(t, "echo: hello", reply.Answer.Content)

	turns, err := c.Messages(ctx, id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "hello", turns[0].Content)

	require.NoError(t, c.Delete(ctx, id))
	_, err = c.Messages(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientSurfacesServerErrors(t *testing.T) {
	c := newTestClient(t)
	_, err := c.Ask(context.Background(), "", "fail")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Contains(t, apiErr.Msg, "model unavailable")

	_, err = c.Ask(context.Background(), "", "  ")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestClientUnreachableServer(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second)
	assert.Error(t, c.Health(context.Background()))
}
