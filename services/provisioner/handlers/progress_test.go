// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for progress polling and the progress WebSocket.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinterlante1206/DemoForge/services/provisioner/registry"
)

func TestHandleProgress_ReturnsState(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	router := newTestRouter(deps)

	sessionID := deps.Registry.Begin(registry.KindGenerate, nil)
	deps.Registry.Update(sessionID, "Creating accounts...", 42)

	w := performRequest(router, "GET", "/v1/progress/"+sessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, sessionID, body["session_id"])
	assert.Equal(t, float64(42), body["progress"])
	assert.Equal(t, "Creating accounts...", body["status"])
	assert.Equal(t, false, body["complete"])
}

func TestHandleProgress_UnknownSession(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	router := newTestRouter(deps)

	w := performRequest(router, "GET", "/v1/progress/no-such-session", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "session not found", decodeBody(t, w)["error"])
}

func TestHandleProgressWS_StreamsUntilTerminal(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	router := newTestRouter(deps)
	server := httptest.NewServer(router)
	defer server.Close()

	sessionID := deps.Registry.Begin(registry.KindGenerate, nil)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/progress/" + sessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	// The current snapshot arrives immediately on connect.
	var state registry.RunState
	require.NoError(t, conn.ReadJSON(&state))
	assert.Equal(t, sessionID, state.SessionID)
	assert.Equal(t, 0, state.Progress)

	deps.Registry.Update(sessionID, "Creating tickets...", 80)
	deps.Registry.Finish(sessionID, "Content generation completed successfully")

	for !state.Complete {
		require.NoError(t, conn.ReadJSON(&state))
	}
	assert.Equal(t, 100, state.Progress)

	// After the terminal snapshot the server closes the socket.
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure),
		"expected a normal closure, got %v", err)
}

func TestHandleProgressWS_UnknownSession(t *testing.T) {
	deps, _, _ := newTestDeps(t)
	router := newTestRouter(deps)
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/progress/ghost/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err, "upgrade should be refused")
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
