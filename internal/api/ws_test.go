// ABOUTME: End-to-end test for the WebSocket notification channel
// ABOUTME: Dials the upgraded endpoint and verifies push delivery and cleanup

package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OSama2626/chequegate/internal/notify"
	"github.com/OSama2626/chequegate/internal/store"
)

// waitForOnline polls until the agent count reaches want or the deadline passes.
func waitForOnline(t *testing.T, s *testServer, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.registry.AgentsOnline() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d agents online, got %d", want, s.registry.AgentsOnline())
}

func TestServeWS_PushDelivery(t *testing.T) {
	s := setupTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	token := s.token(t, "agent-a1", store.RoleAgent, "bank-a")
	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "/ws?token=" + token

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	waitForOnline(t, s, 1)

	dispatcher := notify.NewDispatcher(s.registry, time.Second, nil)
	dispatcher.Notify("agent-a1", &notify.Event{
		Type:     notify.EventChequeReceived,
		ChequeID: "chq-ws",
		Message:  "A new cheque was deposited and assigned to you",
		Status:   store.StatusPending,
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event notify.Event
	require.NoError(t, conn.ReadJSON(&event))

	assert.Equal(t, notify.EventChequeReceived, event.Type)
	assert.Equal(t, "chq-ws", event.ChequeID)
	assert.Equal(t, store.StatusPending, event.Status)
}

func TestServeWS_RequiresAgentRole(t *testing.T) {
	s := setupTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	token := s.token(t, "benef-1", store.RoleBeneficiary, "bank-a")
	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "/ws?token=" + token

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
}

func TestServeWS_UnregistersOnClose(t *testing.T) {
	s := setupTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	token := s.token(t, "agent-a1", store.RoleAgent, "bank-a")
	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "/ws?token=" + token

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	waitForOnline(t, s, 1)
	require.NoError(t, conn.Close())
	waitForOnline(t, s, 0)
}

func TestServeWS_MultipleSessionsPerAgent(t *testing.T) {
	s := setupTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	token := s.token(t, "agent-a1", store.RoleAgent, "bank-a")
	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1) + "/ws?token=" + token

	c1, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer c1.Close()
	c2, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer c2.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.registry.ConnectionsFor("agent-a1")) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Len(t, s.registry.ConnectionsFor("agent-a1"), 2)

	dispatcher := notify.NewDispatcher(s.registry, time.Second, nil)
	dispatcher.Notify("agent-a1", &notify.Event{
		Type:     notify.EventChequeStatusChanged,
		ChequeID: "chq-multi",
		Status:   store.StatusApproved,
	})

	for i, conn := range []*websocket.Conn{c1, c2} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var event notify.Event
		require.NoError(t, conn.ReadJSON(&event), "session %d", i)
		assert.Equal(t, "chq-multi", event.ChequeID, "session %d", i)
	}
}
