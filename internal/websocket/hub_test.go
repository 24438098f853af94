package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gator-overflow/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub()
	go hub.Run(ctx)
	return hub
}

func dialRoom(t *testing.T, hub *Hub, questionID string) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, r.URL.Query().Get("qid"), nil)
		hub.Join(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?qid=" + questionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Watchers(questionID) > 0 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestHubDeliversToRoom(t *testing.T) {
	hub := startHub(t)
	watcher := dialRoom(t, hub, "q1")

	hub.Publish(models.Activity{Kind: models.ActivityVote, QuestionID: "q1", NetScore: 3})

	watcher.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := watcher.ReadMessage()
	require.NoError(t, err)

	var got models.Activity
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, models.ActivityVote, got.Kind)
	assert.Equal(t, 3, got.NetScore)
}

func TestHubKeepsRoomsApart(t *testing.T) {
	hub := startHub(t)
	other := dialRoom(t, hub, "q2")
	dialRoom(t, hub, "q1")
	assert.Equal(t, 2, hub.ClientCount())

	hub.Publish(models.Activity{Kind: models.ActivityAnswer, QuestionID: "q1"})

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub := startHub(t)
	conn := dialRoom(t, hub, "q1")

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Watchers("q1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

type fakeRelay struct {
	published []models.Activity
	err       error
}

func (f *fakeRelay) Publish(ctx context.Context, a models.Activity) error {
	f.published = append(f.published, a)
	return f.err
}

func TestHubPublishesThroughRelay(t *testing.T) {
	hub := NewHub()
	relay := &fakeRelay{}
	hub.UseRelay(relay)

	hub.Publish(models.Activity{Kind: models.ActivityEdit, QuestionID: "q1"})
	require.Len(t, relay.published, 1)
	assert.Len(t, hub.Deliver, 0)

	relay.err = errors.New("redis down")
	hub.Publish(models.Activity{Kind: models.ActivityEdit, QuestionID: "q1"})
	assert.Len(t, hub.Deliver, 1)
}

// fakeSubscriber refuses the subscription with subscribeErr, or confirms it
// and listens until ctx is cancelled.
type fakeSubscriber struct {
	fakeRelay
	subscribeErr error
	ready        chan struct{}
}

func (f *fakeSubscriber) Listen(ctx context.Context, deliver func(models.Activity), ready func()) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	ready()
	close(f.ready)
	<-ctx.Done()
	return nil
}

func TestRunRelayKeepsLocalDeliveryWhenSubscribeFails(t *testing.T) {
	hub := NewHub()
	relay := &fakeSubscriber{subscribeErr: errors.New("subscribe refused")}

	require.Error(t, hub.RunRelay(context.Background(), relay))

	hub.Publish(models.Activity{Kind: models.ActivityEdit, QuestionID: "q1"})
	assert.Empty(t, relay.published)
	assert.Len(t, hub.Deliver, 1)
}

func TestRunRelayRoutesOnlyWhileSubscribed(t *testing.T) {
	hub := NewHub()
	relay := &fakeSubscriber{ready: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- hub.RunRelay(ctx, relay) }()

	select {
	case <-relay.ready:
	case <-time.After(time.Second):
		t.Fatal("subscription was never confirmed")
	}

	hub.Publish(models.Activity{Kind: models.ActivityEdit, QuestionID: "q1"})
	assert.Len(t, relay.published, 1)
	assert.Len(t, hub.Deliver, 0)

	cancel()
	require.NoError(t, <-done)

	hub.Publish(models.Activity{Kind: models.ActivityEdit, QuestionID: "q1"})
	assert.Len(t, relay.published, 1)
	assert.Len(t, hub.Deliver, 1)
}
