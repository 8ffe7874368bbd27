package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsPair upgrades one connection server-side and dials it client-side,
// returning the wrapped server end and the raw client end.
func wsPair(t *testing.T) (*ClientConn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *ClientConn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- NewClientConn(ws)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case cc := <-connCh:
		t.Cleanup(func() { cc.Close() })
		return cc, client
	case <-time.After(5 * time.Second):
		t.Fatal("server never upgraded")
		return nil, nil
	}
}

// Room broadcasts run on other connections' goroutines while the
// connection's own goroutine sends acks. Both paths must reach the
// socket through the same lock or gorilla/websocket panics.
func TestClientConnSerializesConcurrentWrites(t *testing.T) {
	cc, client := wsPair(t)

	hub := NewHub()
	subID := uuid.New()
	hub.Join(subID, cc)

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if i%2 == 0 {
					hub.Broadcast(subID, PongResponse{Event: EventPong})
				} else {
					cc.Send(PongResponse{Event: EventPong})
				}
			}
		}(i)
	}

	want := writers * perWriter
	for got := 0; got < want; got++ {
		client.SetReadDeadline(time.Now().Add(5 * time.Second))
		var resp PongResponse
		if err := client.ReadJSON(&resp); err != nil {
			t.Fatalf("read %d/%d: %v", got, want, err)
		}
		if resp.Event != EventPong {
			t.Fatalf("event = %q, want %q", resp.Event, EventPong)
		}
	}
	wg.Wait()

	if got := hub.RoomSize(subID); got != 1 {
		t.Fatalf("room size = %d, want 1 (no evictions expected)", got)
	}
}

func TestClientConnSendErrorDeliversTypedError(t *testing.T) {
	cc, client := wsPair(t)

	if err := cc.SendError("join the submission room first"); err != nil {
		t.Fatalf("SendError: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp ErrorResponse
	if err := client.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Event != EventError || resp.Error != "join the submission room first" {
		t.Fatalf("error frame = %#v", resp)
	}
}
