package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/storyduet/storyduet-go/internal/domain"
	"github.com/storyduet/storyduet-go/internal/session"
	"go.uber.org/zap"
)

// newServerConn dials a throwaway websocket server and hands back the
// server-side connection so hub internals can be exercised directly.
func newServerConn(t *testing.T) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	ch := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ch <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { clientConn.Close() })

	return <-ch
}

func newTestHub() *Hub {
	return &Hub{
		logger:  zap.NewNop(),
		clients: make(map[*client]struct{}),
	}
}

func TestSlowClientDropKeepsCommandPathAlive(t *testing.T) {
	h := newTestHub()
	c := &client{conn: newServerConn(t), send: make(chan []byte, 2)}
	h.clients[c] = struct{}{}

	// Fill the queue so the next broadcast overflows it.
	c.send <- []byte("a")
	c.send <- []byte("b")

	h.broadcast(session.Event{Kind: session.EventNotice, Notice: "one too many"})

	h.mu.Lock()
	_, present := h.clients[c]
	h.mu.Unlock()
	if present {
		t.Fatal("slow client must be removed from the hub")
	}

	// A command can still be in flight on that connection; replying must not
	// hit a closed channel.
	h.reply(c, "error", "still draining")

	// The reader's own teardown closes the channel, exactly once.
	h.drop(c)
	for i := 0; i < 3; i++ {
		if _, ok := <-c.send; !ok {
			return
		}
	}
	t.Fatal("drop must close the send channel")
}

func TestBroadcastSkipsDroppedClient(t *testing.T) {
	h := newTestHub()
	c := &client{conn: newServerConn(t), send: make(chan []byte, 2)}
	h.clients[c] = struct{}{}

	h.drop(c)
	// The channel is closed now; a broadcast must not touch it.
	h.broadcast(session.Event{Kind: session.EventNotice, Notice: "after the fact"})
}

type fakeAnalysisCache struct {
	records map[string]*domain.AnalysisRecord
	calls   int
}

func (f *fakeAnalysisCache) GetCachedAnalysis(_ context.Context, storyID string) (*domain.AnalysisRecord, error) {
	f.calls++
	return f.records[storyID], nil
}

type fakeStoryLoader struct {
	stories map[string]*domain.StoryDraft
	calls   int
}

func (f *fakeStoryLoader) GetByID(_ context.Context, id string) (*domain.StoryDraft, error) {
	f.calls++
	return f.stories[id], nil
}

func receivePayload(t *testing.T, c *client) map[string]json.RawMessage {
	t.Helper()
	select {
	case data := <-c.send:
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(data, &payload); err != nil {
			t.Fatalf("payload must be JSON: %v", err)
		}
		return payload
	default:
		t.Fatal("expected a queued payload")
		return nil
	}
}

func TestFetchStoryPrefersCachedAnalysis(t *testing.T) {
	analyses := &fakeAnalysisCache{records: map[string]*domain.AnalysisRecord{
		"abc": {Title: "The Locked Door", StoryID: "abc"},
	}}
	stories := &fakeStoryLoader{}
	h := newTestHub()
	h.analyses = analyses
	h.stories = stories

	c := &client{send: make(chan []byte, 4)}
	if err := h.sendStory(context.Background(), c, "abc"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	payload := receivePayload(t, c)
	if _, ok := payload["analysis"]; !ok {
		t.Error("cached fetch must carry the analysis record")
	}
	if stories.calls != 0 {
		t.Errorf("cache hit must not touch the store, got %d calls", stories.calls)
	}
}

func TestFetchStoryFallsBackToStore(t *testing.T) {
	analyses := &fakeAnalysisCache{}
	stories := &fakeStoryLoader{stories: map[string]*domain.StoryDraft{
		"abc": {Title: "The Locked Door", CreatorID: "user-1"},
	}}
	h := newTestHub()
	h.analyses = analyses
	h.stories = stories

	c := &client{send: make(chan []byte, 4)}
	if err := h.sendStory(context.Background(), c, "abc"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	payload := receivePayload(t, c)
	if _, ok := payload["story"]; !ok {
		t.Error("store fallback must carry the stored story")
	}
	if analyses.calls != 1 {
		t.Errorf("cache must be consulted first, got %d calls", analyses.calls)
	}
}

func TestFetchStoryUnknownID(t *testing.T) {
	h := newTestHub()
	h.analyses = &fakeAnalysisCache{}
	h.stories = &fakeStoryLoader{}

	c := &client{send: make(chan []byte, 4)}
	if err := h.sendStory(context.Background(), c, "missing"); err == nil {
		t.Error("an unknown story id must be reported")
	}
	if err := h.sendStory(context.Background(), c, ""); err == nil {
		t.Error("an empty story id must be rejected")
	}
}

func TestDispatchRejectsUnknownMode(t *testing.T) {
	h := newTestHub()

	cmd := Command{Action: "start", Genre: "noir", Mode: "coop"}
	if err := h.dispatch(context.Background(), nil, cmd); err == nil {
		t.Error("an unknown mode must be rejected before reaching the machine")
	}
}
