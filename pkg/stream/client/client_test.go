package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hugohenrick/companychat/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatID = "7d0f5e0a-3c55-4d8e-9b7e-0f1f2a3b4c5d"

// fakeServer expõe um log fixo de eventos pelos endpoints de stream
type fakeServer struct {
	srv    *httptest.Server
	events []stream.Event
	// cut encerra a conexão depois de N eventos; zero envia tudo
	cut        int
	posts      atomic.Int32
	gets       atomic.Int32
	lastID     atomic.Value
	lastStream atomic.Value
	lastBody   atomic.Value

	mu        sync.Mutex
	active    bool
	streamID  string
	postReply func(w http.ResponseWriter)
}

// setStreamID troca o stream servido, como quando uma nova resposta
// substitui a anterior
func (f *fakeServer) setStreamID(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamID = id
}

func (f *fakeServer) currentStreamID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamID
}

func (f *fakeServer) setActive(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = v
}

func (f *fakeServer) isActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeServer) setReply(fn func(w http.ResponseWriter)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postReply = fn
}

func (f *fakeServer) reply() func(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.postReply
}

func newFakeServer(t *testing.T, events ...stream.Event) *fakeServer {
	t.Helper()
	for i := range events {
		events[i].Seq = int64(i + 1)
	}
	f := &fakeServer{events: events, active: true, streamID: "s-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chats/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		f.posts.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastBody.Store(body)
		if reply := f.reply(); reply != nil {
			reply(w)
			return
		}
		f.write(w, r, 0)
	})
	mux.HandleFunc("GET /api/v1/chats/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		f.gets.Add(1)
		if !f.isActive() {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		f.lastID.Store(r.Header.Get("Last-Event-ID"))
		f.lastStream.Store(r.Header.Get("X-Stream-Id"))
		var after int
		if v := r.Header.Get("Last-Event-ID"); v != "" {
			_ = json.Unmarshal([]byte(v), &after)
		}
		f.write(w, r, after)
	})
	mux.HandleFunc("GET /api/v1/chats/{id}/stream/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(StreamStatus{Active: f.isActive(), Status: "done", LastEventID: int64(len(f.events))})
	})
	mux.HandleFunc("GET /api/v1/chats/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Message{{ID: "1", Role: "user", Content: "oi"}})
	})
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "senha-segura" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":401,"message":"Credenciais inválidas"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok"}`))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) write(w http.ResponseWriter, r *http.Request, after int) {
	stream.SetHeaders(w.Header())
	w.Header().Set("X-Stream-Id", f.currentStreamID())
	w.WriteHeader(http.StatusOK)
	enc := stream.NewEncoder(w, true)
	for i, ev := range f.events[after:] {
		if f.cut > 0 && after == 0 && i == f.cut {
			return
		}
		if err := enc.Encode(ev); err != nil {
			return
		}
	}
}

func (f *fakeServer) consumer(onUpdate func(Snapshot)) *Consumer {
	return New(Options{BaseURL: f.srv.URL + "/api/v1/", Token: "tok", OnUpdate: onUpdate})
}

func TestSend_AccumulatesUntilDone(t *testing.T) {
	f := newFakeServer(t,
		stream.Content("Olá"),
		stream.Content(", mundo"),
		stream.Metadata("Saudação"),
		stream.Done(),
	)

	var updates []Snapshot
	c := f.consumer(func(s Snapshot) { updates = append(updates, s) })

	snap, err := c.Send(context.Background(), chatID, "empresa", "oi")
	require.NoError(t, err)
	assert.Equal(t, StateDone, snap.State)
	assert.Equal(t, "Olá, mundo", snap.Content)
	assert.Equal(t, "Saudação", snap.Title)
	assert.Equal(t, int64(4), snap.LastEventID)
	assert.Equal(t, "s-1", snap.StreamID)

	body := f.lastBody.Load().(map[string]string)
	assert.Equal(t, "oi", body["message"])
	assert.Equal(t, "empresa", body["companyId"])

	// o conteúdo só cresce entre atualizações
	var contents []string
	for _, u := range updates {
		contents = append(contents, u.Content)
	}
	assert.Contains(t, contents, "Olá")
	for i := 1; i < len(updates); i++ {
		assert.True(t, len(updates[i].Content) >= len(updates[i-1].Content))
	}
	assert.Equal(t, StateDone, updates[len(updates)-1].State)
}

func TestSend_InBandErrorKeepsPartialContent(t *testing.T) {
	f := newFakeServer(t,
		stream.Content("a"),
		stream.Content("b"),
		stream.Content("c"),
		stream.Failure(stream.CodeGenerationFailed, "falhou"),
	)
	c := f.consumer(nil)

	snap, err := c.Send(context.Background(), chatID, "", "oi")
	var serr *StreamError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, stream.CodeGenerationFailed, serr.Code)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "abc", snap.Content)

	// Retry reenvia a mesma mensagem
	_, _ = c.Retry(context.Background())
	assert.Equal(t, int32(2), f.posts.Load())
}

func TestSend_ConnectionLostThenResume(t *testing.T) {
	f := newFakeServer(t,
		stream.Content("um"),
		stream.Content(" dois"),
		stream.Content(" três"),
		stream.Done(),
	)
	f.cut = 2
	c := f.consumer(nil)

	snap, err := c.Send(context.Background(), chatID, "", "oi")
	require.ErrorIs(t, err, ErrConnectionLost)
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "um dois", snap.Content)
	assert.Equal(t, int64(2), snap.LastEventID)

	snap, err = c.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", f.lastID.Load())
	assert.Equal(t, StateDone, snap.State)
	assert.Equal(t, "um dois três", snap.Content)
}

func TestResume_RefusesReplacedStream(t *testing.T) {
	f := newFakeServer(t,
		stream.Content("A1"),
		stream.Content(" A2"),
		stream.Content(" B3"),
		stream.Done(),
	)
	f.cut = 2
	c := f.consumer(nil)

	snap, err := c.Send(context.Background(), chatID, "", "oi")
	require.ErrorIs(t, err, ErrConnectionLost)
	assert.Equal(t, "s-1", snap.StreamID)

	// outra resposta ocupou o chat antes da reconexão
	f.setStreamID("s-2")

	snap, err = c.Resume(context.Background())
	assert.ErrorIs(t, err, ErrNoStream)
	assert.Equal(t, "s-1", f.lastStream.Load())
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, "A1 A2", snap.Content)
	assert.Equal(t, "s-1", snap.StreamID)
	assert.Equal(t, int64(2), snap.LastEventID)
}

func TestAttach_FromStartIsNotPinned(t *testing.T) {
	f := newFakeServer(t, stream.Content("novo"), stream.Done())
	f.setStreamID("s-9")
	c := f.consumer(nil)

	snap, err := c.Attach(context.Background(), chatID, 0)
	require.NoError(t, err)
	assert.Equal(t, "", f.lastStream.Load())
	assert.Equal(t, "s-9", snap.StreamID)
	assert.Equal(t, "novo", snap.Content)
}

func TestSend_SequenceGap(t *testing.T) {
	f := newFakeServer(t)
	f.setReply(func(w http.ResponseWriter) {
		stream.SetHeaders(w.Header())
		enc := stream.NewEncoder(w, true)
		_ = enc.Encode(stream.Event{Seq: 1, Type: stream.TypeContent, Content: "a"})
		_ = enc.Encode(stream.Event{Seq: 3, Type: stream.TypeContent, Content: "c"})
		_ = enc.Encode(stream.Event{Seq: 4, Type: stream.TypeDone})
	})
	c := f.consumer(nil)

	snap, err := c.Send(context.Background(), chatID, "", "oi")
	assert.ErrorIs(t, err, ErrSequenceGap)
	assert.Equal(t, "a", snap.Content)
	assert.Equal(t, StateFailed, snap.State)
}

func TestSend_WithoutEventIDs(t *testing.T) {
	f := newFakeServer(t)
	f.setReply(func(w http.ResponseWriter) {
		stream.SetHeaders(w.Header())
		_, _ = w.Write([]byte("data: {\"content\":\"sem\"}\n\ndata: {\"content\":\" ids\"}\n\ndata: [DONE]\n\n"))
	})
	c := f.consumer(nil)

	snap, err := c.Send(context.Background(), chatID, "", "oi")
	require.NoError(t, err)
	assert.Equal(t, "sem ids", snap.Content)
	assert.Zero(t, snap.LastEventID)
}

func TestSend_HTTPErrors(t *testing.T) {
	f := newFakeServer(t)
	c := f.consumer(nil)

	f.setReply(func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":403,"message":"Acesso negado","details":"empresa difere"}`))
	})
	snap, err := c.Send(context.Background(), chatID, "outra", "oi")
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusForbidden, herr.StatusCode)
	assert.Equal(t, "Acesso negado", herr.Message)
	assert.Equal(t, StateFailed, snap.State)

	f.setReply(func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("erro interno do servidor"))
	})
	_, err = c.Send(context.Background(), chatID, "", "oi")
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusInternalServerError, herr.StatusCode)
	assert.Equal(t, "erro interno do servidor", herr.Message)
}

func TestAttach_NoStream(t *testing.T) {
	f := newFakeServer(t, stream.Content("x"), stream.Done())
	f.setActive(false)
	c := f.consumer(nil)

	snap, err := c.Attach(context.Background(), chatID, 0)
	assert.ErrorIs(t, err, ErrNoStream)
	assert.Equal(t, StateIdle, snap.State)

	msgs, err := c.Messages(context.Background(), chatID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "oi", msgs[0].Content)
}

func TestMount(t *testing.T) {
	f := newFakeServer(t, stream.Content("retomado"), stream.Done())
	c := f.consumer(nil)

	connected, _, err := c.Mount(context.Background(), chatID, true, true)
	require.NoError(t, err)
	assert.False(t, connected)
	assert.Zero(t, f.gets.Load())

	connected, _, err = c.Mount(context.Background(), chatID, false, false)
	require.NoError(t, err)
	assert.False(t, connected)
	assert.Zero(t, f.gets.Load())

	connected, snap, err := c.Mount(context.Background(), chatID, true, false)
	require.NoError(t, err)
	assert.True(t, connected)
	assert.Equal(t, "retomado", snap.Content)
	assert.Equal(t, StateDone, snap.State)
	assert.Equal(t, int32(0), f.posts.Load())

	f.setActive(false)
	connected, _, err = c.Mount(context.Background(), chatID, true, false)
	require.NoError(t, err)
	assert.False(t, connected)
}

func TestClose_StopsReadingWithoutError(t *testing.T) {
	f := newFakeServer(t)
	served := make(chan struct{})
	var once sync.Once
	f.setReply(func(w http.ResponseWriter) {
		stream.SetHeaders(w.Header())
		enc := stream.NewEncoder(w, true)
		_ = enc.Encode(stream.Event{Seq: 1, Type: stream.TypeContent, Content: "parcial"})
		once.Do(func() { close(served) })
		time.Sleep(2 * time.Second)
	})

	c := f.consumer(nil)
	go func() {
		<-served
		time.Sleep(50 * time.Millisecond)
		c.Close()
	}()

	start := time.Now()
	snap, err := c.Send(context.Background(), chatID, "", "oi")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "parcial", snap.Content)
	assert.Equal(t, StateIdle, snap.State)
}

func TestRetry_NothingSent(t *testing.T) {
	f := newFakeServer(t)
	_, err := f.consumer(nil).Retry(context.Background())
	assert.True(t, errors.Is(err, ErrNothingToRetry))
}

func TestLogin(t *testing.T) {
	f := newFakeServer(t)

	tok, err := Login(context.Background(), nil, f.srv.URL+"/api/v1", "ana@acme.test", "senha-segura", "")
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	_, err = Login(context.Background(), nil, f.srv.URL+"/api/v1", "ana@acme.test", "errada", "")
	var herr *HTTPError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, http.StatusUnauthorized, herr.StatusCode)
}
