package beats

import (
	"context"
	"net"
	"testing"
	"time"

	server "github.com/elastic/go-lumber/server/v2"
	"github.com/runreveal/kawa"
	"github.com/runreveal/wtmpd/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlushSendsEvents(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv, err := server.NewWithListener(l)
	require.NoError(t, err)
	defer srv.Close()

	b := New(WithEndpoint(l.Addr().String()))
	defer b.Shutdown()

	msgs := []kawa.Message[types.Event]{{
		Value: types.Event{
			SourceType: "wtmp",
			EventName:  "user_process",
			EventTime:  time.Unix(1700000000, 0).UTC(),
			Hostname:   "web-1",
			Actor:      types.Actor{Username: "alice"},
			Tags:       map[string]string{"line": "pts/0"},
			RawLog:     []byte(`{"type":"user_process"}`),
		},
	}}

	errC := make(chan error, 1)
	go func() { errC <- b.Flush(context.Background(), msgs) }()

	select {
	case batch := <-srv.ReceiveChan():
		require.Len(t, batch.Events, 1)
		ev, ok := batch.Events[0].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, `{"type":"user_process"}`, ev["message"])
		assert.Equal(t, map[string]interface{}{"name": "alice"}, ev["user"])
		assert.Equal(t, "user_process", ev["event"].(map[string]interface{})["action"])
		batch.ACK()
	case <-time.After(5 * time.Second):
		t.Fatal("no batch received")
	}
	assert.NoError(t, <-errC)
}

func TestFlushDialError(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	b := New(WithEndpoint(addr), WithTimeout(time.Second))
	err = b.Flush(context.Background(), []kawa.Message[types.Event]{{}})
	assert.Error(t, err)
}

func TestRunRequiresEndpoint(t *testing.T) {
	dst, err := (&Config{}).Configure()
	require.NoError(t, err)
	assert.Error(t, dst.(*Beats).Run(context.Background()))
}
