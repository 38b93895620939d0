package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/runreveal/kawa"
	"github.com/runreveal/wtmpd/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return mr, client
}

func event(name, user, line string) kawa.Message[types.Event] {
	return kawa.Message[types.Event]{
		Key: name + line,
		Value: types.Event{
			SourceType: "wtmp",
			EventName:  name,
			EventTime:  time.Unix(1700000000, 0).UTC(),
			Hostname:   "web-1",
			Actor:      types.Actor{Username: user},
			Tags:       map[string]string{"line": line},
			RawLog:     []byte(`{"type":"` + name + `"}`),
		},
	}
}

func TestFlushTracksSessions(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()

	r := New(WithClient(client), WithStream("logins"))
	ctx := context.Background()

	err := r.Flush(ctx, []kawa.Message[types.Event]{
		event("user_process", "alice", "pts/0"),
		event("user_process", "bob", "pts/1"),
	})
	require.NoError(t, err)

	sessions, err := client.HGetAll(ctx, r.SessionKey("web-1")).Result()
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	assert.Equal(t, `{"type":"user_process"}`, sessions["pts/0"])

	n, err := client.XLen(ctx, "logins").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	t.Run("logout clears the line", func(t *testing.T) {
		require.NoError(t, r.Flush(ctx, []kawa.Message[types.Event]{event("dead_process", "", "pts/0")}))
		sessions, err := client.HGetAll(ctx, r.SessionKey("web-1")).Result()
		require.NoError(t, err)
		assert.Equal(t, []string{"pts/1"}, keys(sessions))
	})

	t.Run("reboot clears the host", func(t *testing.T) {
		require.NoError(t, r.Flush(ctx, []kawa.Message[types.Event]{event("boot_time", "reboot", "~")}))
		assert.False(t, mr.Exists(r.SessionKey("web-1")))
	})

	t.Run("stream entries carry the event", func(t *testing.T) {
		entries, err := client.XRange(ctx, "logins", "-", "+").Result()
		require.NoError(t, err)
		require.Len(t, entries, 4)
		assert.Equal(t, "alice", entries[0].Values["user"])
		assert.Equal(t, "web-1", entries[0].Values["host"])
		assert.Equal(t, "boot_time", entries[3].Values["event"])
	})
}

func TestStreamIsTrimmed(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()

	r := New(WithClient(client), WithMaxLen(2))
	ctx := context.Background()
	for _, line := range []string{"tty1", "tty2", "tty3"} {
		require.NoError(t, r.Flush(ctx, []kawa.Message[types.Event]{event("login_process", "LOGIN", line)}))
	}

	n, err := client.XLen(ctx, "wtmpd:events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSendThroughBatcher(t *testing.T) {
	mr, client := setupTestRedis(t)
	defer mr.Close()

	r := New(WithClient(client), WithBatchSize(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	acked := make(chan struct{}, 1)
	require.NoError(t, r.Send(ctx, func() { acked <- struct{}{} }, event("user_process", "alice", "pts/0")))
	select {
	case <-acked:
	case <-time.After(5 * time.Second):
		t.Fatal("message was not acked")
	}
	assert.True(t, mr.Exists(r.SessionKey("web-1")))
}

func TestConfigure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	dst, err := (&Config{URL: "redis://" + mr.Addr(), Stream: "s", MaxLen: 10}).Configure()
	require.NoError(t, err)
	assert.Equal(t, "s", dst.(*Redis).stream)

	_, err = (&Config{URL: "not a url"}).Configure()
	assert.Error(t, err)

	assert.Error(t, New().Run(context.Background()))
}

func keys(m map[string]string) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}
