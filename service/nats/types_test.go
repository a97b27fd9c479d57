package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/brojonat/walletscope/service/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "sessions.updated", Subject(EventSessionUpdated))
	assert.Equal(t, "sessions.login", Subject(EventNavigateLogin))
	assert.Equal(t, "sessions.reload", Subject(EventReload))
}

func TestSessionEvent_JSON(t *testing.T) {
	sess := wallet.Session{Address: "0xabc", Balance: "1.0", Transactions: []wallet.TxRecord{}}
	data, err := json.Marshal(NewSessionEvent(EventSessionUpdated, &sess))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "updated", decoded["kind"])
	assert.Equal(t, "0xabc", decoded["session"].(map[string]any)["address"])

	data, err = json.Marshal(NewSessionEvent(EventNavigateLogin, nil))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "session")
}

func TestMockSource_ClosesOnCancel(t *testing.T) {
	src := NewMockSource()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := src.Events(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, src.Subscribers())

	src.Send(NewSessionEvent(EventReload, nil))
	ev := <-ch
	assert.Equal(t, EventReload, ev.Kind)

	cancel()
	require.Eventually(t, func() bool { return src.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-ch
	assert.False(t, ok)
}
