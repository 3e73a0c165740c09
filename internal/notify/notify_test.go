package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShoutrrrNotifier_SendsToEveryURL(t *testing.T) {
	n := NewShoutrrrNotifier([]string{"generic://hooks.example/a", "  ", "telegram://token@telegram?chats=1"})

	var sent []string
	n.send = func(url, message string) error {
		sent = append(sent, url+"|"+message)
		return nil
	}

	err := n.Notify(context.Background(), Notification{Title: "Weather alert", Message: "frost tonight", Type: TypeAlert})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"generic://hooks.example/a|Weather alert\nfrost tonight",
		"telegram://token@telegram?chats=1|Weather alert\nfrost tonight",
	}, sent)
}

func TestShoutrrrNotifier_ErrorHidesCredentials(t *testing.T) {
	n := NewShoutrrrNotifier([]string{"telegram://secret-token@telegram?chats=1"})
	n.send = func(string, string) error { return errors.New("boom") }

	err := n.Notify(context.Background(), Notification{Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.NotContains(t, err.Error(), "secret-token")
}

type failing struct{ calls int }

func (f *failing) Notify(context.Context, Notification) error {
	f.calls++
	return errors.New("down")
}

func TestMulti_ContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	bad := &failing{}
	m := Multi{bad, NewLogNotifier(zerolog.New(&buf))}

	err := m.Notify(context.Background(), Notification{Title: "Weather alert", Message: "strong wind", Type: TypeAlert})
	require.Error(t, err)
	assert.Equal(t, 1, bad.calls)
	assert.Contains(t, buf.String(), "strong wind")
}
