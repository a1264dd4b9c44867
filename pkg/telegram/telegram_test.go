package telegram

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tgauth "github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/telecord/pkg/auth"
	"github.com/tinyland-inc/telecord/pkg/bus"
	"github.com/tinyland-inc/telecord/pkg/peer"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@promocoes", "promocoes"},
		{"promocoes", "promocoes"},
		{"  promocoes  ", "promocoes"},
		{"t.me/promocoes", "promocoes"},
		{"https://t.me/promocoes", "promocoes"},
		{"http://telegram.me/promocoes/", "promocoes"},
		{"https://t.me/promocoes/1234", "promocoes"},
		{"HTTPS://T.ME/Promo_Br", "Promo_Br"},
		{"https://t.me/@promocoes", "promocoes"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseReference(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseReference_Invalid(t *testing.T) {
	for _, in := range []string{"", "@", "abc", "1channel", "https://t.me/", "has space", "t.me/+AbCdEf"} {
		_, err := ParseReference(in)
		assert.ErrorIs(t, err, ErrInvalidReference, in)
	}
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))

	err := mapError(tgerr.New(401, "AUTH_KEY_UNREGISTERED"))
	assert.ErrorIs(t, err, auth.ErrAuthKey)
	assert.True(t, tgerr.Is(err, "AUTH_KEY_UNREGISTERED"), "platform error stays reachable")

	assert.ErrorIs(t, mapError(tgerr.New(400, "PASSWORD_HASH_INVALID")), auth.ErrPasswordInvalid)
	assert.ErrorIs(t, mapError(fmt.Errorf("check: %w", tgauth.ErrPasswordInvalid)), auth.ErrPasswordInvalid)
	assert.ErrorIs(t, mapError(tgerr.New(400, "USERNAME_NOT_OCCUPIED")), ErrChannelNotFound)
	assert.ErrorIs(t, mapError(tgerr.New(400, "CHANNEL_PRIVATE")), ErrPrivateChannel)

	other := errors.New("boom")
	assert.Same(t, other, mapError(other))
}

func TestPasswordNeeded(t *testing.T) {
	assert.True(t, passwordNeeded(tgerr.New(401, "SESSION_PASSWORD_NEEDED")))
	assert.True(t, passwordNeeded(fmt.Errorf("import: %w", tgauth.ErrPasswordAuthNeeded)))
	assert.False(t, passwordNeeded(tgerr.New(400, "AUTH_TOKEN_EXPIRED")))
}

func TestPickChannel(t *testing.T) {
	resolved := &tg.ContactsResolvedPeer{
		Peer: &tg.PeerChannel{ChannelID: 42},
		Chats: []tg.ChatClass{
			&tg.Channel{ID: 7, Username: "other"},
			&tg.Channel{ID: 42, AccessHash: 99, Username: "promo", Title: "Promo", Left: true},
		},
	}
	ch, err := pickChannel(resolved)
	require.NoError(t, err)
	assert.Equal(t, Channel{ID: 42, AccessHash: 99, Username: "promo", Title: "Promo", Joined: false}, ch)

	_, err = pickChannel(&tg.ContactsResolvedPeer{Peer: &tg.PeerUser{UserID: 1}})
	assert.ErrorIs(t, err, ErrNotChannel)

	_, err = pickChannel(&tg.ContactsResolvedPeer{
		Peer:  &tg.PeerChannel{ChannelID: 5},
		Chats: []tg.ChatClass{&tg.Channel{ID: 5}},
	})
	assert.ErrorIs(t, err, ErrPrivateChannel)
}

func TestDescribeUser(t *testing.T) {
	assert.Equal(t, "Ana Souza (@ana)", describeUser(&tg.User{FirstName: "Ana", LastName: "Souza", Username: "ana"}))
	assert.Equal(t, "@ana", describeUser(&tg.User{Username: "ana"}))
	assert.Equal(t, "Ana", describeUser(&tg.User{FirstName: "Ana"}))
	assert.Equal(t, "user 5", describeUser(&tg.User{ID: 5}))
}

func TestChannelPostsReachSubscribers(t *testing.T) {
	c := New(Config{SessionPath: t.TempDir() + "/session.json"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Serve(ctx)

	got := make(chan bus.InboundMessage, 1)
	sub, err := c.Subscribe([]int64{42}, nil, func(_ context.Context, m bus.InboundMessage) { got <- m })
	require.NoError(t, err)

	err = c.onChannelMessage(ctx, tg.Entities{}, &tg.UpdateNewChannelMessage{Message: &tg.Message{
		ID:      10,
		PeerID:  &tg.PeerChannel{ChannelID: 42},
		Message: "oferta https://x.example",
		Date:    1700000000,
	}})
	require.NoError(t, err)

	select {
	case m := <-got:
		assert.Equal(t, peer.MarkChannel(42), m.ChatID)
		assert.Equal(t, 10, m.MessageID)
		assert.Equal(t, "oferta https://x.example", m.Text)
		assert.Equal(t, int64(1700000000), m.Date.Unix())
	case <-time.After(2 * time.Second):
		t.Fatal("post was not delivered")
	}

	require.NoError(t, c.Unsubscribe(sub))
	assert.Error(t, c.Unsubscribe(sub))
}

func TestOutgoingAndNonChannelPostsIgnored(t *testing.T) {
	c := New(Config{})
	ctx := context.Background()

	require.NoError(t, c.onChannelMessage(ctx, tg.Entities{}, &tg.UpdateNewChannelMessage{
		Message: &tg.Message{Out: true, PeerID: &tg.PeerChannel{ChannelID: 1}},
	}))
	require.NoError(t, c.onChannelMessage(ctx, tg.Entities{}, &tg.UpdateNewChannelMessage{
		Message: &tg.MessageService{ID: 2},
	}))

	_, ok := inbound(&tg.Message{PeerID: &tg.PeerUser{UserID: 3}})
	assert.False(t, ok)
}

func TestWaitForScan_ExpiresWithContext(t *testing.T) {
	c := New(Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := c.WaitForScan(ctx)
	assert.Equal(t, auth.ScanExpired, res)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNotConnected(t *testing.T) {
	c := New(Config{})
	ctx := context.Background()

	assert.False(t, c.IsConnected())
	_, err := c.IsAuthorized(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = c.RequestLoginToken(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, c.Disconnect(ctx))
}
