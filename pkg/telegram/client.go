// Package telegram is the MTProto user-session client: it owns the session
// file, serves the QR login handshake and publishes channel posts to the bus.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	td "github.com/gotd/td/telegram"
	"github.com/gotd/td/session"
	"github.com/gotd/td/tg"

	"github.com/tinyland-inc/telecord/pkg/auth"
	"github.com/tinyland-inc/telecord/pkg/bus"
	"github.com/tinyland-inc/telecord/pkg/logger"
	"github.com/tinyland-inc/telecord/pkg/peer"
)

type Config struct {
	APIID       int
	APIHash     string
	SessionPath string
}

// Client implements auth.Client and forwarder.Source over gotd.
type Client struct {
	cfg Config

	dispatcher tg.UpdateDispatcher
	scanned    chan struct{}
	bus        *bus.MessageBus
	subs       *bus.Dispatcher

	mu        sync.Mutex
	client    *td.Client
	cancel    context.CancelFunc
	done      chan error
	connected atomic.Bool
}

func New(cfg Config) *Client {
	mb := bus.NewMessageBus()
	c := &Client{
		cfg:        cfg,
		dispatcher: tg.NewUpdateDispatcher(),
		scanned:    make(chan struct{}, 1),
		bus:        mb,
		subs:       bus.NewDispatcher(mb),
	}
	c.dispatcher.OnLoginToken(c.onLoginToken)
	c.dispatcher.OnNewChannelMessage(c.onChannelMessage)
	return c
}

// Serve delivers published posts to subscriptions until ctx ends.
func (c *Client) Serve(ctx context.Context) {
	c.subs.Run(ctx)
}

// Close stops Serve and disconnects.
func (c *Client) Close(ctx context.Context) error {
	c.bus.Close()
	return c.Disconnect(ctx)
}

func (c *Client) Subscribe(chatIDs []int64, filter bus.Filter, handler bus.Handler) (*bus.Subscription, error) {
	return c.subs.Subscribe(chatIDs, filter, handler), nil
}

func (c *Client) Unsubscribe(sub *bus.Subscription) error {
	if !c.subs.Unsubscribe(sub) {
		return errors.New("subscription not registered")
	}
	return nil
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.connected.Load() {
		return nil
	}

	if dir := filepath.Dir(c.cfg.SessionPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}

	client := td.NewClient(c.cfg.APIID, c.cfg.APIHash, td.Options{
		SessionStorage: &session.FileStorage{Path: c.cfg.SessionPath},
		UpdateHandler:  c.dispatcher,
	})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		err := client.Run(runCtx, func(ctx context.Context) error {
			close(ready)
			<-ctx.Done()
			return ctx.Err()
		})
		c.connected.Store(false)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.WarnCF("telegram", "Client stopped", map[string]any{"error": err.Error()})
		}
		done <- err
	}()

	select {
	case <-ready:
	case err := <-done:
		cancel()
		return mapError(fmt.Errorf("connect: %w", err))
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}

	c.client = client
	c.cancel = cancel
	c.done = done
	c.connected.Store(true)
	logger.InfoC("telegram", "Connected")
	return nil
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.client, c.cancel, c.done = nil, nil, nil
	c.mu.Unlock()

	c.connected.Store(false)
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return mapError(err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	logger.InfoC("telegram", "Disconnected")
	return nil
}

func (c *Client) api() (*td.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

func (c *Client) IsAuthorized(ctx context.Context) (bool, error) {
	client, err := c.api()
	if err != nil {
		return false, err
	}
	st, err := client.Auth().Status(ctx)
	if err != nil {
		return false, mapError(err)
	}
	return st.Authorized, nil
}

func (c *Client) RequestLoginToken(ctx context.Context) (auth.LoginToken, error) {
	client, err := c.api()
	if err != nil {
		return auth.LoginToken{}, err
	}

	// a scan signal left over from an earlier token is meaningless now
	select {
	case <-c.scanned:
	default:
	}

	token, err := client.QR().Export(ctx)
	if err != nil {
		return auth.LoginToken{}, mapError(err)
	}
	return auth.LoginToken{URL: token.URL(), Expires: token.Expires()}, nil
}

func (c *Client) WaitForScan(ctx context.Context) (auth.ScanResult, error) {
	select {
	case <-c.scanned:
	case <-ctx.Done():
		return auth.ScanExpired, ctx.Err()
	}

	client, err := c.api()
	if err != nil {
		return auth.ScanExpired, err
	}
	if _, err := client.QR().Import(ctx); err != nil {
		if passwordNeeded(err) {
			return auth.ScanPasswordNeeded, nil
		}
		return auth.ScanExpired, mapError(err)
	}
	return auth.ScanAuthorized, nil
}

func (c *Client) SignIn(ctx context.Context, password string) error {
	client, err := c.api()
	if err != nil {
		return err
	}
	if _, err := client.Auth().Password(ctx, password); err != nil {
		return mapError(err)
	}
	return nil
}

// LogOut terminates the session on the server and removes the local session
// file so the next login starts from a fresh key.
func (c *Client) LogOut(ctx context.Context) error {
	client, err := c.api()
	if err != nil {
		return err
	}
	if _, err := client.API().AuthLogOut(ctx); err != nil {
		mapped := mapError(err)
		if !errors.Is(mapped, auth.ErrAuthKey) {
			return mapped
		}
	}

	if err := c.Disconnect(ctx); err != nil {
		logger.WarnCF("telegram", "Disconnect after logout failed", map[string]any{"error": err.Error()})
	}
	if err := os.Remove(c.cfg.SessionPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// DescribeAccount names the logged-in user.
func (c *Client) DescribeAccount(ctx context.Context) (string, error) {
	client, err := c.api()
	if err != nil {
		return "", err
	}
	self, err := client.Self(ctx)
	if err != nil {
		return "", mapError(err)
	}
	return describeUser(self), nil
}

func describeUser(u *tg.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	switch {
	case u.Username != "" && name != "":
		return fmt.Sprintf("%s (@%s)", name, u.Username)
	case u.Username != "":
		return "@" + u.Username
	case name != "":
		return name
	default:
		return fmt.Sprintf("user %d", u.ID)
	}
}

func (c *Client) onLoginToken(_ context.Context, _ tg.Entities, _ *tg.UpdateLoginToken) error {
	select {
	case c.scanned <- struct{}{}:
	default:
	}
	return nil
}

func (c *Client) onChannelMessage(ctx context.Context, _ tg.Entities, u *tg.UpdateNewChannelMessage) error {
	msg, ok := u.Message.(*tg.Message)
	if !ok || msg.Out {
		return nil
	}
	in, ok := inbound(msg)
	if !ok {
		return nil
	}
	if err := c.bus.PublishInbound(ctx, in); err != nil && !errors.Is(err, bus.ErrBusClosed) {
		return err
	}
	return nil
}

func inbound(msg *tg.Message) (bus.InboundMessage, bool) {
	ch, ok := msg.PeerID.(*tg.PeerChannel)
	if !ok {
		return bus.InboundMessage{}, false
	}
	return bus.InboundMessage{
		ChatID:    peer.MarkChannel(ch.ChannelID),
		MessageID: msg.ID,
		Text:      msg.Message,
		Date:      time.Unix(int64(msg.Date), 0),
	}, true
}
