package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu          sync.Mutex
	calls       map[string]int
	connected   bool
	authorized  bool
	connectErrs []error
	authErr     error
	tokenErr    error
	onToken     func(ctx context.Context) error
	ttl         time.Duration
	scan        func(ctx context.Context, attempt int) (ScanResult, error)
	signIn      func(password string) error
	onRecheck   func() bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls: make(map[string]int),
		ttl:   30 * time.Second,
	}
}

func (f *fakeClient) hit(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.calls[name]
}

func (f *fakeClient) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeClient) setAuthorized(v bool) {
	f.mu.Lock()
	f.authorized = v
	f.mu.Unlock()
}

func (f *fakeClient) Connect(context.Context) error {
	f.hit("connect")
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect(context.Context) error {
	f.hit("disconnect")
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) IsAuthorized(context.Context) (bool, error) {
	n := f.hit("is_authorized")
	f.mu.Lock()
	authErr, recheck := f.authErr, f.onRecheck
	authorized := f.authorized
	f.mu.Unlock()
	if authErr != nil {
		return false, authErr
	}
	if recheck != nil && n > 1 {
		return recheck(), nil
	}
	return authorized, nil
}

func (f *fakeClient) RequestLoginToken(ctx context.Context) (LoginToken, error) {
	f.hit("request_token")
	if f.onToken != nil {
		if err := f.onToken(ctx); err != nil {
			return LoginToken{}, err
		}
	}
	if f.tokenErr != nil {
		return LoginToken{}, f.tokenErr
	}
	return LoginToken{URL: "tg://login?token=abc", Expires: time.Now().Add(f.ttl)}, nil
}

func (f *fakeClient) WaitForScan(ctx context.Context) (ScanResult, error) {
	n := f.hit("wait")
	if f.scan == nil {
		<-ctx.Done()
		return ScanExpired, ctx.Err()
	}
	return f.scan(ctx, n)
}

func (f *fakeClient) SignIn(_ context.Context, password string) error {
	f.hit("sign_in")
	if f.signIn != nil {
		return f.signIn(password)
	}
	f.setAuthorized(true)
	return nil
}

func (f *fakeClient) LogOut(context.Context) error {
	f.hit("logout")
	f.setAuthorized(false)
	return nil
}

type fakeArtifact struct {
	mu      sync.Mutex
	deleted int
}

func (a *fakeArtifact) Delete(context.Context) error {
	a.mu.Lock()
	a.deleted++
	a.mu.Unlock()
	return nil
}

func (a *fakeArtifact) deletions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deleted
}

type fakePresenter struct {
	mu          sync.Mutex
	codes       []QRCode
	artifacts   []*fakeArtifact
	showErr     error
	authorized  int
	expired     int
	asked       int
	password    string
	passwordErr error
	onShow      func(code QRCode)
}

func (p *fakePresenter) ShowQR(_ context.Context, code QRCode) (Artifact, error) {
	if p.onShow != nil {
		p.onShow(code)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes = append(p.codes, code)
	if p.showErr != nil {
		return nil, p.showErr
	}
	a := &fakeArtifact{}
	p.artifacts = append(p.artifacts, a)
	return a, nil
}

func (p *fakePresenter) Authorized(context.Context) error {
	p.mu.Lock()
	p.authorized++
	p.mu.Unlock()
	return nil
}

func (p *fakePresenter) Expired(context.Context) error {
	p.mu.Lock()
	p.expired++
	p.mu.Unlock()
	return nil
}

func (p *fakePresenter) Password(context.Context) (string, error) {
	p.mu.Lock()
	p.asked++
	p.mu.Unlock()
	return p.password, p.passwordErr
}

func (p *fakePresenter) counts() (authorized, expired int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authorized, p.expired
}

func scanAuthorizes(f *fakeClient) func(context.Context, int) (ScanResult, error) {
	return func(context.Context, int) (ScanResult, error) {
		f.setAuthorized(true)
		return ScanAuthorized, nil
	}
}

func TestLogin_AlreadyAuthorized(t *testing.T) {
	client := newFakeClient()
	client.authorized = true
	p := &fakePresenter{}

	res, err := NewController(client).Login(context.Background(), "u1", p)

	require.NoError(t, err)
	assert.Equal(t, ResultAlreadyAuthorized, res)
	assert.Equal(t, 0, client.count("request_token"))
	assert.Empty(t, p.codes)
	authorized, expired := p.counts()
	assert.Equal(t, 1, authorized)
	assert.Equal(t, 0, expired)
}

func TestLogin_ScanSucceeds(t *testing.T) {
	client := newFakeClient()
	client.scan = scanAuthorizes(client)
	p := &fakePresenter{}
	c := NewController(client)

	res, err := c.Login(context.Background(), "u1", p)

	require.NoError(t, err)
	assert.Equal(t, ResultAuthorized, res)
	assert.Equal(t, 1, client.count("connect"))
	require.Len(t, p.codes, 1)
	assert.Equal(t, "tg://login?token=abc", p.codes[0].URL)
	assert.InDelta(t, 30, p.codes[0].ExpirationSeconds, 1)
	require.Len(t, p.artifacts, 1)
	assert.Equal(t, 1, p.artifacts[0].deletions(), "artifact cleaned up exactly once")

	_, pending := c.Pending("u1")
	assert.False(t, pending)
}

func TestLogin_ExpirationSecondsAtLeastOne(t *testing.T) {
	client := newFakeClient()
	client.ttl = -10 * time.Second
	client.scan = scanAuthorizes(client)
	p := &fakePresenter{}

	_, err := NewController(client).Login(context.Background(), "u1", p)

	require.NoError(t, err)
	require.Len(t, p.codes, 1)
	assert.Equal(t, 1, p.codes[0].ExpirationSeconds)
}

func TestLogin_PasswordMissingFailsBeforeSignIn(t *testing.T) {
	client := newFakeClient()
	client.scan = func(context.Context, int) (ScanResult, error) { return ScanPasswordNeeded, nil }
	p := &fakePresenter{password: "  "}

	res, err := NewController(client).Login(context.Background(), "u1", p)

	assert.Equal(t, ResultFailed, res)
	assert.Equal(t, FailureValidation, KindOf(err))
	assert.ErrorIs(t, err, ErrPasswordRequired)
	assert.Equal(t, 0, client.count("sign_in"))
	assert.Equal(t, 1, p.asked)
	assert.Equal(t, 1, p.artifacts[0].deletions())
}

func TestLogin_PasswordInvalid(t *testing.T) {
	client := newFakeClient()
	client.scan = func(context.Context, int) (ScanResult, error) { return ScanPasswordNeeded, nil }
	client.signIn = func(string) error { return errors.Join(ErrPasswordInvalid, errors.New("PASSWORD_HASH_INVALID")) }
	p := &fakePresenter{password: "wrong"}

	_, err := NewController(client).Login(context.Background(), "u1", p)

	assert.Equal(t, FailurePassword, KindOf(err))
	assert.False(t, Surfaced(err))
	authorized, expired := p.counts()
	assert.Zero(t, authorized)
	assert.Zero(t, expired)
}

func TestLogin_PasswordAccepted(t *testing.T) {
	client := newFakeClient()
	client.scan = func(context.Context, int) (ScanResult, error) { return ScanPasswordNeeded, nil }
	var got string
	client.signIn = func(pw string) error {
		got = pw
		client.setAuthorized(true)
		return nil
	}
	p := &fakePresenter{password: "hunter2"}

	res, err := NewController(client).Login(context.Background(), "u1", p)

	require.NoError(t, err)
	assert.Equal(t, ResultAuthorized, res)
	assert.Equal(t, "hunter2", got)
	authorized, _ := p.counts()
	assert.Equal(t, 1, authorized)
}

func TestLogin_TimeoutFiresExpiredOnce(t *testing.T) {
	client := newFakeClient()
	client.ttl = 0
	p := &fakePresenter{}
	c := NewController(client, WithScanBuffer(0))

	start := time.Now()
	res, err := c.Login(context.Background(), "u1", p)

	assert.Equal(t, ResultExpired, res)
	assert.Equal(t, FailureTimeout, KindOf(err))
	assert.True(t, Surfaced(err))
	assert.GreaterOrEqual(t, time.Since(start), time.Second, "waits at least expiration_seconds")
	authorized, expired := p.counts()
	assert.Zero(t, authorized)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 2, client.count("is_authorized"), "rechecked once before expiring")
	assert.Equal(t, 1, p.artifacts[0].deletions())
}

func TestLogin_LateScanResolvesAsSuccess(t *testing.T) {
	client := newFakeClient()
	client.onRecheck = func() bool { return true }
	p := &fakePresenter{}
	ctx, cancel := context.WithCancel(context.Background())
	p.onShow = func(QRCode) { cancel() }

	res, err := NewController(client).Login(ctx, "u1", p)

	require.NoError(t, err)
	assert.Equal(t, ResultAuthorized, res)
	authorized, expired := p.counts()
	assert.Equal(t, 1, authorized)
	assert.Zero(t, expired, "never both success and expired")
}

func TestLogin_CancellationRoutesThroughExpiry(t *testing.T) {
	client := newFakeClient()
	p := &fakePresenter{}
	ctx, cancel := context.WithCancel(context.Background())
	p.onShow = func(QRCode) { cancel() }

	res, err := NewController(client).Login(ctx, "u1", p)

	assert.Equal(t, ResultExpired, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, FailureTimeout, KindOf(err))
	_, expired := p.counts()
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1, p.artifacts[0].deletions())
}

func TestLogin_CancelledDuringTokenRequestExpires(t *testing.T) {
	client := newFakeClient()
	ctx, cancel := context.WithCancel(context.Background())
	client.onToken = func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	}
	p := &fakePresenter{}

	res, err := NewController(client).Login(ctx, "u1", p)

	assert.Equal(t, ResultExpired, res)
	assert.True(t, Surfaced(err))
	assert.ErrorIs(t, err, context.Canceled)
	_, expired := p.counts()
	assert.Equal(t, 1, expired)
	assert.Empty(t, p.codes, "no QR after cancellation")
	assert.Zero(t, client.count("wait"))
}

func TestLogin_SupersededBeforeQRExpiresFirst(t *testing.T) {
	client := newFakeClient()
	client.scan = scanAuthorizes(client)
	c := NewController(client)

	entered := make(chan struct{})
	var once sync.Once
	client.onToken = func(ctx context.Context) error {
		first := false
		once.Do(func() { first = true })
		if !first {
			return nil
		}
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}

	first := &fakePresenter{}
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Login(context.Background(), "u1", first)
		firstErr <- err
	}()
	<-entered

	second := &fakePresenter{}
	res, err := c.Login(context.Background(), "u1", second)
	require.NoError(t, err)
	assert.Equal(t, ResultAuthorized, res)

	err = <-firstErr
	assert.True(t, Surfaced(err), "superseded attempt is reported as expired, not as an error")
	authorized, expired := first.counts()
	assert.Zero(t, authorized)
	assert.Equal(t, 1, expired)
}

func TestLogin_ScanReportsExpired(t *testing.T) {
	client := newFakeClient()
	client.scan = func(context.Context, int) (ScanResult, error) { return ScanExpired, nil }
	p := &fakePresenter{}

	res, err := NewController(client).Login(context.Background(), "u1", p)

	assert.Equal(t, ResultExpired, res)
	assert.True(t, Surfaced(err))
}

func TestLogin_ConnectAuthKeyErrorReconnects(t *testing.T) {
	client := newFakeClient()
	client.connectErrs = []error{ErrAuthKey}
	client.scan = scanAuthorizes(client)
	p := &fakePresenter{}

	res, err := NewController(client).Login(context.Background(), "u1", p)

	require.NoError(t, err)
	assert.Equal(t, ResultAuthorized, res)
	assert.Equal(t, 1, client.count("disconnect"))
	assert.Equal(t, 2, client.count("connect"))
}

func TestLogin_ConnectFailureIsUnknown(t *testing.T) {
	client := newFakeClient()
	client.connectErrs = []error{errors.New("dial tcp: refused")}
	p := &fakePresenter{}

	_, err := NewController(client).Login(context.Background(), "u1", p)

	assert.Equal(t, FailureUnknown, KindOf(err))
	assert.Contains(t, err.Error(), "refused")
	assert.Equal(t, 0, client.count("request_token"))
}

func TestLogin_AuthKeyOnStatusTreatedAsUnauthorized(t *testing.T) {
	client := newFakeClient()
	client.authErr = ErrAuthKey
	client.scan = func(context.Context, int) (ScanResult, error) {
		client.mu.Lock()
		client.authErr = nil
		client.authorized = true
		client.mu.Unlock()
		return ScanAuthorized, nil
	}
	p := &fakePresenter{}

	res, err := NewController(client).Login(context.Background(), "u1", p)

	require.NoError(t, err)
	assert.Equal(t, ResultAuthorized, res)
	assert.Equal(t, 1, client.count("request_token"))
}

func TestLogin_TokenAuthKeyErrorIsAuthFailure(t *testing.T) {
	client := newFakeClient()
	client.tokenErr = ErrAuthKey
	p := &fakePresenter{}

	_, err := NewController(client).Login(context.Background(), "u1", p)

	assert.Equal(t, FailureAuth, KindOf(err))
}

func TestLogin_RenderFailureDoesNotAbort(t *testing.T) {
	client := newFakeClient()
	client.scan = scanAuthorizes(client)
	p := &fakePresenter{showErr: errors.New("upload failed")}

	res, err := NewController(client).Login(context.Background(), "u1", p)

	require.NoError(t, err)
	assert.Equal(t, ResultAuthorized, res)
	assert.Equal(t, 1, client.count("wait"))
}

func TestLogin_SecondAttemptDeletesFirstArtifact(t *testing.T) {
	client := newFakeClient()
	client.scan = func(ctx context.Context, attempt int) (ScanResult, error) {
		if attempt == 1 {
			<-ctx.Done()
			return ScanExpired, ctx.Err()
		}
		client.setAuthorized(true)
		return ScanAuthorized, nil
	}
	c := NewController(client)

	first := &fakePresenter{}
	shown := make(chan struct{})
	first.onShow = func(QRCode) { close(shown) }

	type outcome struct {
		res Result
		err error
	}
	firstDone := make(chan outcome, 1)
	go func() {
		res, err := c.Login(context.Background(), "u1", first)
		firstDone <- outcome{res, err}
	}()
	<-shown

	firstDeletedBeforeSecondShown := -1
	second := &fakePresenter{}
	second.onShow = func(QRCode) {
		first.mu.Lock()
		a := first.artifacts[0]
		first.mu.Unlock()
		firstDeletedBeforeSecondShown = a.deletions()
	}

	res, err := c.Login(context.Background(), "u1", second)
	require.NoError(t, err)
	assert.Equal(t, ResultAuthorized, res)
	assert.Equal(t, 1, firstDeletedBeforeSecondShown)

	got := <-firstDone
	assert.Equal(t, ResultExpired, got.res)
	assert.True(t, Surfaced(got.err))
	assert.Equal(t, 1, first.artifacts[0].deletions(), "no double delete")
	_, expired := first.counts()
	assert.Equal(t, 1, expired)
}

func TestStatusAndLogout(t *testing.T) {
	client := newFakeClient()
	c := NewController(client)
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Connected)

	client.connected = true
	client.authorized = true
	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Authorized)

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, 1, client.count("logout"))
	st, err = c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Authorized)
}

func TestFailureFormatting(t *testing.T) {
	err := fail(FailurePassword, ErrPasswordInvalid)
	assert.Equal(t, "login failed (password): two-factor password invalid", err.Error())
	assert.Equal(t, FailureUnknown, KindOf(errors.New("plain")))
	assert.False(t, Surfaced(nil))
}
