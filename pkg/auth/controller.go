// Package auth drives the interactive QR login of the Telegram user session.
//
// A login attempt walks connect, authorization check, token issue, scan wait
// and optional two-factor sign-in, and ends in exactly one of: the presenter's
// Authorized, the presenter's Expired (returned as a FailureTimeout), or a
// typed *Failure.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/telecord/pkg/logger"
)

const (
	// DefaultScanBuffer is added to the token lifetime when waiting for a
	// scan so the wait never races the platform's own expiry.
	DefaultScanBuffer = 5 * time.Second

	recheckTimeout = 10 * time.Second
)

// Result is the successful or expired outcome of Login.
type Result int

const (
	ResultFailed Result = iota
	ResultAlreadyAuthorized
	ResultAuthorized
	ResultExpired
)

func (r Result) String() string {
	switch r {
	case ResultAlreadyAuthorized:
		return "already_authorized"
	case ResultAuthorized:
		return "authorized"
	case ResultExpired:
		return "expired"
	default:
		return "failed"
	}
}

type Phase string

const (
	PhaseConnecting        Phase = "connecting"
	PhaseCheckingAuth      Phase = "checking_auth"
	PhaseAlreadyAuthorized Phase = "already_authorized"
	PhaseAwaitingScan      Phase = "awaiting_scan"
	PhaseAwaitingPassword  Phase = "awaiting_password"
	PhaseSuccess           Phase = "success"
	PhaseExpired           Phase = "expired"
	PhaseFailed            Phase = "failed"
)

type Option func(*Controller)

func WithScanBuffer(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.buffer = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

type Controller struct {
	client Client
	buffer time.Duration
	now    func() time.Time

	// one handshake at a time; the platform session is shared
	sem chan struct{}

	mu      sync.Mutex
	pending map[string]*Session
}

func NewController(client Client, opts ...Option) *Controller {
	c := &Controller{
		client:  client,
		buffer:  DefaultScanBuffer,
		now:     time.Now,
		sem:     make(chan struct{}, 1),
		pending: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session is the transient state of one login attempt.
type Session struct {
	ID     string
	UserID string

	mu       sync.Mutex
	phase    Phase
	token    LoginToken
	issuedAt time.Time
	artifact Artifact
	released bool
	cancel   context.CancelFunc
	once     sync.Once
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Token returns the login token issued for this attempt and when it was shown.
func (s *Session) Token() (LoginToken, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.issuedAt
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
	logger.DebugCF("auth", "Login phase", map[string]any{
		"session": s.ID,
		"user":    s.UserID,
		"phase":   string(p),
	})
}

// attach records the displayed artifact. It reports false when the session
// was already released, in which case the caller owns the artifact.
func (s *Session) attach(a Artifact) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return false
	}
	s.artifact = a
	return true
}

// release deletes the displayed artifact once, whichever path gets here first.
func (s *Session) release(ctx context.Context) {
	s.once.Do(func() {
		s.mu.Lock()
		s.released = true
		a := s.artifact
		s.artifact = nil
		s.mu.Unlock()

		if a == nil {
			return
		}
		if err := a.Delete(ctx); err != nil {
			logger.WarnCF("auth", "Failed to delete QR artifact", map[string]any{
				"session": s.ID,
				"user":    s.UserID,
				"error":   err.Error(),
			})
		}
	})
}

// Pending returns the in-flight session for userID, if any.
func (c *Controller) Pending(userID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.pending[userID]
	return s, ok
}

// begin registers a new session for userID, cancelling and cleaning up any
// attempt the same user still has open.
func (c *Controller) begin(ctx context.Context, userID string, cancel context.CancelFunc) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		phase:  PhaseConnecting,
		cancel: cancel,
	}

	c.mu.Lock()
	prev := c.pending[userID]
	c.pending[userID] = s
	c.mu.Unlock()

	if prev != nil {
		logger.InfoCF("auth", "Superseding previous login attempt", map[string]any{
			"user":     userID,
			"previous": prev.ID,
			"session":  s.ID,
		})
		prev.cancel()
		prev.release(ctx)
	}
	return s
}

func (c *Controller) finish(ctx context.Context, s *Session) {
	c.mu.Lock()
	if c.pending[s.UserID] == s {
		delete(c.pending, s.UserID)
	}
	c.mu.Unlock()
	s.release(ctx)
}

// Login runs one QR login attempt for userID to a terminal outcome.
// A FailureTimeout error has already been reported through p.Expired.
func (c *Controller) Login(ctx context.Context, userID string, p Presenter) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := c.begin(ctx, userID, cancel)
	defer c.finish(context.WithoutCancel(ctx), s)

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return c.expire(ctx, s, p, ctx.Err())
	}

	res, err := c.run(ctx, s, p)
	if err != nil && !Surfaced(err) && ctx.Err() != nil {
		// cancelled before the scan wait, e.g. superseded by a newer attempt
		res, err = c.expire(ctx, s, p, ctx.Err())
	}
	switch {
	case err == nil:
		logger.InfoCF("auth", "Login finished", map[string]any{
			"session": s.ID,
			"user":    userID,
			"result":  res.String(),
		})
	case Surfaced(err):
		logger.InfoCF("auth", "Login expired", map[string]any{
			"session": s.ID,
			"user":    userID,
		})
	default:
		s.setPhase(PhaseFailed)
		logger.WarnCF("auth", "Login failed", map[string]any{
			"session": s.ID,
			"user":    userID,
			"kind":    KindOf(err).String(),
			"error":   err.Error(),
		})
	}
	return res, err
}

func (c *Controller) run(ctx context.Context, s *Session, p Presenter) (Result, error) {
	if err := c.connect(ctx, s); err != nil {
		return ResultFailed, err
	}

	s.setPhase(PhaseCheckingAuth)
	authorized, err := c.client.IsAuthorized(ctx)
	if err != nil && !errors.Is(err, ErrAuthKey) {
		return ResultFailed, fail(FailureUnknown, err)
	}
	if authorized {
		s.setPhase(PhaseAlreadyAuthorized)
		if err := c.succeed(ctx, s, p); err != nil {
			return ResultFailed, err
		}
		return ResultAlreadyAuthorized, nil
	}

	token, err := c.client.RequestLoginToken(ctx)
	if err != nil {
		return ResultFailed, classify(err)
	}
	code := c.qrCode(token)

	s.mu.Lock()
	s.token = token
	s.issuedAt = c.now()
	s.mu.Unlock()

	artifact, err := p.ShowQR(ctx, code)
	if err != nil {
		logger.WarnCF("auth", "QR presentation failed, still waiting for scan", map[string]any{
			"session": s.ID,
			"error":   err.Error(),
		})
	}
	if artifact != nil && !s.attach(artifact) {
		_ = artifact.Delete(context.WithoutCancel(ctx))
	}

	s.setPhase(PhaseAwaitingScan)
	wait := time.Duration(code.ExpirationSeconds)*time.Second + c.buffer
	waitCtx, cancelWait := context.WithTimeout(ctx, wait)
	scan, err := c.client.WaitForScan(waitCtx)
	waitErr := waitCtx.Err()
	cancelWait()

	if err != nil {
		if waitErr != nil {
			return c.expire(ctx, s, p, waitErr)
		}
		return ResultFailed, classify(err)
	}

	switch scan {
	case ScanExpired:
		return c.expire(ctx, s, p, context.DeadlineExceeded)
	case ScanPasswordNeeded:
		if err := c.signIn(ctx, s, p); err != nil {
			return ResultFailed, err
		}
	}

	authorized, err = c.client.IsAuthorized(ctx)
	if err != nil {
		return ResultFailed, classify(err)
	}
	if !authorized {
		return ResultFailed, fail(FailureUnknown, ErrNotAuthorized)
	}
	if err := c.succeed(ctx, s, p); err != nil {
		return ResultFailed, err
	}
	return ResultAuthorized, nil
}

// connect brings the client up. A rejected session key gets one
// disconnect-and-reconnect so a fresh login can replace it.
func (c *Controller) connect(ctx context.Context, s *Session) error {
	s.setPhase(PhaseConnecting)
	if c.client.IsConnected() {
		return nil
	}

	err := c.client.Connect(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrAuthKey) {
		return fail(FailureUnknown, err)
	}

	logger.WarnCF("auth", "Stored session rejected, reconnecting", map[string]any{
		"session": s.ID,
		"error":   err.Error(),
	})
	if derr := c.client.Disconnect(ctx); derr != nil {
		logger.WarnCF("auth", "Disconnect failed", map[string]any{"error": derr.Error()})
	}
	if err := c.client.Connect(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (c *Controller) signIn(ctx context.Context, s *Session, p Presenter) error {
	s.setPhase(PhaseAwaitingPassword)

	password, err := p.Password(ctx)
	if err != nil {
		return fail(FailureValidation, err)
	}
	if strings.TrimSpace(password) == "" {
		return fail(FailureValidation, ErrPasswordRequired)
	}

	if err := c.client.SignIn(ctx, password); err != nil {
		if errors.Is(err, ErrPasswordInvalid) {
			return fail(FailurePassword, err)
		}
		return classify(err)
	}
	return nil
}

func (c *Controller) succeed(ctx context.Context, s *Session, p Presenter) error {
	s.setPhase(PhaseSuccess)
	if err := p.Authorized(ctx); err != nil {
		return fail(FailureUnknown, err)
	}
	return nil
}

// expire is the single exit for timeouts and cancellation. A scan that landed
// just as the wait ended still counts as success.
func (c *Controller) expire(ctx context.Context, s *Session, p Presenter, cause error) (Result, error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recheckTimeout)
	defer cancel()

	if ok, err := c.client.IsAuthorized(rctx); err == nil && ok {
		if err := c.succeed(rctx, s, p); err != nil {
			return ResultFailed, err
		}
		return ResultAuthorized, nil
	}

	s.setPhase(PhaseExpired)
	if err := p.Expired(rctx); err != nil {
		logger.WarnCF("auth", "Expired notification failed", map[string]any{
			"session": s.ID,
			"error":   err.Error(),
		})
	}
	return ResultExpired, fail(FailureTimeout, cause)
}

func (c *Controller) qrCode(token LoginToken) QRCode {
	secs := int(token.Expires.Sub(c.now()) / time.Second)
	return QRCode{
		URL:               token.URL,
		ExpirationSeconds: max(1, secs),
		ExpiresAt:         token.Expires,
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrAuthKey):
		return fail(FailureAuth, err)
	case errors.Is(err, ErrPasswordInvalid):
		return fail(FailurePassword, err)
	default:
		return fail(FailureUnknown, err)
	}
}

// Status reports connection and authorization without side effects.
type Status struct {
	Connected  bool
	Authorized bool
	Account    string
}

func (c *Controller) Status(ctx context.Context) (Status, error) {
	st := Status{Connected: c.client.IsConnected()}
	if !st.Connected {
		return st, nil
	}

	ok, err := c.client.IsAuthorized(ctx)
	if err != nil && !errors.Is(err, ErrAuthKey) {
		return st, err
	}
	st.Authorized = ok

	if d, isDescriber := c.client.(AccountDescriber); isDescriber && ok {
		if name, err := d.DescribeAccount(ctx); err == nil {
			st.Account = name
		}
	}
	return st, nil
}

// Logout ends the platform session. It waits for any running handshake.
func (c *Controller) Logout(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if !c.client.IsConnected() {
		if err := c.client.Connect(ctx); err != nil {
			return classify(err)
		}
	}
	if err := c.client.LogOut(ctx); err != nil {
		return classify(err)
	}
	logger.InfoC("auth", "Logged out")
	return nil
}
