package auth

import (
	"context"
	"time"
)

// ScanResult is the outcome of waiting for a login token to be consumed.
// A failed wait is reported as an error alongside it.
type ScanResult int

const (
	ScanExpired ScanResult = iota
	ScanAuthorized
	ScanPasswordNeeded
)

func (r ScanResult) String() string {
	switch r {
	case ScanAuthorized:
		return "authorized"
	case ScanPasswordNeeded:
		return "password_needed"
	default:
		return "expired"
	}
}

// LoginToken is a short-lived login URL issued by the source platform.
type LoginToken struct {
	URL     string
	Expires time.Time
}

// Client is the slice of the source platform the login handshake needs.
// Implementations report credential errors wrapping ErrAuthKey and wrong
// passwords wrapping ErrPasswordInvalid.
type Client interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Disconnect(ctx context.Context) error
	IsAuthorized(ctx context.Context) (bool, error)
	RequestLoginToken(ctx context.Context) (LoginToken, error)
	// WaitForScan blocks until the current token is consumed or ctx ends.
	WaitForScan(ctx context.Context) (ScanResult, error)
	SignIn(ctx context.Context, password string) error
	LogOut(ctx context.Context) error
}

// AccountDescriber is implemented by clients that can name the logged-in
// account.
type AccountDescriber interface {
	DescribeAccount(ctx context.Context) (string, error)
}

// QRCode is what a presenter needs to show a login token.
type QRCode struct {
	URL               string
	ExpirationSeconds int
	ExpiresAt         time.Time
}

// Artifact is whatever a presenter displayed for a QR code.
type Artifact interface {
	Delete(ctx context.Context) error
}

// Presenter surfaces login progress to the user who started it.
type Presenter interface {
	// ShowQR displays the code. A returned error is logged and the login
	// continues; a nil Artifact means there is nothing to clean up.
	ShowQR(ctx context.Context, code QRCode) (Artifact, error)
	Authorized(ctx context.Context) error
	Expired(ctx context.Context) error
	// Password returns the two-factor password, or "" when none is available.
	Password(ctx context.Context) (string, error)
}
