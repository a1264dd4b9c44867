package telegram

import (
	"errors"
	"fmt"

	tgauth "github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"

	"github.com/tinyland-inc/telecord/pkg/auth"
)

var (
	ErrNotConnected     = errors.New("telegram client not connected")
	ErrChannelNotFound  = errors.New("telegram channel not found")
	ErrNotChannel       = errors.New("telegram peer is not a channel")
	ErrPrivateChannel   = errors.New("telegram channel is not public")
	ErrInvalidReference = errors.New("invalid telegram channel reference")
)

var authKeyErrors = []string{
	"AUTH_KEY_UNREGISTERED",
	"AUTH_KEY_INVALID",
	"AUTH_KEY_DUPLICATED",
	"AUTH_BYTES_INVALID",
	"SESSION_REVOKED",
	"SESSION_EXPIRED",
}

// mapError translates MTProto errors into the sentinels callers match on.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case tgerr.Is(err, authKeyErrors...):
		return fmt.Errorf("%w: %w", auth.ErrAuthKey, err)
	case errors.Is(err, tgauth.ErrPasswordInvalid), tgerr.Is(err, "PASSWORD_HASH_INVALID", "PASSWORD_EMPTY"):
		return fmt.Errorf("%w: %w", auth.ErrPasswordInvalid, err)
	case tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID", "CHANNEL_INVALID"):
		return fmt.Errorf("%w: %w", ErrChannelNotFound, err)
	case tgerr.Is(err, "CHANNEL_PRIVATE"):
		return fmt.Errorf("%w: %w", ErrPrivateChannel, err)
	default:
		return err
	}
}

func passwordNeeded(err error) bool {
	return errors.Is(err, tgauth.ErrPasswordAuthNeeded) || tgerr.Is(err, "SESSION_PASSWORD_NEEDED")
}
