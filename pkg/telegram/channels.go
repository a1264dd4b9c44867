package telegram

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/tinyland-inc/telecord/pkg/logger"
)

// archiveFolder is the id of the Telegram "Archived chats" folder.
const archiveFolder = 1

// Channel is a resolved public channel.
type Channel struct {
	ID         int64
	AccessHash int64
	Username   string
	Title      string
	Joined     bool
}

func (ch Channel) input() *tg.InputChannel {
	return &tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
}

// ResolveChannel looks up a public channel by reference.
func (c *Client) ResolveChannel(ctx context.Context, ref string) (Channel, error) {
	username, err := ParseReference(ref)
	if err != nil {
		return Channel{}, err
	}
	client, err := c.api()
	if err != nil {
		return Channel{}, err
	}

	resolved, err := client.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return Channel{}, mapError(err)
	}
	return pickChannel(resolved)
}

func pickChannel(resolved *tg.ContactsResolvedPeer) (Channel, error) {
	p, ok := resolved.Peer.(*tg.PeerChannel)
	if !ok {
		return Channel{}, ErrNotChannel
	}
	for _, chat := range resolved.Chats {
		ch, ok := chat.(*tg.Channel)
		if !ok || ch.ID != p.ChannelID {
			continue
		}
		if ch.Username == "" {
			return Channel{}, ErrPrivateChannel
		}
		return Channel{
			ID:         ch.ID,
			AccessHash: ch.AccessHash,
			Username:   ch.Username,
			Title:      ch.Title,
			Joined:     !ch.Left,
		}, nil
	}
	return Channel{}, ErrChannelNotFound
}

// JoinChannel joins ch when not yet a member and moves it to the archive
// folder so it stays out of the account's main chat list.
func (c *Client) JoinChannel(ctx context.Context, ch Channel) error {
	if ch.Joined {
		return nil
	}
	client, err := c.api()
	if err != nil {
		return err
	}
	api := client.API()

	if _, err := api.ChannelsJoinChannel(ctx, ch.input()); err != nil && !tgerr.Is(err, "USER_ALREADY_PARTICIPANT") {
		return fmt.Errorf("join channel %s: %w", ch.Username, mapError(err))
	}

	_, err = api.FoldersEditPeerFolders(ctx, []tg.InputFolderPeer{{
		Peer:     &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash},
		FolderID: archiveFolder,
	}})
	if err != nil {
		logger.WarnCF("telegram", "Failed to archive channel", map[string]any{
			"channel": ch.Username,
			"error":   err.Error(),
		})
	}

	logger.InfoCF("telegram", "Joined channel", map[string]any{
		"channel_id": ch.ID,
		"channel":    ch.Username,
	})
	return nil
}

// LeaveChannel leaves ch. Not being a member is not an error.
func (c *Client) LeaveChannel(ctx context.Context, ch Channel) error {
	if !ch.Joined {
		return nil
	}
	client, err := c.api()
	if err != nil {
		return err
	}
	if _, err := client.API().ChannelsLeaveChannel(ctx, ch.input()); err != nil {
		if tgerr.Is(err, "USER_NOT_PARTICIPANT", "CHANNEL_PRIVATE") {
			return nil
		}
		return fmt.Errorf("leave channel %s: %w", ch.Username, mapError(err))
	}

	logger.InfoCF("telegram", "Left channel", map[string]any{
		"channel_id": ch.ID,
		"channel":    ch.Username,
	})
	return nil
}
