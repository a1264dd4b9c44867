package discord

import (
	"bytes"
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/telecord/pkg/auth"
	"github.com/tinyland-inc/telecord/pkg/logger"
	"github.com/tinyland-inc/telecord/pkg/qr"
)

// qrPresenter shows a login handshake as ephemeral followups of the
// interaction that started it.
type qrPresenter struct {
	api         api
	interaction *discordgo.Interaction
	renderer    qr.Renderer
	password    string
	account     func(ctx context.Context) string

	mu    sync.Mutex
	shown bool
}

func (p *qrPresenter) followup(ctx context.Context, params *discordgo.WebhookParams) (*discordgo.Message, error) {
	params.Flags |= discordgo.MessageFlagsEphemeral
	return p.api.FollowupMessageCreate(p.interaction, true, params, discordgo.WithContext(ctx))
}

func (p *qrPresenter) say(ctx context.Context, content string) {
	if _, err := p.followup(ctx, &discordgo.WebhookParams{Content: content}); err != nil {
		logger.WarnCF("discord", "Followup failed", map[string]any{"error": err.Error()})
	}
}

// ShowQR posts the code as a PNG, or as a text block when the image cannot
// be produced or uploaded.
func (p *qrPresenter) ShowQR(ctx context.Context, code auth.QRCode) (auth.Artifact, error) {
	caption := qrCaption(code.ExpirationSeconds, code.ExpiresAt)

	msg, err := p.showImage(ctx, code.URL, caption)
	if err != nil {
		logger.WarnCF("discord", "QR image failed, sending text", map[string]any{"error": err.Error()})
		msg, err = p.showText(ctx, code.URL, caption)
	}
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.shown = true
	p.mu.Unlock()
	return &followupArtifact{api: p.api, interaction: p.interaction, messageID: msg.ID}, nil
}

func (p *qrPresenter) showImage(ctx context.Context, url, caption string) (*discordgo.Message, error) {
	png, err := p.renderer.Image(url)
	if err != nil {
		return nil, err
	}
	return p.followup(ctx, &discordgo.WebhookParams{
		Content: caption,
		Files: []*discordgo.File{{
			Name:        "qrcode.png",
			ContentType: "image/png",
			Reader:      bytes.NewReader(png),
		}},
	})
}

func (p *qrPresenter) showText(ctx context.Context, url, caption string) (*discordgo.Message, error) {
	text, err := p.renderer.Text(url)
	if err != nil {
		return nil, err
	}
	return p.followup(ctx, &discordgo.WebhookParams{
		Content: caption + "\n```\n" + text + "\n```",
	})
}

func (p *qrPresenter) Authorized(ctx context.Context) error {
	p.mu.Lock()
	shown := p.shown
	p.mu.Unlock()

	account := ""
	if p.account != nil {
		account = p.account(ctx)
	}
	if shown {
		p.say(ctx, loginSuccess(account))
	} else {
		p.say(ctx, alreadyLoggedIn(account))
	}
	return nil
}

func (p *qrPresenter) Expired(ctx context.Context) error {
	p.say(ctx, msgQRExpired)
	return nil
}

func (p *qrPresenter) Password(context.Context) (string, error) {
	return p.password, nil
}

type followupArtifact struct {
	api         api
	interaction *discordgo.Interaction
	messageID   string
}

func (a *followupArtifact) Delete(ctx context.Context) error {
	return a.api.FollowupMessageDelete(a.interaction, a.messageID, discordgo.WithContext(ctx))
}
