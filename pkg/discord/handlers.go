package discord

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/telecord/pkg/auth"
	"github.com/tinyland-inc/telecord/pkg/channels"
	"github.com/tinyland-inc/telecord/pkg/logger"
	"github.com/tinyland-inc/telecord/pkg/metering"
	"github.com/tinyland-inc/telecord/pkg/reminders"
	"github.com/tinyland-inc/telecord/pkg/telegram"
)

type handlerFunc func(ctx context.Context, i *discordgo.InteractionCreate, inv invocation) string

type route struct {
	admin     bool
	ephemeral bool
	handle    handlerFunc
}

func (b *Bot) routes() map[string]route {
	return map[string]route{
		"telegram status": {admin: true, ephemeral: true, handle: b.telegramStatus},
		"telegram logout": {admin: true, ephemeral: true, handle: b.telegramLogout},

		"canais discord adicionar":   {admin: true, handle: b.addDestination},
		"canais discord remover":     {admin: true, handle: b.removeDestination},
		"canais discord listar":      {admin: true, handle: b.listDestinations},
		"canais telegram adicionar":  {admin: true, handle: b.addSource},
		"canais telegram remover":    {admin: true, handle: b.removeSource},
		"canais telegram listar":     {admin: true, handle: b.listSources},
		"canais telegram encaminhar": {admin: true, handle: b.setForward},

		"lembretes criar":     {ephemeral: true, handle: b.createGroup},
		"lembretes adicionar": {ephemeral: true, handle: b.addText},
		"lembretes remover":   {ephemeral: true, handle: b.removeText},
		"lembretes apagar":    {ephemeral: true, handle: b.deleteGroup},
		"lembretes listar":    {ephemeral: true, handle: b.listGroups},

		"info": {handle: b.info},
	}
}

func (b *Bot) onInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx, cancel := context.WithTimeout(b.baseContext(), commandTimeout)
	defer cancel()
	b.handleCommand(ctx, i)
}

func (b *Bot) handleCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	inv := parseInvocation(i.ApplicationCommandData())
	name := inv.route()
	_, sender := senderOf(i)

	logger.DebugCF("discord", "Command received", map[string]any{
		"command": name,
		"user":    sender,
	})

	if name == "telegram login" {
		b.telegramLogin(ctx, i, inv)
		return
	}

	r, ok := b.routes()[name]
	if !ok {
		logger.WarnCF("discord", "Unknown command", map[string]any{"command": name})
		return
	}
	if r.admin && !b.access.IsAllowed(sender) {
		b.respond(ctx, i, msgNoPermission, true)
		return
	}

	if err := b.deferReply(ctx, i, r.ephemeral || r.admin); err != nil {
		logger.WarnCF("discord", "Failed to acknowledge command", map[string]any{
			"command": name,
			"error":   err.Error(),
		})
		return
	}
	b.editReply(ctx, i, r.handle(ctx, i, inv))
}

func (b *Bot) respond(ctx context.Context, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := b.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
	if err != nil {
		logger.WarnCF("discord", "Failed to respond", map[string]any{"error": err.Error()})
	}
}

func (b *Bot) deferReply(ctx context.Context, i *discordgo.InteractionCreate, ephemeral bool) error {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	return b.api.InteractionRespond(i.Interaction, resp, discordgo.WithContext(ctx))
}

func (b *Bot) editReply(ctx context.Context, i *discordgo.InteractionCreate, content string) {
	chunks := SplitMessage(content, MaxMessageLength)
	if _, err := b.api.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &chunks[0]}, discordgo.WithContext(ctx)); err != nil {
		logger.WarnCF("discord", "Failed to edit reply", map[string]any{"error": err.Error()})
		return
	}
	for _, c := range chunks[1:] {
		if _, err := b.api.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: c}, discordgo.WithContext(ctx)); err != nil {
			logger.WarnCF("discord", "Failed to send reply continuation", map[string]any{"error": err.Error()})
			return
		}
	}
}

func (b *Bot) reload(ctx context.Context) {
	r := b.router()
	if r == nil {
		return
	}
	if err := r.ReloadChannels(ctx); err != nil {
		logger.ErrorCF("discord", "Forwarder reload failed", map[string]any{"error": err.Error()})
	}
}

func failed(op string, err error) string {
	logger.ErrorCF("discord", "Command failed", map[string]any{
		"op":    op,
		"error": err.Error(),
	})
	return msgGenericError
}

// telegramLogin runs the QR handshake, reporting through followups.
func (b *Bot) telegramLogin(ctx context.Context, i *discordgo.InteractionCreate, inv invocation) {
	userID, sender := senderOf(i)
	if !b.access.IsAllowed(sender) {
		b.respond(ctx, i, msgNoPermission, true)
		return
	}
	if b.deps.Login == nil {
		b.respond(ctx, i, "Telegram client não está configurado.", true)
		return
	}
	if err := b.deferReply(ctx, i, true); err != nil {
		logger.WarnCF("discord", "Failed to acknowledge login", map[string]any{"error": err.Error()})
		return
	}

	password := strings.TrimSpace(inv.str("senha"))
	start := msgLoginStarting
	if password != "" {
		start = msgLoginStartingPwd
	}
	b.editReply(ctx, i, start)

	p := &qrPresenter{
		api:         b.api,
		interaction: i.Interaction,
		renderer:    b.qr,
		password:    password,
		account:     b.accountName,
	}
	_, err := b.deps.Login.Login(ctx, userID, p)
	if msg := loginFailure(err); msg != "" {
		p.say(context.WithoutCancel(ctx), msg)
	}
}

func loginFailure(err error) string {
	if err == nil || auth.Surfaced(err) {
		return ""
	}
	switch auth.KindOf(err) {
	case auth.FailureAuth:
		return msgLoginAuthError
	case auth.FailurePassword:
		return msgLoginBadPassword
	case auth.FailureValidation:
		if errors.Is(err, auth.ErrPasswordRequired) {
			return msgLoginNeedsPwd
		}
		return "**Erro:** " + err.Error()
	default:
		return "**Erro durante o login:** " + err.Error()
	}
}

func (b *Bot) accountName(ctx context.Context) string {
	st, err := b.deps.Login.Status(ctx)
	if err != nil {
		return ""
	}
	return st.Account
}

func (b *Bot) telegramLogout(ctx context.Context, _ *discordgo.InteractionCreate, _ invocation) string {
	if err := b.deps.Login.Logout(ctx); err != nil {
		return failed("telegram logout", err)
	}
	return msgLoggedOut
}

func (b *Bot) telegramStatus(ctx context.Context, _ *discordgo.InteractionCreate, _ invocation) string {
	lines := []string{
		fmt.Sprintf("📊 **Latência:** %dms", b.api.HeartbeatLatency().Milliseconds()),
		"✅ **Discord Bot:** Online",
	}

	st, err := b.deps.Login.Status(ctx)
	switch {
	case err != nil:
		lines = append(lines, "⚠️ **Telegram:** Erro ao verificar conexão - "+err.Error())
	case !st.Connected:
		lines = append(lines, "❌ **Telegram:** Desconectado")
	case !st.Authorized:
		lines = append(lines,
			"✅ **Telegram:** Conectado",
			"❌ **Autenticação:** Não autenticado (use `/telegram login`)")
	default:
		account := st.Account
		if account == "" {
			account = "conta desconhecida"
		}
		lines = append(lines,
			"✅ **Telegram:** Conectado",
			"✅ **Autenticação:** Logado como "+bold(account))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) addDestination(ctx context.Context, _ *discordgo.InteractionCreate, inv invocation) string {
	raw := inv.channelID("canal")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return failed("parse channel id", err)
	}
	mention := channelMention(id)

	b.mu.Lock()
	self := b.selfID
	b.mu.Unlock()
	if self != "" {
		perms, err := b.api.UserChannelPermissions(self, raw, discordgo.WithContext(ctx))
		if err == nil && perms&discordgo.PermissionSendMessages == 0 {
			return "Não tenho permissão para enviar mensagens em " + mention
		}
	}

	switch err := b.deps.Channels.AddDestinationChannel(ctx, id); {
	case errors.Is(err, channels.ErrChannelAlreadyExists):
		return fmt.Sprintf("O canal %s já está na lista", mention)
	case err != nil:
		return failed("add destination", err)
	}
	b.reload(ctx)
	return "Adicionei o canal do Discord " + mention
}

func (b *Bot) removeDestination(ctx context.Context, _ *discordgo.InteractionCreate, inv invocation) string {
	id, err := strconv.ParseInt(inv.channelID("canal"), 10, 64)
	if err != nil {
		return failed("parse channel id", err)
	}
	mention := channelMention(id)

	switch err := b.deps.Channels.RemoveDestinationChannel(ctx, id); {
	case errors.Is(err, channels.ErrChannelNotFound):
		return fmt.Sprintf("O canal %s não está na lista", mention)
	case err != nil:
		return failed("remove destination", err)
	}
	b.reload(ctx)
	return "Removi o canal do Discord " + mention
}

func (b *Bot) listDestinations(ctx context.Context, _ *discordgo.InteractionCreate, _ invocation) string {
	list, err := b.deps.Channels.ListDestinationChannels(ctx)
	if err != nil {
		return failed("list destinations", err)
	}
	return formatDestinations(list)
}

func resolveFailure(ref string, err error) string {
	switch {
	case errors.Is(err, telegram.ErrInvalidReference):
		return fmt.Sprintf("%s não é um link ou username válido", bold(ref))
	case errors.Is(err, telegram.ErrNotChannel):
		return fmt.Sprintf("%s não é um canal", bold(ref))
	case errors.Is(err, telegram.ErrPrivateChannel):
		return msgPublicOnly
	case errors.Is(err, telegram.ErrChannelNotFound):
		return fmt.Sprintf("Não encontrei o canal %s", bold(ref))
	case errors.Is(err, telegram.ErrNotConnected), errors.Is(err, auth.ErrAuthKey):
		return msgTelegramOffline
	default:
		return failed("resolve telegram channel", err)
	}
}

func (b *Bot) addSource(ctx context.Context, _ *discordgo.InteractionCreate, inv invocation) string {
	ref := inv.str("canal")
	forward := inv.boolean("encaminhar", true)

	ch, err := b.deps.Telegram.ResolveChannel(ctx, ref)
	if err != nil {
		return resolveFailure(ref, err)
	}
	link := telegramLink(ch.Username)

	if _, err := b.deps.Channels.FindSourceChannelByUsername(ctx, ch.Username); err == nil {
		return fmt.Sprintf("O canal %s já está na lista", link)
	}
	if err := b.deps.Telegram.JoinChannel(ctx, ch); err != nil {
		logger.WarnCF("discord", "Join failed", map[string]any{
			"channel": ch.Username,
			"error":   err.Error(),
		})
		return msgJoinFailed
	}

	err = b.deps.Channels.AddSourceChannel(ctx, channels.SourceChannel{
		ID:       ch.ID,
		Username: ch.Username,
		Forward:  forward,
	})
	switch {
	case errors.Is(err, channels.ErrChannelAlreadyExists):
		return fmt.Sprintf("O canal %s já está na lista", link)
	case err != nil:
		return failed("add source", err)
	}
	b.reload(ctx)

	if !forward {
		return fmt.Sprintf("Adicionei o canal do Telegram %s (apenas lembretes)", link)
	}
	return "Adicionei o canal do Telegram " + link
}

// removeSource works from the registry alone so channels can be removed
// while Telegram is offline; leaving the channel is best effort.
func (b *Bot) removeSource(ctx context.Context, _ *discordgo.InteractionCreate, inv invocation) string {
	ref := inv.str("canal")
	username, err := telegram.ParseReference(ref)
	if err != nil {
		return resolveFailure(ref, err)
	}

	src, err := b.deps.Channels.FindSourceChannelByUsername(ctx, username)
	if errors.Is(err, channels.ErrChannelNotFound) {
		return fmt.Sprintf("O canal %s não está na lista", bold(username))
	}
	if err != nil {
		return failed("find source", err)
	}

	switch err := b.deps.Channels.RemoveSourceChannel(ctx, src.ID); {
	case errors.Is(err, channels.ErrChannelNotFound):
		return fmt.Sprintf("O canal %s não está na lista", bold(username))
	case err != nil:
		return failed("remove source", err)
	}
	b.reload(ctx)

	if ch, err := b.deps.Telegram.ResolveChannel(ctx, src.Username); err == nil {
		if err := b.deps.Telegram.LeaveChannel(ctx, ch); err != nil {
			logger.WarnCF("discord", "Error leaving Telegram channel", map[string]any{
				"channel": src.Username,
				"error":   err.Error(),
			})
		}
	}
	return "Removi o canal do Telegram " + telegramLink(src.Username)
}

func (b *Bot) listSources(ctx context.Context, _ *discordgo.InteractionCreate, _ invocation) string {
	list, err := b.deps.Channels.ListSourceChannels(ctx)
	if err != nil {
		return failed("list sources", err)
	}
	return formatSources(list)
}

func (b *Bot) setForward(ctx context.Context, _ *discordgo.InteractionCreate, inv invocation) string {
	ref := inv.str("canal")
	username, err := telegram.ParseReference(ref)
	if err != nil {
		return resolveFailure(ref, err)
	}
	active := inv.boolean("ativo", true)

	src, err := b.deps.Channels.FindSourceChannelByUsername(ctx, username)
	if errors.Is(err, channels.ErrChannelNotFound) {
		return fmt.Sprintf("O canal %s não está na lista", bold(username))
	}
	if err != nil {
		return failed("find source", err)
	}
	if err := b.deps.Channels.SetForward(ctx, src.ID, active); err != nil {
		return failed("set forward", err)
	}
	b.reload(ctx)

	link := telegramLink(src.Username)
	if active {
		return fmt.Sprintf("As mensagens de %s serão encaminhadas", link)
	}
	return fmt.Sprintf("As mensagens de %s não serão mais encaminhadas (lembretes continuam ativos)", link)
}

func userIDOf(i *discordgo.InteractionCreate) (int64, error) {
	id, _ := senderOf(i)
	return strconv.ParseInt(id, 10, 64)
}

func reminderFailure(op, name, text string, err error) string {
	switch {
	case errors.Is(err, reminders.ErrGroupNotFound):
		return fmt.Sprintf("Você não tem um grupo chamado %s", bold(name))
	case errors.Is(err, reminders.ErrGroupAlreadyExists):
		return fmt.Sprintf("Você já tem um grupo chamado %s", bold(name))
	case errors.Is(err, reminders.ErrTextExists):
		return fmt.Sprintf("O texto %s já está no grupo %s", bold(text), bold(name))
	case errors.Is(err, reminders.ErrTextNotFound):
		return fmt.Sprintf("O texto %s não está no grupo %s", bold(text), bold(name))
	case errors.Is(err, reminders.ErrLimitReached):
		return "Limite atingido: " + strings.TrimPrefix(err.Error(), reminders.ErrLimitReached.Error()+": ")
	case errors.Is(err, reminders.ErrEmptyText):
		return "Informe pelo menos um texto válido"
	case errors.Is(err, reminders.ErrEmptyName):
		return "Informe um nome para o grupo"
	default:
		return failed(op, err)
	}
}

func (b *Bot) createGroup(ctx context.Context, i *discordgo.InteractionCreate, inv invocation) string {
	uid, err := userIDOf(i)
	if err != nil {
		return failed("parse user id", err)
	}
	name := inv.str("nome")
	g, err := b.deps.Reminders.CreateGroup(ctx, uid, name, reminders.SplitList(inv.str("textos")))
	if err != nil {
		return reminderFailure("create group", name, "", err)
	}

	escaped := make([]string, len(g.Texts))
	for k, t := range g.Texts {
		escaped[k] = escape(t)
	}
	return fmt.Sprintf("Vou te lembrar quando uma mensagem tiver todos os textos do grupo %s:\n%s",
		bold(g.Name), reminders.FormatList(escaped))
}

func (b *Bot) addText(ctx context.Context, i *discordgo.InteractionCreate, inv invocation) string {
	uid, err := userIDOf(i)
	if err != nil {
		return failed("parse user id", err)
	}
	name, text := inv.str("nome"), strings.TrimSpace(inv.str("texto"))
	if err := b.deps.Reminders.AddText(ctx, uid, name, text); err != nil {
		return reminderFailure("add text", name, text, err)
	}
	return fmt.Sprintf("Adicionei %s ao grupo %s", bold(text), bold(name))
}

func (b *Bot) removeText(ctx context.Context, i *discordgo.InteractionCreate, inv invocation) string {
	uid, err := userIDOf(i)
	if err != nil {
		return failed("parse user id", err)
	}
	name, text := inv.str("nome"), strings.TrimSpace(inv.str("texto"))
	deleted, err := b.deps.Reminders.RemoveText(ctx, uid, name, text)
	if err != nil {
		return reminderFailure("remove text", name, text, err)
	}
	if deleted {
		return fmt.Sprintf("Removi %s. O grupo %s ficou vazio e foi apagado", bold(text), bold(name))
	}
	return fmt.Sprintf("Não vou mais considerar %s no grupo %s", bold(text), bold(name))
}

func (b *Bot) deleteGroup(ctx context.Context, i *discordgo.InteractionCreate, inv invocation) string {
	uid, err := userIDOf(i)
	if err != nil {
		return failed("parse user id", err)
	}
	name := inv.str("nome")
	if err := b.deps.Reminders.DeleteGroup(ctx, uid, name); err != nil {
		return reminderFailure("delete group", name, "", err)
	}
	return fmt.Sprintf("Apaguei o grupo %s", bold(name))
}

func (b *Bot) listGroups(ctx context.Context, i *discordgo.InteractionCreate, _ invocation) string {
	uid, err := userIDOf(i)
	if err != nil {
		return failed("parse user id", err)
	}
	groups, err := b.deps.Reminders.ListGroups(ctx, uid)
	if err != nil {
		return failed("list groups", err)
	}
	return formatGroups(groups)
}

func (b *Bot) info(ctx context.Context, _ *discordgo.InteractionCreate, _ invocation) string {
	lines := []string{"**Telecord**"}

	if m := b.deps.Meter; m != nil {
		sent, failedSends := m.Totals(metering.KindChannel)
		dms, failedDMs := m.Totals(metering.KindDirect)
		lines = append(lines,
			"**Uptime:** "+formatDuration(m.Uptime()),
			fmt.Sprintf("**Mensagens encaminhadas:** %d (falhas: %d)", sent, failedSends),
			fmt.Sprintf("**Lembretes enviados:** %d (falhas: %d)", dms, failedDMs),
		)
	}

	if sources, err := b.deps.Channels.ListSourceChannels(ctx); err == nil {
		lines = append(lines, fmt.Sprintf("**Canais do Telegram:** %d", len(sources)))
	}
	if dests, err := b.deps.Channels.ListDestinationChannels(ctx); err == nil {
		lines = append(lines, fmt.Sprintf("**Canais do Discord:** %d", len(dests)))
	}

	if b.deps.Login != nil {
		if st, err := b.deps.Login.Status(ctx); err == nil && st.Authorized {
			lines = append(lines, "**Telegram:** conectado")
		} else {
			lines = append(lines, "**Telegram:** desconectado")
		}
	}
	return strings.Join(lines, "\n")
}
