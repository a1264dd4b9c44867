package discord

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tinyland-inc/telecord/pkg/channels"
	"github.com/tinyland-inc/telecord/pkg/reminders"
	"github.com/tinyland-inc/telecord/pkg/telegram"
)

// MaxMessageLength is Discord's limit for message content, in runes.
const MaxMessageLength = 2000

const (
	msgNoPermission     = "Você não tem permissão para usar este comando."
	msgGenericError     = "Erro ao processar o comando. Tente novamente."
	msgTelegramOffline  = "O Telegram não está conectado. Use `/telegram login` primeiro."
	msgLoginStarting    = "Iniciando login via QR code..."
	msgLoginStartingPwd = "Iniciando login via QR code... (senha 2FA fornecida)"
	msgLoginAuthError   = "**Erro de autenticação:** Por favor, tente fazer login novamente."
	msgLoginBadPassword = "**Senha inválida:** A senha fornecida está incorreta. Por favor, verifique e tente novamente."
	msgLoginNeedsPwd    = "**Erro:** Senha 2FA necessária. Use `/telegram login senha:sua_senha` para fornecer a senha."
	msgQRExpired        = "**QR code expirado!** Por favor, use `/telegram login` novamente para gerar um novo QR code."
	msgLoggedOut        = "Sessão do Telegram encerrada."
	msgJoinFailed       = "Não foi possível entrar no canal, tente novamente mais tarde."
	msgPublicOnly       = "Apenas canais públicos podem ser adicionados."
)

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"~", `\~`,
	"`", "\\`",
	"|", `\|`,
	">", `\>`,
)

func escape(s string) string { return markdownEscaper.Replace(s) }

func bold(s string) string { return "**" + escape(s) + "**" }

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}

func channelMention(id int64) string {
	return "<#" + strconv.FormatInt(id, 10) + ">"
}

func telegramLink(username string) string {
	return fmt.Sprintf("[%s](%s)", escape(username), telegram.ChannelURL(username))
}

// qrCaption is shown above the QR code.
func qrCaption(seconds int, expiresAt time.Time) string {
	return fmt.Sprintf("Escaneie este QR code com o Telegram:\n⏱️ Este QR code expira em **%d segundos** (às %s UTC)",
		seconds, expiresAt.UTC().Format("15:04:05"))
}

func loginSuccess(account string) string {
	if account == "" {
		return "Login realizado com sucesso!"
	}
	return "Login realizado com sucesso! Logado como " + bold(account)
}

func alreadyLoggedIn(account string) string {
	if account == "" {
		return "Já está logado no Telegram."
	}
	return "Já está logado como " + bold(account)
}

func formatDestinations(list []channels.DestinationChannel) string {
	if len(list) == 0 {
		return "Não há canais do Discord configurados"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Você tem %d %s do Discord configurado(s):\n\n", len(list), plural(len(list), "canal", "canais"))
	for i, d := range list {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- " + channelMention(d.ID))
	}
	return b.String()
}

func formatSources(list []channels.SourceChannel) string {
	if len(list) == 0 {
		return "Não há canais do Telegram configurados"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Você tem %d %s do Telegram configurado(s):\n\n", len(list), plural(len(list), "canal", "canais"))
	for i, s := range list {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- " + telegramLink(s.Username))
		if !s.Forward {
			b.WriteString(" (apenas lembretes)")
		}
	}
	return b.String()
}

func formatGroups(groups []reminders.Group) string {
	if len(groups) == 0 {
		return "Você não tem nenhum lembrete guardado"
	}
	var b strings.Builder
	n := len(groups)
	fmt.Fprintf(&b, "Você tem %d grupo%s de lembretes guardado%s:\n", n, plural(n, "", "s"), plural(n, "", "s"))
	for _, g := range groups {
		escaped := make([]string, len(g.Texts))
		for i, t := range g.Texts {
			escaped[i] = escape(t)
		}
		fmt.Fprintf(&b, "\n%s\n%s\n", bold(g.Name), reminders.FormatList(escaped))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, d/time.Second)
}

// SplitMessage cuts text into chunks of at most limit runes, preferring to
// break after a newline and then after a space.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		if i := lastIndex(runes[:limit], '\n'); i > 0 {
			cut = i + 1
		} else if i := lastIndex(runes[:limit], ' '); i > 0 {
			cut = i + 1
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func lastIndex(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}
