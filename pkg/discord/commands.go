package discord

import (
	"github.com/bwmarrin/discordgo"
)

const (
	cmdTelegram  = "telegram"
	cmdChannels  = "canais"
	cmdReminders = "lembretes"
	cmdInfo      = "info"
)

func ptr[T any](v T) *T { return &v }

func subcommand(name, description string, options ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: description,
		Options:     options,
	}
}

func group(name, description string, subs ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
		Name:        name,
		Description: description,
		Options:     subs,
	}
}

func stringOpt(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

func boolOpt(name, description string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionBoolean,
		Name:        name,
		Description: description,
		Required:    required,
	}
}

func textChannelOpt(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         name,
		Description:  description,
		Required:     true,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
	}
}

// Commands is the slash command tree registered on ready.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:         cmdTelegram,
			Description:  "Configuração da conta do Telegram",
			DMPermission: ptr(false),
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("login", "Faz login no Telegram via QR code",
					stringOpt("senha", "Senha 2FA (opcional, apenas se sua conta tiver autenticação de dois fatores)", false)),
				subcommand("logout", "Encerra a sessão do Telegram"),
				subcommand("status", "Mostra o estado da conexão com o Telegram"),
			},
		},
		{
			Name:         cmdChannels,
			Description:  "Gerenciamento de canais",
			DMPermission: ptr(false),
			Options: []*discordgo.ApplicationCommandOption{
				group("discord", "Comandos para gerenciar canais do Discord",
					subcommand("adicionar", "Adiciona um canal do Discord", textChannelOpt("canal", "Canal do Discord")),
					subcommand("remover", "Remove um canal do Discord", textChannelOpt("canal", "Canal do Discord")),
					subcommand("listar", "Lista todos os canais do Discord"),
				),
				group("telegram", "Comandos para gerenciar canais do Telegram",
					subcommand("adicionar", "Adiciona um canal do Telegram",
						stringOpt("canal", "Link ou username do canal do Telegram", true),
						boolOpt("encaminhar", "Se o canal deve encaminhar mensagens para o Discord (padrão: sim)", false)),
					subcommand("remover", "Remove um canal do Telegram",
						stringOpt("canal", "Link ou username do canal do Telegram", true)),
					subcommand("listar", "Lista todos os canais do Telegram"),
					subcommand("encaminhar", "Liga ou desliga o encaminhamento de um canal do Telegram",
						stringOpt("canal", "Link ou username do canal do Telegram", true),
						boolOpt("ativo", "Encaminhar as mensagens do canal", true)),
				),
			},
		},
		{
			Name:        cmdReminders,
			Description: "Gerenciamento de lembretes",
			Options: []*discordgo.ApplicationCommandOption{
				subcommand("criar", "Cria um grupo de lembretes; todos os textos precisam aparecer na mensagem",
					stringOpt("nome", "Nome do grupo", true),
					stringOpt("textos", "Textos separados por vírgula", true)),
				subcommand("adicionar", "Adiciona um texto a um grupo",
					stringOpt("nome", "Nome do grupo", true),
					stringOpt("texto", "Texto a adicionar", true)),
				subcommand("remover", "Remove um texto de um grupo",
					stringOpt("nome", "Nome do grupo", true),
					stringOpt("texto", "Texto a remover", true)),
				subcommand("apagar", "Apaga um grupo de lembretes",
					stringOpt("nome", "Nome do grupo", true)),
				subcommand("listar", "Mostra os lembretes que o bot está guardando pra você"),
			},
		},
		{
			Name:        cmdInfo,
			Description: "Mostra informações do bot",
		},
	}
}

// invocation is a parsed slash command: the path of subcommand names and the
// leaf options by name.
type invocation struct {
	path    []string
	options map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func parseInvocation(data discordgo.ApplicationCommandInteractionData) invocation {
	inv := invocation{path: []string{data.Name}}
	opts := data.Options
	for len(opts) == 1 && (opts[0].Type == discordgo.ApplicationCommandOptionSubCommand ||
		opts[0].Type == discordgo.ApplicationCommandOptionSubCommandGroup) {
		inv.path = append(inv.path, opts[0].Name)
		opts = opts[0].Options
	}
	inv.options = make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		inv.options[o.Name] = o
	}
	return inv
}

func (inv invocation) route() string {
	out := inv.path[0]
	for _, p := range inv.path[1:] {
		out += " " + p
	}
	return out
}

func (inv invocation) str(name string) string {
	if o, ok := inv.options[name]; ok {
		return o.StringValue()
	}
	return ""
}

func (inv invocation) boolean(name string, def bool) bool {
	if o, ok := inv.options[name]; ok {
		return o.BoolValue()
	}
	return def
}

func (inv invocation) channelID(name string) string {
	if o, ok := inv.options[name]; ok {
		return o.ChannelValue(nil).ID
	}
	return ""
}
