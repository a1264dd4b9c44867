package discord

import (
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// AllowList decides who may run admin commands. Configured entries win; when
// none are configured the application's owner and team members are admins.
type AllowList struct {
	configured []string

	mu     sync.RWMutex
	owners []string
}

func NewAllowList(ids []string) *AllowList {
	var configured []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			configured = append(configured, id)
		}
	}
	return &AllowList{configured: configured}
}

// SetApplication records the owner, or the team members, of app.
func (a *AllowList) SetApplication(app *discordgo.Application) {
	if app == nil {
		return
	}
	var owners []string
	if app.Owner != nil && app.Owner.ID != "" {
		owners = append(owners, app.Owner.ID)
	}
	if app.Team != nil {
		for _, m := range app.Team.Members {
			if m != nil && m.User != nil {
				owners = append(owners, m.User.ID)
			}
		}
	}

	a.mu.Lock()
	a.owners = owners
	a.mu.Unlock()
}

// IsAllowed accepts a bare user id or a compound "id|username" sender, and
// entries in either form, with or without a leading "@".
func (a *AllowList) IsAllowed(senderID string) bool {
	list := a.configured
	if len(list) == 0 {
		a.mu.RLock()
		list = a.owners
		a.mu.RUnlock()
	}
	if senderID == "" || len(list) == 0 {
		return false
	}

	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range list {
		trimmed := strings.TrimPrefix(allowed, "@")
		allowedID := trimmed
		allowedUser := ""
		if idx := strings.Index(trimmed, "|"); idx > 0 {
			allowedID = trimmed[:idx]
			allowedUser = trimmed[idx+1:]
		}

		if senderID == trimmed ||
			idPart == trimmed ||
			idPart == allowedID ||
			(allowedUser != "" && userPart == allowedUser) ||
			(userPart != "" && userPart == trimmed) {
			return true
		}
	}
	return false
}

func senderOf(i *discordgo.InteractionCreate) (id, compound string) {
	var u *discordgo.User
	switch {
	case i.Member != nil && i.Member.User != nil:
		u = i.Member.User
	case i.User != nil:
		u = i.User
	default:
		return "", ""
	}
	return u.ID, u.ID + "|" + u.Username
}
