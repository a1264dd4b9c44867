// Telecord - Telegram to Discord channel bridge
// Forwards link posts from public Telegram channels and pings users whose
// reminders match.
// License: MIT
//
// Copyright (c) 2026 Telecord contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/telecord/cmd/telecord/internal"
	"github.com/tinyland-inc/telecord/cmd/telecord/internal/gateway"
	"github.com/tinyland-inc/telecord/cmd/telecord/internal/login"
	"github.com/tinyland-inc/telecord/cmd/telecord/internal/migrate"
	"github.com/tinyland-inc/telecord/cmd/telecord/internal/version"
)

func NewTelecordCommand() *cobra.Command {
	short := fmt.Sprintf("%s telecord - Telegram to Discord bridge v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:     "telecord",
		Short:   short,
		Example: "telecord gateway",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		login.NewLoginCommand(),
		migrate.NewMigrateCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewTelecordCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
