package login

import (
	"context"
	"fmt"
	"io"

	"github.com/tinyland-inc/telecord/pkg/auth"
	"github.com/tinyland-inc/telecord/pkg/qr"
)

// terminalPresenter draws the QR code on the terminal and prompts for the
// two-factor password.
type terminalPresenter struct {
	in       io.Reader
	out      io.Writer
	password string
	renderer qr.Renderer
	account  func(ctx context.Context) (string, error)
}

func (p *terminalPresenter) ShowQR(_ context.Context, code auth.QRCode) (auth.Artifact, error) {
	text, err := p.renderer.Text(code.URL)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(p.out, "Scan this QR code in Telegram (Settings > Devices > Link Desktop Device):")
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, text)
	fmt.Fprintf(p.out, "The code expires in %d seconds (at %s).\n", code.ExpirationSeconds, code.ExpiresAt.Local().Format("15:04:05"))
	return nil, nil
}

func (p *terminalPresenter) Authorized(ctx context.Context) error {
	name := ""
	if p.account != nil {
		name, _ = p.account(ctx)
	}
	if name == "" {
		fmt.Fprintln(p.out, "Logged in to Telegram.")
		return nil
	}
	fmt.Fprintf(p.out, "Logged in to Telegram as %s.\n", name)
	return nil
}

func (p *terminalPresenter) Expired(context.Context) error {
	fmt.Fprintln(p.out, "The QR code expired. Run `telecord login` again.")
	return nil
}

func (p *terminalPresenter) Password(context.Context) (string, error) {
	if p.password != "" {
		return p.password, nil
	}
	return auth.ReadPassword(p.in, p.out)
}
