package oauth

import (
	"fmt"

	"github.com/skratchdot/open-golang/open"
)

// OpenBrowser launches the user's default browser at the login URL,
// mirroring the way the CLIProxyAPI family of gateways drives its own
// OAuth login step.
func OpenBrowser(url string) error {
	if err := open.Run(url); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}
