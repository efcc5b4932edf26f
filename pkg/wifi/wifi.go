// Package wifi verifies and restores the wireless link during supervisor
// recovery. Credentials live in wpa_supplicant; this package only checks
// association and nudges the supplicant when the link is down.
package wifi

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Link checks and restores the wireless association
type Link struct {
	iface string
}

// New returns a Link for the given interface, e.g. "wlan0"
func New(iface string) *Link {
	return &Link{iface: iface}
}

// IsConnected reports whether the interface is associated with a network
func (l *Link) IsConnected() bool {
	output, err := exec.Command("iwgetid", l.iface, "-r").Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// SSID returns the currently associated network name, or ""
func (l *Link) SSID() string {
	output, err := exec.Command("iwgetid", l.iface, "-r").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// EnsureConnected returns once the link is associated, reassociating via
// wpa_cli if needed. It fails when the context expires first.
func (l *Link) EnsureConnected(ctx context.Context) error {
	if l.IsConnected() {
		return nil
	}

	if err := exec.CommandContext(ctx, "wpa_cli", "-i", l.iface, "reconfigure").Run(); err != nil {
		return fmt.Errorf("wifi: failed to reconfigure %s: %w", l.iface, err)
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wifi: %s did not associate: %w", l.iface, ctx.Err())
		case <-time.After(1 * time.Second):
		}

		if l.IsConnected() {
			return nil
		}
	}
}
