package app

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"net/url"

	"github.com/pterm/pterm"

	"github.com/1ureka/piviewer/internal/config"
	"github.com/1ureka/piviewer/internal/relay"
)

// PINAuto asks for a random relay PIN.
const PINAuto = "auto"

// startRelay starts the embedded hub and returns it with the URL the viewer
// itself should connect to.
func startRelay(cfg config.Relay) (*relay.Server, string, error) {
	pin := cfg.PIN
	if pin == PINAuto {
		pin = generatePIN(4)
	}

	srv := relay.NewServer(relay.Options{
		Addr:              cfg.ListenAddr,
		PIN:               pin,
		MaxMessageBytes:   cfg.MaxMessageBytes,
		MessagesPerSecond: cfg.MessagesPerSecond,
	})
	addr, err := srv.Start()
	if err != nil {
		return nil, "", err
	}

	localURL, err := LocalURL(addr, pin)
	if err != nil {
		srv.Close()
		return nil, "", err
	}

	text := fmt.Sprintf("Address : %s\nPIN     : %s", addr, orNone(pin))
	text += "\n\nPoint the camera at ws://<this host>:<port>/ws"
	if pin != "" {
		text += "?pin=" + pin
	}
	pterm.DefaultBox.WithTitle("Signaling Relay").Println(text)
	pterm.Println()

	return srv, localURL, nil
}

// LocalURL returns the loopback URL of a relay bound to addr. Wildcard hosts
// are replaced with 127.0.0.1.
func LocalURL(addr, pin string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid relay address %q: %w", addr, err)
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}

	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, port), Path: "/ws"}
	if pin != "" {
		u.RawQuery = url.Values{"pin": {pin}}.Encode()
	}
	return u.String(), nil
}

// generatePIN returns a random numeric PIN of the specified length.
func generatePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
