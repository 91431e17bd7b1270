// Command piviewer is the CLI entry point.
//
// This tool receives a live video stream from a camera over WebRTC. The
// camera's offer and ICE candidates arrive over a WebSocket signaling server;
// the viewer answers and records or counts the received media.
//
// It can be launched interactively (no URL) or non-interactively via CLI
// flags (-wsUrl, -relay, -record, ...). Flags override the config file and
// PIVIEWER_* environment variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/piviewer/internal/app"
	"github.com/1ureka/piviewer/internal/config"
	"github.com/1ureka/piviewer/internal/relay"
	"github.com/1ureka/piviewer/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	configPath := flag.String("config", "", "Path to a YAML config file")
	wsURLFlag := flag.String("wsUrl", "", "Signaling server URL (e.g. ws://raspberrypi.local:9001)")
	relayFlag := flag.Bool("relay", false, "Run the embedded signaling relay")
	relayAddrFlag := flag.String("relayAddr", "", "Relay listen address (default "+relay.DefaultAddr+")")
	pinFlag := flag.String("pin", "", "Relay PIN, or \"auto\" for a random one")
	recordFlag := flag.String("record", "", "Directory to record received tracks to")
	stunFlag := flag.String("stun", "", "Comma-separated STUN/TURN URLs")
	noReconnect := flag.Bool("noReconnect", false, "Exit when the signaling connection ends")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	// Flags set explicitly win over file and environment.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "wsUrl":
			cfg.SignalURL = *wsURLFlag
		case "relay":
			cfg.Relay.Enabled = *relayFlag
		case "relayAddr":
			cfg.Relay.ListenAddr = *relayAddrFlag
		case "pin":
			cfg.Relay.PIN = *pinFlag
		case "record":
			cfg.RecordDir = *recordFlag
		case "stun":
			cfg.ICEServers = config.ParseList(*stunFlag)
		case "noReconnect":
			cfg.Reconnect.Enabled = !*noReconnect
		case "debug":
			cfg.Debug = *debugMode
		}
	})

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("piviewer — v%s", version))
	pterm.Println()

	// No flags and nothing configured → interactive mode.
	if flag.NFlag() == 0 && cfg.SignalURL == config.DefaultSignalURL && !cfg.Relay.Enabled {
		runInteractive(&cfg)
	} else if cfg.SignalURL == "" && !cfg.Relay.Enabled {
		cfg.SignalURL = askURL()
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("invalid configuration: %v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx, cfg); err != nil {
		util.LogError("viewer stopped: %v", err)
		os.Exit(1)
	}

	util.LogInfo("successfully closed viewer")
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// runInteractive lets the user pick between an external signaling server and
// the embedded relay.
func runInteractive(cfg *config.Config) {
	mode, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Connect — Use an existing signaling server", "Relay   — Run the signaling server here"}).
		WithDefaultText("Select signaling mode").
		Show()

	pterm.Println()

	if strings.HasPrefix(mode, "Relay") {
		cfg.Relay.Enabled = true
		cfg.SignalURL = ""
		return
	}
	cfg.SignalURL = askURL()
}

// askURL prompts the user for a valid WebSocket URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Signaling URL (e.g. ws://raspberrypi.local:9001)").
			Show()

		wsURL, err := config.NormalizeURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}
