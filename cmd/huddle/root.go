package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/huddlekit/huddle/internal/client"
	"github.com/spf13/cobra"
)

const (
	defaultServerURL = "ws://localhost:8080/ws"
	defaultSTUN      = "stun:stun.l.google.com:19302"
)

var (
	flagServer string
	flagName   string
	flagEmail  string
	flagSTUN   []string
	flagNocam  bool
)

var rootCmd = &cobra.Command{
	Use:   "huddle",
	Short: "Headless meeting-room client for the huddle relay",
	Long: `huddle connects to a signaling relay, joins or creates a meeting room
and maintains direct WebRTC links to every other participant. Chat is read
from stdin; roster, chat and link events are printed as they arrive.`,
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// engineOptions resolves settings with flag > env > default priority.
func engineOptions() (client.Options, error) {
	server := flagServer
	if server == "" {
		server = os.Getenv("HUDDLE_SERVER")
	}
	if server == "" {
		server = defaultServerURL
	}

	name := flagName
	if name == "" {
		name = os.Getenv("HUDDLE_NAME")
	}
	if name == "" {
		return client.Options{}, fmt.Errorf("display name required (--name or HUDDLE_NAME)")
	}

	email := flagEmail
	if email == "" {
		email = os.Getenv("HUDDLE_EMAIL")
	}

	stun := flagSTUN
	if len(stun) == 0 {
		if env := os.Getenv("HUDDLE_STUN"); env != "" {
			stun = strings.Split(env, ",")
		}
	}
	if len(stun) == 0 {
		stun = []string{defaultSTUN}
	}

	opts := client.Options{
		ServerURL:  server,
		Identity:   client.Identity{Name: name, Email: email},
		ICEServers: stun,
	}
	if !flagNocam {
		opts.MediaDevice = &client.SyntheticDevice{
			Label:         "cam",
			FrameInterval: 33 * time.Millisecond,
			WithAudio:     true,
		}
		opts.DisplayDevice = &client.SyntheticDevice{
			Label:         "screen",
			FrameInterval: 100 * time.Millisecond,
		}
	}
	return opts, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagServer, "server", "s", "", "relay WebSocket URL")
	rootCmd.PersistentFlags().StringVarP(&flagName, "name", "n", "", "display name")
	rootCmd.PersistentFlags().StringVarP(&flagEmail, "email", "e", "", "contact email (optional)")
	rootCmd.PersistentFlags().StringSliceVar(&flagSTUN, "stun", nil, "STUN server URLs")
	rootCmd.PersistentFlags().BoolVar(&flagNocam, "no-media", false, "run without outgoing media")
}
