/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/roshambo/guard"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	allowedOrigins     []string
	bind               string
	maxScore           int
	messageBurst       int
	messageRate        float64
	moveSecret         string
	port               int
	postgresURL        string
	prefix             string
	profile            bool
	replayWindow       time.Duration
	requireSignedMoves bool
	resetDelay         time.Duration
	roomIdleTimeout    time.Duration
	sweepInterval      time.Duration
	tlsCert            string
	tlsKey             string
	verbose            bool
	version            bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.requireSignedMoves && c.moveSecret == "" {
		return errors.New("--require-signed-moves needs --move-secret")
	}
	if c.resetDelay <= 0 || c.roomIdleTimeout <= 0 || c.sweepInterval <= 0 {
		return errors.New("--reset-delay, --room-idle-timeout and --sweep-interval must be positive")
	}
	if c.replayWindow <= 0 {
		return errors.New("--replay-window must be positive")
	}
	if c.maxScore < 0 {
		return fmt.Errorf("invalid max score (must be 0 or greater): %d", c.maxScore)
	}
	if c.messageRate <= 0 || c.messageBurst < 1 {
		return errors.New("--message-rate must be positive and --message-burst at least 1")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ROSHAMBO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "roshambo",
		Short:         "Rock-paper-scissors rooms for two players over websockets.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.version {
				fmt.Printf("roshambo v%s\n", releaseVersion)
				return nil
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringSliceVar(&cfg.allowedOrigins, "allowed-origins", nil, "websocket origins to accept, any if empty (env: ROSHAMBO_ALLOWED_ORIGINS)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: ROSHAMBO_BIND)")
	fs.IntVar(&cfg.maxScore, "max-score", 0, "round wins that end a match, 0 to play forever (env: ROSHAMBO_MAX_SCORE)")
	fs.IntVar(&cfg.messageBurst, "message-burst", 20, "websocket frames a connection may send in a burst (env: ROSHAMBO_MESSAGE_BURST)")
	fs.Float64Var(&cfg.messageRate, "message-rate", 10, "sustained websocket frames per second per connection (env: ROSHAMBO_MESSAGE_RATE)")
	fs.StringVar(&cfg.moveSecret, "move-secret", "", "secret used to verify move tags (env: ROSHAMBO_MOVE_SECRET)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: ROSHAMBO_PORT)")
	fs.StringVar(&cfg.postgresURL, "postgres-url", "", "postgres connection string for player stats, in-memory if empty (env: ROSHAMBO_POSTGRES_URL)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: ROSHAMBO_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: ROSHAMBO_PROFILE)")
	fs.DurationVar(&cfg.replayWindow, "replay-window", guard.DefaultReplayTTL, "how long move nonces are remembered and how far move timestamps may drift (env: ROSHAMBO_REPLAY_WINDOW)")
	fs.BoolVar(&cfg.requireSignedMoves, "require-signed-moves", false, "reject moves without a valid tag, nonce and timestamp (env: ROSHAMBO_REQUIRE_SIGNED_MOVES)")
	fs.DurationVar(&cfg.resetDelay, "reset-delay", 3*time.Second, "time a round result stays on screen before the next round (env: ROSHAMBO_RESET_DELAY)")
	fs.DurationVar(&cfg.roomIdleTimeout, "room-idle-timeout", time.Hour, "age after which empty rooms are swept (env: ROSHAMBO_ROOM_IDLE_TIMEOUT)")
	fs.DurationVar(&cfg.sweepInterval, "sweep-interval", 15*time.Minute, "time between idle room sweeps (env: ROSHAMBO_SWEEP_INTERVAL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: ROSHAMBO_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: ROSHAMBO_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: ROSHAMBO_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: ROSHAMBO_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("roshambo v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
