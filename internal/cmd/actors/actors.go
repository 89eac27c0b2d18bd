// Package actors parses actor runtime flags and starts the runtime.
package actors

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/louisbranch/actorspace/internal/platform/cmd"
	server "github.com/louisbranch/actorspace/internal/services/actors/app"
)

// Config holds actors command configuration.
type Config struct {
	HTTPAddr         string `env:"ACTORSPACE_ACTORS_HTTP_ADDR"         envDefault:":8090"`
	GRPCAddr         string `env:"ACTORSPACE_ACTORS_GRPC_ADDR"         envDefault:":8091"`
	Store            string `env:"ACTORSPACE_ACTORS_STORE"             envDefault:"sqlite"`
	DBPath           string `env:"ACTORSPACE_ACTORS_DB_PATH"           envDefault:"data/actors.db"`
	MailboxSize      int    `env:"ACTORSPACE_ACTORS_MAILBOX_SIZE"      envDefault:"64"`
	SubscriberBuffer int    `env:"ACTORSPACE_ACTORS_SUBSCRIBER_BUFFER" envDefault:"256"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "actors HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "actors gRPC health listen address")
	fs.StringVar(&cfg.Store, "store", cfg.Store, "actor state backend: sqlite, bbolt or memory")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "actor state database path")
	fs.IntVar(&cfg.MailboxSize, "mailbox-size", cfg.MailboxSize, "operations queued per actor before callers block")
	fs.IntVar(&cfg.SubscriberBuffer, "subscriber-buffer", cfg.SubscriberBuffer, "events buffered per watcher before it conflates")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the actor runtime with telemetry.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceActors, func(ctx context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:         cfg.HTTPAddr,
			GRPCAddr:         cfg.GRPCAddr,
			Store:            cfg.Store,
			DBPath:           cfg.DBPath,
			MailboxSize:      cfg.MailboxSize,
			SubscriberBuffer: cfg.SubscriberBuffer,
		}); err != nil {
			return fmt.Errorf("serve actors: %w", err)
		}
		return nil
	})
}
