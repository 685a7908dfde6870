// Command classdb indexes classpath locations into a persistent classdb
// database and answers class lookups against it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "classdb:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "classdb",
		Usage:                  "Persistent class index over jars, jmods and class directories",
		Version:                version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (TOML)",
				EnvVars: []string{"CLASSDB_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Override the storage backend (memory, local, badger, s3, minio)",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Override the data directory",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (e.g. :9090)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Register and index classpath entries",
				ArgsUsage: "[paths...]",
				Action:    indexCommand,
			},
			{
				Name:      "find",
				Usage:     "Resolve a class on the classpath and print its location",
				ArgsUsage: "<fully.qualified.Name>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "classpath",
						Aliases: []string{"cp"},
						Usage:   "Classpath entries (defaults to the configured classpath)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the class bytes to this file",
					},
				},
				Action: findCommand,
			},
			{
				Name:  "records",
				Usage: "List persisted location records",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
					&cli.BoolFlag{
						Name:  "cleanup",
						Usage: "Reclaim deprecated records before listing",
					},
				},
				Action: recordsCommand,
			},
			{
				Name:      "watch",
				Usage:     "Keep the classpath indexed, refreshing on change until interrupted",
				ArgsUsage: "[paths...]",
				Action:    watchCommand,
			},
		},
	}
}
