package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Best effort; the CLI works fine without a .env file.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "photopay",
		Usage: "Photo marketplace CLI",
		Description: `A command-line tool for interacting with the photopay service.

Use this CLI to register users, publish and browse listings, and walk a
purchase through payment and verification.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			userCommands(),
			listingCommands(),
			purchaseCommands(),
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
