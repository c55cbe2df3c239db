package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

func userCommands() *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "User registration commands",
		Subcommands: []*cli.Command{
			userRegisterCommand(),
			userGetCommand(),
			userUpdateCommand(),
		},
	}
}

func userRegisterCommand() *cli.Command {
	return &cli.Command{
		Name:      "register",
		Aliases:   []string{"add"},
		Usage:     "Register a wallet as a marketplace user",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{
				Name:    "role",
				Aliases: []string{"r"},
				Value:   "buyer",
				Usage:   "User role: creator or buyer",
			},
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "Optional display name",
			},
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}

			address := c.Args().Get(0)
			role := c.String("role")

			var username *string
			if u := c.String("username"); u != "" {
				username = &u
			}

			cl := newClient(c)
			user, err := cl.CreateUser(context.Background(), address, username, role)
			if err != nil {
				return fmt.Errorf("failed to register user: %w", err)
			}

			if c.Bool("json") {
				return printJSON(user, "")
			}

			fmt.Printf("✓ User registered successfully\n")
			fmt.Printf("  Address: %s\n", user.WalletAddress)
			fmt.Printf("  Role:    %s\n", user.Role)
			if user.Username != nil {
				fmt.Printf("  Name:    %s\n", *user.Username)
			}
			return nil
		},
	}
}

func userGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Aliases:   []string{"show"},
		Usage:     "Get details for a registered user",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			serverFlag(),
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}

			cl := newClient(c)
			user, err := cl.GetUser(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get user: %w", err)
			}

			if c.Bool("json") {
				return printJSON(user, "")
			}

			fmt.Printf("Address:    %s\n", user.WalletAddress)
			fmt.Printf("Role:       %s\n", user.Role)
			if user.Username != nil {
				fmt.Printf("Name:       %s\n", *user.Username)
			}
			fmt.Printf("Created At: %s\n", user.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func userUpdateCommand() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Change a user's display name",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "New display name",
			},
			&cli.BoolFlag{
				Name:  "clear",
				Usage: "Clear the display name",
			},
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}

			var username *string
			switch {
			case c.Bool("clear"):
				// leave nil
			case c.String("username") != "":
				u := c.String("username")
				username = &u
			default:
				return fmt.Errorf("either --username or --clear is required")
			}

			cl := newClient(c)
			user, err := cl.UpdateUser(context.Background(), c.Args().Get(0), username)
			if err != nil {
				return fmt.Errorf("failed to update user: %w", err)
			}

			if c.Bool("json") {
				return printJSON(user, "")
			}

			if user.Username != nil {
				fmt.Printf("✓ Display name set to %s\n", *user.Username)
			} else {
				fmt.Println("✓ Display name cleared")
			}
			return nil
		},
	}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check whether the server is up",
		Flags: []cli.Flag{
			serverFlag(),
		},
		Action: func(c *cli.Context) error {
			cl := newClient(c)
			if err := cl.Health(context.Background()); err != nil {
				return err
			}
			fmt.Println("✓ Server is healthy")
			return nil
		},
	}
}
