package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/photopay/photopay/client"
	"github.com/urfave/cli/v2"
)

func listingCommands() *cli.Command {
	return &cli.Command{
		Name:  "listings",
		Usage: "Listing management commands",
		Subcommands: []*cli.Command{
			listingPublishCommand(),
			listingListCommand(),
			listingGetCommand(),
			listingDownloadCommand(),
			listingUnlockedCommand(),
			creatorStatsCommand(),
		},
	}
}

func listingPublishCommand() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Aliases:   []string{"create"},
		Usage:     "Publish a new listing from a local file",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{
				Name:     "title",
				Aliases:  []string{"t"},
				Usage:    "Listing title",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "description",
				Aliases: []string{"d"},
				Usage:   "Listing description",
			},
			&cli.Int64Flag{
				Name:     "price",
				Aliases:  []string{"p"},
				Usage:    "Price in lamports",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "creator",
				Aliases:  []string{"c"},
				Usage:    "Creator wallet address",
				EnvVars:  []string{"PHOTOPAY_WALLET"},
				Required: true,
			},
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("file path is required")
			}

			filePath := c.Args().Get(0)
			f, err := os.Open(filePath)
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			defer f.Close()

			cl := newClient(c)
			listing, err := cl.CreateListing(context.Background(), client.CreateListingParams{
				Title:         c.String("title"),
				Description:   c.String("description"),
				PriceLamports: c.Int64("price"),
				CreatorWallet: c.String("creator"),
				Filename:      filepath.Base(filePath),
				Content:       f,
			})
			if err != nil {
				return fmt.Errorf("failed to publish listing: %w", err)
			}

			if c.Bool("json") {
				return printJSON(listing, "")
			}

			fmt.Printf("✓ Listing published\n")
			fmt.Printf("  ID:    %s\n", listing.ID)
			fmt.Printf("  Title: %s\n", listing.Title)
			fmt.Printf("  Price: %d lamports\n", listing.PriceLamports)
			return nil
		},
	}
}

func listingListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List marketplace listings (outputs JSON by default)",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{
				Name:    "creator",
				Aliases: []string{"c"},
				Usage:   "Filter to a creator's listings",
			},
			&cli.BoolFlag{
				Name:    "active",
				Aliases: []string{"a"},
				Usage:   "Show only active listings",
			},
			queryFlag(),
		},
		Action: func(c *cli.Context) error {
			cl := newClient(c)
			listings, err := cl.ListListings(context.Background(), c.String("creator"), c.Bool("active"))
			if err != nil {
				return fmt.Errorf("failed to list listings: %w", err)
			}
			return printJSON(listings, c.String("query"))
		},
	}
}

func listingGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Aliases:   []string{"show"},
		Usage:     "Get details for a listing",
		ArgsUsage: "LISTING_ID",
		Flags: []cli.Flag{
			serverFlag(),
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("listing id is required")
			}

			cl := newClient(c)
			listing, err := cl.GetListing(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get listing: %w", err)
			}

			if c.Bool("json") {
				return printJSON(listing, "")
			}

			fmt.Printf("ID:          %s\n", listing.ID)
			fmt.Printf("Title:       %s\n", listing.Title)
			if listing.Description != "" {
				fmt.Printf("Description: %s\n", listing.Description)
			}
			fmt.Printf("Price:       %d lamports\n", listing.PriceLamports)
			fmt.Printf("Creator:     %s\n", listing.CreatorWallet)
			fmt.Printf("Active:      %t\n", listing.IsActive)
			fmt.Printf("Sold:        %t\n", listing.IsSold)
			fmt.Printf("Created At:  %s\n", listing.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func listingDownloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Get a signed download URL for purchased content",
		ArgsUsage: "LISTING_ID",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{
				Name:     "wallet",
				Aliases:  []string{"w"},
				Usage:    "Wallet address of the creator or buyer",
				EnvVars:  []string{"PHOTOPAY_WALLET"},
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("listing id is required")
			}

			cl := newClient(c)
			url, err := cl.DownloadURL(context.Background(), c.Args().Get(0), c.String("wallet"))
			if err != nil {
				return fmt.Errorf("failed to get download url: %w", err)
			}

			fmt.Println(url)
			return nil
		},
	}
}

func listingUnlockedCommand() *cli.Command {
	return &cli.Command{
		Name:      "unlocked",
		Usage:     "List content a buyer has paid for (outputs JSON by default)",
		ArgsUsage: "BUYER_WALLET",
		Flags: []cli.Flag{
			serverFlag(),
			queryFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("buyer wallet is required")
			}

			cl := newClient(c)
			listings, err := cl.UnlockedListings(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to list unlocked content: %w", err)
			}
			return printJSON(listings, c.String("query"))
		},
	}
}

func creatorStatsCommand() *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show a creator's sales summary",
		ArgsUsage: "CREATOR_WALLET",
		Flags: []cli.Flag{
			serverFlag(),
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("creator wallet is required")
			}

			cl := newClient(c)
			stats, err := cl.GetCreatorStats(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get creator stats: %w", err)
			}

			if c.Bool("json") {
				return printJSON(stats, "")
			}

			fmt.Printf("Creator:         %s\n", stats.CreatorWallet)
			fmt.Printf("Total Listings:  %d\n", stats.TotalListings)
			fmt.Printf("Active Listings: %d\n", stats.ActiveListings)
			fmt.Printf("Sold Listings:   %d\n", stats.SoldListings)
			fmt.Printf("Total Earned:    %d lamports (%.4f SOL)\n",
				stats.TotalEarnedLamports, float64(stats.TotalEarnedLamports)/1e9)
			return nil
		},
	}
}
