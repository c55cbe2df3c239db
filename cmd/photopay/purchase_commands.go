package main

import (
	"context"
	"fmt"
	"time"

	"github.com/photopay/photopay/client"
	"github.com/urfave/cli/v2"
)

func purchaseCommands() *cli.Command {
	return &cli.Command{
		Name:  "purchases",
		Usage: "Purchase and payment commands",
		Subcommands: []*cli.Command{
			purchaseCreateCommand(),
			purchaseGetCommand(),
			purchasePayCommand(),
			purchaseVerifyCommand(),
			purchaseHistoryCommand(),
		},
	}
}

func purchaseCreateCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Aliases:   []string{"open"},
		Usage:     "Open a pending purchase for a listing",
		ArgsUsage: "LISTING_ID",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{
				Name:     "buyer",
				Aliases:  []string{"b"},
				Usage:    "Buyer wallet address",
				EnvVars:  []string{"PHOTOPAY_WALLET"},
				Required: true,
			},
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("listing id is required")
			}

			cl := newClient(c)
			purchase, err := cl.CreatePurchase(context.Background(), c.Args().Get(0), c.String("buyer"))
			if err != nil {
				return fmt.Errorf("failed to create purchase: %w", err)
			}

			if c.Bool("json") {
				return printJSON(purchase, "")
			}

			fmt.Printf("✓ Purchase created\n")
			fmt.Printf("  ID:        %s\n", purchase.ID)
			fmt.Printf("  Listing:   %s\n", purchase.ListingID)
			fmt.Printf("  Amount:    %d lamports\n", purchase.AmountLamports)
			fmt.Printf("  Recipient: %s\n", purchase.RecipientAddress)
			fmt.Printf("  Status:    %s\n", purchase.Status)
			return nil
		},
	}
}

func purchaseGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Aliases:   []string{"show"},
		Usage:     "Get details for a purchase",
		ArgsUsage: "PURCHASE_ID",
		Flags: []cli.Flag{
			serverFlag(),
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("purchase id is required")
			}

			cl := newClient(c)
			purchase, err := cl.GetPurchase(context.Background(), c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get purchase: %w", err)
			}

			if c.Bool("json") {
				return printJSON(purchase, "")
			}

			printPurchase(purchase)
			return nil
		},
	}
}

func purchasePayCommand() *cli.Command {
	return &cli.Command{
		Name:      "pay",
		Aliases:   []string{"transaction"},
		Usage:     "Build an unsigned payment transaction for a purchase",
		ArgsUsage: "PURCHASE_ID",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{
				Name:     "sender",
				Usage:    "Sender wallet address (the buyer's wallet)",
				EnvVars:  []string{"PHOTOPAY_WALLET"},
				Required: true,
			},
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("purchase id is required")
			}

			cl := newClient(c)
			payment, err := cl.BuildTransaction(context.Background(), c.Args().Get(0), c.String("sender"))
			if err != nil {
				return fmt.Errorf("failed to build transaction: %w", err)
			}

			if c.Bool("json") {
				return printJSON(payment, "")
			}

			fmt.Printf("✓ Payment transaction built\n")
			fmt.Printf("  Blockhash:       %s\n", payment.Blockhash)
			fmt.Printf("  Valid Until:     block %d\n", payment.LastValidBlockHeight)
			fmt.Printf("  Payment URL:     %s\n", payment.PaymentURL)
			fmt.Printf("\nSign and submit this transaction with your wallet:\n%s\n",
				payment.UnsignedTransactionBase64)
			return nil
		},
	}
}

func purchaseVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Submit a transaction signature for verification (blocks until the signature settles or the polling budget runs out)",
		ArgsUsage: "PURCHASE_ID SIGNATURE",
		Flags: []cli.Flag{
			serverFlag(),
			jsonFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("purchase id and transaction signature are required")
			}

			purchaseID := c.Args().Get(0)
			signature := c.Args().Get(1)

			if !c.Bool("json") {
				fmt.Printf("Verifying payment for purchase %s...\n", purchaseID)
			}

			cl := newClient(c)
			result, err := cl.Verify(context.Background(), purchaseID, signature)
			if err != nil {
				return fmt.Errorf("failed to verify purchase: %w", err)
			}

			if c.Bool("json") {
				return printJSON(result, "")
			}

			switch result.Status {
			case "confirmed":
				fmt.Printf("✓ Payment confirmed\n")
			case "failed":
				fmt.Printf("✗ Payment failed: %s\n", result.Reason)
			default:
				fmt.Printf("… Payment still pending: %s\n", result.Reason)
				fmt.Println("Re-run this command to check again.")
			}
			printPurchase(&result.Purchase)
			return nil
		},
	}
}

func purchaseHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:    "history",
		Aliases: []string{"list", "ls"},
		Usage:   "List a buyer's purchases (outputs JSON by default)",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{
				Name:     "buyer",
				Aliases:  []string{"b"},
				Usage:    "Buyer wallet address",
				EnvVars:  []string{"PHOTOPAY_WALLET"},
				Required: true,
			},
			queryFlag(),
		},
		Action: func(c *cli.Context) error {
			cl := newClient(c)
			purchases, err := cl.ListPurchases(context.Background(), c.String("buyer"))
			if err != nil {
				return fmt.Errorf("failed to list purchases: %w", err)
			}
			return printJSON(purchases, c.String("query"))
		},
	}
}

func printPurchase(p *client.Purchase) {
	fmt.Printf("  ID:        %s\n", p.ID)
	fmt.Printf("  Listing:   %s\n", p.ListingID)
	fmt.Printf("  Buyer:     %s\n", p.BuyerWallet)
	fmt.Printf("  Amount:    %d lamports\n", p.AmountLamports)
	fmt.Printf("  Recipient: %s\n", p.RecipientAddress)
	fmt.Printf("  Status:    %s\n", p.Status)
	if p.TransactionSignature != nil {
		fmt.Printf("  Signature: %s\n", *p.TransactionSignature)
	}
	if p.FailureReason != nil {
		fmt.Printf("  Failure:   %s\n", *p.FailureReason)
	}
	if p.ConfirmedAt != nil {
		fmt.Printf("  Confirmed: %s\n", p.ConfirmedAt.Format(time.RFC3339))
	}
}
