package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/GTDGit/iap_core/internal/config"
	"github.com/GTDGit/iap_core/internal/iap"
	"github.com/GTDGit/iap_core/internal/models"
	"github.com/GTDGit/iap_core/internal/worker"
	"github.com/GTDGit/iap_core/pkg/appstore"
)

// main is the entrypoint for iapctl, a driver for the in-app-purchase core.
// Purchases and restores run against an in-process payment queue; receipt
// validation talks to the configured verification endpoint.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	setupLogger(cfg.Env)

	// 3. Wire the core
	app := newApp(cfg)

	if err := newRootCommand(app).Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired subsystems handed to the commands.
type app struct {
	cfg       *config.Config
	accounts  *models.AccountCatalog
	queue     *iap.MemoryQueue
	validator *appstore.Client
	helper    *iap.Helper
}

func newApp(cfg *config.Config) *app {
	accounts := models.NewAccountCatalog(cfg.IAP.BundleID)

	catalog := iap.NewStaticCatalog(
		models.ProductInfo{Identifier: accounts.Plus1Y().ProductIdentifier, Title: accounts.Plus1Y().String(), Price: "$9.99"},
		models.ProductInfo{Identifier: accounts.Pro1Y().ProductIdentifier, Title: accounts.Pro1Y().String(), Price: "$19.99"},
	)

	validator := appstore.NewClient(appstore.Config{
		ReceiptPath:   cfg.Verify.ReceiptPath,
		ProductionURL: cfg.Verify.ProductionURL,
		SandboxURL:    cfg.Verify.SandboxURL,
		Timeout:       cfg.Verify.Timeout,
	})

	queue := iap.NewMemoryQueue()

	return &app{
		cfg:       cfg,
		accounts:  accounts,
		queue:     queue,
		validator: validator,
		helper:    iap.NewHelper(queue, catalog, validator),
	}
}

func newRootCommand(app *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "iapctl",
		Short:         "Exercise the in-app-purchase core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newProductsCommand(app),
		newPurchaseCommand(app),
		newRestoreCommand(app),
		newValidateCommand(app),
		newWatchCommand(app),
	)
	return root
}

func newProductsCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List purchasable products",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			app.helper.Start(ctx)
			defer app.helper.Stop()

			ids := models.NewProductIdentifierSet()
			for _, a := range app.accounts.Purchasable() {
				ids.Add(a.ProductIdentifier)
			}

			done := make(chan struct{})
			app.helper.RequestProducts(ctx, ids, func(resp *iap.ProductsResponse, err error) {
				defer close(done)
				switch {
				case err != nil:
					printError(err)
				case len(resp.Products) > 0:
					for _, p := range resp.Products {
						if a, ok := app.accounts.Lookup(p.Identifier); ok {
							fmt.Printf("%s\t%s\t%s\n", p.Identifier, a, p.Price)
						}
					}
				default:
					fmt.Printf("Invalid product identifiers: %v\n", resp.InvalidIdentifiers)
				}
			})
			return wait(ctx, done)
		},
	}
}

func newPurchaseCommand(app *app) *cobra.Command {
	var simulateCancel bool
	cmd := &cobra.Command{
		Use:   "purchase <product-id|plus1y|pro1y>",
		Short: "Purchase a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			app.helper.Start(ctx)
			defer app.helper.Stop()

			if simulateCancel {
				app.queue.FailPurchasesWith(iap.ErrPaymentCancelled)
			}

			done := make(chan struct{})
			app.helper.Purchase(app.resolveProduct(args[0]), func(productID models.ProductIdentifier, err error) {
				defer close(done)
				if err != nil {
					printError(err)
					return
				}
				fmt.Println(productID)
			})
			return wait(ctx, done)
		},
	}
	cmd.Flags().BoolVar(&simulateCancel, "cancel", false, "simulate the user cancelling the payment")
	return cmd
}

func newRestoreCommand(app *app) *cobra.Command {
	var owned []string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore previously purchased products",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			app.helper.Start(ctx)
			defer app.helper.Stop()

			for _, id := range owned {
				app.queue.Own(app.resolveProduct(id))
			}

			done := make(chan struct{})
			app.helper.Restore(func(restored models.ProductIdentifierSet, err error) {
				defer close(done)
				switch {
				case len(restored) > 0:
					for _, id := range restored.Sorted() {
						fmt.Println(id)
					}
				case err != nil:
					printError(err)
				default:
					fmt.Println("No purchased product found.")
				}
			})
			return wait(ctx, done)
		},
	}
	cmd.Flags().StringSliceVar(&owned, "own", nil, "seed the simulated queue's purchase history")
	return cmd
}

func newValidateCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the local purchase receipt",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			result, err := app.helper.ValidateReceipt(ctx, app.cfg.IAP.SharedSecret)
			if err != nil {
				return err
			}
			if result.Status == appstore.StatusNoReceipt {
				fmt.Println("No Receipt.")
				return nil
			}
			fmt.Printf("status: %d\n", result.Status)
			for id, expiresAt := range result.Products {
				fmt.Printf("%s\t%s\n", id, expiresAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newWatchCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-validate the receipt periodically until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			w := worker.NewEntitlementWorker(app.validator, app.cfg.IAP.SharedSecret, app.cfg.Worker.RefreshInterval)
			w.Start(ctx)
			return nil
		},
	}
}

// resolveProduct accepts either a full product identifier or a tier
// shorthand (plus1y, pro1y).
func (a *app) resolveProduct(arg string) models.ProductIdentifier {
	switch arg {
	case "plus1y":
		return a.accounts.Plus1Y().ProductIdentifier
	case "pro1y":
		return a.accounts.Pro1Y().ProductIdentifier
	default:
		return models.ProductIdentifier(arg)
	}
}

// printError renders a queue error the way the UI would: cancellations are
// silent, everything else prints its plain description.
func printError(err error) {
	if errors.Is(err, iap.ErrPaymentCancelled) {
		return
	}
	fmt.Println(err)
}

func wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func setupLogger(env string) {
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
