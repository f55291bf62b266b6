package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/novasettle/loan-marketplace/internal/adapter"
	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/providers/marketplaceapi"
)

// Config holds the benchmark configuration
type Config struct {
	APIURL      string
	ListingID   uint64
	Buyers      int
	Concurrency int
	BuyerPrefix string
	TxHash      string
	Timeout     time.Duration
	OutputFile  string
	Debug       bool
}

// marketplace is the subset of the API client the benchmark drives
type marketplace interface {
	ListListings(ctx context.Context) ([]domain.Listing, error)
	PurchaseListing(ctx context.Context, id uint64, owner, txHash string) (*domain.Listing, error)
	Verify(ctx context.Context, address string) (bool, error)
}

func main() {
	cfg := parseFlags()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	client := marketplaceapi.NewClient(adapter.NewHTTPClient(cfg.Timeout), cfg.APIURL, adapter.NewJSON())

	listing, err := resolveListing(ctx, client, cfg.ListingID)
	if err != nil {
		fmt.Printf("Error resolving listing: %v\n", err)
		os.Exit(1)
	}
	cfg.ListingID = listing.ID

	fmt.Printf("Target API: %s\n", cfg.APIURL)
	fmt.Printf("Racing %d buyers for listing #%d (%s %s)\n", cfg.Buyers, listing.ID, listing.LoanAmount, listing.LoanToken)

	buyers := buyerAddresses(cfg.BuyerPrefix, cfg.Buyers)

	fmt.Printf("\nVerifying buyers...\n")
	verifyStart := time.Now()
	if err := verifyBuyers(ctx, client, buyers, cfg.Concurrency); err != nil {
		fmt.Printf("Error verifying buyers: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ %d buyers verified in %s\n", len(buyers), formatDuration(time.Since(verifyStart)))

	fmt.Printf("\nFiring purchases...\n")
	stats := runContention(ctx, client, cfg, buyers)

	if ctx.Err() != nil {
		fmt.Println("\n\n" + strings.Repeat("=", 80))
		fmt.Println("INTERRUPTED - PARTIAL RESULTS")
		fmt.Println(strings.Repeat("=", 80))
		printRunStats(stats)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("BENCHMARK RESULTS")
	fmt.Println(strings.Repeat("=", 80))
	printRunStats(stats)

	// Write to markdown file if specified
	if cfg.OutputFile != "" {
		if err := writeMarkdownReport(cfg.OutputFile, stats); err != nil {
			fmt.Printf("\n⚠️  Warning: Failed to write markdown file: %v\n", err)
		} else {
			fmt.Printf("\n✓ Report written to: %s\n", cfg.OutputFile)
		}
	}

	if len(stats.Winners) > 1 {
		os.Exit(2)
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.APIURL, "api-url", defaultAPIURL, "Marketplace API base URL")
	flag.Uint64Var(&cfg.ListingID, "listing-id", 0, "Listing to race for (0 = first active listing)")
	flag.IntVar(&cfg.Buyers, "buyers", defaultBuyers, "Number of distinct buyers")
	flag.IntVar(&cfg.Concurrency, "concurrency", defaultConcurrency, "Number of concurrent workers")
	flag.StringVar(&cfg.BuyerPrefix, "buyer-prefix", defaultBuyerPrefix, "Prefix for generated buyer addresses")
	flag.StringVar(&cfg.TxHash, "tx-hash", "", "Transaction hash sent with each purchase (optional)")
	flag.StringVar(&cfg.OutputFile, "output", "", "Output markdown file path (optional)")
	flag.BoolVar(&cfg.Debug, "debug", false, "Print every attempt")
	flag.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP timeout per request")

	profilePath := flag.String("config", "", `Race profile file, "default" for `+profileFileName+` in the home directory (optional)`)

	flag.Parse()

	if *profilePath != "" {
		if *profilePath == "default" {
			*profilePath = DefaultRaceProfilePath()
		}
		profile, err := LoadRaceProfile(*profilePath)
		if err != nil {
			fmt.Printf("Warning: failed to load race profile: %v\n", err)
		} else {
			explicit := make(map[string]bool)
			flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
			profile.applyTo(cfg, explicit)
		}
	}

	cfg.normalize()
	return cfg
}

// resolveListing finds the listing to race for. With id 0 the first active listing is used.
func resolveListing(ctx context.Context, api marketplace, id uint64) (*domain.Listing, error) {
	listings, err := api.ListListings(ctx)
	if err != nil {
		return nil, err
	}

	for i := range listings {
		l := listings[i]
		if id != 0 && l.ID != id {
			continue
		}
		if l.Status != domain.ListingStatusActive || l.HasOwner() {
			if id != 0 {
				return nil, fmt.Errorf("listing %d is %s", id, l.Status)
			}
			continue
		}
		return &l, nil
	}

	if id != 0 {
		return nil, fmt.Errorf("listing %d not found", id)
	}
	return nil, fmt.Errorf("no active listing available")
}

func buyerAddresses(prefix string, n int) []string {
	buyers := make([]string, n)
	for i := range buyers {
		buyers[i] = fmt.Sprintf("%s%04d", prefix, i+1)
	}
	return buyers
}

// verifyBuyers runs KYC for every buyer so purchases are not rejected as unverified
func verifyBuyers(ctx context.Context, api marketplace, buyers []string, concurrency int) error {
	pool := pond.NewResultPool[error](concurrency, pond.WithContext(ctx))
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for _, buyer := range buyers {
		buyer := buyer
		group.Submit(func() error {
			verified, err := api.Verify(ctx, buyer)
			if err != nil {
				return fmt.Errorf("%s: %w", buyer, err)
			}
			if !verified {
				return fmt.Errorf("%s: verification was not granted", buyer)
			}
			return nil
		})
	}

	results, err := group.Wait()
	if err != nil {
		return err
	}
	for _, resultErr := range results {
		if resultErr != nil {
			return resultErr
		}
	}
	return nil
}

// runContention fires one purchase per buyer at the same listing.
// Workers block on a shared start signal so requests overlap as much as the pool allows.
func runContention(ctx context.Context, api marketplace, cfg *Config, buyers []string) *RunStats {
	pool := pond.NewResultPool[Attempt](cfg.Concurrency, pond.WithContext(ctx))
	defer pool.StopAndWait()

	start := make(chan struct{})
	tasks := make([]pond.Result[Attempt], 0, len(buyers))

	for _, buyer := range buyers {
		buyer := buyer
		tasks = append(tasks, pool.Submit(func() Attempt {
			<-start
			begin := time.Now()
			_, err := api.PurchaseListing(ctx, cfg.ListingID, buyer, cfg.TxHash)
			attempt := Attempt{
				Buyer:   buyer,
				Latency: time.Since(begin),
				Outcome: classifyOutcome(err),
				Err:     err,
			}
			if cfg.Debug {
				fmt.Printf("  %s %-8s %s\n", buyer, attempt.Outcome, formatDuration(attempt.Latency))
			}
			return attempt
		}))
	}

	startTime := time.Now()
	close(start)

	attempts := make([]Attempt, 0, len(tasks))
	for _, task := range tasks {
		attempt, err := task.Wait()
		if err != nil {
			// task never ran, e.g. the run was interrupted
			continue
		}
		attempts = append(attempts, attempt)
	}

	stats := summarize(attempts)
	stats.ListingID = cfg.ListingID
	stats.Buyers = len(attempts)
	stats.Concurrency = cfg.Concurrency
	stats.StartTime = startTime
	stats.Elapsed = time.Since(startTime)
	return stats
}
