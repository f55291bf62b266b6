package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/novasettle/loan-marketplace/internal/domain"
)

// Outcome classifies a single purchase attempt
type Outcome string

const (
	OutcomeWon      Outcome = "won"
	OutcomeRejected Outcome = "rejected"
	OutcomeInvalid  Outcome = "invalid"
	OutcomeFailed   Outcome = "failed"
)

// Attempt is the result of one buyer racing for the listing
type Attempt struct {
	Buyer   string
	Latency time.Duration
	Outcome Outcome
	Err     error
}

// RunStats aggregates every attempt of a benchmark run
type RunStats struct {
	ListingID   uint64
	Buyers      int
	Concurrency int
	StartTime   time.Time
	Elapsed     time.Duration

	Winners  []string
	Rejected int
	Invalid  int
	Failed   int

	MinLatency time.Duration
	AvgLatency time.Duration
	P50Latency time.Duration
	P95Latency time.Duration
	MaxLatency time.Duration

	// FailureSamples holds up to maxFailureSamples distinct error messages
	FailureSamples []string
}

const maxFailureSamples = 5

// classifyOutcome maps a purchase error to an outcome.
// Losing the race surfaces as an illegal transition from purchased.
func classifyOutcome(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeWon
	case errors.Is(err, domain.ErrIllegalTransition):
		return OutcomeRejected
	case errors.Is(err, domain.ErrValidation):
		return OutcomeInvalid
	default:
		return OutcomeFailed
	}
}

// summarize builds run statistics from the collected attempts
func summarize(attempts []Attempt) *RunStats {
	stats := &RunStats{}
	if len(attempts) == 0 {
		return stats
	}

	latencies := make([]time.Duration, 0, len(attempts))
	var total time.Duration
	seen := map[string]bool{}

	for _, a := range attempts {
		latencies = append(latencies, a.Latency)
		total += a.Latency

		switch a.Outcome {
		case OutcomeWon:
			stats.Winners = append(stats.Winners, a.Buyer)
		case OutcomeRejected:
			stats.Rejected++
		case OutcomeInvalid:
			stats.Invalid++
		default:
			stats.Failed++
			if a.Err != nil && !seen[a.Err.Error()] && len(stats.FailureSamples) < maxFailureSamples {
				seen[a.Err.Error()] = true
				stats.FailureSamples = append(stats.FailureSamples, a.Err.Error())
			}
		}
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	sort.Strings(stats.Winners)

	stats.MinLatency = latencies[0]
	stats.MaxLatency = latencies[len(latencies)-1]
	stats.AvgLatency = total / time.Duration(len(latencies))
	stats.P50Latency = percentile(latencies, 50)
	stats.P95Latency = percentile(latencies, 95)

	return stats
}

// percentile returns the nearest-rank percentile of sorted latencies
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// verdict describes whether the run upheld single-winner purchasing
func verdict(stats *RunStats) string {
	switch {
	case stats.Failed > 0:
		return "errors during run"
	case len(stats.Winners) == 1:
		return "exactly one winner"
	case len(stats.Winners) == 0:
		return "no winner"
	default:
		return fmt.Sprintf("%d winners", len(stats.Winners))
	}
}

func printRunStats(stats *RunStats) {
	attempts := stats.Buyers

	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("Listing:       #%d\n", stats.ListingID)
	fmt.Printf("  Buyers:      %d\n", stats.Buyers)
	fmt.Printf("  Concurrency: %d\n", stats.Concurrency)
	fmt.Printf("  Start Time:  %s\n", stats.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Duration:    %s\n", formatDuration(stats.Elapsed))
	fmt.Printf("  Rate:        %s\n", formatRate(attempts, stats.Elapsed))
	fmt.Println()

	fmt.Printf("%s Outcome: %s\n", statusEmoji(len(stats.Winners), stats.Failed), verdict(stats))
	fmt.Printf("  Won:         %d (%s)\n", len(stats.Winners), percentageString(len(stats.Winners), attempts))
	fmt.Printf("  Rejected:    %d (%s)\n", stats.Rejected, percentageString(stats.Rejected, attempts))
	if stats.Invalid > 0 {
		fmt.Printf("  Invalid:     %d (%s)\n", stats.Invalid, percentageString(stats.Invalid, attempts))
	}
	if stats.Failed > 0 {
		fmt.Printf("  Failed:      %d (%s)\n", stats.Failed, percentageString(stats.Failed, attempts))
	}
	for _, w := range stats.Winners {
		fmt.Printf("  Winner:      %s\n", w)
	}
	fmt.Println()

	fmt.Println("Latency:")
	fmt.Printf("  Min:         %s\n", formatDuration(stats.MinLatency))
	fmt.Printf("  Avg:         %s\n", formatDuration(stats.AvgLatency))
	fmt.Printf("  P50:         %s\n", formatDuration(stats.P50Latency))
	fmt.Printf("  P95:         %s\n", formatDuration(stats.P95Latency))
	fmt.Printf("  Max:         %s\n", formatDuration(stats.MaxLatency))

	if len(stats.FailureSamples) > 0 {
		fmt.Println()
		fmt.Println("Failures:")
		for _, msg := range stats.FailureSamples {
			fmt.Printf("  - %s\n", msg)
		}
	}

	fmt.Println(strings.Repeat("-", 80))
}

// writeMarkdownReport writes a markdown report of the run stats
func writeMarkdownReport(filepath string, stats *RunStats) error {
	file, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer func() {
		_ = file.Close()
	}()

	var b strings.Builder
	b.WriteString("# Purchase Contention Benchmark\n\n")
	fmt.Fprintf(&b, "**Listing:** #%d  \n", stats.ListingID)
	fmt.Fprintf(&b, "**Started:** %s  \n", stats.StartTime.Format(time.RFC3339))
	fmt.Fprintf(&b, "**Duration:** %s  \n", formatDuration(stats.Elapsed))
	fmt.Fprintf(&b, "**Outcome:** %s %s\n\n", statusEmoji(len(stats.Winners), stats.Failed), verdict(stats))

	b.WriteString("## Attempts\n\n")
	b.WriteString("| Result | Count | Share |\n")
	b.WriteString("|--------|-------|-------|\n")
	fmt.Fprintf(&b, "| Won | %d | %s |\n", len(stats.Winners), percentageString(len(stats.Winners), stats.Buyers))
	fmt.Fprintf(&b, "| Rejected | %d | %s |\n", stats.Rejected, percentageString(stats.Rejected, stats.Buyers))
	fmt.Fprintf(&b, "| Invalid | %d | %s |\n", stats.Invalid, percentageString(stats.Invalid, stats.Buyers))
	fmt.Fprintf(&b, "| Failed | %d | %s |\n\n", stats.Failed, percentageString(stats.Failed, stats.Buyers))

	b.WriteString("## Latency\n\n")
	b.WriteString("| Min | Avg | P50 | P95 | Max | Rate |\n")
	b.WriteString("|-----|-----|-----|-----|-----|------|\n")
	fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
		formatDuration(stats.MinLatency),
		formatDuration(stats.AvgLatency),
		formatDuration(stats.P50Latency),
		formatDuration(stats.P95Latency),
		formatDuration(stats.MaxLatency),
		formatRate(stats.Buyers, stats.Elapsed))

	if len(stats.Winners) > 0 {
		b.WriteString("\n## Winners\n\n")
		for _, w := range stats.Winners {
			fmt.Fprintf(&b, "- `%s`\n", w)
		}
	}

	if len(stats.FailureSamples) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, msg := range stats.FailureSamples {
			fmt.Fprintf(&b, "- %s\n", msg)
		}
	}

	_, err = file.WriteString(b.String())
	return err
}
