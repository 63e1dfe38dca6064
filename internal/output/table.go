package output

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/coinlens/coinlens/internal/core/ratelimit"
	"github.com/coinlens/coinlens/internal/core/respcache"
)

// RateLimitTable renders per-service limiter stats as an ASCII table.
func RateLimitTable(stats map[string]ratelimit.ServiceStats, now time.Time) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Service", "Rate/min", "Tokens", "Capacity", "Next Token", "Backoff"})

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := stats[name]
		backoff := "-"
		if s.BackoffUntil.After(now) {
			backoff = fmt.Sprintf("%s (until %s)",
				s.BackoffUntil.Sub(now).Round(time.Second),
				s.BackoffUntil.UTC().Format(time.RFC3339))
		}
		t.AppendRow(table.Row{
			name,
			fmt.Sprintf("%.0f", s.Rate*60),
			fmt.Sprintf("%.2f", s.Tokens),
			fmt.Sprintf("%.0f", s.Capacity),
			s.NextWait.Round(time.Millisecond).String(),
			backoff,
		})
	}

	return t.Render()
}

// CacheStatsTable renders cache counters as an ASCII table.
func CacheStatsTable(stats respcache.Stats) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Entries", fmt.Sprintf("%d / %d", stats.Size, stats.MaxSize)},
		{"Hits", stats.Hits},
		{"Misses", stats.Misses},
		{"Hit rate", fmt.Sprintf("%.1f%%", stats.HitRate*100)},
		{"Evictions", stats.Evictions},
	})
	return t.Render()
}

// CachePolicyTable renders the expiry rule table in evaluation order.
func CachePolicyTable(rules []respcache.Rule, defaultTTL time.Duration) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Pattern", "TTL"})

	for i, rule := range rules {
		t.AppendRow(table.Row{i + 1, rule.Pattern, rule.TTL.String()})
	}
	t.AppendFooter(table.Row{"", "default", defaultTTL.String()})

	return t.Render()
}
