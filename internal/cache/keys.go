package cache

import (
	"strings"
	"time"

	"github.com/najdi123/currency-sub003/internal/config"
)

// Namespace is the key prefix shared by every tier.
const Namespace = "marketdata"

// Tier is an independent cache namespace with its own TTL.
type Tier string

const (
	TierFresh      Tier = "fresh"
	TierStale      Tier = "stale"
	TierOHLC       Tier = "ohlc"
	TierHistorical Tier = "historical"
)

// Tiers lists every tier.
func Tiers() []Tier {
	return []Tier{TierFresh, TierStale, TierOHLC, TierHistorical}
}

// TTLSet holds the default TTL of each tier.
type TTLSet struct {
	Fresh      time.Duration
	Stale      time.Duration
	OHLC       time.Duration
	Historical time.Duration
}

// DefaultTTLSet returns 5m fresh, 7d stale, 1h OHLC and 24h historical.
func DefaultTTLSet() TTLSet {
	return TTLSet{
		Fresh:      5 * time.Minute,
		Stale:      7 * 24 * time.Hour,
		OHLC:       time.Hour,
		Historical: 24 * time.Hour,
	}
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	def := DefaultTTLSet()
	return TTLSet{
		Fresh:      durationOrDefault(cfg.Fresh, def.Fresh),
		Stale:      durationOrDefault(cfg.Stale, def.Stale),
		OHLC:       durationOrDefault(cfg.OHLC, def.OHLC),
		Historical: durationOrDefault(cfg.Historical, def.Historical),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the TTL configured for tier.
func (t TTLSet) Duration(tier Tier) time.Duration {
	switch tier {
	case TierFresh:
		return t.Fresh
	case TierStale:
		return t.Stale
	case TierOHLC:
		return t.OHLC
	case TierHistorical:
		return t.Historical
	default:
		return 0
	}
}

// Max returns the longest TTL in the set.
func (t TTLSet) Max() time.Duration {
	longest := t.Fresh
	for _, d := range []time.Duration{t.Stale, t.OHLC, t.Historical} {
		if d > longest {
			longest = d
		}
	}
	return longest
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// StoreKey returns the backing-store key of a logical key within tier.
func StoreKey(tier Tier, key string) string {
	return formatKey(string(tier), key)
}

// DayKey scopes a subject to a calendar day (UTC), e.g. "btc:2025-01-10".
// Used for the OHLC and historical tiers.
func DayKey(subject string, day time.Time) string {
	return strings.TrimSpace(subject) + ":" + day.UTC().Format(time.DateOnly)
}
