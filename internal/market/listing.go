package market

import (
	"sort"
	"strings"
	"time"
)

// Venue identifiers form a closed set; snapshots carrying anything else are
// rejected at validation.
const (
	Waxpeer      = "waxpeer"
	Skinport     = "skinport"
	Bitskins     = "bitskins"
	SteamMarket  = "steam_market"
	SteamListing = "steam_listing"
	Empire       = "empire"
	Shadowpay    = "shadowpay"
	CSDeals      = "csdeals"
	CSTrade      = "cstrade"
	LisSkins     = "lisskins"
	MarketCSGO   = "marketcsgo"
	Manncostore  = "manncostore"
	Tradeit      = "tradeit"
	Rapidskins   = "rapidskins"
	Skindeck     = "skindeck"
	Skinout      = "skinout"
	White        = "white"
	SteamID      = "steamid"
)

// Venues lists every supported venue identifier.
func Venues() []string {
	return []string{
		Waxpeer, Skinport, Bitskins, SteamMarket, SteamListing, Empire,
		Shadowpay, CSDeals, CSTrade, LisSkins, MarketCSGO, Manncostore,
		Tradeit, Rapidskins, Skindeck, Skinout, White, SteamID,
	}
}

// SteamVenues lists the Steam-origin venues whose snapshots feed the
// reference price table.
func SteamVenues() []string {
	return []string{SteamMarket, SteamListing}
}

// IsVenue reports membership in the closed venue set.
func IsVenue(name string) bool {
	for _, v := range Venues() {
		if v == name {
			return true
		}
	}
	return false
}

// Listing is the normalized record for one item on one venue. Prices are
// USD. A nil Quantity means the venue reported presence but not a count.
type Listing struct {
	Item     string         `json:"Item"`
	Price    float64        `json:"Price"`
	Platform string         `json:"Platform"`
	URL      string         `json:"URL,omitempty"`
	IconURL  string         `json:"IconUrl,omitempty"`
	Quantity *int           `json:"Quantity"`
	Extra    map[string]any `json:"Extra,omitempty"`
}

// Valid enforces the listing invariants: non-empty name, non-negative
// price, venue from the closed set, positive-or-nil quantity.
func (l Listing) Valid() bool {
	if strings.TrimSpace(l.Item) == "" {
		return false
	}
	if l.Price < 0 {
		return false
	}
	if !IsVenue(l.Platform) {
		return false
	}
	if l.Quantity != nil && *l.Quantity < 0 {
		return false
	}
	return true
}

// Snapshot is one venue's catalog at one harvest time. It is never mutated
// after publish.
type Snapshot struct {
	Venue   string
	TakenAt time.Time
	Items   []Listing
}

// Dedupe keeps one record per item name within a snapshot, retaining the
// lowest price, and returns the result sorted by name.
func Dedupe(items []Listing) []Listing {
	best := make(map[string]Listing, len(items))
	for _, it := range items {
		prev, ok := best[it.Item]
		if !ok || it.Price < prev.Price {
			best[it.Item] = it
		}
	}
	out := make([]Listing, 0, len(best))
	for _, it := range best {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

// IntPtr is a small helper for building Quantity values.
func IntPtr(v int) *int { return &v }
