package market

import (
	"sort"
	"strings"
)

// SteamURLBase prefixes every Steam Market deep link.
const SteamURLBase = "https://steamcommunity.com/market/listings/730/"

// venueURLBase maps each buy venue to its item search or detail URL prefix.
var venueURLBase = map[string]string{
	Waxpeer:     "https://waxpeer.com/item/cs-go/",
	CSDeals:     "https://cs.deals/market/",
	Empire:      "https://csgoempire.com/shop/",
	Skinport:    "https://skinport.com/market/730?search=",
	Bitskins:    "https://bitskins.com/market/730/search?market_hash_name=",
	CSTrade:     "https://cs.trade/csgo-skins?search=",
	MarketCSGO:  "https://market.csgo.com/?search=",
	Tradeit:     "https://tradeit.gg/csgo/trade?search=",
	Skindeck:    "https://skindeck.com/listings?query=",
	Rapidskins:  "https://rapidskins.com/item/",
	Manncostore: "https://mannco.store/item/730/",
	Shadowpay:   "https://shadowpay.com/csgo?search=",
	Skinout:     "https://skinout.gg/market/cs2?item=",
	LisSkins:    "https://lis-skins.com/market_730.html?search_item=",
	White:       "https://white.market/search?game[]=CS2&query=",
}

// BuyVenues lists the venues items can be bought on, sorted by name.
func BuyVenues() []string {
	out := make([]string, 0, len(venueURLBase))
	for v := range venueURLBase {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

var (
	nameEncoder = strings.NewReplacer(" ", "%20", "|", "%7C")
	nameDecoder = strings.NewReplacer("%20", " ", "%7C", "|")
)

// EncodeName escapes an item name for URL embedding. Only space and pipe
// need escaping in Steam market hash names.
func EncodeName(name string) string { return nameEncoder.Replace(name) }

// DecodeName is the inverse of EncodeName.
func DecodeName(encoded string) string { return nameDecoder.Replace(encoded) }

// BuyURL constructs the deep link for an item on a venue. Unknown venues
// produce an empty string.
func BuyURL(venue, item string) string {
	base, ok := venueURLBase[venue]
	if !ok {
		return ""
	}
	return base + EncodeName(item)
}

// SteamURL constructs the Steam Market deep link for an item.
func SteamURL(item string) string { return SteamURLBase + EncodeName(item) }
