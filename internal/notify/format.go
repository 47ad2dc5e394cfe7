package notify

import (
	"fmt"

	"github.com/corvales/nftmarketd/internal/domain"
)

// formatListed renders a listing announcement.
func formatListed(e domain.ListedEvent) string {
	return fmt.Sprintf(
		"Listing #%d\nToken: %s #%d\nPrice: %s wei\nSeller: %s",
		e.ListingID,
		e.TokenContract.Hex(), e.TokenID,
		e.Price.String(),
		e.Seller.Hex(),
	)
}

// formatBought renders a settlement announcement.
func formatBought(e domain.BoughtEvent) string {
	return fmt.Sprintf(
		"Listing #%d settled\nToken: %s #%d\nPrice: %s wei\nSeller: %s\nBuyer: %s",
		e.ListingID,
		e.TokenContract.Hex(), e.TokenID,
		e.Price.String(),
		e.Seller.Hex(),
		e.Buyer.Hex(),
	)
}
