package live

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"mdwindow/internal/domain"
)

// ErrUnsupportedProduct is returned by Symbols for product types the asset
// list does not cover.
var ErrUnsupportedProduct = errors.New("product type has no live asset list")

// AssetSource is the subset of the Alpaca trading client used to list
// active symbols.
type AssetSource interface {
	GetAssets(req alpaca.GetAssetsRequest) ([]alpaca.Asset, error)
}

// Compile-time interface check.
var _ AssetSource = (*alpaca.Client)(nil)

var assetClasses = map[domain.ProductType]string{
	domain.ProductUSEquity: "us_equity",
	domain.ProductCrypto:   "crypto",
}

// WithAssets sets the source used by Symbols.
func (c *Client) WithAssets(a AssetSource) *Client {
	c.assets = a
	return c
}

// Symbols returns the active symbols of product, sorted and de-duplicated.
func (c *Client) Symbols(ctx context.Context, product domain.ProductType) ([]string, error) {
	if c == nil || c.assets == nil {
		return nil, ErrNotConfigured
	}
	class, ok := assetClasses[product]
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedProduct, product, product.Label())
	}

	var assets []alpaca.Asset
	err := c.call(ctx, "assets "+class, func() (err error) {
		assets, err = c.assets.GetAssets(alpaca.GetAssetsRequest{
			Status:     "active",
			AssetClass: class,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(assets))
	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		sym := strings.ToUpper(strings.TrimSpace(a.Symbol))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols, nil
}
