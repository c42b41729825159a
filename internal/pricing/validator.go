package pricing

import (
	"context"
	"fmt"

	"github.com/angelmondragon/pickup-orders/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pickup-orders/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// MaxLineQuantity bounds the quantity of a single item after duplicates merge.
	MaxLineQuantity = 99
	// DefaultMaxTotalMinor is the largest order total accepted when no cap is configured.
	DefaultMaxTotalMinor int64 = 10_000_000_00
)

// CatalogReader fetches menu items by id.
type CatalogReader interface {
	GetItems(ctx context.Context, itemIDs []uuid.UUID) ([]models.MenuItem, error)
}

// LineRequest is one requested catalog item.
type LineRequest struct {
	ItemID   uuid.UUID
	Quantity int
}

// PricedLine carries the authoritative catalog price for a requested item.
type PricedLine struct {
	MenuItemID        uuid.UUID
	Name              string
	UnitPriceMinor    int64
	Quantity          int
	LineSubtotalMinor int64
}

// Quote is the priced result of a validated cart.
type Quote struct {
	Lines         []PricedLine
	SubtotalMinor int64
	TaxMinor      int64
	TotalMinor    int64
	ItemCount     int
}

// Validator prices carts from the catalog. Client-supplied prices are never consulted.
type Validator struct {
	catalog       CatalogReader
	taxRate       decimal.Decimal
	maxTotalMinor int64
}

// NewValidator builds a validator with a tax rate in [0, 1).
func NewValidator(catalog CatalogReader, taxRate decimal.Decimal) (*Validator, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog reader required")
	}
	if taxRate.IsNegative() || taxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("tax rate must be in [0, 1), got %s", taxRate)
	}
	return &Validator{catalog: catalog, taxRate: taxRate, maxTotalMinor: DefaultMaxTotalMinor}, nil
}

// WithMaxTotal caps the order total in minor units. Non-positive values keep the default.
func (v *Validator) WithMaxTotal(maxTotalMinor int64) *Validator {
	if maxTotalMinor > 0 {
		v.maxTotalMinor = maxTotalMinor
	}
	return v
}

// Validate merges duplicate ids, checks every item exists, belongs to the outlet
// and is available, then prices the lines.
func (v *Validator) Validate(ctx context.Context, outletID uuid.UUID, lines []LineRequest) (*Quote, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	for _, line := range lines {
		if err := checkQuantity(line); err != nil {
			return nil, err
		}
	}
	merged := mergeLines(lines)
	ids := make([]uuid.UUID, 0, len(merged))
	for _, line := range merged {
		if err := checkQuantity(line); err != nil {
			return nil, err
		}
		ids = append(ids, line.ItemID)
	}

	records, err := v.catalog.GetItems(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu items")
	}
	byID := make(map[uuid.UUID]models.MenuItem, len(records))
	for _, record := range records {
		byID[record.ID] = record
	}

	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeItemNotFound, "one or more items do not exist").
			WithDetails(map[string]any{"missing_item_ids": missing})
	}

	var unavailable []string
	for _, id := range ids {
		record := byID[id]
		if record.OutletID != outletID || !record.IsAvailable {
			unavailable = append(unavailable, record.Name)
		}
	}
	if len(unavailable) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeItemUnavailable, "one or more items are unavailable").
			WithDetails(map[string]any{"unavailable_items": unavailable})
	}

	// Sums run in decimal so an oversized cart is rejected instead of wrapping.
	limit := decimal.NewFromInt(v.maxTotalMinor)
	quote := &Quote{Lines: make([]PricedLine, 0, len(merged))}
	subtotal := decimal.Zero
	for _, line := range merged {
		record := byID[line.ItemID]
		if record.PriceMinor < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "menu item has a negative price").
				WithDetails(map[string]any{"item_id": record.ID.String()})
		}
		lineSubtotal := decimal.NewFromInt(record.PriceMinor).Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineSubtotal)
		if subtotal.GreaterThan(limit) {
			return nil, totalTooLarge(v.maxTotalMinor)
		}
		quote.Lines = append(quote.Lines, PricedLine{
			MenuItemID:        record.ID,
			Name:              record.Name,
			UnitPriceMinor:    record.PriceMinor,
			Quantity:          line.Quantity,
			LineSubtotalMinor: lineSubtotal.IntPart(),
		})
		quote.ItemCount += line.Quantity
	}
	tax := taxOn(subtotal, v.taxRate)
	total := subtotal.Add(tax)
	if total.GreaterThan(limit) {
		return nil, totalTooLarge(v.maxTotalMinor)
	}
	quote.SubtotalMinor = subtotal.IntPart()
	quote.TaxMinor = tax.IntPart()
	quote.TotalMinor = total.IntPart()
	return quote, nil
}

// ComputeTax applies rate to subtotal and rounds half up to the minor unit.
func ComputeTax(subtotalMinor int64, rate decimal.Decimal) int64 {
	return taxOn(decimal.NewFromInt(subtotalMinor), rate).IntPart()
}

func taxOn(subtotal, rate decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(rate).Round(0)
}

func checkQuantity(line LineRequest) error {
	if line.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"item_id": line.ItemID.String()})
	}
	if line.Quantity > MaxLineQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be at most %d", MaxLineQuantity)).
			WithDetails(map[string]any{"item_id": line.ItemID.String(), "max_quantity": MaxLineQuantity})
	}
	return nil
}

func totalTooLarge(maxTotalMinor int64) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "order total exceeds the allowed maximum").
		WithDetails(map[string]any{"max_total_minor": maxTotalMinor})
}

// mergeLines sums quantities of repeated ids, keeping first-seen order.
func mergeLines(lines []LineRequest) []LineRequest {
	index := make(map[uuid.UUID]int, len(lines))
	merged := make([]LineRequest, 0, len(lines))
	for _, line := range lines {
		if pos, ok := index[line.ItemID]; ok {
			merged[pos].Quantity += line.Quantity
			continue
		}
		index[line.ItemID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}
