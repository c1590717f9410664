package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/erp/manufacture/internal/domain/ledger"
	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/infrastructure/persistence/models"
)

// GormProductResolver resolves barcodes through the product_barcodes directory
type GormProductResolver struct {
	db *gorm.DB
}

// NewGormProductResolver creates a new GormProductResolver
func NewGormProductResolver(db *gorm.DB) *GormProductResolver {
	return &GormProductResolver{db: db}
}

// Resolve returns the product identity carrying barcode for account, or ledger.ErrProductNotFound
func (r *GormProductResolver) Resolve(ctx context.Context, account marketplace.AccountID, barcode string) (ledger.ProductIdentity, error) {
	var row models.ProductBarcodeModel
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND barcode = ?", account.String(), barcode).
		First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.ProductIdentity{}, ledger.ErrProductNotFound
		}
		return ledger.ProductIdentity{}, err
	}
	return row.ToDomain(), nil
}

// Register stores or replaces the product identity behind a barcode
func (r *GormProductResolver) Register(ctx context.Context, barcode string, product ledger.ProductIdentity) error {
	row := models.ProductBarcodeModel{
		AccountID:      product.Account.String(),
		Barcode:        barcode,
		Invariable:     product.Invariable,
		ProductID:      product.Product,
		OfferID:        product.Offer,
		VariationID:    product.Variation,
		ModificationID: product.Modification,
	}
	return r.db.WithContext(ctx).Save(&row).Error
}

var _ ledger.ProductResolver = (*GormProductResolver)(nil)
