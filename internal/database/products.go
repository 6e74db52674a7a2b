package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/julienbonastre/produce-shipping/internal/calculator"
)

// Product is a sellable item with a default shipping size
type Product struct {
	ID           int64                   `json:"id"`
	Name         string                  `json:"name"`
	ShippingSize calculator.ShippingSize `json:"shippingSize"`
	WeightGrams  int                     `json:"weightGrams,omitempty"`
	Price        int64                   `json:"price"`
	Variants     []ProductVariant        `json:"variants"`
	CreatedAt    time.Time               `json:"createdAt"`
}

// ProductVariant is a size or weight option of a product. Its shipping size is its own,
// independent of the parent product.
type ProductVariant struct {
	ID           int64                   `json:"id"`
	ProductID    int64                   `json:"productId"`
	Name         string                  `json:"name"`
	ShippingSize calculator.ShippingSize `json:"shippingSize"`
	WeightGrams  int                     `json:"weightGrams,omitempty"`
	Price        int64                   `json:"price"`
}

// ItemSelection is a product, optionally narrowed to one variant, chosen for a shipment
type ItemSelection struct {
	ProductID int64 `json:"productId"`
	VariantID int64 `json:"variantId,omitempty"`
	Quantity  int   `json:"quantity"`
}

// ListProducts returns the products of a tenant with their variants
func (db *DB) ListProducts(ctx context.Context, tenantID int64) ([]Product, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, shipping_size, COALESCE(weight_grams, 0), price, created_at
		FROM products
		WHERE tenant_id = ?
		ORDER BY name, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []Product{}
	index := map[int64]int{}
	for rows.Next() {
		var p Product
		var size int
		if err := rows.Scan(&p.ID, &p.Name, &size, &p.WeightGrams, &p.Price, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.ShippingSize = calculator.ShippingSize(size)
		p.Variants = []ProductVariant{}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	variants, err := db.listVariants(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		if i, ok := index[v.ProductID]; ok {
			products[i].Variants = append(products[i].Variants, v)
		}
	}
	return products, nil
}

func (db *DB) listVariants(ctx context.Context, tenantID int64) ([]ProductVariant, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT v.id, v.product_id, v.name, v.shipping_size, COALESCE(v.weight_grams, 0), v.price
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE p.tenant_id = ?
		ORDER BY v.product_id, v.id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var variants []ProductVariant
	for rows.Next() {
		var v ProductVariant
		var size int
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &size, &v.WeightGrams, &v.Price); err != nil {
			return nil, err
		}
		v.ShippingSize = calculator.ShippingSize(size)
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

// CreateProduct stores a new product and returns its id
func (db *DB) CreateProduct(ctx context.Context, tenantID int64, p Product) (int64, error) {
	if !p.ShippingSize.Valid() {
		return 0, fmt.Errorf("%w: %d", calculator.ErrInvalidShippingSize, p.ShippingSize)
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO products (tenant_id, name, shipping_size, weight_grams, price)
		VALUES (?, ?, ?, ?, ?)
	`, tenantID, p.Name, int(p.ShippingSize), p.WeightGrams, p.Price)
	if err != nil {
		return 0, fmt.Errorf("failed to create product: %w", err)
	}
	return result.LastInsertId()
}

// CreateProductVariant adds a variant to a product of the tenant
func (db *DB) CreateProductVariant(ctx context.Context, tenantID int64, v ProductVariant) (int64, error) {
	if !v.ShippingSize.Valid() {
		return 0, fmt.Errorf("%w: %d", calculator.ErrInvalidShippingSize, v.ShippingSize)
	}

	var exists int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM products WHERE tenant_id = ? AND id = ?`, tenantID, v.ProductID).Scan(&exists)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("product %d: %w", v.ProductID, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO product_variants (product_id, name, shipping_size, weight_grams, price)
		VALUES (?, ?, ?, ?, ?)
	`, v.ProductID, v.Name, int(v.ShippingSize), v.WeightGrams, v.Price)
	if err != nil {
		return 0, fmt.Errorf("failed to create variant: %w", err)
	}
	return result.LastInsertId()
}

// ResolveCartLines turns product selections into cart lines. A selected variant's size
// wins over its product's size.
func (db *DB) ResolveCartLines(ctx context.Context, tenantID int64, items []ItemSelection) ([]calculator.CartLine, error) {
	lines := make([]calculator.CartLine, 0, len(items))
	for _, item := range items {
		var size int
		var err error
		if item.VariantID != 0 {
			err = db.QueryRowContext(ctx, `
				SELECT v.shipping_size
				FROM product_variants v
				JOIN products p ON p.id = v.product_id
				WHERE p.tenant_id = ? AND v.id = ? AND v.product_id = ?
			`, tenantID, item.VariantID, item.ProductID).Scan(&size)
			if err == sql.ErrNoRows {
				return nil, fmt.Errorf("variant %d of product %d: %w", item.VariantID, item.ProductID, ErrNotFound)
			}
		} else {
			err = db.QueryRowContext(ctx, `
				SELECT shipping_size FROM products WHERE tenant_id = ? AND id = ?
			`, tenantID, item.ProductID).Scan(&size)
			if err == sql.ErrNoRows {
				return nil, fmt.Errorf("product %d: %w", item.ProductID, ErrNotFound)
			}
		}
		if err != nil {
			return nil, err
		}

		lines = append(lines, calculator.CartLine{Size: calculator.ShippingSize(size), Quantity: item.Quantity})
	}
	return lines, nil
}
