package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// ProductRepo flips catalog product visibility for the disable_product action.
type ProductRepo struct{ db *sql.DB }

// NewProductRepo creates a Postgres-backed product repository.
func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{db: db} }

// DisableProduct marks a product inactive. Disabling an already-disabled
// product is a no-op, not an error; the action's cooldown guard is what keeps
// the engine from hammering this.
func (r *ProductRepo) DisableProduct(ctx context.Context, productID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE products SET is_active = false, updated_at = NOW() WHERE id = $1
	`, productID)
	if err != nil {
		return fmt.Errorf("disable product %s: %w", productID, err)
	}
	return nil
}
