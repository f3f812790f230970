package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
	"github.com/daniehj/arctanwines-crm-sub000/internal/port"
)

// MySQLAdapter is the transactional store behind port.LotStore. Counter
// writes are guarded by the version column so stale snapshots from the
// asynchronous persistence workers never overwrite newer state.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) SaveLot(ctx context.Context, lot domain.ImportLot) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO wine_lots
			(id, batch_number, catalog_item_id, supplier_id, total_units,
			 home_currency, acquisition_currency, import_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lot.ID.String(), lot.BatchNumber, lot.CatalogItemID.String(), lot.SupplierID.String(),
		lot.TotalUnits, lot.HomeCurrency, lot.AcquisitionCurrency, lot.ImportDate,
		lot.Status, lot.CreatedAt, lot.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert lot: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateLotStatus(ctx context.Context, lotID uuid.UUID, status domain.LotStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE wine_lots SET status = ?, updated_at = NOW() WHERE id = ?`,
		status, lotID.String(),
	)
	if err != nil {
		return fmt.Errorf("update lot status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("lot %s not found", lotID)
	}
	return nil
}

func (m *MySQLAdapter) SaveCostEntry(ctx context.Context, entry domain.CostEntry) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO lot_cost_entries
			(id, lot_id, category, amount_minor, currency, incurred_on,
			 allocation_method, invoice_ref, account_code, voided, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.LotID.String(), entry.Category,
		entry.Amount.Amount, entry.Amount.Currency, entry.IncurredOn,
		entry.Allocation, entry.InvoiceRef, entry.AccountCode, entry.Voided, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cost entry: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) VoidCostEntry(ctx context.Context, entryID uuid.UUID) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE lot_cost_entries SET voided = TRUE WHERE id = ?`,
		entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("void cost entry: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("cost entry %s not found", entryID)
	}
	return nil
}

func (m *MySQLAdapter) ListCostEntries(ctx context.Context, lotID uuid.UUID) ([]domain.CostEntry, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, lot_id, category, amount_minor, currency, incurred_on,
		       allocation_method, invoice_ref, account_code, voided, created_at
		FROM lot_cost_entries WHERE lot_id = ? ORDER BY created_at`,
		lotID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query cost entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.CostEntry
	for rows.Next() {
		var entry domain.CostEntry
		var id, lot string
		if err := rows.Scan(&id, &lot, &entry.Category, &entry.Amount.Amount, &entry.Amount.Currency,
			&entry.IncurredOn, &entry.Allocation, &entry.InvoiceRef, &entry.AccountCode,
			&entry.Voided, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cost entry: %w", err)
		}
		if entry.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse entry id: %w", err)
		}
		if entry.LotID, err = uuid.Parse(lot); err != nil {
			return nil, fmt.Errorf("parse lot id: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (m *MySQLAdapter) SaveInventory(ctx context.Context, inv domain.InventoryLot) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO lot_inventory
			(lot_id, units_on_hand, units_reserved, units_sold,
			 cost_per_unit_minor, selling_price_minor, margin_minor, markup_percent,
			 currency, minimum_stock_level, location, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.LotID.String(), inv.UnitsOnHand, inv.UnitsReserved, inv.UnitsSold,
		inv.CostPerUnit.Amount, inv.SellingPricePerUnit.Amount,
		inv.MarginPerUnit.Amount, inv.MarkupPercent,
		inv.SellingPricePerUnit.Currency, inv.MinimumStockLevel, inv.Location,
		inv.Version, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert inventory: %w", err)
	}
	return nil
}

// UpdateInventoryCounters writes a counter snapshot only if it is newer than
// the stored row. Workers may deliver snapshots out of order; the version
// guard makes last-writer-wins deterministic.
func (m *MySQLAdapter) UpdateInventoryCounters(ctx context.Context, inv domain.InventoryLot) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE lot_inventory
		SET units_on_hand = ?, units_reserved = ?, units_sold = ?, version = ?, updated_at = NOW()
		WHERE lot_id = ? AND version < ?`,
		inv.UnitsOnHand, inv.UnitsReserved, inv.UnitsSold, inv.Version,
		inv.LotID.String(), inv.Version,
	)
	if err != nil {
		return fmt.Errorf("update inventory counters: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrOptimisticLock
	}
	return nil
}

func (m *MySQLAdapter) SaveOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders
			(id, order_number, customer_id, status, delivery_fee_minor, discount_minor,
			 subtotal_minor, vat_minor, total_minor, currency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID.String(), order.OrderNumber, order.CustomerID.String(), order.Status,
		order.DeliveryFee.Amount, order.Discount.Amount,
		order.Subtotal.Amount, order.VAT.Amount, order.Total.Amount,
		order.Total.Currency, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines
				(id, order_id, lot_id, quantity, unit_price_minor, discount_percent,
				 discount_fixed_minor, line_total_minor, currency,
				 wine_name, producer, vintage, bottle_size_ml)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID.String(), order.ID.String(), line.LotID.String(),
			line.Quantity, line.UnitPrice.Amount, line.DiscountPercent,
			line.DiscountFixed.Amount, line.LineTotal.Amount, line.LineTotal.Currency,
			line.WineName, line.Producer, line.Vintage, line.BottleSizeML,
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	return tx.Commit()
}
