package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/daniehj/arctanwines-crm-sub000/internal/core/domain"
	"github.com/daniehj/arctanwines-crm-sub000/internal/core/service"
	"github.com/daniehj/arctanwines-crm-sub000/internal/port"
)

// HTTPHandler is the thin JSON surface over the lot engine. It parses,
// delegates and maps errors; no business rules live here.
type HTTPHandler struct {
	engine *service.LotEngine
	rates  port.ExchangeRateProvider
	cache  port.StockCache
	logger *zap.Logger
}

func NewHTTPHandler(engine *service.LotEngine, rates port.ExchangeRateProvider, cache port.StockCache, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{engine: engine, rates: rates, cache: cache, logger: logger}
}

func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("POST /api/lots", h.CreateLot)
	mux.HandleFunc("POST /api/lots/{id}/costs", h.AddCostEntry)
	mux.HandleFunc("POST /api/lots/{id}/finalize", h.FinalizeLot)
	mux.HandleFunc("POST /api/lots/{id}/availability", h.MakeAvailable)
	mux.HandleFunc("GET /api/lots/{id}/stock", h.PeekStock)
	mux.HandleFunc("POST /api/reservations", h.Reserve)
	mux.HandleFunc("POST /api/reservations/release", h.Release)
	mux.HandleFunc("POST /api/reservations/fulfill", h.Fulfill)
	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.CancelOrder)
	mux.HandleFunc("POST /api/orders/{id}/fulfill", h.FulfillOrder)
	mux.HandleFunc("POST /api/pricing/line", h.PriceLine)
}

type moneyJSON struct {
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

func (m moneyJSON) toDomain() (domain.Money, error) {
	currency, err := domain.ParseCurrency(m.Currency)
	if err != nil {
		return domain.Money{}, err
	}
	return domain.NewMoney(m.AmountMinor, currency), nil
}

func fromMoney(m domain.Money) moneyJSON {
	return moneyJSON{AmountMinor: m.Amount, Currency: string(m.Currency)}
}

type createLotRequest struct {
	BatchNumber   string `json:"batch_number"`
	CatalogItemID string `json:"catalog_item_id"`
	SupplierID    string `json:"supplier_id"`
	TotalUnits    int    `json:"total_units"`
	HomeCurrency  string `json:"home_currency"`
	ImportDate    string `json:"import_date"`
}

func (h *HTTPHandler) CreateLot(w http.ResponseWriter, r *http.Request) {
	var req createLotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	catalogItemID, err := uuid.Parse(req.CatalogItemID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid catalog_item_id")
		return
	}
	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid supplier_id")
		return
	}
	currency, err := domain.ParseCurrency(req.HomeCurrency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid home_currency")
		return
	}
	importDate, err := time.Parse(time.DateOnly, req.ImportDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid import_date, want YYYY-MM-DD")
		return
	}

	lot, err := h.engine.CreateLot(r.Context(), service.CreateLotParams{
		BatchNumber:   req.BatchNumber,
		CatalogItemID: catalogItemID,
		SupplierID:    supplierID,
		TotalUnits:    req.TotalUnits,
		HomeCurrency:  currency,
		ImportDate:    importDate,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"lot_id":       lot.ID.String(),
		"batch_number": lot.BatchNumber,
		"status":       lot.Status,
	})
}

type costEntryRequest struct {
	Category    string    `json:"category"`
	Amount      moneyJSON `json:"amount"`
	IncurredOn  string    `json:"incurred_on"`
	Allocation  string    `json:"allocation_method"`
	InvoiceRef  string    `json:"invoice_ref"`
	AccountCode string    `json:"account_code"`
}

func (h *HTTPHandler) AddCostEntry(w http.ResponseWriter, r *http.Request) {
	lotID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req costEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := req.Amount.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount currency")
		return
	}
	incurredOn, err := time.Parse(time.DateOnly, req.IncurredOn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid incurred_on, want YYYY-MM-DD")
		return
	}

	entry, err := h.engine.AddCostEntry(r.Context(), lotID, service.CostEntryParams{
		Category:    domain.CostCategory(req.Category),
		Amount:      amount,
		IncurredOn:  incurredOn,
		Allocation:  domain.AllocationMethod(req.Allocation),
		InvoiceRef:  req.InvoiceRef,
		AccountCode: req.AccountCode,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"entry_id": entry.ID.String()})
}

func (h *HTTPHandler) FinalizeLot(w http.ResponseWriter, r *http.Request) {
	lotID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	breakdown, err := h.engine.FinalizeLot(r.Context(), lotID, h.rates)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_cost":              fromMoney(breakdown.TotalCost),
		"cost_per_unit":           fromMoney(breakdown.CostPerUnit),
		"rounding_residual_minor": breakdown.RoundingResidualMinorUnits,
	})
}

type makeAvailableRequest struct {
	SellingPricePerUnit moneyJSON `json:"selling_price_per_unit"`
	MinimumStockLevel   int       `json:"minimum_stock_level"`
	Location            string    `json:"location"`
}

func (h *HTTPHandler) MakeAvailable(w http.ResponseWriter, r *http.Request) {
	lotID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req makeAvailableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	price, err := req.SellingPricePerUnit.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid selling price currency")
		return
	}

	inv, err := h.engine.MakeAvailable(r.Context(), lotID, price, req.MinimumStockLevel, req.Location)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stockJSON(inv))
}

func (h *HTTPHandler) PeekStock(w http.ResponseWriter, r *http.Request) {
	lotID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	inv, err := h.engine.Peek(lotID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stockJSON(inv))
}

type reserveRequest struct {
	RequestID  string `json:"request_id"`
	LotID      string `json:"lot_id"`
	Quantity   int    `json:"quantity"`
	TTLSeconds int    `json:"ttl_seconds"`
}

func (h *HTTPHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RequestID == "" || req.LotID == "" || req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	lotID, err := uuid.Parse(req.LotID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lot_id")
		return
	}

	ok, err := h.cache.SetIdempotency(r.Context(), "reserve:"+req.RequestID)
	if err != nil {
		h.logger.Error("idempotency check failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusConflict, "duplicate request")
		return
	}

	handle, err := h.engine.Reserve(r.Context(), lotID, req.Quantity, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	resp := map[string]any{
		"token":  handle.Token.String(),
		"lot_id": handle.LotID.String(),
		"qty":    handle.Qty,
	}
	if !handle.ExpiresAt.IsZero() {
		resp["expires_at"] = handle.ExpiresAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusCreated, resp)
}

type handleRequest struct {
	Token string `json:"token"`
	LotID string `json:"lot_id"`
	Qty   int    `json:"qty"`
}

func (h *HTTPHandler) handleFromRequest(w http.ResponseWriter, r *http.Request) (service.ReservationHandle, bool) {
	var req handleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return service.ReservationHandle{}, false
	}

	token, err := uuid.Parse(req.Token)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token")
		return service.ReservationHandle{}, false
	}
	lotID, err := uuid.Parse(req.LotID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid lot_id")
		return service.ReservationHandle{}, false
	}

	return service.ReservationHandle{Token: token, LotID: lotID, Qty: req.Qty}, true
}

func (h *HTTPHandler) Release(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.handleFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.engine.Release(handle); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (h *HTTPHandler) Fulfill(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.handleFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.engine.Fulfill(handle); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "fulfilled"})
}

type orderLineRequest struct {
	LotID           string    `json:"lot_id"`
	Quantity        int       `json:"quantity"`
	DiscountPercent int       `json:"discount_percent"`
	DiscountFixed   moneyJSON `json:"discount_fixed"`
	WineName        string    `json:"wine_name"`
	Producer        string    `json:"producer"`
	Vintage         int       `json:"vintage"`
	BottleSizeML    int       `json:"bottle_size_ml"`
}

type placeOrderRequest struct {
	OrderNumber string             `json:"order_number"`
	CustomerID  string             `json:"customer_id"`
	Lines       []orderLineRequest `json:"lines"`
	DeliveryFee moneyJSON          `json:"delivery_fee"`
	Discount    moneyJSON          `json:"discount"`
	VATRate     string             `json:"vat_rate"`
	TTLSeconds  int                `json:"ttl_seconds"`
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Lines) == 0 {
		writeError(w, http.StatusBadRequest, "order needs at least one line")
		return
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid customer_id")
		return
	}
	deliveryFee, err := req.DeliveryFee.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid delivery fee currency")
		return
	}
	discount, err := req.Discount.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid discount currency")
		return
	}
	vatRate, err := decimal.NewFromString(req.VATRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vat_rate")
		return
	}

	lines := make([]service.OrderLineParams, 0, len(req.Lines))
	for _, lr := range req.Lines {
		lotID, err := uuid.Parse(lr.LotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid lot_id in line")
			return
		}
		fixed, err := lr.DiscountFixed.toDomain()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid line discount currency")
			return
		}
		lines = append(lines, service.OrderLineParams{
			LotID:           lotID,
			Quantity:        lr.Quantity,
			DiscountPercent: lr.DiscountPercent,
			DiscountFixed:   fixed,
			WineName:        lr.WineName,
			Producer:        lr.Producer,
			Vintage:         lr.Vintage,
			BottleSizeML:    lr.BottleSizeML,
		})
	}

	order, err := h.engine.PlaceOrder(r.Context(), customerID, req.OrderNumber, lines,
		deliveryFee, discount, vatRate, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"status":       order.Status,
		"subtotal":     fromMoney(order.Subtotal),
		"vat":          fromMoney(order.VAT),
		"total":        fromMoney(order.Total),
	})
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.engine.CancelOrder(r.Context(), orderID); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *HTTPHandler) FulfillOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.engine.FulfillOrder(r.Context(), orderID); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "fulfilled"})
}

type priceLineRequest struct {
	Quantity        int       `json:"quantity"`
	UnitPrice       moneyJSON `json:"unit_price"`
	DiscountPercent int       `json:"discount_percent"`
	DiscountFixed   moneyJSON `json:"discount_fixed"`
}

func (h *HTTPHandler) PriceLine(w http.ResponseWriter, r *http.Request) {
	var req priceLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	unitPrice, err := req.UnitPrice.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid unit price currency")
		return
	}
	fixed, err := req.DiscountFixed.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid discount currency")
		return
	}

	total, err := service.PriceLine(req.Quantity, unitPrice, req.DiscountPercent, fixed)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"line_total": fromMoney(total)})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func stockJSON(inv domain.InventoryLot) map[string]any {
	return map[string]any{
		"lot_id":              inv.LotID.String(),
		"units_on_hand":       inv.UnitsOnHand,
		"units_reserved":      inv.UnitsReserved,
		"units_sold":          inv.UnitsSold,
		"available_for_sale":  inv.AvailableForSale(),
		"state":               inv.State(),
		"low_stock_alert":     inv.LowStockAlert(),
		"cost_per_unit":       fromMoney(inv.CostPerUnit),
		"selling_price":       fromMoney(inv.SellingPricePerUnit),
		"margin_per_unit":     fromMoney(inv.MarginPerUnit),
		"markup_percent":      inv.MarkupPercent,
		"minimum_stock_level": inv.MinimumStockLevel,
	}
}

func (h *HTTPHandler) writeEngineError(w http.ResponseWriter, err error) {
	var insufficient *service.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "insufficient stock",
			"requested": insufficient.Requested,
			"available": insufficient.Available,
		})
	case errors.Is(err, service.ErrUnknownLot), errors.Is(err, service.ErrUnknownOrder), errors.Is(err, service.ErrUnknownEntry):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidHandle), errors.Is(err, service.ErrOrderState), errors.Is(err, service.ErrLotExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, port.ErrMissingExchangeRate), errors.Is(err, service.ErrCostNotFinalized):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrInvalidDiscount),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidCurrency),
		errors.Is(err, service.ErrDivisionByZero),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrUnknownCurrency):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return uuid.UUID{}, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
