package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlanteavila/sovos-tax-plugin/internal/address"
	"github.com/atlanteavila/sovos-tax-plugin/internal/domain"
	"github.com/atlanteavila/sovos-tax-plugin/internal/middleware"
	"github.com/atlanteavila/sovos-tax-plugin/internal/tax"
)

// taxRequest is the JSON body shared by the quote, calculate, and refund
// endpoints. Monetary fields arrive as JSON numbers or strings; both
// decode through json.Number.
type taxRequest struct {
	SessionID  string `json:"session_id"`
	OrderID    string `json:"order_id"`
	CustomerID int64  `json:"customer_id"`
	Email      string `json:"email"`

	Destination addressPayload `json:"destination"`
	State       string         `json:"state"`

	ShippingCost    json.Number `json:"shipping_cost"`
	ShippingMethods []string    `json:"shipping_methods"`
	Coupons         []string    `json:"coupons"`
	Fees            []string    `json:"fees"`
	Discounts       json.Number `json:"discounts"`
	PaymentMethod   string      `json:"payment_method"`

	Marketplace   bool `json:"marketplace"`
	OrderExempt   bool `json:"order_exempt"`
	SessionExempt bool `json:"session_exempt"`
	VATExempt     bool `json:"vat_exempt"`

	// DocDate in YYYY-MM-DD; empty or malformed falls back to today.
	DocDate string `json:"doc_date"`

	LineItems []linePayload `json:"line_items"`
}

type addressPayload struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type linePayload struct {
	ProductID int64       `json:"product_id"`
	Quantity  int32       `json:"quantity"`
	UnitPrice json.Number `json:"unit_price"`
	Total     json.Number `json:"total"`
}

// taxResponse is the JSON view of a calculation result. Monetary fields
// are rendered as fixed-point strings.
type taxResponse struct {
	AmountToCollect      string        `json:"amount_to_collect"`
	ProductsTax          string        `json:"products_tax"`
	OriginalProductsTax  string        `json:"original_products_tax"`
	AutomaticDeliveryFee string        `json:"automatic_delivery_fee"`
	ShippingTax          string        `json:"shipping_tax"`
	StateFee             *stateFeeView `json:"state_fee,omitempty"`

	TransactionID string `json:"transaction_id,omitempty"`
	Persisted     bool   `json:"persisted"`

	Bypassed        bool   `json:"bypassed"`
	BypassReason    string `json:"bypass_reason,omitempty"`
	Exempt          bool   `json:"exempt"`
	Wholesale       bool   `json:"wholesale"`
	ExemptionReason string `json:"exemption_reason,omitempty"`

	Note  string     `json:"note"`
	Lines []lineView `json:"lines"`
}

type stateFeeView struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Amount string `json:"amount"`
}

type lineView struct {
	LineNumber  int    `json:"line_number"`
	Taxable     string `json:"taxable"`
	Collectable string `json:"collectable"`
}

// Quote handles POST /api/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	h.serveCalculation(w, r, h.calc.Quote)
}

// Calculate handles POST /api/calculate.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	h.serveCalculation(w, r, h.calc.Calculate)
}

// Refund handles POST /api/refund.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	h.serveCalculation(w, r, h.calc.Refund)
}

func (h *Handler) serveCalculation(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, p tax.Params) (*tax.Result, error)) {
	params, err := decodeTaxRequest(r)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	result, err := run(r.Context(), params)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, renderResult(result))
}

// TransactionDetail handles GET /api/transactions/{id}.
func (h *Handler) TransactionDetail(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	if docID == "" {
		ErrorResponse(w, r, domain.Invalid("handler.transaction", "transaction id is required"))
		return
	}

	resp, err := h.calc.TransactionDetail(r.Context(), docID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeTaxRequest(r *http.Request) (tax.Params, error) {
	const op = "handler.decode"

	var req taxRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return tax.Params{}, domain.WrapError(err, domain.EINVALID, op, "malformed request body")
	}

	if req.SessionID == "" {
		return tax.Params{}, domain.Invalid(op, "session_id is required")
	}
	if len(req.LineItems) == 0 {
		return tax.Params{}, domain.Invalid(op, "line_items are required")
	}

	shipping, err := parseAmount(req.ShippingCost, op, "shipping_cost")
	if err != nil {
		return tax.Params{}, err
	}
	discounts, err := parseAmount(req.Discounts, op, "discounts")
	if err != nil {
		return tax.Params{}, err
	}

	lines := make([]tax.LineItem, 0, len(req.LineItems))
	for _, li := range req.LineItems {
		if li.ProductID <= 0 {
			return tax.Params{}, domain.Invalid(op, "line_items require a positive product_id")
		}
		unit, err := parseAmount(li.UnitPrice, op, "unit_price")
		if err != nil {
			return tax.Params{}, err
		}
		total, err := parseAmount(li.Total, op, "total")
		if err != nil {
			return tax.Params{}, err
		}
		qty := li.Quantity
		if qty <= 0 {
			qty = 1
		}
		lines = append(lines, tax.LineItem{
			ProductID: li.ProductID,
			Quantity:  qty,
			UnitPrice: unit,
			Total:     total,
		})
	}

	var docDate time.Time
	if req.DocDate != "" {
		parsed, err := time.Parse("2006-01-02", req.DocDate)
		if err == nil {
			docDate = parsed
		} else {
			middleware.GetLogger(r.Context()).Warn("ignoring malformed doc_date",
				slog.String("doc_date", req.DocDate))
		}
	}

	return tax.Params{
		SessionID:  req.SessionID,
		OrderID:    req.OrderID,
		CustomerID: req.CustomerID,
		Email:      req.Email,
		Destination: address.Address{
			Street:     req.Destination.Street,
			City:       req.Destination.City,
			State:      req.Destination.State,
			PostalCode: req.Destination.PostalCode,
			Country:    req.Destination.Country,
		},
		State:           req.State,
		ShippingCost:    shipping,
		ShippingMethods: req.ShippingMethods,
		Coupons:         req.Coupons,
		Fees:            req.Fees,
		Discounts:       discounts,
		PaymentMethod:   req.PaymentMethod,
		Marketplace:     req.Marketplace,
		OrderExempt:     req.OrderExempt,
		SessionExempt:   req.SessionExempt,
		VATExempt:       req.VATExempt,
		DocDate:         docDate,
		Lines:           lines,
	}, nil
}

func parseAmount(n json.Number, op, field string) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, domain.Invalid(op, field+" is not a valid amount")
	}
	return d, nil
}

func renderResult(res *tax.Result) taxResponse {
	out := taxResponse{
		AmountToCollect:      res.AmountToCollect().StringFixed(2),
		ProductsTax:          res.ProductsTax.StringFixed(2),
		OriginalProductsTax:  res.OriginalProductsTax.StringFixed(2),
		AutomaticDeliveryFee: res.AutomaticDeliveryFee.StringFixed(2),
		ShippingTax:          res.ShippingTax.StringFixed(4),
		TransactionID:        res.TransactionID,
		Persisted:            res.Persisted(),
		Bypassed:             res.Bypassed,
		BypassReason:         res.BypassReason,
		Exempt:               res.Exempt,
		Wholesale:            res.Wholesale,
		ExemptionReason:      string(res.ExemptionReason),
		Note:                 res.Note(),
		Lines:                make([]lineView, 0, len(res.Lines)),
	}

	if res.StateFee != nil {
		out.StateFee = &stateFeeView{
			Title:  res.StateFee.Title,
			URL:    res.StateFee.URL,
			Amount: res.StateFee.Amount.StringFixed(2),
		}
	}

	for _, ln := range res.Lines {
		out.Lines = append(out.Lines, lineView{
			LineNumber:  ln.LineNumber,
			Taxable:     ln.Taxable.StringFixed(2),
			Collectable: ln.Collectable.StringFixed(2),
		})
	}

	return out
}
