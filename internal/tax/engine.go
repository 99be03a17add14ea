package tax

import (
	"context"
	"log/slog"
	"time"

	"github.com/atlanteavila/sovos-tax-plugin/internal/address"
	"github.com/atlanteavila/sovos-tax-plugin/internal/domain"
	"github.com/atlanteavila/sovos-tax-plugin/internal/exemption"
	"github.com/atlanteavila/sovos-tax-plugin/internal/quote"
	"github.com/atlanteavila/sovos-tax-plugin/internal/sovos"
	"github.com/atlanteavila/sovos-tax-plugin/internal/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const bypassReasonMarketplace = "marketplace order, channel remits its own tax"

// EngineConfig is the static configuration of the engine.
type EngineConfig struct {
	Company string
	Origin  address.Address
	Mode    sovos.ShipmentMode
}

// EngineDeps collects the engine's collaborators. Tender and Orders are
// optional; everything else is required.
type EngineDeps struct {
	Client  sovos.Client
	Builder *sovos.Builder
	Cache   *quote.Cache
	Lock    *quote.Lock
	Exempt  *exemption.Resolver
	Catalog ProductCatalog
	States  StateLookup
	Realloc *Reallocator
	Tender  TenderPolicy
	Orders  OrderDirectory
	Logger  *slog.Logger
}

// Engine is the calculation orchestrator implementing Calculator.
type Engine struct {
	deps EngineDeps
	cfg  EngineConfig

	now       func() time.Time
	newDocNum func() string
}

// NewEngine validates the dependencies and configuration. Missing
// credentials, company or collaborators are configuration errors: the
// service must not start half-wired.
func NewEngine(deps EngineDeps, cfg EngineConfig) (*Engine, error) {
	switch {
	case deps.Client == nil, deps.Builder == nil, deps.Cache == nil,
		deps.Lock == nil, deps.Exempt == nil, deps.Catalog == nil,
		deps.States == nil, deps.Realloc == nil:
		return nil, domain.Errorf(domain.ECONFIGURATION, "tax.NewEngine", "missing engine dependency")
	}
	if cfg.Company == "" {
		return nil, domain.Errorf(domain.ECONFIGURATION, "tax.NewEngine", "company code is required")
	}
	if cfg.Origin.IsZero() {
		return nil, domain.Errorf(domain.ECONFIGURATION, "tax.NewEngine", "origin ship-from address is required")
	}
	if _, err := sovos.ParseShipmentMode(string(cfg.Mode)); err != nil {
		return nil, domain.WrapError(err, domain.ECONFIGURATION, "tax.NewEngine", "invalid shipment mode")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Engine{
		deps:      deps,
		cfg:       cfg,
		now:       time.Now,
		newDocNum: func() string { return "Q-" + uuid.NewString() },
	}, nil
}

type callOpts struct {
	audit    bool
	reversal bool
}

// Quote implements Calculator.
func (e *Engine) Quote(ctx context.Context, p Params) (*Result, error) {
	return e.calculate(ctx, p, callOpts{})
}

// Calculate implements Calculator.
func (e *Engine) Calculate(ctx context.Context, p Params) (*Result, error) {
	return e.calculate(ctx, p, callOpts{audit: true})
}

// Refund implements Calculator.
func (e *Engine) Refund(ctx context.Context, p Params) (*Result, error) {
	return e.calculate(ctx, p, callOpts{audit: true, reversal: true})
}

// TransactionDetail implements Calculator.
func (e *Engine) TransactionDetail(ctx context.Context, docID string) (*sovos.Response, error) {
	telemetry.OutboundCalls.WithLabelValues("transactionDetail").Inc()
	return e.deps.Client.TransactionDetail(ctx, docID)
}

func (e *Engine) calculate(ctx context.Context, p Params, opts callOpts) (*Result, error) {
	logger := e.deps.Logger.With(
		slog.String("session_id", p.SessionID),
		slog.String("order_id", p.OrderID),
		slog.Bool("audit", opts.audit),
	)

	if opts.audit && p.OrderID == "" {
		return nil, sovos.ErrInvalidOrderReference
	}

	state, err := e.resolveState(ctx, p)
	if err != nil {
		return nil, err
	}
	p.Destination.State = state

	if p.Marketplace {
		telemetry.Bypasses.WithLabelValues("marketplace").Inc()
		logger.Info("tax calculation bypassed", slog.String("reason", "marketplace"))
		return &Result{Bypassed: true, BypassReason: bypassReasonMarketplace}, nil
	}

	customerID, err := e.resolveCustomer(ctx, p)
	if err != nil {
		return nil, err
	}

	docDate := p.DocDate
	if docDate.IsZero() {
		docDate = e.now()
	}

	det, err := e.resolveExemption(ctx, p, customerID, state, docDate)
	if err != nil {
		return nil, err
	}
	if det.Exempt {
		telemetry.Bypasses.WithLabelValues(string(det.Reason)).Inc()
		logger.Info("tax calculation bypassed", slog.String("reason", string(det.Reason)))
		return zeroTaxResult(p, det), nil
	}

	bp, err := e.buildParams(ctx, p, customerID, state, docDate, det, opts)
	if err != nil {
		return nil, err
	}

	req, productsTotal, err := e.deps.Builder.Build(bp)
	if err != nil {
		return nil, err
	}

	var resp, shipResp *sovos.Response
	if opts.audit {
		resp, err = e.call(ctx, req)
	} else {
		resp, shipResp, err = e.locked(ctx, p, bp, req)
	}
	if err != nil {
		return nil, err
	}

	result, err := e.postProcess(ctx, p, bp, req, resp, shipResp, productsTotal, state)
	if err != nil {
		return nil, err
	}

	logger.Info("tax calculated",
		slog.String("state", state),
		slog.String("amount_to_collect", result.TotalTax().StringFixed(2)),
		slog.String("document_id", result.TransactionID),
	)
	return result, nil
}

func (e *Engine) resolveState(ctx context.Context, p Params) (string, error) {
	raw := p.State
	if raw == "" {
		raw = p.Destination.State
	}
	state, err := e.deps.States.ResolveState(ctx, raw)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			return "", invalidStateError(raw)
		}
		return "", err
	}
	return state, nil
}

// resolveCustomer walks the identity chain: explicit parameter, then
// order metadata, then guest.
func (e *Engine) resolveCustomer(ctx context.Context, p Params) (int64, error) {
	if p.CustomerID != 0 {
		return p.CustomerID, nil
	}
	if p.OrderID != "" && e.deps.Orders != nil {
		id, err := e.deps.Orders.CustomerForOrder(ctx, p.OrderID)
		if err != nil {
			return 0, domain.WrapError(err, domain.EINTERNAL, "tax.resolveCustomer", "order lookup failed")
		}
		return id, nil
	}
	return 0, nil
}

func (e *Engine) resolveExemption(ctx context.Context, p Params, customerID int64, state string, asOf time.Time) (exemption.Determination, error) {
	allExempt := len(p.Lines) > 0
	for _, line := range p.Lines {
		ex, err := e.deps.Catalog.ProductTaxExempt(ctx, line.ProductID)
		if err != nil {
			return exemption.Determination{}, domain.WrapError(err, domain.EINTERNAL, "tax.resolveExemption", "product exemption lookup failed")
		}
		if !ex {
			allExempt = false
			break
		}
	}

	return e.deps.Exempt.Resolve(ctx, exemption.Input{
		CustomerID:        customerID,
		Email:             p.Email,
		State:             state,
		AsOf:              asOf,
		SessionID:         p.SessionID,
		OrderExempt:       p.OrderExempt,
		SessionExempt:     p.SessionExempt,
		AllProductsExempt: allExempt,
		VATExempt:         p.VATExempt,
	})
}

func (e *Engine) buildParams(ctx context.Context, p Params, customerID int64, state string, docDate time.Time, det exemption.Determination, opts callOpts) (sovos.BuildParams, error) {
	lines := make([]sovos.Line, 0, len(p.Lines))
	for _, item := range p.Lines {
		code, err := e.deps.Catalog.TaxCodeForProduct(ctx, item.ProductID)
		if err != nil {
			return sovos.BuildParams{}, domain.WrapError(err, domain.EINTERNAL, "tax.buildParams", "tax code lookup failed")
		}

		highPremium := false
		if e.deps.Tender != nil {
			highPremium, err = e.deps.Tender.HighPremium(ctx, item.ProductID, state, item.UnitPrice)
			if err != nil {
				return sovos.BuildParams{}, domain.WrapError(err, domain.EINTERNAL, "tax.buildParams", "tender rule lookup failed")
			}
		}

		lines = append(lines, sovos.Line{
			ProductID:   item.ProductID,
			TaxCode:     code,
			Quantity:    item.Quantity,
			Total:       item.Total,
			HighPremium: highPremium,
		})
	}

	orderRef := p.OrderID
	if !opts.audit {
		// Quotes are not persisted upstream but still carry a synthetic
		// document number for traceability.
		orderRef = e.newDocNum()
	}

	return sovos.BuildParams{
		Company:       e.cfg.Company,
		Origin:        e.cfg.Origin,
		Destination:   p.Destination,
		CustomerID:    customerID,
		TaxExempt:     det.Exempt,
		Reversal:      opts.reversal,
		Audit:         opts.audit,
		OrderRef:      orderRef,
		DocDate:       docDate.Format("2006-01-02"),
		Discounts:     p.Discounts,
		ShippingCost:  p.ShippingCost,
		Mode:          e.cfg.Mode,
		PaymentMethod: p.PaymentMethod,
		Lines:         lines,
	}, nil
}

// locked runs the quote path: cache first, then the per-fingerprint lock
// so concurrent identical quotes collapse into a single outbound call.
// In line mode the shipping follow-up response is cached alongside the
// primary one, under a derived fingerprint, so a cache hit never re-fires
// the follow-up. The lock is released on every exit path.
func (e *Engine) locked(ctx context.Context, p Params, bp sovos.BuildParams, req *sovos.Request) (*sovos.Response, *sovos.Response, error) {
	fp := e.fingerprint(p, bp)

	if resp, ship, ok, err := e.cached(ctx, p.SessionID, fp); err != nil {
		return nil, nil, err
	} else if ok {
		return resp, ship, nil
	}

	acquired, err := e.deps.Lock.TryAcquire(ctx, fp)
	if err != nil {
		return nil, nil, err
	}

	if !acquired {
		telemetry.LockWaits.Inc()
		resp, ok, err := e.deps.Cache.WaitFor(ctx, p.SessionID, fp)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			telemetry.LockTimeouts.Inc()
			return nil, nil, ErrQuoteUnavailable
		}
		ship, err := e.cachedShipping(ctx, p.SessionID, fp)
		if err != nil {
			return nil, nil, err
		}
		return resp, ship, nil
	}

	defer func() {
		if err := e.deps.Lock.Release(ctx, fp); err != nil {
			e.deps.Logger.Error("failed to release quote lock", slog.String("error", err.Error()))
		}
	}()

	// Another worker may have populated the cache between our miss and
	// the acquisition.
	if resp, ship, ok, err := e.cached(ctx, p.SessionID, fp); err != nil {
		return nil, nil, err
	} else if ok {
		return resp, ship, nil
	}

	resp, err := e.call(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	var ship *sovos.Response
	if e.shippingFollowUpNeeded(p, resp) {
		ship, err = e.shippingFollowUp(ctx, bp, req)
		if err != nil {
			return nil, nil, err
		}
		// The shipping entry goes in first so a waiter that sees the
		// primary entry finds it too.
		if err := e.deps.Cache.Set(ctx, p.SessionID, shippingFingerprint(fp), ship); err != nil {
			return nil, nil, err
		}
	}

	if err := e.deps.Cache.Set(ctx, p.SessionID, fp, resp); err != nil {
		return nil, nil, err
	}
	return resp, ship, nil
}

// cached reads the primary and, in line mode, the shipping follow-up
// entries for a fingerprint.
func (e *Engine) cached(ctx context.Context, sessionID, fp string) (*sovos.Response, *sovos.Response, bool, error) {
	resp, ok, err := e.deps.Cache.Get(ctx, sessionID, fp)
	if err != nil || !ok {
		return nil, nil, false, err
	}
	ship, err := e.cachedShipping(ctx, sessionID, fp)
	if err != nil {
		return nil, nil, false, err
	}
	return resp, ship, true, nil
}

func (e *Engine) cachedShipping(ctx context.Context, sessionID, fp string) (*sovos.Response, error) {
	if e.cfg.Mode != sovos.ShipmentModeLine {
		return nil, nil
	}
	ship, _, err := e.deps.Cache.Get(ctx, sessionID, shippingFingerprint(fp))
	return ship, err
}

func shippingFingerprint(fp string) string {
	return fp + ":shipping"
}

func (e *Engine) shippingFollowUpNeeded(p Params, resp *sovos.Response) bool {
	return e.cfg.Mode == sovos.ShipmentModeLine &&
		p.ShippingCost.IsPositive() &&
		resp.TotalTax().IsPositive()
}

func (e *Engine) fingerprint(p Params, bp sovos.BuildParams) string {
	in := quote.FingerprintInput{
		Destination:     p.Destination,
		Lines:           make([]quote.FingerprintLine, 0, len(bp.Lines)),
		ShippingMethods: append([]string(nil), p.ShippingMethods...),
		ShippingCost:    p.ShippingCost.StringFixed(2),
		Coupons:         append([]string(nil), p.Coupons...),
		Fees:            append([]string(nil), p.Fees...),
		CustomerID:      bp.CustomerID,
		Exempt:          bp.TaxExempt,
	}
	for _, line := range bp.Lines {
		in.Lines = append(in.Lines, quote.FingerprintLine{
			ProductID: line.ProductID,
			TaxCode:   line.TaxCode,
			Quantity:  line.Quantity,
			Total:     line.Total.StringFixed(4),
		})
	}
	return quote.Fingerprint(in)
}

func (e *Engine) call(ctx context.Context, req *sovos.Request) (*sovos.Response, error) {
	telemetry.OutboundCalls.WithLabelValues("calcTax").Inc()
	return e.deps.Client.CalcTax(ctx, req)
}

func (e *Engine) postProcess(ctx context.Context, p Params, bp sovos.BuildParams, req *sovos.Request, resp, shipResp *sovos.Response, productsTotal decimal.Decimal, state string) (*Result, error) {
	result := &Result{
		Request:             req,
		Response:            resp,
		TransactionID:       resp.TxwTrnDocID,
		ProductsTax:         resp.TotalTax(),
		OriginalProductsTax: resp.TotalTax(),
	}
	for _, line := range resp.LnRslts {
		result.Lines = append(result.Lines, ResultLine{
			LineNumber:  line.LnNm,
			Taxable:     sovos.AsDecimal(line.GrossAmt),
			Collectable: sovos.AsDecimal(line.TxAmt),
		})
	}

	if e.cfg.Mode == sovos.ShipmentModeHeader && e.deps.Realloc.AppliesTo(state) {
		rea, err := e.deps.Realloc.Apply(ctx, resp, state, productsTotal, p.ShippingCost)
		if err != nil {
			return nil, err
		}
		result.ProductsTax = rea.ProductsTax
		result.AutomaticDeliveryFee = rea.AutomaticDeliveryFee
		result.ShippingTax = rea.ShippingTax
		result.StateFee = rea.StateFee
		for i := range result.Lines {
			result.Lines[i].Collectable = rea.LineTaxes[i]
		}
	}

	if e.cfg.Mode == sovos.ShipmentModeLine && p.ShippingCost.IsPositive() && result.ProductsTax.IsPositive() {
		if shipResp == nil {
			// Audit calls are never cached, so the follow-up fires here.
			var err error
			shipResp, err = e.shippingFollowUp(ctx, bp, req)
			if err != nil {
				return nil, err
			}
		}
		shippingTax, err := shippingTaxFrom(shipResp, len(req.Lines)+1)
		if err != nil {
			return nil, err
		}
		result.ShippingTax = shippingTax
	}

	return result, nil
}

// shippingFollowUp issues the synthetic shipping line call. The line
// count is reconciled before the response is returned or cached.
func (e *Engine) shippingFollowUp(ctx context.Context, bp sovos.BuildParams, req *sovos.Request) (*sovos.Response, error) {
	follow := e.deps.Builder.ShippingFollowUp(req, bp)

	resp, err := e.call(ctx, follow)
	if err != nil {
		return nil, err
	}
	if len(resp.LnRslts) != len(follow.Lines) {
		return nil, shippingReconciliationError(len(follow.Lines), len(resp.LnRslts))
	}
	return resp, nil
}

// shippingTaxFrom extracts the synthetic last line's tax as the shipping
// component.
func shippingTaxFrom(ship *sovos.Response, wantLines int) (decimal.Decimal, error) {
	if len(ship.LnRslts) != wantLines {
		return decimal.Zero, shippingReconciliationError(wantLines, len(ship.LnRslts))
	}
	last := ship.LnRslts[len(ship.LnRslts)-1]
	return sovos.AsDecimal(last.TxAmt), nil
}

// zeroTaxResult synthesizes the response shape for exempt orders: every
// line taxed at zero against its original gross.
func zeroTaxResult(p Params, det exemption.Determination) *Result {
	resp := &sovos.Response{TxAmt: "0"}
	result := &Result{
		Bypassed:        true,
		BypassReason:    string(det.Reason),
		Exempt:          true,
		Wholesale:       det.Wholesale,
		ExemptionReason: det.Reason,
		Response:        resp,
	}
	for i, line := range p.Lines {
		resp.LnRslts = append(resp.LnRslts, sovos.LineResult{
			LnNm:     i + 1,
			TxAmt:    "0",
			GrossAmt: sovos.Amount(line.Total, 4),
		})
		result.Lines = append(result.Lines, ResultLine{
			LineNumber: i + 1,
			Taxable:    line.Total,
		})
	}
	return result
}
