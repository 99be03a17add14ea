// Package sovos implements the wire protocol for the Sovos Global Tax
// Determination REST API: request/response framing, HMAC request signing
// and the outbound HTTP client.
package sovos

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Client is the transport interface to the remote tax service.
// Implementations: HTTPClient, MockClient.
type Client interface {
	// CalcTax performs a single synchronous tax calculation call.
	// No retries are performed; retry policy belongs to the caller.
	CalcTax(ctx context.Context, req *Request) (*Response, error)

	// TransactionDetail fetches a persisted transaction by its
	// txwTrnDocId as returned from an audited calculation.
	TransactionDetail(ctx context.Context, docID string) (*Response, error)
}

// Discount type codes for the discnts map. Only the general bucket is
// used today; the remaining codes exist in the upstream API.
const (
	DiscountTypeGeneral = "1"
)

// DeliveryTaxCode is the goodSrvCd for the synthetic shipping line sent
// in the line-mode follow-up call.
const DeliveryTaxCode = 70

// Request is the calcTax/doc request body.
type Request struct {
	IsAudit     bool                   `json:"isAudit"`
	Currency    string                 `json:"currn"`
	TrnDocNum   string                 `json:"trnDocNum,omitempty"`
	DocDate     string                 `json:"docDt,omitempty"`
	Discounts   map[string]json.Number `json:"discnts,omitempty"`
	Lines       []LinePayload          `json:"lines"`
	DeliveryAmt json.Number            `json:"dlvrAmt,omitempty"`
	CustAttrbs  map[string]any         `json:"custAttrbs,omitempty"`
}

// LinePayload is a single line of a calcTax/doc request. Ship-from fields
// carry the fixed origin, ship-to fields the order destination.
type LinePayload struct {
	OrgCd        string         `json:"orgCd"`
	GoodSrvCd    int            `json:"goodSrvCd"`
	GrossAmt     json.Number    `json:"grossAmt"`
	SFCity       string         `json:"sFCity"`
	SFStateProv  string         `json:"sFStateProv"`
	SFPstlCd     string         `json:"sFPstlCd"`
	SFStNameNum  string         `json:"sFStNameNum"`
	SFCountry    string         `json:"sFCountry"`
	STCity       string         `json:"sTCity"`
	STStateProv  string         `json:"sTStateProv"`
	STPstlCd     string         `json:"sTPstlCd"`
	STStNameNum  string         `json:"sTStNameNum"`
	STCountry    string         `json:"sTCountry"`
	CustVendCd   string         `json:"custVendCd,omitempty"`
	CustVendName string         `json:"custVendName,omitempty"`
	CustAttrbs   map[string]any `json:"custAttrbs,omitempty"`
}

// Response is the decoded calcTax/doc response. txAmt may be absent when
// upstream reports an error shape; decode tolerates that and TotalTax
// returns zero rather than failing.
type Response struct {
	TxAmt       json.Number  `json:"txAmt"`
	TxwTrnDocID string       `json:"txwTrnDocId"`
	LnRslts     []LineResult `json:"lnRslts"`
}

// TotalTax returns the aggregate tax amount, zero when absent.
func (r *Response) TotalTax() decimal.Decimal {
	return AsDecimal(r.TxAmt)
}

// LineResult is a per-line tax result.
type LineResult struct {
	LnNm     int                  `json:"lnNm"`
	TxAmt    json.Number          `json:"txAmt"`
	GrossAmt json.Number          `json:"grossAmt"`
	JurRslts []JurisdictionResult `json:"jurRslts"`
}

// JurisdictionResult is a per-taxing-authority breakdown within a line.
type JurisdictionResult struct {
	TxName     string      `json:"txName"`
	TxAmt      json.Number `json:"txAmt"`
	TxRate     json.Number `json:"txRate"`
	XmptAmt    json.Number `json:"xmptAmt"`
	CountryISO string      `json:"txJurUIDCntryISO"`
	StateProv  string      `json:"txJurUIDStatePrv"`
}

// Amount renders a decimal as an unquoted JSON number with the given
// number of fraction digits. Monetary totals use 2, rates and
// intermediate proportions 4.
func Amount(d decimal.Decimal, places int32) json.Number {
	return json.Number(d.StringFixed(places))
}

// AsDecimal converts a wire number to a decimal, treating an absent or
// malformed value as zero. Upstream omits numeric fields in error shapes,
// so this is deliberately lenient.
func AsDecimal(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero
	}
	return d
}
