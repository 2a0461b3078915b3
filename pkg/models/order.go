package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const OrderStatusConfirmed = "confirmed"

func init() {
	// Prices and totals go over the wire as JSON numbers, like the storefront
	// frontend sends them.
	decimal.MarshalJSONWithoutQuotes = true
}

type Order struct {
	OrderID      string          `json:"orderId"`
	Items        LineItems       `json:"items"`
	CustomerInfo CustomerInfo    `json:"customerInfo"`
	Total        decimal.Decimal `json:"total"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`

	// Extra holds fields the storefront sent that the server does not
	// interpret. They are stored and returned as-is.
	Extra map[string]json.RawMessage `json:"-"`
}

var orderKeys = []string{"orderId", "items", "customerInfo", "total", "status", "createdAt", "updatedAt"}

func (o Order) MarshalJSON() ([]byte, error) {
	type plain Order
	doc, err := json.Marshal(plain(o))
	if err != nil {
		return nil, err
	}
	return withExtra(doc, o.Extra)
}

// UnmarshalJSON tolerates hand-edited order records: an unparsable total,
// timestamp or customer block decodes to its zero value instead of failing
// the whole document.
func (o *Order) UnmarshalJSON(data []byte) error {
	type plain Order
	var raw struct {
		plain
		CustomerInfo json.RawMessage `json:"customerInfo"`
		Total        json.RawMessage `json:"total"`
		CreatedAt    json.RawMessage `json:"createdAt"`
		UpdatedAt    json.RawMessage `json:"updatedAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*o = Order(raw.plain)
	o.Extra, _ = extraFields(data, orderKeys...)
	if len(raw.CustomerInfo) > 0 {
		_ = json.Unmarshal(raw.CustomerInfo, &o.CustomerInfo)
	}
	if len(raw.Total) > 0 {
		if err := o.Total.UnmarshalJSON(raw.Total); err != nil {
			o.Total = decimal.Zero
		}
	}
	if len(raw.CreatedAt) > 0 {
		_ = json.Unmarshal(raw.CreatedAt, &o.CreatedAt)
	}
	if len(raw.UpdatedAt) > 0 {
		_ = json.Unmarshal(raw.UpdatedAt, &o.UpdatedAt)
	}
	return nil
}

type CustomerInfo struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var customerKeys = []string{"name", "email", "phone", "address"}

func (c CustomerInfo) MarshalJSON() ([]byte, error) {
	type plain CustomerInfo
	doc, err := json.Marshal(plain(c))
	if err != nil {
		return nil, err
	}
	return withExtra(doc, c.Extra)
}

func (c *CustomerInfo) UnmarshalJSON(data []byte) error {
	type plain CustomerInfo
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraFields(data, customerKeys...)
	if err != nil {
		return err
	}
	p.Extra = extra
	*c = CustomerInfo(p)
	return nil
}

type LineItem struct {
	ProductID int             `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Product   string          `json:"product,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`

	// Extra keeps options such as size or grind that the catalog does not
	// model.
	Extra map[string]json.RawMessage `json:"-"`
}

var lineItemKeys = []string{"id", "name", "product", "price", "quantity", "image"}

func (li LineItem) MarshalJSON() ([]byte, error) {
	type plain LineItem
	doc, err := json.Marshal(plain(li))
	if err != nil {
		return nil, err
	}
	return withExtra(doc, li.Extra)
}

// UnmarshalJSON is strict: a field of the wrong type fails the item.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	type plain LineItem
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraFields(data, lineItemKeys...)
	if err != nil {
		return err
	}
	p.Extra = extra
	*li = LineItem(p)
	return nil
}

// Subtotal is price × quantity. It is never persisted.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// LineItems holds the items of a stored order and decodes leniently: an
// items field that is not an array decodes to nil instead of failing the
// whole orders document, and elements that do not decode are dropped.
// Request bodies use []LineItem instead.
type LineItems []LineItem

func (l *LineItems) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		*l = nil
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		*l = nil
		return nil
	}

	items := make(LineItems, 0, len(raw))
	for _, r := range raw {
		var item LineItem
		if err := json.Unmarshal(r, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	*l = items
	return nil
}

// OrderRequest is the body of POST /api/orders. Pointers distinguish an
// absent field from a zero one during validation. Items decode strictly,
// so a malformed line item rejects the request instead of vanishing.
type OrderRequest struct {
	Items        []LineItem       `json:"items"`
	CustomerInfo *CustomerInfo    `json:"customerInfo"`
	Total        *decimal.Decimal `json:"total"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (r *OrderRequest) UnmarshalJSON(data []byte) error {
	type plain OrderRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraFields(data, orderKeys...)
	if err != nil {
		return err
	}
	p.Extra = extra
	*r = OrderRequest(p)
	return nil
}

// extraFields returns the members of a JSON object that are not in known,
// or nil when there are none.
func extraFields(data []byte, known ...string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(fields, k)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// withExtra adds extra members to an encoded object. Members already in doc
// win.
func withExtra(doc []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return doc, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}
	return json.Marshal(fields)
}

type OrderPlacedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"orderId"`
	Data    *Order `json:"data"`
}
