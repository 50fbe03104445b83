package intuit

// Upstream SalesReceipt shape, limited to the fields normalization reads.

// reference is a QuickBooks entity reference with an optional display name.
type reference struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// displayName returns the reference's name, falling back to its value.
// Nil-safe so optional references can be chained without checks.
func (r *reference) displayName() string {
	if r == nil {
		return ""
	}
	if r.Name != "" {
		return r.Name
	}
	return r.Value
}

type metaData struct {
	CreateBy   string `json:"CreateBy"`
	CreateByID string `json:"CreateById"`
	CreateTime string `json:"CreateTime"`
}

type salesReceiptLine struct {
	Description         string  `json:"Description"`
	Amount              float64 `json:"Amount"`
	SalesItemLineDetail *struct {
		ItemRef *reference `json:"ItemRef"`
	} `json:"SalesItemLineDetail"`
}

type salesReceipt struct {
	ID          string     `json:"Id"`
	TxnDate     string     `json:"TxnDate"`
	TotalAmt    float64    `json:"TotalAmt"`
	CustomerRef *reference `json:"CustomerRef"`
	BillEmail   *struct {
		Address string `json:"Address"`
	} `json:"BillEmail"`
	LocationRef *reference         `json:"LocationRef"`
	SalesRepRef *reference         `json:"SalesRepRef"`
	MetaData    *metaData          `json:"MetaData"`
	Line        []salesReceiptLine `json:"Line"`
}

// Receipt is the normalized response shape served to the frontend.
type Receipt struct {
	ID        string      `json:"id"`
	TxnDate   string      `json:"txn_date"`
	Customer  string      `json:"customer"`
	BillEmail string      `json:"bill_email"`
	TotalAmt  float64     `json:"total_amt"`
	Meta      ReceiptMeta `json:"meta"`
	LineItems []LineItem  `json:"line_items"`
}

// ReceiptMeta carries derived metadata about the receipt.
type ReceiptMeta struct {
	IssuedBy string `json:"IssuedBy"`
}

// LineItem is a normalized receipt line. Missing upstream fields default to
// empty/zero rather than failing the whole record.
type LineItem struct {
	ItemRef     string  `json:"item_ref"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// issuedByResolvers are tried in order until one yields a non-empty value:
// location display name, sales-rep display name, then the created-by
// identifier from metadata.
var issuedByResolvers = []func(*salesReceipt) string{
	func(sr *salesReceipt) string { return sr.LocationRef.displayName() },
	func(sr *salesReceipt) string { return sr.SalesRepRef.displayName() },
	func(sr *salesReceipt) string {
		if sr.MetaData == nil {
			return ""
		}
		if sr.MetaData.CreateBy != "" {
			return sr.MetaData.CreateBy
		}
		return sr.MetaData.CreateByID
	},
}

// normalizeReceipt maps an upstream SalesReceipt to the frontend shape.
// Normalization is total: any missing field resolves to its zero value.
func normalizeReceipt(sr *salesReceipt) Receipt {
	issuedBy := ""
	for _, resolve := range issuedByResolvers {
		if v := resolve(sr); v != "" {
			issuedBy = v
			break
		}
	}

	billEmail := ""
	if sr.BillEmail != nil {
		billEmail = sr.BillEmail.Address
	}

	lineItems := make([]LineItem, 0, len(sr.Line))
	for _, line := range sr.Line {
		item := LineItem{
			Description: line.Description,
			Amount:      line.Amount,
		}
		if line.SalesItemLineDetail != nil {
			item.ItemRef = line.SalesItemLineDetail.ItemRef.displayName()
		}
		lineItems = append(lineItems, item)
	}

	return Receipt{
		ID:        sr.ID,
		TxnDate:   sr.TxnDate,
		Customer:  sr.CustomerRef.displayName(),
		BillEmail: billEmail,
		TotalAmt:  sr.TotalAmt,
		Meta:      ReceiptMeta{IssuedBy: issuedBy},
		LineItems: lineItems,
	}
}
