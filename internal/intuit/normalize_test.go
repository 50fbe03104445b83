package intuit

import (
	"encoding/json"
	"testing"
)

func decodeSalesReceipt(t *testing.T, data string) *salesReceipt {
	t.Helper()
	var sr salesReceipt
	if err := json.Unmarshal([]byte(data), &sr); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	return &sr
}

func TestNormalizeReceipt_IssuedByFallbackChain(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "location name",
			input: `{"Id":"1","LocationRef":{"name":"Main Street"},"SalesRepRef":{"name":"Dana"}}`,
			want:  "Main Street",
		},
		{
			name:  "location value when name missing",
			input: `{"Id":"1","LocationRef":{"value":"42"}}`,
			want:  "42",
		},
		{
			name:  "sales rep when no location",
			input: `{"Id":"1","SalesRepRef":{"name":"Dana"}}`,
			want:  "Dana",
		},
		{
			name:  "metadata create by",
			input: `{"Id":"1","MetaData":{"CreateBy":"import-job"}}`,
			want:  "import-job",
		},
		{
			name:  "metadata create by id",
			input: `{"Id":"1","MetaData":{"CreateById":"9001"}}`,
			want:  "9001",
		},
		{
			name:  "nothing available",
			input: `{"Id":"1"}`,
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeReceipt(decodeSalesReceipt(t, tt.input))
			if got.Meta.IssuedBy != tt.want {
				t.Errorf("IssuedBy = %q, want %q", got.Meta.IssuedBy, tt.want)
			}
		})
	}
}

func TestNormalizeReceipt_Total(t *testing.T) {
	// Normalization never fails, whatever the record is missing.
	got := normalizeReceipt(&salesReceipt{})
	if got.Meta.IssuedBy != "" || got.Customer != "" || got.BillEmail != "" {
		t.Errorf("expected empty defaults, got %+v", got)
	}
	if got.LineItems == nil {
		t.Error("line items must be an empty slice, not nil")
	}
}

func TestNormalizeReceipt_Fields(t *testing.T) {
	input := `{
		"Id": "123",
		"TxnDate": "2024-05-01",
		"TotalAmt": 99.5,
		"CustomerRef": {"name": "Acme Corp"},
		"BillEmail": {"Address": "billing@acme.test"},
		"Line": [
			{"Description": "Widget", "Amount": 60, "SalesItemLineDetail": {"ItemRef": {"name": "WIDGET-1"}}},
			{"Amount": 39.5}
		]
	}`
	got := normalizeReceipt(decodeSalesReceipt(t, input))

	if got.ID != "123" || got.TxnDate != "2024-05-01" || got.TotalAmt != 99.5 {
		t.Errorf("unexpected receipt: %+v", got)
	}
	if got.Customer != "Acme Corp" {
		t.Errorf("customer = %q", got.Customer)
	}
	if got.BillEmail != "billing@acme.test" {
		t.Errorf("bill email = %q", got.BillEmail)
	}
	if len(got.LineItems) != 2 {
		t.Fatalf("line items = %d, want 2", len(got.LineItems))
	}
	if got.LineItems[0].ItemRef != "WIDGET-1" || got.LineItems[0].Description != "Widget" || got.LineItems[0].Amount != 60 {
		t.Errorf("unexpected first line: %+v", got.LineItems[0])
	}
	// A malformed line defaults instead of failing the record.
	if got.LineItems[1].ItemRef != "" || got.LineItems[1].Amount != 39.5 {
		t.Errorf("unexpected second line: %+v", got.LineItems[1])
	}
}
