package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnold17091984/accounting-automation/internal/model"
)

func TestParseCSV_GenericLayout(t *testing.T) {
	input := `date,description,amount
2026-03-10,OFFICE WAREHOUSE MAKATI,"1,250.00"
2026-03-11,MERALCO BILL PAYMENT,8900.50
`
	res, err := ParseCSV(strings.NewReader(input), GenericLayout(), "main", "PHP")
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	assert.Empty(t, res.RowErrors)

	first := res.Transactions[0]
	assert.Equal(t, "main", first.Entity)
	assert.Equal(t, model.SourceBank, first.Source)
	assert.Equal(t, "1250", first.Amount.String())
	assert.Equal(t, "OFFICE WAREHOUSE MAKATI", first.Merchant)
	assert.Equal(t, model.TxnCreated, first.Status)
	assert.NotEmpty(t, first.ID)

	assert.Equal(t, "8900.5", res.Transactions[1].Amount.String())
}

func TestParseCSV_MalformedRowsAreCollectedNotFatal(t *testing.T) {
	input := `date,description,amount
2026-03-10,GOOD ROW,100.00
not-a-date,BAD DATE,100.00
2026-03-12,BAD AMOUNT,oops
2026-03-13,ZERO AMOUNT,0
2026-03-14,ANOTHER GOOD ROW,250.00
`
	res, err := ParseCSV(strings.NewReader(input), GenericLayout(), "main", "PHP")
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 2)
	assert.Len(t, res.RowErrors, 3)
	for _, rowErr := range res.RowErrors {
		assert.Contains(t, rowErr.Error(), "row ")
	}
}

func TestParseCSV_WalletDebitCreditColumns(t *testing.T) {
	input := `date,description,reference,debit,credit
2026-03-10 14:30:00,GCASH PAYMENT TO SUPPLIER,REF123,500.00,
2026-03-10 15:00:00,GCASH CASH IN,REF124,,1000.00
`
	res, err := ParseCSV(strings.NewReader(input), WalletLayout(), "main", "PHP")
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, "500", res.Transactions[0].Amount.String())
	assert.Equal(t, "1000", res.Transactions[1].Amount.String())
	assert.Equal(t, model.SourcePOS, res.Transactions[0].Source)
}

func TestParseCSV_BankCardMerchantColumn(t *testing.T) {
	input := `date,merchant,description,amount
03/10/2026,POS PURCHASE OFFICE WAREHOUSE,card purchase makati,"₱1,250.00"
`
	res, err := ParseCSV(strings.NewReader(input), BankCardLayout(), "main", "PHP")
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)

	txn := res.Transactions[0]
	assert.Equal(t, model.SourceCard, txn.Source)
	assert.Equal(t, "OFFICE WAREHOUSE", txn.Merchant, "statement boilerplate prefix is stripped")
	assert.Equal(t, "1250", txn.Amount.String())
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1250.00", "1250", false},
		{"1,250.00", "1250", false},
		{"₱1,250.00", "1250", false},
		{"PHP 99.95", "99.95", false},
		{"(500.00)", "500", false}, // negatives normalize to magnitude
		{"-500.00", "500", false},
		{"", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		got, err := parseAmount(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got.String(), "input %q", tt.in)
	}
}

func TestCleanMerchant(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"POS PURCHASE JOLLIBEE BGC", "JOLLIBEE BGC"},
		{"DEBIT CARD PURCHASE GRAB PH", "GRAB PH"},
		{"03/10 OFFICE WAREHOUSE", "OFFICE WAREHOUSE"},
		{"PLAIN VENDOR", "PLAIN VENDOR"},
		{"  padded  ", "padded"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanMerchant(tt.in), "input %q", tt.in)
	}
}
