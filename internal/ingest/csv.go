package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arnold17091984/accounting-automation/internal/common"
	"github.com/arnold17091984/accounting-automation/internal/model"
)

// CSVLayout maps the columns of one bank's CSV export. Column indexes are
// zero-based; -1 marks a column the export does not carry.
type CSVLayout struct {
	Name        string
	Source      model.SourceKind
	DateCol     int
	DateFormat  string
	Description int
	MerchantCol int // -1: derive from description
	AmountCol   int
	// DebitCol/CreditCol handle exports that split amounts into two
	// columns; they override AmountCol when >= 0.
	DebitCol  int
	CreditCol int
	SkipRows  int
}

// GenericLayout handles the common date,description,amount export.
func GenericLayout() CSVLayout {
	return CSVLayout{
		Name:        "generic",
		Source:      model.SourceBank,
		DateCol:     0,
		DateFormat:  "2006-01-02",
		Description: 1,
		MerchantCol: -1,
		AmountCol:   2,
		DebitCol:    -1,
		CreditCol:   -1,
		SkipRows:    1,
	}
}

// WalletLayout handles e-wallet exports: date, description, reference,
// debit, credit.
func WalletLayout() CSVLayout {
	return CSVLayout{
		Name:        "wallet",
		Source:      model.SourcePOS,
		DateCol:     0,
		DateFormat:  "2006-01-02 15:04:05",
		Description: 1,
		MerchantCol: -1,
		AmountCol:   -1,
		DebitCol:    3,
		CreditCol:   4,
		SkipRows:    1,
	}
}

// BankCardLayout handles card statements with an explicit merchant column:
// date, merchant, description, amount.
func BankCardLayout() CSVLayout {
	return CSVLayout{
		Name:        "bank-card",
		Source:      model.SourceCard,
		DateCol:     0,
		DateFormat:  "01/02/2006",
		Description: 2,
		MerchantCol: 1,
		AmountCol:   3,
		DebitCol:    -1,
		CreditCol:   -1,
		SkipRows:    1,
	}
}

// Layouts returns the known layouts by name.
func Layouts() map[string]CSVLayout {
	return map[string]CSVLayout{
		"generic":   GenericLayout(),
		"wallet":    WalletLayout(),
		"bank-card": BankCardLayout(),
	}
}

// ParseCSV reads a statement export using the given layout. Rows that fail
// to parse are reported in the result and skipped; the remainder of the file
// still loads.
func ParseCSV(r io.Reader, layout CSVLayout, entity, currency string) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // ragged exports are common
	reader.TrimLeadingSpace = true

	res := &Result{}
	rowNum := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		rowNum++
		if rowNum <= layout.SkipRows {
			continue
		}

		txn, err := parseRow(record, layout, entity, currency)
		if err != nil {
			res.RowErrors = append(res.RowErrors, fmt.Errorf("row %d: %w", rowNum, err))
			continue
		}
		res.Transactions = append(res.Transactions, *txn)
	}

	slog.Info("parsed CSV statement",
		"layout", layout.Name,
		"entity", entity,
		"transactions", len(res.Transactions),
		"skipped_rows", len(res.RowErrors))
	return res, nil
}

func parseRow(record []string, layout CSVLayout, entity, currency string) (*model.Transaction, error) {
	date, err := columnTime(record, layout.DateCol, layout.DateFormat)
	if err != nil {
		return nil, err
	}

	amount, err := rowAmount(record, layout)
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, common.NewInputError("amount", "zero amount")
	}

	description := column(record, layout.Description)
	merchant := ""
	if layout.MerchantCol >= 0 {
		merchant = CleanMerchant(column(record, layout.MerchantCol))
	} else {
		merchant = CleanMerchant(description)
	}

	return &model.Transaction{
		ID:           uuid.NewString(),
		Date:         date,
		Entity:       entity,
		Source:       layout.Source,
		SourceDetail: layout.Name,
		Description:  description,
		Merchant:     merchant,
		Amount:       amount,
		Currency:     currency,
		Status:       model.TxnCreated,
	}, nil
}

func rowAmount(record []string, layout CSVLayout) (decimal.Decimal, error) {
	if layout.DebitCol >= 0 || layout.CreditCol >= 0 {
		debit := column(record, layout.DebitCol)
		credit := column(record, layout.CreditCol)
		raw := debit
		if raw == "" {
			raw = credit
		}
		return parseAmount(raw)
	}
	return parseAmount(column(record, layout.AmountCol))
}

// parseAmount handles thousands separators, currency symbols and
// parenthesized negatives.
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, common.NewInputError("amount", "empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer(",", "", "₱", "", "PHP", "", " ", "").Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, common.NewInputError("amount", fmt.Sprintf("unparsable value %q", raw))
	}
	if negative {
		d = d.Neg()
	}
	return d.Abs(), nil
}

func columnTime(record []string, col int, format string) (time.Time, error) {
	raw := column(record, col)
	if raw == "" {
		return time.Time{}, common.NewInputError("date", "missing")
	}
	t, err := time.Parse(format, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, common.NewInputError("date", fmt.Sprintf("unparsable value %q", raw))
	}
	return t, nil
}

func column(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[col])
}
