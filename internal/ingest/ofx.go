// Package ingest parses bank and card statement exports into transactions
// ready for the pipeline. Malformed rows are collected, never fatal: one bad
// line must not sink a statement.
package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arnold17091984/accounting-automation/internal/model"
)

// Result is the outcome of parsing one statement: the usable transactions
// plus per-row errors for anything skipped.
type Result struct {
	Transactions []model.Transaction
	RowErrors    []error
}

// statementPrefixes are boilerplate lead-ins banks prepend to merchant text.
var statementPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
	"INSTAPAY ",
	"PESONET ",
}

// ParseOFX reads an OFX/QFX export and converts every bank and credit card
// statement into transactions for the given entity.
func ParseOFX(r io.Reader, entity, currency string) (*Result, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX input: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX: %w", err)
	}

	res := &Result{}
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		detail := string(stmt.BankAcctFrom.AcctID)
		for _, ofxTxn := range stmt.BankTranList.Transactions {
			res.Transactions = append(res.Transactions,
				convertOFX(ofxTxn, entity, currency, model.SourceBank, detail))
		}
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		detail := string(stmt.CCAcctFrom.AcctID)
		for _, ofxTxn := range stmt.BankTranList.Transactions {
			res.Transactions = append(res.Transactions,
				convertOFX(ofxTxn, entity, currency, model.SourceCard, detail))
		}
	}

	slog.Info("parsed OFX statement",
		"entity", entity,
		"transactions", len(res.Transactions))
	return res, nil
}

// preprocessOFX fixes formatting issues common in real exports: leading
// whitespace, mixed-case severity values, SGML tags missing their closing
// bracket.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	severityRe := regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	content = severityRe.ReplaceAllStringFunc(content, strings.ToUpper)

	tagFixRe := regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	return tagFixRe.ReplaceAllString(content, "$1>")
}

func convertOFX(ofxTxn ofxgo.Transaction, entity, currency string, source model.SourceKind, detail string) model.Transaction {
	amount := decimal.NewFromBigRat(&ofxTxn.TrnAmt.Rat, 2).Abs()

	id := string(ofxTxn.FiTID)
	if id == "" {
		id = uuid.NewString()
	}

	return model.Transaction{
		ID:           id,
		Date:         ofxTxn.DtPosted.Time,
		Entity:       entity,
		Source:       source,
		SourceDetail: detail,
		Description:  string(ofxTxn.Name),
		Merchant:     extractMerchant(ofxTxn),
		Amount:       amount,
		Currency:     currency,
		Status:       model.TxnCreated,
	}
}

// extractMerchant pulls the cleanest merchant text available. Payee wins
// when present; a generic name falls back to the memo.
func extractMerchant(txn ofxgo.Transaction) string {
	if txn.Payee != nil && txn.Payee.Name != "" {
		return string(txn.Payee.Name)
	}

	name := string(txn.Name)
	if txn.Memo != "" && isGenericDescription(name) {
		name = string(txn.Memo)
	}
	return CleanMerchant(name)
}

// CleanMerchant strips statement boilerplate and leading date fragments from
// merchant text.
func CleanMerchant(name string) string {
	name = strings.TrimSpace(name)

	upper := strings.ToUpper(name)
	for _, prefix := range statementPrefixes {
		if strings.HasPrefix(upper, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " date fragments.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
