package ai

import (
	"fmt"
	"strings"

	"github.com/arnold17091984/accounting-automation/internal/service"
)

// buildPrompt assembles the classification prompt: chart of accounts,
// entity context, few-shot exemplars and the transactions to classify.
func buildPrompt(req service.InferenceRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Classify the following transactions for business entity %q.\n\n", req.Entity)

	b.WriteString("Chart of accounts:\n")
	for _, acct := range req.Accounts {
		fmt.Fprintf(&b, "- %s %s (%s)\n", acct.Code, acct.Name, acct.Category)
	}

	if len(req.Exemplars) > 0 {
		b.WriteString("\nPreviously accepted classifications for this entity:\n")
		for _, ex := range req.Exemplars {
			fmt.Fprintf(&b, "- %q / merchant %q -> account %s, category %s\n",
				ex.Description, ex.Merchant, ex.AccountCode, ex.Category)
		}
	}

	b.WriteString("\nTransactions:\n")
	for _, txn := range req.Transactions {
		fmt.Fprintf(&b, "- id=%s date=%s merchant=%q description=%q amount=%s %s\n",
			txn.ID, txn.Date.Format("2006-01-02"), txn.Merchant, txn.Description,
			txn.Amount.StringFixed(2), txn.Currency)
	}

	b.WriteString("\nRespond with a JSON array, one object per transaction, with fields: ")
	b.WriteString(`"transaction_id", "account_code", "account_name", "category", "confidence" (0.0-1.0).`)
	if req.Strict {
		b.WriteString("\nIMPORTANT: output ONLY the raw JSON array. No prose, no markdown fences, no trailing commentary.")
	}
	b.WriteString("\n")

	return b.String()
}
