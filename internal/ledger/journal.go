// Package ledger posts approved transactions to the external ledger. The
// journal poster writes an append-only CSV journal that downstream books
// import; it stands behind the same interface a hosted ledger API would.
package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/arnold17091984/accounting-automation/internal/common"
	"github.com/arnold17091984/accounting-automation/internal/model"
)

// JournalPoster appends posted transactions to a CSV journal file. Post is
// safe for concurrent callers; entries are flushed and synced before the
// ledger reference is returned, so a returned reference means the entry is
// durable.
type JournalPoster struct {
	mu   sync.Mutex
	path string
	seq  int
}

// NewJournalPoster opens (or creates) the journal at path and writes the
// header when the file is new.
func NewJournalPoster(path string) (*JournalPoster, error) {
	info, err := os.Stat(path)
	isNew := err != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() { _ = f.Close() }()

	if isNew {
		w := csv.NewWriter(f)
		if err := w.Write([]string{
			"ledger_ref", "date", "entity", "account_code", "account_name",
			"category", "merchant", "description", "amount", "currency",
			"source", "transaction_id",
		}); err != nil {
			return nil, fmt.Errorf("failed to write journal header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("failed to write journal header: %w", err)
		}
	}

	return &JournalPoster{path: path}, nil
}

// Post appends the transaction to the journal and returns its reference.
func (p *JournalPoster) Post(ctx context.Context, txn model.Transaction) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return "", common.Retryable(fmt.Errorf("failed to open journal: %w", err))
	}
	defer func() { _ = f.Close() }()

	p.seq++
	ref := fmt.Sprintf("J-%s-%06d", txn.Date.Format("20060102"), p.seq)

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		ref,
		txn.Date.Format("2006-01-02"),
		txn.Entity,
		txn.Classification.AccountCode,
		txn.Classification.AccountName,
		txn.Classification.Category,
		txn.Merchant,
		txn.Description,
		txn.Amount.StringFixed(2),
		txn.Currency,
		string(txn.Source),
		txn.ID,
	}); err != nil {
		return "", common.Retryable(fmt.Errorf("failed to write journal entry: %w", err))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", common.Retryable(fmt.Errorf("failed to flush journal entry: %w", err))
	}
	if err := f.Sync(); err != nil {
		return "", common.Retryable(fmt.Errorf("failed to sync journal: %w", err))
	}
	return ref, nil
}
