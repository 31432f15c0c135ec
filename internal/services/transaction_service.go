package services

import (
	"context"
	"fmt"
	"strings"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
	applog "budgetbook/internal/log"
	"budgetbook/internal/store"
)

// TransactionInput carries the editable attributes of a transaction.
type TransactionInput struct {
	Date        core.Date       `json:"date"`
	Description string          `json:"description"`
	Amount      core.Money      `json:"amount"`
	Currency    string          `json:"currency"`
	CategoryID  string          `json:"category_id"`
	CustomData  core.CustomData `json:"custom_data"`
}

func (in TransactionInput) apply(t core.Transaction) core.Transaction {
	t.Date = in.Date
	t.Description = strings.TrimSpace(in.Description)
	t.Amount = in.Amount
	t.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	t.CategoryID = in.CategoryID
	t.CustomData = in.CustomData.Clone()
	return t
}

// TransactionService writes transactions and notifies the broker after
// every successful write.
type TransactionService struct {
	store     store.TransactionStore
	publisher Publisher
	logger    *applog.Logger
	audit     *applog.StructuredLogger
}

func NewTransactionService(s store.TransactionStore, p Publisher) *TransactionService {
	logger := applog.ForComponent(applog.ComponentTransaction)
	return &TransactionService{
		store:     s,
		publisher: p,
		logger:    logger,
		audit:     applog.NewStructuredLogger(logger),
	}
}

func (s *TransactionService) List(ctx context.Context, projectID string) ([]core.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, projectID)
	if err != nil {
		s.logger.Failure(ctx, "Failed to list transactions", err, applog.OpList, projectID)
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *TransactionService) Get(ctx context.Context, projectID, id string) (core.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, projectID, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

func (s *TransactionService) Create(ctx context.Context, projectID, userID string, in TransactionInput) (core.Transaction, error) {
	t := in.apply(core.Transaction{ProjectID: projectID, CreatedBy: userID})
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		s.logger.Failure(ctx, "Failed to create transaction", err, applog.OpCreate, projectID)
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	s.audit.LogTransactionWritten(ctx, applog.OpCreate, projectID, created.ID, created.Amount.Cents)
	notify(ctx, s.publisher, s.logger, amqp.NewProjectSyncEvent(projectID, applog.OpCreate, created.ID))
	return created, nil
}

// Update replaces the editable attributes of an existing transaction.
func (s *TransactionService) Update(ctx context.Context, projectID, id string, in TransactionInput) (core.Transaction, error) {
	existing, err := s.Get(ctx, projectID, id)
	if err != nil {
		return core.Transaction{}, err
	}

	t := in.apply(existing)
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	n, err := s.store.UpdateTransaction(ctx, t)
	if err != nil {
		s.logger.Failure(ctx, "Failed to update transaction", err, applog.OpUpdate, projectID,
			applog.FieldTransactionID, id)
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return core.Transaction{}, core.ErrDenied
	}

	s.audit.LogTransactionWritten(ctx, applog.OpUpdate, projectID, id, t.Amount.Cents)
	notify(ctx, s.publisher, s.logger, amqp.NewProjectSyncEvent(projectID, applog.OpUpdate, id))
	return s.Get(ctx, projectID, id)
}

func (s *TransactionService) Delete(ctx context.Context, projectID, id string) error {
	_, err := s.DeleteMany(ctx, projectID, []string{id})
	return err
}

// DeleteMany removes the given ids in a single storage call and returns the
// number of rows removed. Zero rows for a non-empty id list is a denial.
func (s *TransactionService) DeleteMany(ctx context.Context, projectID string, ids []string) (int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := s.store.DeleteTransactions(ctx, projectID, ids)
	if err != nil {
		s.logger.Failure(ctx, "Failed to delete transactions", err, applog.OpDelete, projectID,
			applog.FieldCount, len(ids))
		return 0, fmt.Errorf("delete transactions: %w", err)
	}
	if n == 0 {
		return 0, core.ErrDenied
	}

	s.logger.InfoContext(ctx, "Transactions deleted",
		applog.FieldProjectID, projectID,
		applog.FieldCount, n)
	notify(ctx, s.publisher, s.logger, amqp.NewProjectSyncEvent(projectID, applog.OpDelete, ids...))
	return n, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
