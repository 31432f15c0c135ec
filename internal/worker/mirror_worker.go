// Package worker keeps spreadsheet mirrors of project exports up to date.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/text/language"

	"budgetbook/internal/amqp"
	"budgetbook/internal/core"
	applog "budgetbook/internal/log"
	"budgetbook/internal/sheets"
	"budgetbook/internal/store"
	"budgetbook/internal/views"
)

// Store is the read side the worker needs.
type Store interface {
	store.ProjectStore
	store.CategoryStore
	store.TransactionStore
}

// MirrorWorker rebuilds a project's sheet tab from the database whenever a
// project-sync event arrives, and periodically for every project it has seen.
type MirrorWorker struct {
	store  Store
	mirror sheets.Mirror
	logger *applog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMirrorWorker(s Store, m sheets.Mirror) *MirrorWorker {
	return &MirrorWorker{
		store:  s,
		mirror: m,
		logger: applog.ForComponent(applog.ComponentWorker),
		seen:   map[string]struct{}{},
	}
}

// HandleEvent is the amqp.Handler of the worker.
func (w *MirrorWorker) HandleEvent(ctx context.Context, e *amqp.Event) error {
	switch e.Type {
	case amqp.EventProjectSync:
		return w.MirrorProject(ctx, e.ProjectID)
	case amqp.EventInvitation:
		// delivery is handled outside this system
		w.logger.InfoContext(ctx, "Invitation event received",
			applog.FieldProjectID, e.ProjectID,
			"action", e.Action,
			applog.FieldCount, len(e.IDs))
		return nil
	default:
		w.logger.WarnContext(ctx, "Ignoring unknown event type", "type", e.Type)
		return nil
	}
}

// MirrorProject writes the full export of one project to its tab. A project
// that no longer exists is forgotten.
func (w *MirrorWorker) MirrorProject(ctx context.Context, projectID string) error {
	p, err := w.store.GetProject(ctx, projectID)
	if errors.Is(err, core.ErrNotFound) {
		w.forget(projectID)
		w.logger.InfoContext(ctx, "Project gone, skipping mirror", applog.FieldProjectID, projectID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get project: %w", err)
	}

	cats, err := w.store.ListCategories(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	txs, err := w.store.ListTransactions(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}

	idx := views.IndexCategories(cats)
	views.Sort(txs, idx, views.SortState{Column: views.SortDate}, language.Und)
	table := views.BuildTable(txs, idx, p.Settings.CustomFields)

	tab := sheets.TabName(p.Name, p.ID)
	if err := w.mirror.ReplaceRows(ctx, tab, sheets.Values(table)); err != nil {
		w.logger.Failure(ctx, "Failed to mirror project", err, applog.OpSync, projectID, "tab", tab)
		return fmt.Errorf("mirror project %s: %w", projectID, err)
	}

	w.remember(projectID)
	w.logger.InfoContext(ctx, "Project mirrored",
		applog.FieldProjectID, projectID,
		applog.FieldCount, len(table.Rows))
	return nil
}

// ResyncAll mirrors every project seen so far. It keeps going after a
// failure and returns all errors joined.
func (w *MirrorWorker) ResyncAll(ctx context.Context) error {
	var errs []error
	for _, id := range w.Seen() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.MirrorProject(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run resyncs every interval until ctx is done.
func (w *MirrorWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "Periodic resync started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ResyncAll(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Periodic resync finished with errors", applog.FieldError, err)
			}
		}
	}
}

// TrackExisting tracks every project already in the store, so the periodic
// resync covers them after a restart. It returns how many were tracked.
func (w *MirrorWorker) TrackExisting(ctx context.Context) (int, error) {
	ids, err := w.store.ListProjectIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list projects: %w", err)
	}
	w.Track(ids...)
	return len(ids), nil
}

// Track marks projects for the periodic resync without mirroring them now.
func (w *MirrorWorker) Track(projectIDs ...string) {
	for _, id := range projectIDs {
		w.remember(id)
	}
}

// Seen returns the tracked project ids in sorted order.
func (w *MirrorWorker) Seen() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.seen))
	for id := range w.seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (w *MirrorWorker) remember(id string) {
	w.mu.Lock()
	w.seen[id] = struct{}{}
	w.mu.Unlock()
}

func (w *MirrorWorker) forget(id string) {
	w.mu.Lock()
	delete(w.seen, id)
	w.mu.Unlock()
}
