package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"welfareflow/internal/domain"
	"welfareflow/internal/repo"
)

// Writer appends audit rows inside the caller's transaction.
type Writer struct {
	Repo repo.Repo
	Now  func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, h domain.ActionHistory) (domain.ActionHistory, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	if h.ReferenceNumber == "" {
		return h, fmt.Errorf("history row needs a reference number")
	}
	h.ActionTakenDate = w.Now().Format(domain.HistoryDateLayout)
	id, err := w.Repo.InsertHistory(ctx, tx, h)
	if err != nil {
		return h, fmt.Errorf("append history: %w", err)
	}
	h.ID = id
	return h, nil
}

// ParseDate parses an ActionTakenDate value.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(domain.HistoryDateLayout, s)
}

// Latest returns the newest ActionTakenDate among rows; ok is false when none parse.
func Latest(rows []domain.ActionHistory) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, h := range rows {
		ts, err := ParseDate(h.ActionTakenDate)
		if err != nil {
			continue
		}
		if !found || ts.After(latest) {
			latest = ts
			found = true
		}
	}
	return latest, found
}
