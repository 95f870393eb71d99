package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"category-tree/internal/model"
	"category-tree/internal/repository"
)

type AuditService struct {
	store repository.AuditReader
}

func NewAuditService(store repository.AuditReader) *AuditService {
	return &AuditService{store: store}
}

// Query pages through audit entries newest first.
func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query.Page, query.Limit = model.NormalizePage(query.Page, query.Limit)

	from, err := parseOptionalAuditTime(query.From)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("invalid 'from' datetime %q: %w", query.From, model.ErrInvalidInput)
	}
	to, err := parseOptionalAuditTime(query.To)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("invalid 'to' datetime %q: %w", query.To, model.ErrInvalidInput)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, model.Meta{}, fmt.Errorf("'to' is before 'from': %w", model.ErrInvalidInput)
	}

	query.Action = strings.ToUpper(strings.TrimSpace(query.Action))
	switch model.AuditAction(query.Action) {
	case "", model.AuditActionReparent, model.AuditActionCreate, model.AuditActionDelete, model.AuditActionStatus:
	default:
		return nil, model.Meta{}, fmt.Errorf("unknown audit action %q: %w", query.Action, model.ErrInvalidInput)
	}

	if !from.IsZero() {
		query.From = from.Format(time.RFC3339Nano)
	}
	if !to.IsZero() {
		query.To = to.Format(time.RFC3339Nano)
	}

	entries, meta, err := s.store.QueryAudit(ctx, query)
	if err != nil {
		return nil, model.Meta{}, model.ClassifyStoreError("query audit", err)
	}
	return entries, meta, nil
}

func parseOptionalAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	return parseAuditTime(trimmed)
}

func parseAuditTime(raw string) (time.Time, error) {
	if value, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return value.UTC(), nil
	}

	value, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}

	return value.UTC(), nil
}
