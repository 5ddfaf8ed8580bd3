// Package backfill resyncs whole record types into the graph and search
// stores by paging through the primary store and bulk-dispatching each page.
package backfill

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Kode-Rex/weave/pkg/annotations"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

const defaultPageSize = 100

// ErrNoSource is returned when a record type has no registered backfill
// source.
var ErrNoSource = errors.New("record type has no backfill source")

// Source pages through every record of one type. Implementations return the
// page of records and the total count across all pages.
type Source interface {
	ListRecords(ctx context.Context, page, pageSize int) ([]any, int, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, page, pageSize int) ([]any, int, error)

func (f SourceFunc) ListRecords(ctx context.Context, page, pageSize int) ([]any, int, error) {
	return f(ctx, page, pageSize)
}

// Summary reports one backfill run.
type Summary struct {
	Key    string `json:"key"`
	Synced int    `json:"synced"`
	Total  int    `json:"total"`
}

// Service runs backfills over registered sources.
type Service struct {
	dispatcher *annotations.Dispatcher
	sources    map[string]Source
	logger     ectologger.Logger
	pageSize   int
}

// NewService returns a backfill service with no sources registered.
func NewService(dispatcher *annotations.Dispatcher, logger ectologger.Logger) *Service {
	return &Service{
		dispatcher: dispatcher,
		sources:    make(map[string]Source),
		logger:     logger,
		pageSize:   defaultPageSize,
	}
}

// Register binds a source to a registry key, replacing any previous one.
func (s *Service) Register(key string, source Source) {
	s.sources[key] = source
}

// Keys returns the registered keys sorted.
func (s *Service) Keys() []string {
	keys := make([]string, 0, len(s.sources))
	for key := range s.sources {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Run resyncs every record of the keyed type, paging through the source and
// continuing past individual record failures. Returns how many records
// synced cleanly out of the total.
func (s *Service) Run(ctx context.Context, key string) (*Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "backfill.Service.Run")
	defer span.End()

	source, ok := s.sources[key]
	if !ok {
		return nil, errors.Wrap(ErrNoSource, key)
	}

	s.logger.WithContext(ctx).WithField("record_type", key).Info("Starting backfill")

	summary := &Summary{Key: key}
	for page := 1; ; page++ {
		records, total, err := source.ListRecords(ctx, page, s.pageSize)
		if err != nil {
			return nil, errors.Wrapf(err, "list %s page %d", key, page)
		}
		summary.Total = total

		if len(records) == 0 {
			break
		}

		synced, err := s.dispatcher.BulkSync(ctx, key, records)
		if err != nil {
			return nil, err
		}
		summary.Synced += synced

		if len(records) < s.pageSize {
			break
		}
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"record_type": key,
		"synced":      summary.Synced,
		"total":       summary.Total,
	}).Info("Backfill complete")
	return summary, nil
}
