package annotations

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Kode-Rex/weave/pkg/metrics"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

// Write operations recognized by the dispatcher.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Store labels used in logs and metrics.
const (
	storeGraph  = "neo4j"
	storeSearch = "elasticsearch"
)

// Dispatcher fans a primary-store write out to every secondary store the
// record type is configured for.
type Dispatcher struct {
	registry *Registry
	graph    *GraphSyncer
	search   *SearchSyncer
	logger   ectologger.Logger
}

// NewDispatcher wires a dispatcher over the registry and both syncers.
func NewDispatcher(registry *Registry, graph *GraphSyncer, search *SearchSyncer, logger ectologger.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		graph:    graph,
		search:   search,
		logger:   logger,
	}
}

// Dispatch applies the automatic sync for one write. Inserts and updates
// upsert the graph node, then its relationships, then the search document;
// deletes remove the search document only. Graph node deletion is a
// deliberate manual operation so history survives row deletes.
//
// Each step swallows its own store failure after logging it: a dead
// secondary store never turns into a primary-store write failure. Only an
// unregistered record type is returned as an error.
func (d *Dispatcher) Dispatch(ctx context.Context, operation string, record any) error {
	ctx, span := tracing.StartSpan(ctx, "annotations.Dispatcher.Dispatch")
	defer span.End()

	def, err := d.registry.DefinitionFor(record)
	if err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		metrics.RecordDispatch(def.Key, operation, time.Since(start).Seconds())
	}()

	if operation == OpDelete {
		if def.Search != nil {
			idValue, _ := def.Schema.Value(record, def.Search.IDField)
			d.deleteSearchDocument(ctx, def, IDString(idValue))
		}
		return nil
	}

	if def.Graph != nil {
		if err := d.graph.UpsertNode(ctx, record); err != nil {
			d.logger.WithContext(ctx).WithError(err).WithField("record_type", def.Key).Warn("Graph sync failed during dispatch")
			metrics.RecordSync(def.Key, storeGraph, "error")
		} else {
			metrics.RecordSync(def.Key, storeGraph, "success")
		}
	}

	if len(def.Relationships) > 0 {
		if err := d.graph.SyncRelationships(ctx, record); err != nil {
			d.logger.WithContext(ctx).WithError(err).WithField("record_type", def.Key).Warn("Relationship sync failed during dispatch")
		}
	}

	if def.Search != nil {
		if err := d.search.UpsertDocument(ctx, record); err != nil {
			d.logger.WithContext(ctx).WithError(err).WithField("record_type", def.Key).Warn("Search sync failed during dispatch")
			metrics.RecordSync(def.Key, storeSearch, "error")
		} else {
			metrics.RecordSync(def.Key, storeSearch, "success")
		}
	}

	return nil
}

// DispatchByID resolves a record by registry key and id before dispatching,
// for callers that only hold identifiers, like the outbox worker. Deletes
// never need the record; other operations load it through the registered
// loader. A loader miss means the row vanished after the write was
// recorded, which is logged and treated as done.
func (d *Dispatcher) DispatchByID(ctx context.Context, operation, key, id string) error {
	ctx, span := tracing.StartSpan(ctx, "annotations.Dispatcher.DispatchByID")
	defer span.End()

	def, err := d.registry.Resolve(key)
	if err != nil {
		return err
	}

	if operation == OpDelete {
		if def.Search != nil {
			d.deleteSearchDocument(ctx, def, id)
		}
		return nil
	}

	if def.Loader == nil {
		return errors.Wrap(ErrNoLoader, def.Key)
	}

	record, err := def.Loader(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "load %s %s", def.Key, id)
	}
	if record == nil {
		d.logger.WithContext(ctx).WithFields(map[string]any{
			"record_type": def.Key,
			"record_id":   id,
		}).Warn("Record vanished before dispatch, skipping")
		return nil
	}

	return d.Dispatch(ctx, operation, record)
}

func (d *Dispatcher) deleteSearchDocument(ctx context.Context, def *Definition, id string) {
	if err := d.search.DeleteDocumentByID(ctx, def.Key, id); err != nil {
		d.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_type": def.Key,
			"record_id":   id,
		}).Warn("Search delete failed during dispatch")
		metrics.RecordSync(def.Key, storeSearch, "error")
		return
	}
	metrics.RecordSync(def.Key, storeSearch, "success")
}

// SyncByID loads a record by registry key and id and pushes it to every
// configured store. Explicit resync path for API and CLI callers; unlike
// Dispatch it fails loud, including on a missing record.
func (d *Dispatcher) SyncByID(ctx context.Context, key, id string) error {
	ctx, span := tracing.StartSpan(ctx, "annotations.Dispatcher.SyncByID")
	defer span.End()

	def, err := d.registry.Resolve(key)
	if err != nil {
		return err
	}
	if def.Loader == nil {
		return errors.Wrap(ErrNoLoader, def.Key)
	}

	record, err := def.Loader(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "load %s %s", def.Key, id)
	}
	if record == nil {
		return errors.Wrapf(ErrRecordNotFound, "%s %s", def.Key, id)
	}

	return d.SyncAllStores(ctx, record)
}

// SyncAllStores pushes one record to every configured store and returns the
// first failure instead of swallowing it. Callers use it when they need to
// know the stores are current, like manual resyncs. Relationship store
// failures are still skipped inside SyncRelationships; a failure returned
// from it means the record's own config is broken.
func (d *Dispatcher) SyncAllStores(ctx context.Context, record any) error {
	ctx, span := tracing.StartSpan(ctx, "annotations.Dispatcher.SyncAllStores")
	defer span.End()

	def, err := d.registry.DefinitionFor(record)
	if err != nil {
		return err
	}

	if def.Graph != nil {
		if err := d.graph.UpsertNode(ctx, record); err != nil {
			return err
		}
	}
	if len(def.Relationships) > 0 {
		if err := d.graph.SyncRelationships(ctx, record); err != nil {
			return err
		}
	}
	if def.Search != nil {
		if err := d.search.UpsertDocument(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// BulkSync resyncs a batch of records of one registered type, logging
// progress every 100 records and continuing past individual failures.
// Returns how many records synced cleanly.
func (d *Dispatcher) BulkSync(ctx context.Context, key string, records []any) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "annotations.Dispatcher.BulkSync")
	defer span.End()

	def, err := d.registry.Resolve(key)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, record := range records {
		if err := d.SyncAllStores(ctx, record); err != nil {
			d.logger.WithContext(ctx).WithError(err).WithField("record_type", def.Key).Error("Failed to sync record during bulk sync")
			metrics.BulkSyncRecordsTotal.WithLabelValues(def.Key, "error").Inc()
			continue
		}

		synced++
		metrics.BulkSyncRecordsTotal.WithLabelValues(def.Key, "success").Inc()
		if synced%100 == 0 {
			d.logger.WithContext(ctx).WithFields(map[string]any{
				"record_type": def.Key,
				"count":       synced,
			}).Info("Bulk sync progress")
		}
	}

	d.logger.WithContext(ctx).WithFields(map[string]any{
		"record_type": def.Key,
		"count":       synced,
		"total":       len(records),
	}).Info("Bulk sync complete")
	return synced, nil
}
