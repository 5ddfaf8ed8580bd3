// Package recordsync exposes explicit resync of registered records into the
// graph and search stores.
package recordsync

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Kode-Rex/weave/pkg/annotations"
	"github.com/Kode-Rex/weave/pkg/backfill"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

// Register registers record sync routes
func Register(g *echo.Group) {
	g.POST("/:key", SyncAll)
	g.POST("/:key/:id", SyncRecord)
}

// SyncRecordResponse confirms one record resync.
type SyncRecordResponse struct {
	Key    string `json:"key"`
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SyncRecord pushes one record to every configured store by key and id.
func SyncRecord(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "recordsync_handler.SyncRecord")
	defer span.End()

	key := c.Param("key")
	id := c.Param("id")

	ctx, dispatcher, err := ectoinject.GetContext[*annotations.Dispatcher](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get dispatcher")
	}

	if err := dispatcher.SyncByID(ctx, key, id); err != nil {
		if errors.Is(err, annotations.ErrNotRegistered) {
			return httperror.NewHTTPErrorf(http.StatusNotFound, "unknown record type %s", key)
		}
		if errors.Is(err, annotations.ErrRecordNotFound) {
			return httperror.NewHTTPErrorf(http.StatusNotFound, "%s %s not found", key, id)
		}
		return err
	}

	return c.JSON(http.StatusOK, SyncRecordResponse{Key: key, ID: id, Status: "synced"})
}

// SyncAll resyncs every record of the keyed type.
func SyncAll(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "recordsync_handler.SyncAll")
	defer span.End()

	key := c.Param("key")

	ctx, svc, err := ectoinject.GetContext[*backfill.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get backfill service")
	}

	summary, err := svc.Run(ctx, key)
	if err != nil {
		if errors.Is(err, backfill.ErrNoSource) {
			return httperror.NewHTTPErrorf(http.StatusNotFound, "unknown record type %s", key)
		}
		return err
	}

	return c.JSON(http.StatusOK, summary)
}
