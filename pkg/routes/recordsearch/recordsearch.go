// Package recordsearch exposes annotation-driven search over registered
// record types.
package recordsearch

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Kode-Rex/weave/pkg/annotations"
	"github.com/Kode-Rex/weave/pkg/search"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

// Register registers record search routes
func Register(g *echo.Group) {
	g.GET("/:key", Search)
}

// SearchResponse carries the hits for one record type query.
type SearchResponse struct {
	Key      string       `json:"key"`
	Query    string       `json:"query"`
	Total    int          `json:"total"`
	MaxScore float64      `json:"max_score"`
	Hits     []search.Hit `json:"hits"`
}

// Search queries the record type's index by registry key.
func Search(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "recordsearch_handler.Search")
	defer span.End()

	key := c.Param("key")
	query := c.QueryParam("q")
	if query == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "q is required")
	}

	size, _ := strconv.Atoi(c.QueryParam("size"))
	from, _ := strconv.Atoi(c.QueryParam("from"))
	if size < 1 {
		size = 10
	}
	if from < 0 {
		from = 0
	}

	ctx, syncer, err := ectoinject.GetContext[*annotations.SearchSyncer](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get search syncer")
	}

	result, err := syncer.Search(ctx, key, query, annotations.SearchOptions{Size: size, From: from})
	if err != nil {
		if errors.Is(err, annotations.ErrNotRegistered) {
			return httperror.NewHTTPErrorf(http.StatusNotFound, "unknown record type %s", key)
		}
		if errors.Is(err, annotations.ErrNoSearchConfig) {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "record type %s has no search index", key)
		}
		return httperror.NewHTTPError(http.StatusInternalServerError, "search failed")
	}

	return c.JSON(http.StatusOK, SearchResponse{
		Key:      key,
		Query:    query,
		Total:    result.Total,
		MaxScore: result.MaxScore,
		Hits:     result.Hits,
	})
}
