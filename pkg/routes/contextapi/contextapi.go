// Package contextapi serves the context retrieval endpoint consumed by
// completion pipelines. Callers present a user token and a prompt; the
// response carries permission-scoped documents shaped as injectable
// conversation items.
package contextapi

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	utils "github.com/Kode-Rex/weave/pkg/context"
	"github.com/Kode-Rex/weave/pkg/retrieval"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

var validate = validator.New()

// DefaultContextMessage is returned when no documents match the prompt.
const DefaultContextMessage = "I am a helpful assistant. I will provide context-aware responses based on your queries."

// Register registers the context retrieval route
func Register(g *echo.Group) {
	g.POST("", GetContext)
}

// ContextRequest asks for context relevant to a prompt on behalf of a user.
type ContextRequest struct {
	AuthToken      string `json:"auth_token" validate:"required"`
	TokenType      string `json:"token_type" validate:"required"`
	Prompt         string `json:"prompt" validate:"required"`
	HistorySummary string `json:"history_summary"`
}

// ContextItem is one injectable conversation message.
type ContextItem struct {
	Content  string         `json:"content"`
	Role     string         `json:"role"`
	Metadata map[string]any `json:"metadata"`
}

// ContextResponse is the retrieval outcome plus request metadata.
type ContextResponse struct {
	ContextItems []ContextItem  `json:"context_items"`
	Metadata     map[string]any `json:"metadata"`
}

// GetContext resolves the caller, retrieves their permitted documents for
// the prompt, and returns them as system-role context items.
func GetContext(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "context_handler.GetContext")
	defer span.End()

	var req ContextRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, resolver, err := ectoinject.GetContext[*retrieval.Resolver](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get identity resolver")
	}

	identity, err := resolver.Resolve(ctx, req.AuthToken, req.TokenType)
	if err != nil {
		return err
	}
	ctx = utils.SetUserID(ctx, identity.ID)
	ctx = utils.SetUserEmail(ctx, identity.Email)

	ctx, svc, err := ectoinject.GetContext[*retrieval.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get retrieval service")
	}

	result := svc.GetContext(ctx, identity.Email, req.Prompt)

	return c.JSON(http.StatusOK, ContextResponse{
		ContextItems: contextItems(result),
		Metadata:     responseMetadata(identity, req.TokenType, result),
	})
}

// contextItems shapes retrieved documents as system-role messages. An empty
// retrieval yields the default assistant message so callers always get at
// least one item.
func contextItems(result *retrieval.Result) []ContextItem {
	items := make([]ContextItem, 0, len(result.Documents))
	for _, doc := range result.Documents {
		items = append(items, ContextItem{
			Content: doc.Content,
			Role:    "system",
			Metadata: map[string]any{
				"source":          "document",
				"document_id":     doc.ID,
				"relevance_score": doc.Score,
			},
		})
	}
	if len(items) == 0 {
		items = append(items, ContextItem{
			Content:  DefaultContextMessage,
			Role:     "system",
			Metadata: map[string]any{"source": "default"},
		})
	}
	return items
}

func responseMetadata(identity *retrieval.Identity, tokenType string, result *retrieval.Result) map[string]any {
	return map[string]any{
		"user": map[string]any{
			"id":    identity.ID,
			"email": identity.Email,
			"name":  identity.Name,
		},
		"token_type":      tokenType,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"context_sources": result.Sources(),
		"retrieval_metadata": map[string]any{
			"cache_hit":         result.CacheHit,
			"retrieval_time_ms": result.RetrievalTimeMS,
		},
	}
}
