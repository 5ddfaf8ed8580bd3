package retrieval

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Kode-Rex/weave/pkg/models"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

// Token types accepted by the context endpoint. Tokens are issued and
// validated upstream; here they only carry the caller's identity.
const (
	TokenTypeSlack     = "Slack"
	TokenTypeMesh      = "Mesh"
	TokenTypeOpenWebUI = "OpenWebUI"
	TokenTypeEmail     = "Email"
)

const slackTokenPrefix = "slack:"

// Identity is the resolved caller of a context request.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	IsActive  bool   `json:"is_active"`
	TokenType string `json:"token_type"`
}

// SlackUserSource looks up Slack users during identity resolution.
type SlackUserSource interface {
	Get(ctx context.Context, id string) (*models.SlackUser, error)
}

// MeshUserSource looks up mesh users during identity resolution.
type MeshUserSource interface {
	Get(ctx context.Context, id string) (*models.MeshUser, error)
	GetByEmail(ctx context.Context, email string) (*models.MeshUser, error)
	GetByOpenWebUIID(ctx context.Context, openWebUIID string) (*models.MeshUser, error)
}

// Resolver maps auth tokens to caller identities against the user tables.
type Resolver struct {
	slackUsers SlackUserSource
	meshUsers  MeshUserSource
	logger     ectologger.Logger
}

// NewResolver creates a new identity resolver
func NewResolver(slackUsers SlackUserSource, meshUsers MeshUserSource, logger ectologger.Logger) *Resolver {
	return &Resolver{
		slackUsers: slackUsers,
		meshUsers:  meshUsers,
		logger:     logger,
	}
}

// Resolve returns the identity behind an auth token. Slack tokens carry
// "slack:{user_id}", Mesh tokens carry the mesh user id, OpenWebUI tokens
// carry the OpenWebUI account id, and Email tokens carry the address itself.
func (r *Resolver) Resolve(ctx context.Context, token, tokenType string) (*Identity, error) {
	ctx, span := tracing.StartSpan(ctx, "retrieval.Resolver.Resolve")
	defer span.End()

	if token == "" {
		return nil, httperror.NewHTTPError(http.StatusUnauthorized, "missing auth token")
	}

	r.logger.WithContext(ctx).WithField("token_type", tokenType).Debug("Resolving caller identity")

	switch tokenType {
	case TokenTypeSlack:
		return r.resolveSlack(ctx, token)
	case TokenTypeMesh:
		return r.resolveMesh(ctx, token)
	case TokenTypeOpenWebUI:
		return r.resolveOpenWebUI(ctx, token)
	case TokenTypeEmail:
		return r.resolveEmail(ctx, token)
	default:
		return nil, httperror.NewHTTPErrorf(http.StatusUnauthorized, "unsupported token type %q", tokenType)
	}
}

func (r *Resolver) resolveSlack(ctx context.Context, token string) (*Identity, error) {
	if !strings.HasPrefix(token, slackTokenPrefix) {
		return nil, httperror.NewHTTPError(http.StatusUnauthorized, "invalid Slack token format, expected slack:{user_id}")
	}

	userID := strings.TrimPrefix(token, slackTokenPrefix)
	user, err := r.slackUsers.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	name := user.RealName
	if name == "" {
		name = user.DisplayName
	}

	return &Identity{
		ID:        user.ID,
		Email:     user.Email,
		Name:      name,
		IsActive:  user.IsActiveUser(),
		TokenType: TokenTypeSlack,
	}, nil
}

func (r *Resolver) resolveMesh(ctx context.Context, token string) (*Identity, error) {
	user, err := r.meshUsers.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	return meshIdentity(user, TokenTypeMesh), nil
}

func (r *Resolver) resolveOpenWebUI(ctx context.Context, token string) (*Identity, error) {
	user, err := r.meshUsers.GetByOpenWebUIID(ctx, token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "no user linked to OpenWebUI account %s", token)
	}
	return meshIdentity(user, TokenTypeOpenWebUI), nil
}

// resolveEmail treats the token as the caller's address. An unknown address
// still resolves so retrieval can scope by email alone.
func (r *Resolver) resolveEmail(ctx context.Context, token string) (*Identity, error) {
	if !strings.Contains(token, "@") {
		return nil, httperror.NewHTTPError(http.StatusUnauthorized, "invalid email token")
	}

	user, err := r.meshUsers.GetByEmail(ctx, token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return &Identity{
			ID:        token,
			Email:     token,
			IsActive:  true,
			TokenType: TokenTypeEmail,
		}, nil
	}
	return meshIdentity(user, TokenTypeEmail), nil
}

func meshIdentity(user *models.MeshUser, tokenType string) *Identity {
	return &Identity{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		IsActive:  user.IsActive,
		TokenType: tokenType,
	}
}
