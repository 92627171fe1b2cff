// Package httpapi is the thin HTTP adapter over the core services. It
// decodes requests, enforces the authorization rules and encodes results;
// all protocol semantics live in the services.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/envault/envault/internal/logging"
	"github.com/envault/envault/internal/server/events"
	"github.com/envault/envault/internal/server/models"
	"github.com/envault/envault/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// KeyVault is the per-user key pair surface the handlers call.
type KeyVault interface {
	SetUpKeys(ctx context.Context, userID, passphrase string) (*models.UserKey, error)
	Unlock(ctx context.Context, userID, passphrase string) ([]byte, error)
	RegenerateKeys(ctx context.Context, userID, passphrase string) (*models.UserKey, error)
	PublicKey(ctx context.Context, userID string) ([]byte, error)
}

// KeyDistributor is the project membership and content key surface.
type KeyDistributor interface {
	CreateProject(ctx context.Context, ownerID string) (string, []byte, error)
	AddMember(ctx context.Context, projectID, memberID string, memberPublicKey, contentKey []byte) error
	RemoveMember(ctx context.Context, projectID, memberID string) error
	UnwrapForMember(ctx context.Context, projectID, memberID string, privateKey []byte) ([]byte, error)
	Members(ctx context.Context, projectID string) ([]string, error)
	Rotate(ctx context.Context, projectID string, newContentKey []byte, memberKeys map[string][]byte) error
}

// Invitations is the temp-keypair relay surface.
type Invitations interface {
	Create(ctx context.Context, projectID, authorID, onetimePassphrase string, contentKey []byte) (*models.Invitation, error)
	Accept(ctx context.Context, invitationID, onetimePassphrase string, inviteePublicKey []byte, inviteeID string) (*services.AcceptResult, error)
	Author(ctx context.Context, invitationID string) (string, error)
	Revoke(ctx context.Context, invitationID string) error
}

// Versions is the append-only history surface.
type Versions interface {
	Append(ctx context.Context, projectID, authorID string, content, contentKey []byte) (*models.SecretVersion, error)
	Latest(ctx context.Context, projectID string) (*models.SecretVersion, error)
	History(ctx context.Context, projectID string) ([]*models.SecretVersion, error)
}

// Exporter pushes sealed secrets to the external recipient. Nil when no
// recipient is configured.
type Exporter interface {
	PushAll(ctx context.Context, secrets map[string]string) map[string]error
}

type Server struct {
	keys        KeyVault
	distributor KeyDistributor
	invitations Invitations
	versions    Versions
	exporter    Exporter
	dispatcher  events.Dispatcher
	secretKey   []byte
	logger      logging.Logger
}

func NewServer(keys KeyVault, distributor KeyDistributor, invitations Invitations, versions Versions, exporter Exporter, dispatcher events.Dispatcher, secretKey []byte, logger logging.Logger) *Server {
	return &Server{
		keys:        keys,
		distributor: distributor,
		invitations: invitations,
		versions:    versions,
		exporter:    exporter,
		dispatcher:  dispatcher,
		secretKey:   secretKey,
		logger:      logger,
	}
}

// Router builds the chi router. Every route requires a valid bearer token.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.authenticate)

	r.Route("/api", func(r chi.Router) {
		r.Post("/keys", s.handleSetUpKeys)
		r.Post("/keys/unlock", s.handleUnlock)
		r.Post("/keys/regenerate", s.handleRegenerateKeys)
		r.Get("/users/{userID}/key", s.handlePublicKey)

		r.Post("/projects", s.handleCreateProject)
		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Get("/members", s.handleMembers)
			r.Post("/members", s.handleAddMember)
			r.Delete("/members/{memberID}", s.handleRemoveMember)
			r.Post("/unwrap", s.handleUnwrap)
			r.Post("/rotate", s.handleRotate)

			r.Post("/versions", s.handleAppendVersion)
			r.Get("/versions", s.handleHistory)
			r.Get("/versions/latest", s.handleLatest)
		})

		r.Post("/invitations", s.handleCreateInvitation)
		r.Post("/invitations/{invitationID}/accept", s.handleAcceptInvitation)
		r.Delete("/invitations/{invitationID}", s.handleRevokeInvitation)

		r.Post("/export", s.handleExport)
	})

	return r
}
