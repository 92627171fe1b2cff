package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/envault/envault/internal/common"
	"github.com/envault/envault/internal/server/authz"
	"github.com/envault/envault/internal/server/events"
	"github.com/envault/envault/internal/server/models"
	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps the sentinel errors onto HTTP statuses. Decryption
// failures answer 422: the request was well-formed, the key material was
// not.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, common.ErrorUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, common.ErrorAlreadyConfigured), errors.Is(err, common.ErrorConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, common.ErrorDecryptionFailed):
		writeError(w, http.StatusUnprocessableEntity, "decryption failed")
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func decodeB64(w http.ResponseWriter, field, value string) ([]byte, bool) {
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid base64 in "+field)
		return nil, false
	}
	return b, true
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// --- keys ---

type passphraseRequest struct {
	Passphrase string `json:"passphrase"`
}

func (s *Server) handleSetUpKeys(w http.ResponseWriter, r *http.Request) {
	var req passphraseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	record, err := s.keys.SetUpKeys(r.Context(), currentUserID(r.Context()), req.Passphrase)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"public_key": b64(record.PublicKey)})
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req passphraseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	privateKey, err := s.keys.Unlock(r.Context(), currentUserID(r.Context()), req.Passphrase)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"private_key": b64(privateKey)})
}

func (s *Server) handleRegenerateKeys(w http.ResponseWriter, r *http.Request) {
	var req passphraseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	record, err := s.keys.RegenerateKeys(r.Context(), currentUserID(r.Context()), req.Passphrase)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"public_key": b64(record.PublicKey)})
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	publicKey, err := s.keys.PublicKey(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"public_key": b64(publicKey)})
}

// --- projects ---

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	projectID, contentKey, err := s.distributor.CreateProject(r.Context(), currentUserID(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	// The plaintext content key goes to the owner's session only; it is
	// never persisted or logged.
	writeJSON(w, http.StatusCreated, map[string]string{
		"project_id":  projectID,
		"content_key": b64(contentKey),
	})
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	if err := s.requireMember(r, projectID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	members, err := s.distributor.Members(r.Context(), projectID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"members": members})
}

type addMemberRequest struct {
	MemberID   string `json:"member_id"`
	ContentKey string `json:"content_key"`
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req addMemberRequest
	if !decodeBody(w, r, &req) {
		return
	}
	contentKey, ok := decodeB64(w, "content_key", req.ContentKey)
	if !ok {
		return
	}

	if err := s.requireMember(r, projectID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	memberPublicKey, err := s.keys.PublicKey(r.Context(), req.MemberID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if err := s.distributor.AddMember(r.Context(), projectID, req.MemberID, memberPublicKey, contentKey); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.dispatcher.MemberJoined(r.Context(), events.MemberJoined{ProjectID: projectID, MemberID: req.MemberID, At: time.Now()})
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	memberID := chi.URLParam(r, "memberID")

	if err := s.requireMember(r, projectID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if err := s.distributor.RemoveMember(r.Context(), projectID, memberID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.dispatcher.MemberRemoved(r.Context(), events.MemberRemoved{ProjectID: projectID, MemberID: memberID, At: time.Now()})
	w.WriteHeader(http.StatusNoContent)
}

type unwrapRequest struct {
	PrivateKey string `json:"private_key"`
}

func (s *Server) handleUnwrap(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req unwrapRequest
	if !decodeBody(w, r, &req) {
		return
	}
	privateKey, ok := decodeB64(w, "private_key", req.PrivateKey)
	if !ok {
		return
	}

	contentKey, err := s.distributor.UnwrapForMember(r.Context(), projectID, currentUserID(r.Context()), privateKey)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"content_key": b64(contentKey)})
}

type rotateRequest struct {
	ContentKey string `json:"content_key"`
}

// handleRotate rewraps a caller-supplied fresh content key for every
// current member. Members' public keys come from their stored key records.
func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req rotateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	newContentKey, ok := decodeB64(w, "content_key", req.ContentKey)
	if !ok {
		return
	}

	if err := s.requireMember(r, projectID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	members, err := s.distributor.Members(r.Context(), projectID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	memberKeys := make(map[string][]byte, len(members))
	for _, m := range members {
		publicKey, err := s.keys.PublicKey(r.Context(), m)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		memberKeys[m] = publicKey
	}

	if err := s.distributor.Rotate(r.Context(), projectID, newContentKey, memberKeys); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- invitations ---

type createInvitationRequest struct {
	ProjectID  string `json:"project_id"`
	Passphrase string `json:"passphrase"`
	ContentKey string `json:"content_key"`
}

func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	var req createInvitationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	contentKey, ok := decodeB64(w, "content_key", req.ContentKey)
	if !ok {
		return
	}

	if err := s.requireMember(r, req.ProjectID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	inv, err := s.invitations.Create(r.Context(), req.ProjectID, currentUserID(r.Context()), req.Passphrase, contentKey)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"invitation_id": inv.ID})
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	invitationID := chi.URLParam(r, "invitationID")

	var req passphraseRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID := currentUserID(r.Context())
	publicKey, err := s.keys.PublicKey(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	res, err := s.invitations.Accept(r.Context(), invitationID, req.Passphrase, publicKey, userID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.dispatcher.MemberJoined(r.Context(), events.MemberJoined{ProjectID: res.ProjectID, MemberID: res.MemberID, At: time.Now()})
	writeJSON(w, http.StatusOK, map[string]string{"project_id": res.ProjectID})
}

func (s *Server) handleRevokeInvitation(w http.ResponseWriter, r *http.Request) {
	invitationID := chi.URLParam(r, "invitationID")

	rule := authz.InvitationAuthor(s.invitations, invitationID, currentUserID(r.Context()))
	if err := rule(r.Context()); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if err := s.invitations.Revoke(r.Context(), invitationID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- versions ---

type appendVersionRequest struct {
	Content    string `json:"content"`
	ContentKey string `json:"content_key"`
}

func (s *Server) handleAppendVersion(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req appendVersionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	content, ok := decodeB64(w, "content", req.Content)
	if !ok {
		return
	}
	contentKey, ok := decodeB64(w, "content_key", req.ContentKey)
	if !ok {
		return
	}

	if err := s.requireMember(r, projectID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	authorID := currentUserID(r.Context())
	v, err := s.versions.Append(r.Context(), projectID, authorID, content, contentKey)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.dispatcher.VersionAppended(r.Context(), events.VersionAppended{ProjectID: projectID, VersionID: v.ID, AuthorID: authorID, At: time.Now()})
	writeJSON(w, http.StatusCreated, map[string]string{"version_id": v.ID})
}

type versionResponse struct {
	ID               string    `json:"id"`
	AuthorID         string    `json:"author_id"`
	EncryptedContent string    `json:"encrypted_content"`
	CreatedAt        time.Time `json:"created_at"`
}

func toVersionResponse(v *models.SecretVersion) versionResponse {
	return versionResponse{
		ID:               v.ID,
		AuthorID:         v.AuthorID,
		EncryptedContent: b64(v.EncryptedContent),
		CreatedAt:        v.CreatedAt,
	}
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	if err := s.requireMember(r, projectID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	v, err := s.versions.Latest(r.Context(), projectID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toVersionResponse(v))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	if err := s.requireMember(r, projectID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	history, err := s.versions.History(r.Context(), projectID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]versionResponse, 0, len(history))
	for _, v := range history {
		out = append(out, toVersionResponse(v))
	}
	writeJSON(w, http.StatusOK, map[string][]versionResponse{"versions": out})
}

// --- export ---

type exportRequest struct {
	Secrets map[string]string `json:"secrets"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "no recipient configured")
		return
	}

	var req exportRequest
	if !decodeBody(w, r, &req) {
		return
	}

	results := s.exporter.PushAll(r.Context(), req.Secrets)

	out := make(map[string]string, len(results))
	failed := false
	for name, err := range results {
		if err != nil {
			out[name] = err.Error()
			failed = true
		} else {
			out[name] = "ok"
		}
	}

	status := http.StatusOK
	if failed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{"results": out})
}

func (s *Server) requireMember(r *http.Request, projectID string) error {
	rule := authz.ProjectMember(s.distributor, projectID, currentUserID(r.Context()))
	return rule(r.Context())
}
