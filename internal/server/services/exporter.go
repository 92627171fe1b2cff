package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/envault/envault/internal/common"
	"github.com/envault/envault/internal/cryptox"
	"github.com/envault/envault/internal/logging"
)

// RecipientKeyProvider talks to an external secret recipient: it fetches
// the recipient's current public key and delivers sealed values. The
// recipient is the only party able to open what Push delivers.
type RecipientKeyProvider interface {
	FetchKey(ctx context.Context) (*RecipientKey, error)
	Push(ctx context.Context, name, keyID string, encryptedValue []byte) (status int, err error)
}

// ExporterService seals secrets for an external recipient and pushes them
// out. The export is one-way: once sealed, not even this service can
// recover the plaintext.
type ExporterService struct {
	provider RecipientKeyProvider
	cache    *KeyCache
	logger   logging.Logger
}

func NewExporterService(provider RecipientKeyProvider, cache *KeyCache, logger logging.Logger) *ExporterService {
	return &ExporterService{provider: provider, cache: cache, logger: logger}
}

// cacheName keys the single-recipient cache. The provider addresses one
// recipient; a multi-recipient setup runs one exporter per recipient.
const cacheName = "recipient"

func (s *ExporterService) recipientKey(ctx context.Context) (*RecipientKey, error) {
	if key := s.cache.Get(cacheName); key != nil {
		return key, nil
	}

	key, err := s.provider.FetchKey(ctx)
	if err != nil {
		return nil, err
	}

	s.cache.Put(cacheName, key)
	return key, nil
}

// Push seals the value for the recipient's current public key and delivers
// it. A rejected push invalidates the cached key; a rotation at the
// recipient then heals on the caller's retry.
func (s *ExporterService) Push(ctx context.Context, name, value string) error {
	key, err := s.recipientKey(ctx)
	if err != nil {
		return &common.ExternalPushError{Name: name, Err: err}
	}

	sealed, err := cryptox.SealedEncrypt([]byte(value), key.PublicKey)
	if err != nil {
		return &common.ExternalPushError{Name: name, Err: err}
	}

	status, err := s.provider.Push(ctx, name, key.ID, sealed)
	if err != nil {
		s.cache.Invalidate(cacheName)
		return &common.ExternalPushError{Name: name, Status: status, Err: err}
	}

	return nil
}

// PushAll pushes every secret and reports the outcome per name. A failure
// for one name never blocks the others.
func (s *ExporterService) PushAll(ctx context.Context, secrets map[string]string) map[string]error {
	results := make(map[string]error, len(secrets))
	for name, value := range secrets {
		results[name] = s.Push(ctx, name, value)
	}
	return results
}

// HTTPRecipient implements RecipientKeyProvider over two endpoints: a GET
// returning the recipient's key and a POST accepting sealed values.
type HTTPRecipient struct {
	keyURL  string
	pushURL string
	client  *http.Client
}

func NewHTTPRecipient(keyURL, pushURL string) *HTTPRecipient {
	return &HTTPRecipient{
		keyURL:  keyURL,
		pushURL: pushURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *HTTPRecipient) FetchKey(ctx context.Context) (*RecipientKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.keyURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key endpoint returned %d", resp.StatusCode)
	}

	var body struct {
		KeyID     string `json:"key_id"`
		PublicKey string `json:"public_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("error decoding key response: %w", err)
	}

	publicKey, err := base64.StdEncoding.DecodeString(body.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("error decoding public key: %w", err)
	}

	return &RecipientKey{ID: body.KeyID, PublicKey: publicKey}, nil
}

func (r *HTTPRecipient) Push(ctx context.Context, name, keyID string, encryptedValue []byte) (int, error) {
	payload, err := json.Marshal(map[string]string{
		"name":            name,
		"key_id":          keyID,
		"encrypted_value": base64.StdEncoding.EncodeToString(encryptedValue),
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.pushURL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}

	return resp.StatusCode, nil
}
