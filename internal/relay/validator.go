// Package relay validates bearer credentials against the external identity
// backend.
package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// identityPath is the fixed identity endpoint on the backend.
const identityPath = "/api/v1/me"

// Validator turns an opaque bearer token into a verified identity, or
// determines the credential is invalid. Implementations must distinguish
// backend failure (unverifiable) from a malformed response (invalid).
type Validator interface {
	Validate(ctx context.Context, token, typeHint string) (Identity, error)
}

// HTTPValidator performs a single outbound GET against the identity backend.
// There is no retry: a failed attempt rejects the admission attempt that
// triggered it and the client must retry at the transport layer.
type HTTPValidator struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewHTTPValidator creates a validator for the backend at baseURL. The
// timeout bounds the one outbound call, the relay's only suspension point.
func NewHTTPValidator(baseURL string, timeout time.Duration, log *zap.Logger) *HTTPValidator {
	return &HTTPValidator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Validate implements Validator. The token travels as a bearer credential and
// the response must be JSON carrying a user id; the class comes from the
// response's type field, falling back to the caller's hint.
func (v *HTTPValidator) Validate(ctx context.Context, token, typeHint string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+identityPath, nil)
	if err != nil {
		return Identity{}, errors.Wrap(err, "build identity request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		v.log.Warn("identity backend unreachable", zap.Error(err))
		return Identity{}, errors.Wrap(ErrBackendUnavailable, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return Identity{}, errors.Wrapf(ErrBackendUnavailable, "identity backend returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Identity{}, errors.Wrapf(ErrInvalidToken, "identity backend returned %d", resp.StatusCode)
	}

	var body struct {
		ID   any    `json:"id"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Identity{}, errors.Wrap(ErrMissingIdentity, err.Error())
	}

	id := normalizeID(body.ID)
	if id == "" {
		return Identity{}, ErrMissingIdentity
	}

	class := body.Type
	if class == "" {
		class = typeHint
	}
	if class == "" {
		class = ClassUser
	}
	return Identity{ID: id, Type: class}, nil
}

// normalizeID renders the backend's id field as a string; room keys are
// strings regardless of how the backend types its ids.
func normalizeID(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
