package remote

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Token is the cached credential handed back by the remote login endpoint.
type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// LiveWithin reports whether the token is still usable once the safety
// margin is subtracted from its declared expiry.
func (t Token) LiveWithin(margin time.Duration, now time.Time) bool {
	return t.AccessToken != "" && t.ExpiresAt.After(now.Add(margin))
}

type authRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type authResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
	ExpiresAt   string `json:"expiresAt"`
	Message     string `json:"message"`
}

// SubmitItem is one element of the outbound submission array. The remote
// side dedupes on NaturalKey and IdempotencyHash together, which is what
// makes retried submissions safe.
type SubmitItem struct {
	NaturalKey      string          `json:"naturalKey"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	UnitValue       decimal.Decimal `json:"unitValue"`
	Active          bool            `json:"active"`
	IdempotencyHash string          `json:"idempotencyHash"`
}

// Fingerprint computes the idempotency hash over the payload fields.
func (i SubmitItem) Fingerprint() string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%s|%t",
		i.NaturalKey, i.Name, i.Description, i.UnitValue.String(), i.Active))
	return hex.EncodeToString(sum[:])
}

type successEntry struct {
	// The remote API nests the acknowledged key under "chave".
	Key struct {
		NaturalKey string `json:"naturalKey"`
	} `json:"chave"`
}

type submitResponse struct {
	Success []successEntry `json:"success"`
	Errors  []string       `json:"errors"`
}

// Result is the normalized outcome of one remote submission. It is returned
// alongside the error on failure paths so the attempt trail keeps the
// HTTP-level diagnostics.
type Result struct {
	ExternalID string
	HTTPStatus int
	Endpoint   string
	Body       string
	Duration   time.Duration
	Errors     []string
}

// Accepted reports whether the remote side acknowledged the item.
func (r *Result) Accepted() bool {
	return r != nil && len(r.Errors) == 0 && r.ExternalID != ""
}

// normalizeSubmitBody folds the two response shapes the remote API produces
// (a bare object or an array of objects) into one flat view.
func normalizeSubmitBody(body []byte) ([]submitResponse, error) {
	trimmed := firstNonSpace(body)
	switch trimmed {
	case '[':
		var many []submitResponse
		if err := json.Unmarshal(body, &many); err != nil {
			return nil, err
		}
		return many, nil
	case '{':
		var one submitResponse
		if err := json.Unmarshal(body, &one); err != nil {
			return nil, err
		}
		return []submitResponse{one}, nil
	default:
		return nil, fmt.Errorf("unexpected response shape")
	}
}

func firstNonSpace(body []byte) byte {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
