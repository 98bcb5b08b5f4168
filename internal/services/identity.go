package services

import (
	"context"
	"strings"

	"google.golang.org/api/idtoken"
)

// Identity is a verified external-identity assertion.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// IdentityAssertion is what a client submits to log in with an external identity.
// Credential is the provider-signed ID token; the remaining fields are the
// claims as already verified by the frontend.
type IdentityAssertion struct {
	Credential string `json:"credential"`
	GoogleID   string `json:"google_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
}

// IdentityVerifier turns an assertion into a verified identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, assertion IdentityAssertion) (Identity, error)
}

// GoogleVerifier validates Google ID tokens against the configured client id.
type GoogleVerifier struct {
	clientID string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{clientID: clientID, validate: idtoken.Validate}
}

func (v *GoogleVerifier) Verify(ctx context.Context, assertion IdentityAssertion) (Identity, error) {
	credential := strings.TrimSpace(assertion.Credential)
	if credential == "" {
		return Identity{}, validationError("credential is required")
	}

	payload, err := v.validate(ctx, credential, v.clientID)
	if err != nil {
		return Identity{}, newError(ErrInvalidCredentials, "invalid identity token")
	}
	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return Identity{}, newError(ErrInvalidCredentials, "identity email is not verified")
	}

	identity := Identity{
		ID:    payload.Subject,
		Email: claimString(payload.Claims, "email"),
		Name:  claimString(payload.Claims, "name"),
	}
	return identity, checkIdentity(identity)
}

// TrustedVerifier accepts assertion fields that the frontend already verified
// with the identity provider. It is used when no client id is configured.
type TrustedVerifier struct{}

func (TrustedVerifier) Verify(_ context.Context, assertion IdentityAssertion) (Identity, error) {
	identity := Identity{
		ID:    strings.TrimSpace(assertion.GoogleID),
		Email: strings.TrimSpace(assertion.Email),
		Name:  strings.TrimSpace(assertion.Name),
	}
	return identity, checkIdentity(identity)
}

// NewIdentityVerifier picks the Google verifier when clientID is set.
func NewIdentityVerifier(clientID string) IdentityVerifier {
	if strings.TrimSpace(clientID) == "" {
		return TrustedVerifier{}
	}
	return NewGoogleVerifier(clientID)
}

func checkIdentity(identity Identity) error {
	if identity.ID == "" {
		return validationError("identity id is required")
	}
	if identity.Email == "" {
		return validationError("identity email is required")
	}
	return nil
}

func claimString(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}
