package auth

import (
	"context"

	"github.com/vkarkhanis/splitex/internal/models"
)

// Authenticator abstracts how users prove who they are. The HTTP layer
// only ever talks to this interface, so password auth can later coexist
// with OAuth or passkeys without touching the handlers.
type Authenticator interface {
	// Register creates an account from an email, display name and
	// credential. The credential format is implementation-defined.
	Register(ctx context.Context, email, displayName, credential string) (*models.User, error)

	// Authenticate verifies a credential and returns the matching user.
	Authenticate(ctx context.Context, email, credential string) (*models.User, error)

	// ValidateCredential checks a credential against the
	// implementation's strength or format rules.
	ValidateCredential(credential string) error
}
