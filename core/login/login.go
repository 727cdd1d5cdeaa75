// Package login authenticates subjects and maps them to local accounts.
//
// An Authority turns a principal.Subject (a certificate chain, a session
// token or principals restored from a persisted identity) into the principals
// and attributes of a logged-in user. Rejections wrap
// domain.ErrPermissionDenied; backend outages wrap domain.ErrUnavailable.
package login

import (
	"context"
	"fmt"

	"github.com/srmgate/srmgate/core/domain"
	"github.com/srmgate/srmgate/core/principal"
)

// Result is the outcome of a successful login.
type Result struct {
	Principals principal.Set
	Attributes principal.Attributes
}

// Authority performs logins.
type Authority interface {
	Login(ctx context.Context, subject *principal.Subject) (*Result, error)
}

// AuthorityFunc adapts a function to Authority.
type AuthorityFunc func(ctx context.Context, subject *principal.Subject) (*Result, error)

func (f AuthorityFunc) Login(ctx context.Context, subject *principal.Subject) (*Result, error) {
	return f(ctx, subject)
}

func denied(format string, args ...any) error {
	return fmt.Errorf("login: %w: %s", domain.ErrPermissionDenied, fmt.Sprintf(format, args...))
}
