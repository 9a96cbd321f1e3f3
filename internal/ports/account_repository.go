package ports

import (
	"context"

	"github.com/bnema/outreach-pool/internal/domain"
)

// AccountRepository is the persistence port for the account registry and rate ledger.
// Update must apply fn and persist the result atomically with respect to other Update calls on the same account.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id domain.AccountID) (domain.Account, error)
	List(ctx context.Context) ([]domain.Account, error)
	Update(ctx context.Context, id domain.AccountID, fn func(*domain.Account) error) (domain.Account, error)
}
