package ports

import (
	"context"

	"github.com/melih/gamehost/internal/core/domain"
)

// GameRegistry persists Game records. Implementations must be safe for
// concurrent use.
type GameRegistry interface {
	// Create assigns a fresh id and stores game. It fails with
	// domain.ErrPortTaken if another game currently holds game.Port.
	Create(ctx context.Context, game domain.Game) (domain.Game, error)
	Get(ctx context.Context, id int64) (domain.Game, error)
	// List returns games in insertion order.
	List(ctx context.Context) ([]domain.Game, error)
	// Update fully replaces the game with the same id.
	Update(ctx context.Context, game domain.Game) error
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id int64) error
	// MaxPort reports the highest port ever assigned. ok is false when no
	// game has been created yet.
	MaxPort(ctx context.Context) (port int, ok bool, err error)
}
