package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/melih/gamehost/internal/core/domain"
	"github.com/melih/gamehost/internal/core/ports"
)

// runContract exercises the behaviour every GameRegistry must share.
func runContract(t *testing.T, newStore func(t *testing.T) ports.GameRegistry) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty registry has no max port", func(t *testing.T) {
		s := newStore(t)
		if _, ok, err := s.MaxPort(ctx); err != nil || ok {
			t.Fatalf("MaxPort() ok=%v err=%v, want ok=false", ok, err)
		}
		games, err := s.List(ctx)
		if err != nil || len(games) != 0 {
			t.Fatalf("List() = %v, %v", games, err)
		}
	})

	t.Run("create assigns increasing ids and keeps order", func(t *testing.T) {
		s := newStore(t)
		a := mustCreate(t, s, domain.Game{Directory: "/games/a", Port: 3001, ContainerName: "a", Status: domain.StatusNotCreated})
		b := mustCreate(t, s, domain.Game{Directory: "/games/b", Port: 3002, ContainerName: "b", Status: domain.StatusNotCreated})
		if a.ID == 0 || b.ID <= a.ID {
			t.Fatalf("ids a=%d b=%d", a.ID, b.ID)
		}
		games, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(games) != 2 || games[0].ID != a.ID || games[1].ID != b.ID {
			t.Fatalf("List() order = %+v", games)
		}
	})

	t.Run("create rejects a held port", func(t *testing.T) {
		s := newStore(t)
		mustCreate(t, s, domain.Game{Port: 3001, ContainerName: "a"})
		if _, err := s.Create(ctx, domain.Game{Port: 3001, ContainerName: "b"}); !errors.Is(err, domain.ErrPortTaken) {
			t.Fatalf("Create() err = %v, want ErrPortTaken", err)
		}
	})

	t.Run("get update delete", func(t *testing.T) {
		s := newStore(t)
		g := mustCreate(t, s, domain.Game{Directory: "/games/a", Port: 3001, ContainerName: "a", Image: "img", Status: domain.StatusNotCreated})

		g.Status = domain.StatusRunning
		g.Port = 3005
		g.ReconciledAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		if err := s.Update(ctx, g); err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, err := s.Get(ctx, g.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != domain.StatusRunning || got.Port != 3005 || got.Image != "img" || !got.ReconciledAt.Equal(g.ReconciledAt) {
			t.Fatalf("Get() = %+v", got)
		}

		if err := s.Delete(ctx, g.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, g.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Get after delete err = %v", err)
		}
		if err := s.Delete(ctx, g.ID); err != nil {
			t.Fatalf("second Delete: %v", err)
		}
	})

	t.Run("update rejects a port held by another game", func(t *testing.T) {
		s := newStore(t)
		mustCreate(t, s, domain.Game{Port: 3001, ContainerName: "a"})
		b := mustCreate(t, s, domain.Game{Port: 3002, ContainerName: "b"})
		b.Port = 3001
		if err := s.Update(ctx, b); !errors.Is(err, domain.ErrPortTaken) {
			t.Fatalf("Update() err = %v, want ErrPortTaken", err)
		}
		got, err := s.Get(ctx, b.ID)
		if err != nil || got.Port != 3002 {
			t.Fatalf("Get() = %+v, %v, want port 3002 kept", got, err)
		}

		// rewriting a game with its own port is fine
		got.Status = domain.StatusStopped
		if err := s.Update(ctx, got); err != nil {
			t.Fatalf("Update with own port: %v", err)
		}
	})

	t.Run("update unknown id", func(t *testing.T) {
		s := newStore(t)
		if err := s.Update(ctx, domain.Game{ID: 42, Port: 1}); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("Update() err = %v, want ErrNotFound", err)
		}
	})

	t.Run("max port survives deletion", func(t *testing.T) {
		s := newStore(t)
		mustCreate(t, s, domain.Game{Port: 3001, ContainerName: "a"})
		b := mustCreate(t, s, domain.Game{Port: 3002, ContainerName: "b"})
		if err := s.Delete(ctx, b.ID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		port, ok, err := s.MaxPort(ctx)
		if err != nil || !ok || port != 3002 {
			t.Fatalf("MaxPort() = %d,%v,%v want 3002", port, ok, err)
		}
	})

	t.Run("update raises max port", func(t *testing.T) {
		s := newStore(t)
		g := mustCreate(t, s, domain.Game{Port: 3001, ContainerName: "a"})
		g.Port = 3010
		if err := s.Update(ctx, g); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if port, _, _ := s.MaxPort(ctx); port != 3010 {
			t.Fatalf("MaxPort() = %d, want 3010", port)
		}
	})
}

func mustCreate(t *testing.T, s ports.GameRegistry, g domain.Game) domain.Game {
	t.Helper()
	out, err := s.Create(context.Background(), g)
	if err != nil {
		t.Fatalf("Create(%+v): %v", g, err)
	}
	return out
}
