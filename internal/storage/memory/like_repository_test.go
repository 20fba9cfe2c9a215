package memory_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
	"github.com/vladislavdragonenkov/rfs/internal/storage/memory"
)

func TestLikeRepository_AddRemove(t *testing.T) {
	repo := memory.NewLikeRepository()

	if err := repo.Add("user-1", "sku-1"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := repo.Add("user-1", "sku-1"); !errors.Is(err, domain.ErrAlreadyLiked) {
		t.Fatalf("expected already liked, got %v", err)
	}

	count, err := repo.Count("sku-1")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}

	if err := repo.Remove("user-1", "sku-1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := repo.Remove("user-1", "sku-1"); !errors.Is(err, domain.ErrLikeNotFound) {
		t.Fatalf("expected like not found, got %v", err)
	}
}
