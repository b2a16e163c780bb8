package repo_test

import (
	"testing"

	"github.com/hamed0406/homewatch/internal/domain"
	"github.com/hamed0406/homewatch/internal/repo"
	"github.com/hamed0406/homewatch/internal/repo/memory"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.StatusStore = memory.New(domain.Registry{})
	var _ repo.StatusStore = (*memory.Store)(nil)
}
