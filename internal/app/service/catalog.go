package service

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/gosimple/slug"
	"github.com/pelletier/go-toml/v2"

	"codequest/internal/common"
	"codequest/internal/domain/model"
	"codequest/internal/domain/repository"
)

//go:embed achievements.toml
var defaultCatalog []byte

type catalogFile struct {
	Achievements []model.Achievement `toml:"achievement"`
}

// ParseCatalog decodes an achievement catalog. Missing ids are derived from
// the name, and every requirement must be one Satisfies understands.
func ParseCatalog(data []byte) ([]model.Achievement, error) {
	var f catalogFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse achievement catalog: %w", err)
	}

	seen := make(map[string]bool, len(f.Achievements))
	for i := range f.Achievements {
		a := &f.Achievements[i]
		if a.Name == "" {
			return nil, fmt.Errorf("achievement #%d has no name: %w", i+1, common.ErrValidation)
		}
		if a.ID == "" {
			a.ID = slug.Make(a.Name)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("duplicate achievement id %q: %w", a.ID, common.ErrValidation)
		}
		seen[a.ID] = true
		if !ValidRequirement(a.Requirement) {
			return nil, fmt.Errorf("achievement %q has invalid requirement %q: %w", a.ID, a.Requirement, common.ErrValidation)
		}
		if a.XPReward < 0 {
			return nil, fmt.Errorf("achievement %q has negative xp_reward: %w", a.ID, common.ErrValidation)
		}
	}
	return f.Achievements, nil
}

// DefaultCatalog is the catalog shipped with the binary.
func DefaultCatalog() ([]model.Achievement, error) {
	return ParseCatalog(defaultCatalog)
}

// SeedAchievements upserts every catalog entry and returns how many were written.
func SeedAchievements(ctx context.Context, repo repository.AchievementRepository, catalog []model.Achievement) (int, error) {
	for i, a := range catalog {
		if err := repo.UpsertAchievement(ctx, a); err != nil {
			return i, common.Errorf("failed to seed achievement %s: %w", a.ID, err)
		}
	}
	return len(catalog), nil
}
