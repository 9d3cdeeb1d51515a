package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codequest/internal/app/service"
	"codequest/internal/common/security"
	"codequest/internal/domain/model"
	"codequest/internal/platform/config"
	"codequest/internal/platform/database"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := database.Migrate(cmd.Context(), a.db); err != nil {
		return err
	}
	names, _ := database.MigrationNames()
	a.log.Info("schema up to date", zap.Strings("migrations", names))
	return nil
}

func runSeedAchievements(cmd *cobra.Command, _ []string) error {
	catalog, err := loadCatalog(catalogFile)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := service.SeedAchievements(cmd.Context(), a.achievements, catalog)
	if err != nil {
		return err
	}
	a.log.Info("achievements seeded", zap.Int("count", n))
	return nil
}

func loadCatalog(path string) ([]model.Achievement, error) {
	if path == "" {
		return service.DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return service.ParseCatalog(data)
}

func runSeedProblems(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read problem file: %w", err)
	}
	defs, err := service.ParseProblems(data)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := service.NewProblemService(a.problems, a.db, a.log.Named("problems")).ImportProblems(cmd.Context(), defs)
	if err != nil {
		return err
	}
	a.log.Info("problems imported", zap.Int("created", n), zap.Int("in_file", len(defs)))
	return nil
}

// runToken needs only JWT configuration, not the database.
func runToken(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	security.InitJWT(cfg.JWTKey)
	tok, err := security.GenerateToken(args[0], tokenRole, cfg.JWTExp)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
