package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "codequest",
	Short: "Submission grading service",
	Long: `codequest accepts code submissions, grades them against a problem's
test cases on a Judge0-compatible judge, and pays out XP and achievements.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and, in queue mode, a grading worker)",
	RunE:  runServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume grading jobs from the Redis queue",
	RunE:  runWorker,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database schema",
	RunE:  runMigrate,
}

var seedAchievementsCmd = &cobra.Command{
	Use:   "seed-achievements",
	Short: "Upsert the achievement catalog",
	Long: `Upserts the catalog shipped with the binary, or the TOML file given
with --file.`,
	RunE: runSeedAchievements,
}

var seedProblemsCmd = &cobra.Command{
	Use:   "seed-problems [file]",
	Short: "Import problems and test cases from a TOML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeedProblems,
}

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Mint a bearer token for local testing",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

var (
	serveNoWorker     bool
	workerConcurrency int
	catalogFile       string
	tokenRole         string
)

func init() {
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "in queue mode, leave grading to separate worker processes")
	serveCmd.Flags().IntVar(&workerConcurrency, "concurrency", 4, "submissions graded in parallel")
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 4, "submissions graded in parallel")
	seedAchievementsCmd.Flags().StringVar(&catalogFile, "file", "", "catalog TOML file (defaults to the built-in catalog)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "user", "role claim")

	rootCmd.AddCommand(serveCmd, workerCmd, migrateCmd, seedAchievementsCmd, seedProblemsCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
