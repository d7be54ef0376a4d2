package cli

import (
	"fmt"

	"quiz-room-service/internal/config"
	"quiz-room-service/internal/infra/postgres"
	"quiz-room-service/internal/logging"

	"github.com/spf13/cobra"
)

// NewSeedCmd bulk-loads questions from a YAML file into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert questions from a YAML seed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.OutOrStdout())

			if file == "" {
				file = cfg.Questions.SeedFile
			}
			if file == "" {
				return fmt.Errorf("no seed file: pass --file or set questions.seed_file")
			}
			questions, err := postgres.LoadSeedFile(file)
			if err != nil {
				return err
			}

			if err := runMigrations(cmd.Context(), cfg, log); err != nil {
				return err
			}
			db, err := openBunDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := postgres.NewSeeder(db).Seed(cmd.Context(), questions)
			if err != nil {
				return err
			}
			log.WithField("file", file).WithField("questions", n).Info("seeded questions")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML seed file (defaults to questions.seed_file)")
	return cmd
}
