package cli

import (
	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"mcq-chat-service/internal/config"
	"mcq-chat-service/internal/infra/memory"
	"mcq-chat-service/internal/infra/postgres"
)

// NewSeedCmd replaces the Postgres question bank with a YAML file's questions
// or, without --file, the built-in bank.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load questions into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			questions := memory.DefaultQuestions()
			if file != "" {
				if questions, err = memory.ReadBankFile(file); err != nil {
					return err
				}
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrateDB(cmd.Context(), db); err != nil {
				return err
			}
			if err := postgres.SeedBank(cmd.Context(), db, questions); err != nil {
				return err
			}
			glog.Infof("seeded %d questions", len(questions))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML file with a questions: list")
	return cmd
}
