package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/noah-isme/studio-homework-api/internal/database"
	"github.com/noah-isme/studio-homework-api/internal/logging"
	"github.com/noah-isme/studio-homework-api/internal/repository"
	"github.com/noah-isme/studio-homework-api/internal/service"
)

// cli holds the state shared by every studioctl subcommand.
type cli struct {
	settings *viper.Viper
	logger   zerolog.Logger
	db       *gorm.DB
}

func newRootCommand() *cobra.Command {
	state := &cli{settings: viper.New()}
	state.settings.SetEnvPrefix("STUDIO")
	state.settings.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	state.settings.AutomaticEnv()

	root := &cobra.Command{
		Use:           "studioctl",
		Short:         "Operate the studio homework engine",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return state.open(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return state.close()
		},
	}

	root.PersistentFlags().String("database-url", "", "postgres DSN (env STUDIO_DATABASE_URL)")
	root.PersistentFlags().String("sqlite", "", "use a SQLite DSN instead of postgres")
	root.PersistentFlags().String("log-level", "warn", "log level")
	_ = state.settings.BindPFlag("database.url", root.PersistentFlags().Lookup("database-url"))
	_ = state.settings.BindPFlag("sqlite", root.PersistentFlags().Lookup("sqlite"))
	_ = state.settings.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		state.migrateCommand(),
		state.statsCommand(),
		state.reconcileCommand(),
		state.flowsCommand(),
	)

	return root
}

func (s *cli) open(stderr io.Writer) error {
	s.logger = logging.New(logging.Options{
		Level:   s.settings.GetString("log.level"),
		Service: "studioctl",
		Console: stderr,
	})

	var err error
	if dsn := s.settings.GetString("sqlite"); dsn != "" {
		s.db, err = database.ConnectSQLite(dsn)
	} else {
		s.db, err = database.ConnectPostgres(s.settings.GetString("database.url"))
	}
	return err
}

func (s *cli) close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *cli) ledger() service.AttributionLedger {
	submissions := repository.NewSubmissionRepository(s.db)
	flows := service.NewFlowRegistry(repository.NewFlowRepository(s.db), validator.New(), s.logger)
	return service.NewAttributionLedger(
		submissions,
		repository.NewAttributionEventRepository(s.db),
		repository.NewUnitOfWork(s.db),
		flows,
		nil,
		s.logger,
	)
}

func (s *cli) migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the engine tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := database.Migrate(s.db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func (s *cli) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <tracking-code>",
		Short: "Show click and conversion counts for a tracking code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := s.ledger().StatsFor(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func (s *cli) reconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <tracking-code>",
		Short: "Compare running attribution counters with the event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := s.ledger().Reconcile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Consistent {
				return fmt.Errorf("tracking code %s: counters drifted from event log", report.TrackingCode)
			}
			return nil
		},
	}
}

func (s *cli) flowsCommand() *cobra.Command {
	flowsCmd := &cobra.Command{
		Use:   "flows",
		Short: "Inspect automation flows",
	}

	var teacherID uint
	list := &cobra.Command{
		Use:   "list",
		Short: "List a teacher's flows with trigger and booking totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := service.NewFlowRegistry(repository.NewFlowRepository(s.db), validator.New(), s.logger)
			flows, err := registry.ListByTeacher(cmd.Context(), teacherID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), flows)
		},
	}
	list.Flags().UintVar(&teacherID, "teacher", 0, "teacher id")
	_ = list.MarkFlagRequired("teacher")

	flowsCmd.AddCommand(list)
	return flowsCmd
}

func printJSON(w io.Writer, value interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
