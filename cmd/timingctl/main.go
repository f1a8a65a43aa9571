package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/finish-line/internal/config"
	"github.com/yourusername/finish-line/internal/database"
	applogger "github.com/yourusername/finish-line/internal/logger"
	"github.com/yourusername/finish-line/internal/ranking"
	"github.com/yourusername/finish-line/internal/repository"
	"github.com/yourusername/finish-line/internal/service"
)

var (
	configFile string
	actor      string
	reason     string
	loopIndex  int
	splitID    string

	appLog    *logrus.Logger
	cfg       *config.Config
	db        *database.DB
	repos     *repository.Repositories
	operator  *service.OperatorService
	debouncer *ranking.Debouncer
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Name of the operator performing the action")

	manualEntryCmd.Flags().StringVar(&reason, "reason", "", "Reason for the manual entry (required)")
	manualEntryCmd.Flags().IntVar(&loopIndex, "loop", 0, "Loop index for loop courses")
	dqCmd.Flags().StringVar(&reason, "reason", "", "Reason for the disqualification (required)")
	resolveAnomalyCmd.Flags().StringVar(&splitID, "split", "", "Split time ID to unflag alongside the anomaly")
}

var rootCmd = &cobra.Command{
	Use:   "timingctl",
	Short: "Operator actions against the timing pipeline",
	Long:  `Manual entries, finalization, disqualifications, anomaly resolution, and replays for race timing data.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if actor == "" {
			return fmt.Errorf("--actor is required")
		}
		if err := setupDependencies(cmd.Context()); err != nil {
			return fmt.Errorf("failed to setup dependencies: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

var manualEntryCmd = &cobra.Command{
	Use:   "manual-entry <participant-id> <checkpoint-id> <chip-time-rfc3339>",
	Short: "Record an operator-supplied crossing",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		participantID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid participant id: %w", err)
		}
		checkpointID, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid checkpoint id: %w", err)
		}
		chipTime, err := time.Parse(time.RFC3339, args[2])
		if err != nil {
			return fmt.Errorf("invalid chip time: %w", err)
		}

		if err := operator.ManualEntry(cmd.Context(), participantID, checkpointID, loopIndex, chipTime, reason, actor); err != nil {
			return err
		}
		// one-shot process: recompute affected ranks before exiting
		if err := debouncer.FlushAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Manual entry recorded")
		return nil
	},
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize <race-id>",
	Short: "Compute final statuses and mark a race's results official",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid race id: %w", err)
		}

		if err := operator.Finalize(cmd.Context(), raceID, actor); err != nil {
			return err
		}
		fmt.Println("Race results are now official")
		return nil
	},
}

var unfinalizeCmd = &cobra.Command{
	Use:   "unfinalize <race-id>",
	Short: "Lift the official freeze on a race's results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid race id: %w", err)
		}

		if err := operator.Unfinalize(cmd.Context(), raceID, actor); err != nil {
			return err
		}
		fmt.Println("Race results unfrozen; corrections can flow again")
		return nil
	},
}

var dqCmd = &cobra.Command{
	Use:   "dq <race-id> <participant-id>",
	Short: "Disqualify a participant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raceID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid race id: %w", err)
		}
		participantID, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid participant id: %w", err)
		}

		if err := operator.Disqualify(cmd.Context(), raceID, participantID, reason, actor); err != nil {
			return err
		}
		fmt.Println("Participant disqualified")
		return nil
	},
}

var resolveAnomalyCmd = &cobra.Command{
	Use:   "resolve-anomaly <anomaly-id>",
	Short: "Mark a flagged timing anomaly as reviewed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		anomalyID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid anomaly id: %w", err)
		}

		var split *uuid.UUID
		if splitID != "" {
			id, err := uuid.Parse(splitID)
			if err != nil {
				return fmt.Errorf("invalid split id: %w", err)
			}
			split = &id
		}

		if err := operator.ResolveAnomaly(cmd.Context(), anomalyID, split, actor); err != nil {
			return err
		}
		fmt.Println("Anomaly resolved")
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <event-id>",
	Short: "Queue an event's raw reads for reprocessing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eventID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid event id: %w", err)
		}

		if err := operator.Replay(cmd.Context(), eventID); err != nil {
			return err
		}
		fmt.Println("Event queued for replay; the pipeline will reprocess the full audit trail")
		return nil
	},
}

func main() {
	rootCmd.AddCommand(manualEntryCmd, finalizeCmd, unfinalizeCmd, dqCmd, resolveAnomalyCmd, replayCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func setupDependencies(ctx context.Context) error {
	var err error
	cfg, err = config.LoadWithDefaults(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLog = applogger.NewLogger(cfg.App.LogLevel)

	db, err = database.NewDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	repos = repository.NewRepositories(db)

	resolver := service.NewAssignmentResolver(repos.ChipAssignment, repos.ReaderAssignment, appLog)
	dedup := service.NewDeduplicator(repos.NormalizedRead)
	normalizer := service.NewNormalizer(appLog)
	engine := ranking.NewEngine(db, repos, appLog)
	debouncer = ranking.NewDebouncer(engine, cfg.Ranking.Debounce(), appLog)
	audit := applogger.NewAuditLogger(appLog)

	operator = service.NewOperatorService(db, repos, engine, debouncer, normalizer, dedup, resolver, audit, appLog)
	return nil
}
