package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"matchbook/config"
	"matchbook/domain/matching"
	"matchbook/domain/orderbook"
	"matchbook/domain/tradelog"
	"matchbook/infra/kafka"
	"matchbook/infra/logging"
	"matchbook/infra/outbox"
	"matchbook/jobs/bookfeed"
	"matchbook/jobs/broadcaster"
	"matchbook/service"
)

var (
	configPath string
	backupPath string
	noBackup   bool
)

func main() {
	root := &cobra.Command{
		Use:           "matchbook",
		Short:         "Single instrument limit order matching engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	run := &cobra.Command{
		Use:   "run <orders-file>",
		Short: "Match an order file against the restored book and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(cmd.Context(), args[0])
		},
	}
	run.Flags().StringVar(&backupPath, "backup", "", "override the resting order backup file")
	run.Flags().BoolVar(&noBackup, "no-backup", false, "skip backup restore and save")
	root.AddCommand(run)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "matchbook:", err)
		os.Exit(1)
	}
}

func runMatch(ctx context.Context, ordersPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if backupPath != "" {
		cfg.Backup.Path = backupPath
	}

	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	book := orderbook.New(orderbook.Config{
		StrictPricePriority: cfg.Matching.StrictPricePriority,
	})
	ledger := tradelog.NewLedger()
	engine := matching.New(book, ledger, log)
	exch := service.New(book, engine, ledger, log)

	// Publishing is optional. Without brokers the engine runs standalone
	// and trades only reach the ledger and stdout.
	if len(cfg.Kafka.Brokers) > 0 {
		ob, err := outbox.Open(cfg.Outbox.Dir)
		if err != nil {
			return fmt.Errorf("open outbox: %w", err)
		}
		defer ob.Close()

		ledger.Subscribe(func(seq uint64, t tradelog.Trade) {
			if err := ob.Put(seq, t); err != nil {
				log.Error("outbox put failed", zap.Uint64("seq", seq), zap.Error(err))
			}
		})

		producer, err := broadcaster.NewProducer(cfg.Kafka.Brokers)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		defer producer.Close()

		bc := broadcaster.New(ob, producer, cfg.Kafka.TradeTopic, 0, log)
		go bc.Run(ctx)
		defer bc.Flush()

		bookPub := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.BookTopic)
		defer bookPub.Close()

		feed := bookfeed.New(bookPub, 0, log)
		book.AddListener(feed)
		go feed.Run(ctx)
	}

	if !noBackup {
		if err := exch.RestoreBackup(cfg.Backup.Path); err != nil {
			return fmt.Errorf("restore backup: %w", err)
		}
	}

	f, err := os.Open(ordersPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := exch.ProcessRecords(f); err != nil {
		return fmt.Errorf("process %s: %w", ordersPath, err)
	}

	for _, line := range exch.Output() {
		fmt.Println(line)
	}

	if !noBackup {
		if err := exch.WriteBackup(cfg.Backup.Path); err != nil {
			return fmt.Errorf("write backup: %w", err)
		}
	}
	return nil
}
