package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tangle-node/balance"
	"tangle-node/config"
	"tangle-node/dag"
	"tangle-node/db"
	"tangle-node/handlers"
	"tangle-node/logger"
	"tangle-node/metrics"
	"tangle-node/repository"
	"tangle-node/routers"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "tangle-node",
	Short: "DAG ledger node with trust chain consensus",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "start the node: HTTP API, attachment engine and trust chain consensus",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		return run(cfg)
	},
}

var unconfirmedCmd = &cobra.Command{
	Use:   "unconfirmed",
	Short: "list the stored transactions which have not reached consensus",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		store, err := db.Open(cfg.Store.Backend, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		hashes, err := repository.NewTransactionRepository(store).UnconfirmedHashes()
		if err != nil {
			return err
		}
		for _, h := range hashes {
			fmt.Fprintln(cmd.OutOrStdout(), h)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/config.yaml", "config file")
	rootCmd.AddCommand(runCmd, unconfirmedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := logger.InitLogger(cfg.Log.AppLogFile, cfg.Log.Level); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Logger.Sync()

	logger.Logger.Info("Starting tangle node...")

	store, err := db.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		logger.Logger.Error("Failed to open transaction store",
			zap.String("backend", cfg.Store.Backend), zap.Error(err))
		return err
	}
	defer store.Close()

	txRepo := repository.NewTransactionRepository(store)
	m := metrics.NewMetrics(cfg.Metrics.Namespace)

	balanceQueue := balance.NewUpdateQueue(balance.NewRepositorySettler(txRepo), m)
	defer balanceQueue.Close()

	selector := dag.NewNeighbourhoodSelector(cfg.Selector.MinSourcePercentage, cfg.Selector.MaxNeighbourhoodRadius)
	cluster := dag.NewCluster(txRepo, selector, balanceQueue, dag.ScoreThreshold(cfg.Cluster.TCCThreshold), cfg.Cluster.Delay(), m)

	unconfirmed, err := txRepo.UnconfirmedHashes()
	if err != nil {
		logger.Logger.Error("Failed to read unconfirmed transactions", zap.Error(err))
		return err
	}
	if err := cluster.Initialize(context.Background(), unconfirmed); err != nil {
		logger.Logger.Error("Failed to initialize cluster", zap.Error(err))
		return err
	}
	defer cluster.Close()

	h := handlers.NewHandler(cluster, txRepo)

	r := mux.NewRouter()
	routers.RegisterRoutes(r, h, m.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Logger.Info("Server stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Server running on port", zap.Int("port", cfg.Server.Port))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Logger.Info("Shutdown signal received, exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
