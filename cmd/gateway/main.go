package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/spf13/cobra"

	"github.com/nyx-network/gateway/pkg/admin"
	"github.com/nyx-network/gateway/pkg/cache"
	"github.com/nyx-network/gateway/pkg/config"
	"github.com/nyx-network/gateway/pkg/discovery"
	"github.com/nyx-network/gateway/pkg/events"
	"github.com/nyx-network/gateway/pkg/health"
	"github.com/nyx-network/gateway/pkg/log"
	"github.com/nyx-network/gateway/pkg/resolver"
	"github.com/nyx-network/gateway/pkg/server"
	"github.com/nyx-network/gateway/pkg/supervisor"
	"github.com/nyx-network/gateway/pkg/worker"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "gateway",
	Short:   "A content-delivery gateway and Kademlia discovery node",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"gateway version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log", "", "Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "gateway.yaml", "Path to the gateway config file")

	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the gateway's public, admin, and discovery surfaces",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	logLevelOverride, _ := cmd.Flags().GetString("log")
	logJSON, _ := cmd.Flags().GetBool("log-json")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.MergeLogLevel(logLevelOverride)

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: logJSON})

	store := config.NewStore(cfg)

	r := resolver.New(cfg.Indexer.CIDURL, 30*time.Second)
	c := cache.New(cfg.Cache.MaxSizeBytes, time.Duration(cfg.Cache.TTLBufMs)*time.Millisecond)
	cacheWorker := worker.New(c, r, 30*time.Second)
	sweeper := worker.NewSweeper(cacheWorker, time.Duration(cfg.Worker.TTLCacheIntervalMs)*time.Millisecond)

	healthChecker := health.NewHTTPChecker(cfg.Indexer.CIDURL).WithTimeout(5 * time.Second)

	shutdownFlag := supervisor.NewShutdownFlag()
	publicSrv := server.New(store, cacheWorker, shutdownFlag.IsSet)
	adminSrv := admin.New(store, cacheWorker, healthChecker)

	discoveryBehaviour, err := setupDiscovery(cfg)
	if err != nil {
		return fmt.Errorf("setup discovery: %w", err)
	}
	if discoveryBehaviour != nil {
		if err := discoveryBehaviour.Start(); err != nil {
			return fmt.Errorf("start discovery: %w", err)
		}
	}

	sup := supervisor.New(shutdownFlag, publicSrv, adminSrv, cacheWorker, sweeper, discoveryBehaviour)
	return sup.Run()
}

// setupDiscovery builds the libp2p host and Kademlia/mDNS discovery
// behavior. It always builds the overlay: there is no configuration that
// runs the gateway without discovery, and it never returns a nil Behaviour
// without an error.
func setupDiscovery(cfg *config.GatewayConfig) (*discovery.Behaviour, error) {
	h, err := libp2p.New()
	if err != nil {
		return nil, err
	}

	broker := events.NewBroker()
	broker.Start()

	var bootstrapPeers []peer.AddrInfo
	for _, addrStr := range cfg.Discovery.BootstrapPeers {
		addr, err := multiaddr.NewMultiaddr(addrStr)
		if err != nil {
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			continue
		}
		bootstrapPeers = append(bootstrapPeers, *info)
	}

	return discovery.New(context.Background(), h, broker, discovery.Config{
		BootstrapPeers:    bootstrapPeers,
		EnableMDNS:        cfg.Discovery.EnableMDNS,
		IsBootstrapper:    cfg.Discovery.IsBootstrapper,
		BootstrapInterval: time.Duration(cfg.Discovery.BootstrapIntervalS) * time.Second,
	})
}
