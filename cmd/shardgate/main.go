// Shardgate - login server for legacy shard clients.
//
// Shardgate accepts client connections on the login port, walks each client
// through the account login, server selection and post-login handshake, and
// sends the Huffman-compressed responses the client expects. It exposes a
// REST API and Prometheus metrics for operators and publishes login telemetry
// via MQTT.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shardgate-project/shardgate/internal/config"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ____  _                   _             _
 / ___|| |__   __ _ _ __ __| | __ _  __ _| |_ ___
 \___ \| '_ \ / _' | '__/ _' |/ _' |/ _' | __/ _ \
  ___) | | | | (_| | | | (_| | (_| | (_| | ||  __/
 |____/|_| |_|\__,_|_|  \__,_|\__, |\__,_|\__\___|
                              |___/  %s
 Shard Login Server
`

func main() {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "shardgate",
		Short: "Login server for legacy shard clients",
		Long: `Shardgate runs the login handshake of a shard: it lists the shard,
redirects clients to the game server and answers the post-login
packets with compressed feature and character lists.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", config.DefaultConfigDir, "configuration directory")

	rootCmd.AddCommand(
		serveCmd(&configDir),
		setupCmd(&configDir),
		compressCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// printBanner prints the Shardgate banner.
func printBanner() {
	fmt.Printf(banner, version)
}
