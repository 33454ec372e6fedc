// Package cli implements the interactive operator console of the login
// server.
package cli

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/shardgate-project/shardgate/internal/config"
	"github.com/shardgate-project/shardgate/internal/db"
	"github.com/shardgate-project/shardgate/internal/events"
	"github.com/shardgate-project/shardgate/internal/huffman"
	"github.com/shardgate-project/shardgate/internal/network"
)

// CLI reads operator commands line by line and prints the results.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	registry *network.ConnectionRegistry
	store    *db.Store
	cache    *huffman.Cache

	in  io.Reader
	out io.Writer
}

// NewCLI creates a new CLI handler. store and cache may be nil.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, registry *network.ConnectionRegistry,
	store *db.Store, cache *huffman.Cache, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		registry: registry,
		store:    store,
		cache:    cache,
		in:       in,
		out:      out,
	}
}

// Start runs the command loop until ctx is cancelled, input ends or the
// operator quits.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nShardgate console ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "shardgate> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			quit, err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:])
			if err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
			if quit {
				return
			}
		}
	}
}

// execute runs one command and reports whether the console should stop.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) (bool, error) {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "connections", "conns":
		c.printConnections()
	case "logins":
		return false, c.printLogins(ctx, args)
	case "compress":
		return false, c.cmdCompress(args)
	case "kick":
		return false, c.cmdKick(args)
	case "setconfig":
		return false, c.cmdSetConfig(ctx, args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down Shardgate...")
		c.eventBus.Emit(ctx, events.Event{Type: events.EventShutdown, Source: "cli"})
		return true, nil
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return false, nil
}

func (c *CLI) printHelp() {
	fmt.Fprint(c.out, `
Commands:
  status                Show shard and listener summary
  connections           List live login connections
  logins [n]            Show the last n handshake events (default 20)
  compress <hex>        Huffman-compress a hex payload
  kick <id>             Disconnect a login connection
  setconfig <key> <v>   Update a shard_data field and save
  quit                  Shut down Shardgate
  help                  Show this help message

`)
}

func (c *CLI) newTable(header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func (c *CLI) printStatus() {
	sd := c.cfg.GetShardData()
	stats := c.cache.Stats()

	tw := c.newTable([]string{"Setting", "Value"})
	tw.AppendBulk([][]string{
		{"Shard", fmt.Sprintf("%s (#%d)", sd.ShardName, sd.ShardIndex)},
		{"Login listener", sd.ListenAddr()},
		{"Redirect", fmt.Sprintf("%s:%d", sd.RedirectAddress, sd.RedirectPort)},
		{"Session key", fmt.Sprintf("0x%08X", sd.SessionKey)},
		{"Connections", strconv.Itoa(c.registry.Count())},
		{"Cache hits/misses", fmt.Sprintf("%d/%d", stats.Hits, stats.Misses)},
	})
	tw.Render()
}

func (c *CLI) printConnections() {
	conns := c.registry.List()
	if len(conns) == 0 {
		fmt.Fprintln(c.out, "No live connections")
		return
	}

	tw := c.newTable([]string{"ID", "Remote", "Account", "Packets", "In", "Out", "Idle"})
	for _, info := range conns {
		tw.Append([]string{
			strconv.FormatUint(info.ID, 10),
			info.Remote,
			info.Account,
			strconv.FormatUint(info.PacketsIn, 10),
			strconv.FormatUint(info.BytesIn, 10),
			strconv.FormatUint(info.BytesOut, 10),
			time.Since(info.LastActivity).Truncate(time.Second).String(),
		})
	}
	tw.Render()
}

func (c *CLI) printLogins(ctx context.Context, args []string) error {
	if c.store == nil {
		return fmt.Errorf("storage is disabled")
	}
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		limit = n
	}

	entries, err := c.store.RecentLoginEvents(ctx, limit)
	if err != nil {
		return err
	}
	tw := c.newTable([]string{"Time", "Kind", "Conn", "Remote", "Account", "Detail"})
	for _, e := range entries {
		tw.Append([]string{
			e.CreatedAt.Format("15:04:05"),
			e.Kind,
			strconv.FormatUint(e.ConnID, 10),
			e.Remote,
			e.Account,
			e.Detail,
		})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdCompress(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: compress <hex>")
	}
	input, err := hex.DecodeString(strings.Join(args, ""))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	out := huffman.Compress(input)
	fmt.Fprintf(c.out, "%d bytes -> %d bytes (%d bits)\n%s\n",
		len(input), len(out), huffman.CompressedBits(input), hex.EncodeToString(out))
	return nil
}

func (c *CLI) cmdKick(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: kick <id>")
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid connection id: %s", args[0])
	}
	if !c.registry.Kick(id) {
		return fmt.Errorf("connection %d not found", id)
	}
	log.Info().Uint64("conn_id", id).Msg("CLI: connection kicked")
	fmt.Fprintf(c.out, "Connection %d disconnected\n", id)
	return nil
}

func (c *CLI) cmdSetConfig(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}

	key := args[0]
	raw := strings.Join(args[1:], " ")
	value := parseValue(raw)

	previous := c.cfg.GetShardData()
	if err := c.cfg.UpdateShardField(key, value); err != nil {
		// Numeric-looking text for a string field.
		if _, isText := value.(string); isText {
			return err
		}
		value = raw
		if err := c.cfg.UpdateShardField(key, value); err != nil {
			return err
		}
	}
	if result := config.Validate(c.cfg); !result.IsValid() {
		c.cfg.SetShardData(previous)
		return result.Errors[0]
	}
	if err := c.cfg.Save(); err != nil {
		return err
	}

	c.eventBus.Emit(ctx, events.Event{
		Type:    events.EventConfigChanged,
		Source:  "cli",
		Payload: events.ConfigChangedPayload{Section: "shard_data", Key: key, Value: value},
	})
	fmt.Fprintf(c.out, "Config updated: %s = %s (applies after restart)\n", key, raw)
	return nil
}

// parseValue turns console input into a JSON-compatible value so numeric
// and boolean fields can be set from text.
func parseValue(s string) interface{} {
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
