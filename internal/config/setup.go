package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard guides the operator through configuring the shard.
// Answers are read line by line from in; prompts go to out.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	return runSetup(cfg, bufio.NewReader(in), out)
}

func runSetup(cfg *Config, reader *bufio.Reader, out io.Writer) error {
	p := prompter{r: reader, w: out}

	fmt.Fprintln(out, "╔══════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║           Shardgate - Shard Setup            ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	shard := cfg.GetShardData()
	app := cfg.GetApplicationData()

	fmt.Fprintln(out, "── Login Listener ──")
	shard.ListenAddress = p.str("Listen address", shard.ListenAddress)
	shard.ListenPort = p.int("Listen port", shard.ListenPort)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Shard Identity ──")
	shard.ShardName = p.str("Shard name (max 32 bytes)", shard.ShardName)
	shard.ShardAddress = p.str("Advertised shard address", shard.ShardAddress)
	shard.Timezone = p.int("Timezone", shard.Timezone)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Game Server Redirect ──")
	shard.RedirectAddress = p.str("Game server address", shard.RedirectAddress)
	shard.RedirectPort = p.int("Game server port", shard.RedirectPort)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Operator API ──")
	app.API.Enabled = p.bool("Enable REST API", app.API.Enabled)
	if app.API.Enabled {
		app.API.Port = p.int("REST API port", app.API.Port)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── MQTT Telemetry ──")
	app.MQTT.Enabled = p.bool("Enable MQTT telemetry", app.MQTT.Enabled)
	if app.MQTT.Enabled {
		app.MQTT.BrokerURL = p.str("MQTT broker host", app.MQTT.BrokerURL)
		app.MQTT.Port = p.int("MQTT broker port", app.MQTT.Port)
	}

	cfg.SetShardData(shard)
	cfg.SetApplicationData(app)

	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Fprintln(out, "\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		retry, ok := p.line("Would you like to try again? (yes/no)", "yes")
		if ok && strings.ToLower(retry) == "yes" {
			return runSetup(cfg, reader, out)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "✓ Configuration saved successfully!")
	return nil
}

type prompter struct {
	r *bufio.Reader
	w io.Writer
}

// line returns the trimmed answer, or def on an empty line. ok is false once
// the input is exhausted.
func (p prompter) line(prompt, def string) (string, bool) {
	if def != "" {
		fmt.Fprintf(p.w, "  %s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(p.w, "  %s: ", prompt)
	}

	input, err := p.r.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return def, err == nil
	}
	return input, true
}

func (p prompter) str(prompt, def string) string {
	v, _ := p.line(prompt, def)
	return v
}

func (p prompter) int(prompt string, def int) int {
	input, _ := p.line(prompt, strconv.Itoa(def))
	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(p.w, "    Invalid number, using default: %d\n", def)
		return def
	}
	return val
}

func (p prompter) bool(prompt string, def bool) bool {
	defStr := "no"
	if def {
		defStr = "yes"
	}
	input, _ := p.line(prompt, defStr)
	switch strings.ToLower(input) {
	case "yes", "y", "true", "1":
		return true
	default:
		return false
	}
}
