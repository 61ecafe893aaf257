// Package cli holds the input, output and setup helpers shared by the fxstruct subcommands.
package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meenmo/fxstruct/config"
	"github.com/meenmo/fxstruct/logger"
	"github.com/meenmo/fxstruct/marketdata"
	"github.com/meenmo/fxstruct/resolver"
	"github.com/meenmo/fxstruct/structure"
)

// Env is the state a subcommand builds from its common flags.
type Env struct {
	Config   config.Config
	Registry *structure.Registry
	Market   marketdata.MarketData
	Log      *slog.Logger
}

// Flags registers the flags shared by the structure subcommands.
type Flags struct {
	Input      *string
	Config     *string
	Defs       *string
	Market     *string
	Help       *bool
	needMarket bool

	// DefsOptional lets Env fall back to an empty registry when no definitions are given.
	DefsOptional bool
}

// NewFlags adds -input, -config, -defs and, when market is true, -market to fs.
func NewFlags(fs *flag.FlagSet, market bool) *Flags {
	f := &Flags{needMarket: market}
	f.Input = fs.String("input", "", "argument input path (JSON or YAML; default stdin)")
	f.Config = fs.String("config", "", "config YAML path (optional)")
	f.Defs = fs.String("defs", "", "structure definitions YAML path")
	if market {
		f.Market = fs.String("market", "", "market snapshot YAML path")
	}
	f.Help = fs.Bool("h", false, "Show help")
	fs.BoolVar(f.Help, "help", false, "Show help")
	return f
}

// Env loads config, logger, definitions and (when requested) the market snapshot.
// Logs go to stderr so stdout stays machine-readable.
func (f *Flags) Env(stderr io.Writer) (*Env, error) {
	cfg, err := config.Load(*f.Config)
	if err != nil {
		return nil, err
	}
	config.SetConfig(cfg)
	log := logger.Init(cfg.LogLevel, stderr, cfg.LogJSON)

	defs := strings.TrimSpace(*f.Defs)
	if defs == "" {
		defs = cfg.DefinitionsPath
	}
	if defs == "" && !f.DefsOptional {
		return nil, fmt.Errorf("no definitions: pass -defs or set FXSTRUCT_DEFINITIONS_PATH")
	}
	reg := structure.NewRegistry(structure.WithLogger(log))
	if defs != "" {
		if _, err := reg.LoadDefinitions(defs); err != nil {
			return nil, err
		}
	}

	env := &Env{Config: cfg, Registry: reg, Log: log}
	if !f.needMarket {
		return env, nil
	}
	path := strings.TrimSpace(*f.Market)
	if path == "" {
		path = cfg.MarketDataPath
	}
	if path == "" {
		return nil, fmt.Errorf("no market snapshot: pass -market or set FXSTRUCT_MARKET_DATA_PATH")
	}
	md, err := marketdata.LoadSnapshot(path)
	if err != nil {
		return nil, err
	}
	env.Market = md
	return env, nil
}

// Interactive reports whether stdin is a terminal, i.e. no input was piped in.
func Interactive(stdin io.Reader, path string) bool {
	if strings.TrimSpace(path) != "" {
		return false
	}
	f, ok := stdin.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	return err == nil && (stat.Mode()&os.ModeCharDevice) != 0
}

// ReadInput reads path, or stdin when path is empty.
func ReadInput(stdin io.Reader, path string) ([]byte, error) {
	if p := strings.TrimSpace(path); p != "" {
		return os.ReadFile(p)
	}
	return io.ReadAll(stdin)
}

// ParseBatch decodes argument input. A mapping is taken as a single KV fragment; a
// sequence is a full fragment batch. YAML is accepted, so JSON is too.
func ParseBatch(b []byte) (resolver.Batch, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	switch node.Content[0].Kind {
	case yaml.MappingNode:
		m := map[string]any{}
		if err := node.Decode(&m); err != nil {
			return nil, fmt.Errorf("parse input: %w", err)
		}
		return resolver.Batch{resolver.KV(m)}, nil
	case yaml.SequenceNode:
		var batch resolver.Batch
		if err := node.Decode(&batch); err != nil {
			return nil, fmt.Errorf("parse input: %w", err)
		}
		return batch, nil
	default:
		return nil, fmt.Errorf("parse input: expected a mapping or a list of fragments")
	}
}

// WriteJSON prints v as one JSON line and returns exit code 0.
func WriteJSON(w io.Writer, v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return WriteError(w, fmt.Sprintf("failed to encode output: %v", err))
	}
	fmt.Fprintln(w, string(b))
	return 0
}

type errorOutput struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
}

// WriteError prints an error envelope and returns exit code 1.
func WriteError(w io.Writer, msg string) int {
	b, _ := json.Marshal(errorOutput{Error: msg})
	fmt.Fprintln(w, string(b))
	return 1
}

// Fail prints err, listing missing or invalid names when err carries them.
func Fail(w io.Writer, err error) int {
	out := errorOutput{Error: err.Error()}
	var mfe *resolver.MissingFieldsError
	var ife *resolver.InvalidFieldsError
	switch {
	case errors.As(err, &mfe):
		out.Missing = mfe.Missing
	case errors.As(err, &ife):
		out.Invalid = ife.Fields()
	}
	b, _ := json.Marshal(out)
	fmt.Fprintln(w, string(b))
	return 1
}
