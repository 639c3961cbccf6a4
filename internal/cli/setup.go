package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/duffmetro/metroscope/internal/cache"
	"github.com/duffmetro/metroscope/internal/llm"
	"github.com/duffmetro/metroscope/internal/model"
	"github.com/duffmetro/metroscope/internal/profile"
	"github.com/duffmetro/metroscope/internal/render"
	"github.com/duffmetro/metroscope/internal/retrieval"
)

// loadConfig merges defaults, the config file, and environment variables.
// API keys come from the conventional env vars when not set elsewhere.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		switch strings.ToLower(cfg.LLM.Provider) {
		case "anthropic":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.Search.APIKey == "" {
		cfg.Search.APIKey = os.Getenv("TAVILY_API_KEY")
	}

	return cfg, nil
}

// byteStore builds the layered cache for geocode and search responses, or
// nil when caching is disabled.
func byteStore(cfg *model.Config) cache.Store {
	if !cfg.Cache.Enabled {
		return nil
	}
	dir := cfg.Cache.Dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cache.NewMemory(cfg.Cache.TTL, 0)
		}
		dir = filepath.Join(home, ".metroscope", "cache")
	}
	return cache.NewLayered(cfg.Cache.TTL, dir, cfg.Cache.TTL)
}

// app bundles the wired profile pipeline for one CLI invocation. The
// session (and with it the profile cache) lives exactly as long as the
// invocation.
type app struct {
	cfg      *model.Config
	session  *profile.Session
	workflow *profile.Workflow
	renderer *render.Renderer
	gateway  *retrieval.Gateway
}

// newApp wires the workflow. A missing LLM credential is a fatal
// configuration error; a missing search credential only disables web
// retrieval.
func newApp(cfg *model.Config) (*app, error) {
	synth, err := llm.NewSynthesizer(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("configure synthesizer: %w (set OPENAI_API_KEY or ANTHROPIC_API_KEY)", err)
	}

	gateway := retrieval.New(cfg.Search, cfg.HTTP, byteStore(cfg))
	if verbose && !gateway.Available() {
		fmt.Fprintln(os.Stderr, "No search credential found; profiles will run in no-web mode (set TAVILY_API_KEY to enable retrieval)")
	}

	session := profile.NewSession()
	return &app{
		cfg:      cfg,
		session:  session,
		workflow: profile.NewWorkflow(session.Cache, gateway, synth),
		renderer: render.NewRenderer(cfg.Output.IncludeFooter),
		gateway:  gateway,
	}, nil
}
