package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/aegis-kb/aegis/internal/config"
	"github.com/aegis-kb/aegis/internal/engine"
	"github.com/aegis-kb/aegis/internal/schema"
	"github.com/aegis-kb/aegis/internal/store"
)

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.aegis/config.toml)")
}

// loadConfig reads the TOML config, after layering in a local .env file so
// OPENAI_API_KEY can live next to the binary during development.
func loadConfig() (config.Config, error) {
	godotenv.Load() // missing .env is fine

	path := configPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return config.Default(), fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, ".aegis", "config.toml")
	}
	return config.Load(path)
}

// openEngine wires the full stack: database, ontology, governor, tracker,
// and an embedding provider. The caller owns closing the returned DB.
func openEngine(cfg config.Config) (*engine.Engine, *store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	ontology := schema.Default()
	if cfg.Ontology.Dir != "" {
		ontology, err = schema.LoadDir(cfg.Ontology.Dir)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("load ontology: %w", err)
		}
	}

	governor := engine.NewGovernor(cfg.Governance.TrustedActors)
	tracker := engine.NewTracker(db)
	if cfg.Governance.HalfLifeDays > 0 {
		tracker.HalfLifeDays = cfg.Governance.HalfLifeDays
	}
	if cfg.Governance.MinTrust > 0 {
		tracker.MinTrust = cfg.Governance.MinTrust
	}

	eng := engine.New(db, ontology, governor, tracker)
	if cfg.Governance.TopK > 0 {
		eng.TopK = cfg.Governance.TopK
	}
	if cfg.Governance.CandidateLimit > 0 {
		eng.CandidateLimit = cfg.Governance.CandidateLimit
	}

	emb, desc, err := selectEmbedder(cfg, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	eng.SetEmbedder(emb)
	fmt.Fprintf(os.Stderr, "  embedder: %s\n", desc)

	return eng, db, nil
}

// selectEmbedder picks a provider: OpenAI when a key is present, then
// Ollama when reachable, then the offline TF-IDF fallback.
func selectEmbedder(cfg config.Config, db *store.DB) (engine.Embedder, string, error) {
	provider := cfg.Embedding.Provider
	apiKey := os.Getenv("OPENAI_API_KEY")

	if provider == "auto" {
		switch {
		case apiKey != "":
			provider = "openai"
		case engine.ProbeOllama(cfg.Embedding.OllamaURL, cfg.Embedding.OllamaModel):
			provider = "ollama"
		default:
			provider = "tfidf"
		}
	}

	switch provider {
	case "openai":
		if apiKey == "" {
			return nil, "", fmt.Errorf("embedding provider openai requires OPENAI_API_KEY")
		}
		emb := engine.NewOpenAIEmbedder(apiKey, cfg.Embedding.OpenAIModel, cfg.Embedding.Dimensions)
		return emb, "openai (" + cfg.Embedding.OpenAIModel + ")", nil
	case "ollama":
		emb := engine.NewOllamaEmbedder(cfg.Embedding.OllamaURL, cfg.Embedding.OllamaModel, cfg.Embedding.Dimensions)
		return emb, "ollama (" + cfg.Embedding.OllamaModel + ")", nil
	case "tfidf":
		emb, err := engine.NewTFIDFEmbedder(db, 512)
		if err != nil {
			return nil, "", fmt.Errorf("init tfidf embedder: %w", err)
		}
		return emb, "tfidf (offline fallback)", nil
	default:
		return nil, "", fmt.Errorf("unknown embedding provider %q", provider)
	}
}
