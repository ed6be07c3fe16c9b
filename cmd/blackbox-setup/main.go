// Command blackbox-setup initializes the data directory and verifies
// that the configured storage and embedding provider are usable.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/scrypster/blackbox/internal/config"
	"github.com/scrypster/blackbox/internal/storage/postgres"
	"github.com/scrypster/blackbox/internal/storage/sqlite"
)

var verify = flag.Bool("verify", false, "Check the installation without changing anything")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *verify {
		runVerify(cfg)
		return
	}
	runInit(cfg)
}

func runInit(cfg *config.Config) {
	fmt.Println("Blackbox Setup")
	fmt.Println("==============")
	fmt.Println()

	if cfg.Storage.Engine == "sqlite" {
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
		fmt.Printf("Data directory: %s\n", cfg.Storage.DataPath)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()
	fmt.Printf("Storage:        %s schema ready\n", cfg.Storage.Engine)

	if cfg.Notify.EventsPath != "" {
		if err := os.MkdirAll(filepath.Join(cfg.Notify.EventsPath, "events"), 0o700); err != nil {
			log.Fatalf("Failed to create events directory: %v", err)
		}
		fmt.Printf("Events:         %s\n", cfg.Notify.EventsPath)
	}

	fmt.Println()
	fmt.Println("Setup complete. Run blackbox-setup -verify to check connectivity.")
}

func runVerify(cfg *config.Config) {
	fmt.Println("Blackbox Setup Verification")
	fmt.Println("===========================")
	fmt.Println()

	statusOK := true

	// Storage
	store, err := openStore(cfg)
	if err != nil {
		fmt.Printf("Storage:   ✗ %v\n", err)
		statusOK = false
	} else {
		store.Close()
		fmt.Printf("Storage:   ✓ %s reachable\n", cfg.Storage.Engine)
	}

	// Data directory writability (sqlite only)
	if cfg.Storage.Engine == "sqlite" {
		testFile := filepath.Join(cfg.Storage.DataPath, ".blackbox-write-test")
		if err := os.WriteFile(testFile, []byte("test"), 0o644); err == nil {
			os.Remove(testFile)
			fmt.Printf("Data dir:  ✓ %s writable\n", cfg.Storage.DataPath)
		} else {
			fmt.Printf("Data dir:  ✗ %s not writable\n", cfg.Storage.DataPath)
			statusOK = false
		}
	}

	// Embedding provider
	if err := checkProvider(cfg); err != nil {
		fmt.Printf("Provider:  ✗ %s (%v)\n", cfg.Embedding.Provider, err)
		statusOK = false
	} else {
		fmt.Printf("Provider:  ✓ %s reachable\n", cfg.Embedding.Provider)
	}

	fmt.Println()
	if !statusOK {
		fmt.Println("Verification found problems.")
		os.Exit(1)
	}
	fmt.Println("All checks passed.")
}

// checkProvider probes the configured embedding endpoint without
// spending an embedding call.
func checkProvider(cfg *config.Config) error {
	client := &http.Client{Timeout: 5 * time.Second}

	var url string
	switch cfg.Embedding.Provider {
	case "ollama":
		url = cfg.Embedding.OllamaURL + "/api/tags"
	case "openai":
		if cfg.Embedding.OpenAIAPIKey == "" {
			return fmt.Errorf("BLACKBOX_OPENAI_API_KEY is not set")
		}
		base := cfg.Embedding.OpenAIBaseURL
		if base == "" {
			base = "https://api.openai.com"
		}
		url = base + "/v1/models"
	default:
		return fmt.Errorf("unknown provider %q", cfg.Embedding.Provider)
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if cfg.Embedding.Provider == "openai" {
		req.Header.Set("Authorization", "Bearer "+cfg.Embedding.OpenAIAPIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("endpoint returned %s", resp.Status)
	}
	return nil
}

func openStore(cfg *config.Config) (interface{ Close() error }, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.NewStore(postgres.Config{
			DSN:             cfg.Storage.PostgresDSN,
			VectorDimension: cfg.Embedding.Dimension,
		})
	default:
		return sqlite.NewStore(filepath.Join(cfg.Storage.DataPath, "blackbox.db"))
	}
}
