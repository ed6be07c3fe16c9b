// Command blackbox-eval inspects captured functions, manages datasets
// and labels, and runs correlation evaluations against the store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/blackbox/internal/capture"
	"github.com/scrypster/blackbox/internal/config"
	"github.com/scrypster/blackbox/internal/embedding"
	"github.com/scrypster/blackbox/internal/evaluator"
	"github.com/scrypster/blackbox/internal/notify"
	"github.com/scrypster/blackbox/internal/similarity"
	"github.com/scrypster/blackbox/internal/storage"
	"github.com/scrypster/blackbox/internal/storage/postgres"
	"github.com/scrypster/blackbox/internal/storage/sqlite"
	"github.com/scrypster/blackbox/internal/tracker"
	"github.com/scrypster/blackbox/pkg/types"
)

var (
	historyFn   = flag.String("history", "", "Print the version history of a function and exit")
	examplesFn  = flag.String("examples", "", "List stored examples of a function and exit")
	labelID     = flag.String("label", "", "Attach a quality label to an example ID and exit")
	labelValue  = flag.Float64("value", -1, "Label value in [0,1] (used with -label)")
	exportFn    = flag.String("export", "", "Export a function's examples as a YAML dataset and exit")
	importPath  = flag.String("import", "", "Import a YAML dataset file and exit")
	evaluateFn  = flag.String("evaluate", "", "Run a correlation evaluation for a function and exit")
	compareFn   = flag.String("compare", "", "Compare two versions of a function and exit")
	version     = flag.Int("version", 0, "Signature version (0 = latest)")
	fromVersion = flag.Int("from", 0, "Baseline version (used with -compare)")
	toVersion   = flag.Int("to", 0, "Candidate version (used with -compare)")
	candidates  = flag.String("candidates", "", "Path to a YAML candidates file (used with -evaluate/-compare)")
	labeledOnly = flag.Bool("labeled", false, "Restrict -examples to labeled examples")
	outPath     = flag.String("out", "", "Output file for -export (default stdout)")
	watchMode   = flag.Bool("watch", false, "Follow capture events and print them until interrupted")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Watch mode reads only the shared events directory, never the store.
	if *watchMode {
		runWatch(cfg)
		return
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	switch {
	case *historyFn != "":
		handleHistory(ctx, store, *historyFn)
	case *examplesFn != "":
		handleExamples(ctx, store, *examplesFn)
	case *labelID != "":
		handleLabel(ctx, cfg, store)
	case *exportFn != "":
		handleExport(ctx, store, *exportFn)
	case *importPath != "":
		handleImport(ctx, cfg, store)
	case *evaluateFn != "":
		handleEvaluate(ctx, cfg, store, *evaluateFn)
	case *compareFn != "":
		handleCompare(ctx, cfg, store, *compareFn)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func openStore(cfg *config.Config) (storage.Store, error) {
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

// runWatch follows the shared events directory and prints each capture,
// label, version, and evaluation event until interrupted. Meant for a
// reviewer terminal running alongside instrumented processes.
func runWatch(cfg *config.Config) {
	if cfg.Notify.EventsPath == "" {
		log.Fatalf("Watch mode requires BLACKBOX_EVENTS_PATH to be set")
	}

	watcher := notify.NewEventWatcher(cfg.Notify.EventsPath, func(event notify.Event) {
		fmt.Println(formatEvent(event))
	})
	if err := watcher.Start(); err != nil {
		log.Fatalf("Failed to start event watcher: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	watcher.Stop()
}

// formatEvent renders one event as a single log-style line.
func formatEvent(event notify.Event) string {
	ts := time.Unix(0, event.Time).UTC().Format(time.RFC3339)
	if event.FunctionName == "" {
		return fmt.Sprintf("%s  %-20s %s", ts, event.Type, event.Subject)
	}
	return fmt.Sprintf("%s  %-20s %s %s", ts, event.Type, event.FunctionName, event.Subject)
}

func newCaptureService(cfg *config.Config, store storage.Store) *capture.Service {
	tr := tracker.New(store)
	var sink capture.EventSink
	if cfg.Notify.EventsPath != "" {
		writer := notify.NewEventWriter(cfg.Notify.EventsPath)
		tr.SetEventSink(writer)
		sink = writer
	}
	return capture.NewService(tr, store, sink)
}

func newEvaluator(cfg *config.Config, store storage.Store) (*evaluator.Evaluator, error) {
	provider, err := embedding.NewCachedProviderFromConfig(cfg.Embedding, store)
	if err != nil {
		return nil, err
	}
	engine := similarity.NewEngine(provider, cfg.Eval.MaxConcurrentEmbeds)
	return evaluator.NewEvaluator(store, engine, cfg.Eval.MaxConcurrentEmbeds), nil
}

// resolveVersion maps version flag 0 to the function's latest version.
func resolveVersion(ctx context.Context, store storage.Store, functionName string, v int) (int, error) {
	if v > 0 {
		return v, nil
	}
	latest, err := store.LatestSignature(ctx, functionName)
	if err != nil {
		return 0, err
	}
	return latest.Version, nil
}

func handleHistory(ctx context.Context, store storage.Store, functionName string) {
	sigs, err := store.ListSignatures(ctx, functionName)
	if err != nil {
		log.Fatalf("Failed to list versions: %v", err)
	}
	if len(sigs) == 0 {
		fmt.Printf("No versions recorded for %s\n", functionName)
		return
	}

	fmt.Printf("%s: %d version(s)\n\n", functionName, len(sigs))
	for _, sig := range sigs {
		fmt.Printf("v%d  %s  hash %.12s\n", sig.Version, sig.CreatedAt.Format(time.RFC3339), sig.DescriptorHash)
		if sig.Description != "" {
			fmt.Printf("    %s\n", sig.Description)
		}
	}
}

func handleExamples(ctx context.Context, store storage.Store, functionName string) {
	examples, err := store.ListExamples(ctx, functionName, storage.ListOptions{
		Version:     *version,
		LabeledOnly: *labeledOnly,
	})
	if err != nil {
		log.Fatalf("Failed to list examples: %v", err)
	}
	if len(examples) == 0 {
		fmt.Printf("No examples stored for %s\n", functionName)
		return
	}

	fmt.Printf("Found %d example(s):\n\n", len(examples))
	for _, ex := range examples {
		labelText := "unlabeled"
		if ex.Labeled() {
			labelText = fmt.Sprintf("label %.2f", *ex.Label)
		}
		fmt.Printf("%s  v%d  %s  %s  %s\n",
			ex.ID, ex.Version, ex.Source, labelText, ex.CreatedAt.Format(time.RFC3339))
	}
}

func handleLabel(ctx context.Context, cfg *config.Config, store storage.Store) {
	svc := newCaptureService(cfg, store)
	example, err := svc.Label(ctx, *labelID, *labelValue)
	if err != nil {
		log.Fatalf("Failed to label example: %v", err)
	}
	fmt.Printf("Labeled %s (%s v%d) with %.2f\n",
		example.ID, example.FunctionName, example.Version, *example.Label)
}

func handleExport(ctx context.Context, store storage.Store, functionName string) {
	v, err := resolveVersion(ctx, store, functionName, *version)
	if err != nil {
		log.Fatalf("Failed to resolve version: %v", err)
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	if err := capture.ExportDataset(ctx, store, out, functionName, v); err != nil {
		log.Fatalf("Export failed: %v", err)
	}
	if *outPath != "" {
		log.Printf("Exported %s v%d to %s", functionName, v, *outPath)
	}
}

func handleImport(ctx context.Context, cfg *config.Config, store storage.Store) {
	f, err := os.Open(*importPath)
	if err != nil {
		log.Fatalf("Failed to open dataset: %v", err)
	}
	defer f.Close()

	svc := newCaptureService(cfg, store)
	imported, err := svc.ImportDataset(ctx, f)
	if err != nil {
		log.Fatalf("Import failed after %d example(s): %v", imported, err)
	}
	fmt.Printf("Imported %d example(s) from %s\n", imported, *importPath)
}

// candidatesFile is the YAML shape accepted by -evaluate and -compare:
// each entry pairs an output with an independent quality label.
type candidatesFile struct {
	Candidates []struct {
		Output any     `yaml:"output"`
		Label  float64 `yaml:"label"`
	} `yaml:"candidates"`
}

func loadCandidates(path string) ([]evaluator.Candidate, error) {
	if path == "" {
		return nil, fmt.Errorf("a -candidates file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file candidatesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	out := make([]evaluator.Candidate, 0, len(file.Candidates))
	for _, c := range file.Candidates {
		out = append(out, evaluator.Candidate{Output: c.Output, Label: c.Label})
	}
	return out, nil
}

func printResult(result *types.CorrelationResult) {
	fmt.Printf("%s v%d\n", result.FunctionName, result.Version)
	fmt.Printf("  Coefficient: %+.4f\n", result.Coefficient)
	fmt.Printf("  Sample Size: %d labeled example(s)\n", result.SampleSize)
	if result.LowSampleWarning {
		fmt.Printf("  Warning: below the recommended %d labeled examples\n", types.MinLabeledForConfidence)
	}
}

func handleEvaluate(ctx context.Context, cfg *config.Config, store storage.Store, functionName string) {
	cands, err := loadCandidates(*candidates)
	if err != nil {
		log.Fatalf("Failed to load candidates: %v", err)
	}
	v, err := resolveVersion(ctx, store, functionName, *version)
	if err != nil {
		log.Fatalf("Failed to resolve version: %v", err)
	}

	ev, err := newEvaluator(cfg, store)
	if err != nil {
		log.Fatalf("Failed to build evaluator: %v", err)
	}

	result, err := ev.Evaluate(ctx, functionName, v, cands)
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}
	printResult(result)
	notifyEvalComplete(cfg, functionName, v)
}

// notifyEvalComplete signals review tooling that fresh correlation
// numbers exist for a version. Best effort.
func notifyEvalComplete(cfg *config.Config, functionName string, version int) {
	if cfg.Notify.EventsPath == "" {
		return
	}
	writer := notify.NewEventWriter(cfg.Notify.EventsPath)
	if err := writer.Notify(notify.EventEvalComplete, functionName, strconv.Itoa(version)); err != nil {
		log.Printf("evaluation event for %s v%d not delivered: %v", functionName, version, err)
	}
}

func handleCompare(ctx context.Context, cfg *config.Config, store storage.Store, functionName string) {
	if *fromVersion <= 0 || *toVersion <= 0 {
		log.Fatalf("-compare requires -from and -to versions")
	}
	cands, err := loadCandidates(*candidates)
	if err != nil {
		log.Fatalf("Failed to load candidates: %v", err)
	}

	ev, err := newEvaluator(cfg, store)
	if err != nil {
		log.Fatalf("Failed to build evaluator: %v", err)
	}

	cmp, err := ev.CompareVersions(ctx, functionName, *fromVersion, *toVersion, cands)
	if err != nil {
		log.Fatalf("Comparison failed: %v", err)
	}

	printResult(cmp.A)
	fmt.Println()
	printResult(cmp.B)
	notifyEvalComplete(cfg, functionName, *toVersion)
	fmt.Println()
	switch {
	case cmp.Delta > 0:
		fmt.Printf("v%d tracks quality better (+%.4f)\n", *toVersion, cmp.Delta)
	case cmp.Delta < 0:
		fmt.Printf("v%d tracks quality better (%.4f)\n", *fromVersion, cmp.Delta)
	default:
		fmt.Println("No measurable difference between versions")
	}
}
