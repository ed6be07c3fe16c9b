package capture

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/blackbox/internal/storage"
	"github.com/scrypster/blackbox/pkg/types"
)

// Dataset is the portable YAML form of a function's captured examples.
// It carries values and labels but not version numbers or IDs: importing
// re-resolves shapes against the local tracker, so the same dataset can
// seed any deployment.
type Dataset struct {
	Function    string           `yaml:"function"`
	Description string           `yaml:"description,omitempty"`
	ListPolicy  types.ListPolicy `yaml:"list_policy,omitempty"`
	Examples    []DatasetExample `yaml:"examples"`
}

// DatasetExample is one example in a dataset file.
type DatasetExample struct {
	Input  map[string]any  `yaml:"input"`
	Output any             `yaml:"output"`
	Label  *float64        `yaml:"label,omitempty"`
	Source types.SourceTag `yaml:"source,omitempty"`
}

// DatasetStore is the read surface dataset export needs.
type DatasetStore interface {
	storage.SignatureStore
	storage.ExampleStore
}

// ExportDataset writes one version's examples as a YAML dataset.
func ExportDataset(ctx context.Context, store DatasetStore, w io.Writer, functionName string, version int) error {
	sig, err := store.GetSignature(ctx, functionName, version)
	if err != nil {
		return fmt.Errorf("loading signature %s v%d: %w", functionName, version, err)
	}

	examples, err := store.ListExamples(ctx, functionName, storage.ListOptions{
		Version: version,
		Limit:   1000,
	})
	if err != nil {
		return fmt.Errorf("listing examples for %s v%d: %w", functionName, version, err)
	}

	ds := Dataset{
		Function:    functionName,
		Description: sig.Description,
		ListPolicy:  sig.ListPolicy,
		Examples:    make([]DatasetExample, 0, len(examples)),
	}
	for _, ex := range examples {
		ds.Examples = append(ds.Examples, DatasetExample{
			Input:  ex.Input,
			Output: ex.Output,
			Label:  ex.Label,
			Source: ex.Source,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&ds); err != nil {
		return fmt.Errorf("encoding dataset for %s v%d: %w", functionName, version, err)
	}
	return enc.Close()
}

// ImportDataset reads a YAML dataset and captures every example through
// the normal boundary, labeling the ones that carry labels. Shapes are
// re-resolved locally, so all imported examples land on whatever version
// the dataset's shape maps to here. Returns the number imported.
//
// Import stops at the first failing example; earlier examples stay
// stored.
func (s *Service) ImportDataset(ctx context.Context, r io.Reader) (int, error) {
	var ds Dataset
	if err := yaml.NewDecoder(r).Decode(&ds); err != nil {
		return 0, fmt.Errorf("decoding dataset: %w", err)
	}
	if ds.Function == "" {
		return 0, fmt.Errorf("%w: dataset has no function name", storage.ErrInvalidInput)
	}

	imported := 0
	for i, dex := range ds.Examples {
		example, err := s.Capture(ctx, Request{
			FunctionName: ds.Function,
			Input:        dex.Input,
			Output:       dex.Output,
			Source:       dex.Source,
			Description:  ds.Description,
			ListPolicy:   ds.ListPolicy,
		})
		if err != nil {
			return imported, fmt.Errorf("importing example %d of %s: %w", i, ds.Function, err)
		}
		if dex.Label != nil {
			if _, err := s.Label(ctx, example.ID, *dex.Label); err != nil {
				return imported, fmt.Errorf("labeling imported example %d of %s: %w", i, ds.Function, err)
			}
		}
		imported++
	}
	return imported, nil
}
