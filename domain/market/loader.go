package market

import (
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

// yamlMarketDefinition is the YAML structure for a market file.
type yamlMarketDefinition struct {
	Tickers []yamlTicker `yaml:"tickers"`
}

type yamlTicker struct {
	Symbol     string  `yaml:"symbol"`
	Name       string  `yaml:"name"`
	Price      float64 `yaml:"price"`
	Volatility float64 `yaml:"volatility"`
	Drift      float64 `yaml:"drift"`
}

// Loader reads ticker definitions into a registry.
type Loader struct {
	registry *Registry
}

// NewLoader creates a new loader that populates the given registry.
func NewLoader(registry *Registry) *Loader {
	return &Loader{registry: registry}
}

// LoadFromFS loads every YAML file in the "market" directory of fsys.
func (l *Loader) LoadFromFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, "market")
	if err != nil {
		return fmt.Errorf("failed to read market directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yaml" {
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join("market", entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		if err := l.LoadFromBytes(data); err != nil {
			return fmt.Errorf("failed to load %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// LoadFromBytes parses one YAML market definition.
// Nothing is registered if any ticker in the document is invalid.
func (l *Loader) LoadFromBytes(data []byte) error {
	var def yamlMarketDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	tickers := make([]*Ticker, 0, len(def.Tickers))
	for _, yt := range def.Tickers {
		t := &Ticker{
			Symbol:     yt.Symbol,
			Name:       yt.Name,
			Price:      yt.Price,
			Volatility: yt.Volatility,
			Drift:      yt.Drift,
		}
		if err := t.Validate(); err != nil {
			return err
		}
		tickers = append(tickers, t)
	}

	for _, t := range tickers {
		l.registry.Register(t)
	}
	return nil
}
