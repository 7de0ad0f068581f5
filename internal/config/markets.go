package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/romanesquibel562/pwhl-data-engineering-pipeline/internal/domain"
)

// marketsFile mirrors config/markets.yml.
type marketsFile struct {
	Markets []marketEntry `yaml:"markets"`
}

type marketEntry struct {
	Market   string   `yaml:"market"`
	Venue    string   `yaml:"venue"`
	VenueID  string   `yaml:"venue_id"`
	Country  string   `yaml:"country"`
	Lat      *float64 `yaml:"lat"`
	Lon      *float64 `yaml:"lon"`
	Timezone string   `yaml:"timezone"`
}

// MarketsFile reads the market dimension from a YAML file on each Load.
type MarketsFile struct {
	Path string
}

// Load implements the pipeline's market source.
func (f MarketsFile) Load() ([]domain.Market, error) {
	return LoadMarkets(f.Path)
}

// LoadMarkets reads and validates the market dimension. A missing file is
// reported as *domain.MissingInputError.
func LoadMarkets(path string) ([]domain.Market, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingInputError{Name: "markets", Path: path}
		}
		return nil, fmt.Errorf("read markets: %w", err)
	}
	markets, err := ParseMarkets(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return markets, nil
}

// ParseMarkets decodes markets.yml content. Text fields are trimmed.
func ParseMarkets(data []byte) ([]domain.Market, error) {
	var f marketsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(f.Markets))
	for _, e := range f.Markets {
		m := domain.Market{
			Market:   strings.TrimSpace(e.Market),
			Venue:    strings.TrimSpace(e.Venue),
			VenueID:  strings.TrimSpace(e.VenueID),
			Country:  strings.TrimSpace(e.Country),
			Timezone: strings.TrimSpace(e.Timezone),
		}
		if e.Lat != nil {
			m.Lat = domain.Some(*e.Lat)
		}
		if e.Lon != nil {
			m.Lon = domain.Some(*e.Lon)
		}
		markets = append(markets, m)
	}
	if err := domain.ValidateMarkets(markets); err != nil {
		return nil, err
	}
	return markets, nil
}
