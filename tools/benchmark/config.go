package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultAPIURL      = "http://localhost:8080"
	defaultBuyerPrefix = "BenchBuyer"
	defaultBuyers      = 50
	defaultConcurrency = 20
	defaultTimeout     = 10 * time.Second

	profileFileName = ".marketplace-race.json"
)

// RaceProfile is a saved purchase race. Zero fields keep the flag value.
type RaceProfile struct {
	APIURL         string `json:"api_url,omitempty"`
	ListingID      uint64 `json:"listing_id,omitempty"`
	Buyers         int    `json:"buyers,omitempty"`
	Concurrency    int    `json:"concurrency,omitempty"`
	BuyerPrefix    string `json:"buyer_prefix,omitempty"`
	TxHash         string `json:"tx_hash,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

func LoadRaceProfile(path string) (*RaceProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var p RaceProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func SaveRaceProfile(path string, p *RaceProfile) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DefaultRaceProfilePath is the profile read when -config is "default"
func DefaultRaceProfilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return profileFileName
	}
	return filepath.Join(home, profileFileName)
}

// applyTo copies profile values into cfg, skipping flags named in explicit
func (p *RaceProfile) applyTo(cfg *Config, explicit map[string]bool) {
	if p.APIURL != "" && !explicit["api-url"] {
		cfg.APIURL = p.APIURL
	}
	if p.ListingID != 0 && !explicit["listing-id"] {
		cfg.ListingID = p.ListingID
	}
	if p.Buyers > 0 && !explicit["buyers"] {
		cfg.Buyers = p.Buyers
	}
	if p.Concurrency > 0 && !explicit["concurrency"] {
		cfg.Concurrency = p.Concurrency
	}
	if p.BuyerPrefix != "" && !explicit["buyer-prefix"] {
		cfg.BuyerPrefix = p.BuyerPrefix
	}
	if p.TxHash != "" && !explicit["tx-hash"] {
		cfg.TxHash = p.TxHash
	}
	if p.TimeoutSeconds > 0 && !explicit["timeout"] {
		cfg.Timeout = time.Duration(p.TimeoutSeconds) * time.Second
	}
}

// normalize replaces unusable values and never runs more workers than buyers
func (cfg *Config) normalize() {
	if cfg.Buyers <= 0 {
		cfg.Buyers = defaultBuyers
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Concurrency > cfg.Buyers {
		cfg.Concurrency = cfg.Buyers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
}
