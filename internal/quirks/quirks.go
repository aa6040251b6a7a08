// Package quirks holds the hand-maintained override tables for podcasts whose
// pages report a wrong content type or no usable duration.
package quirks

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MimeOverride forces Type for every episode whose title contains Match.
type MimeOverride struct {
	Match string `yaml:"match"`
	Type  string `yaml:"type"`
}

// DurationOverride forces Seconds for every episode whose title contains Match.
type DurationOverride struct {
	Match   string `yaml:"match"`
	Seconds int    `yaml:"seconds"`
}

// Tables is an immutable set of overrides. The first matching entry wins.
type Tables struct {
	MimeTypes []MimeOverride     `yaml:"mime_types"`
	Durations []DurationOverride `yaml:"durations"`
}

// Source answers override lookups. Both Tables and Store implement it.
type Source interface {
	MediaType(title, fallback string) string
	Duration(title string) (int, bool)
}

// Default returns the built-in override tables.
func Default() Tables {
	return Tables{
		MimeTypes: []MimeOverride{
			{Match: "Group Therapy Radio", Type: "audio/mp4"},
			{Match: "Monstercat", Type: "audio/mpeg"},
		},
		Durations: []DurationOverride{
			{Match: "Scorchin’ Radio", Seconds: 3600},
		},
	}
}

// Load reads override tables from a YAML file. Entries without a match string
// or a usable value are dropped.
func Load(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, err
	}
	return Parse(data)
}

// Parse decodes override tables from YAML.
func Parse(data []byte) (Tables, error) {
	var raw Tables
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Tables{}, fmt.Errorf("parse quirks: %w", err)
	}

	var tables Tables
	for _, entry := range raw.MimeTypes {
		entry.Match = strings.TrimSpace(entry.Match)
		entry.Type = strings.TrimSpace(entry.Type)
		if entry.Match == "" || entry.Type == "" {
			continue
		}
		tables.MimeTypes = append(tables.MimeTypes, entry)
	}
	for _, entry := range raw.Durations {
		entry.Match = strings.TrimSpace(entry.Match)
		if entry.Match == "" || entry.Seconds <= 0 {
			continue
		}
		tables.Durations = append(tables.Durations, entry)
	}
	return tables, nil
}

// MediaType returns the forced content type for title, or fallback.
func (t Tables) MediaType(title, fallback string) string {
	for _, entry := range t.MimeTypes {
		if strings.Contains(title, entry.Match) {
			return entry.Type
		}
	}
	return fallback
}

// Duration returns the forced duration in seconds for title.
func (t Tables) Duration(title string) (int, bool) {
	for _, entry := range t.Durations {
		if strings.Contains(title, entry.Match) {
			return entry.Seconds, true
		}
	}
	return 0, false
}
