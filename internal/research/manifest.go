package research

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces build ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 build ids, so manifests
// sort by build time.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids in order. It panics once the ids
// run out so a test that builds more often than expected fails loudly.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next id.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// TableResult describes one research table.
type TableResult struct {
	Name        string   `json:"name"`
	Source      Source   `json:"source"`
	Columns     []string `json:"columns"`
	Rows        int      `json:"rows"`
	Fingerprint string   `json:"fingerprint"`
}

// Manifest records what a research build produced.
type Manifest struct {
	BuildID   string        `json:"build_id"`
	Version   string        `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	Store     string        `json:"store"`
	Tables    []TableResult `json:"tables"`
}

var versionRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidVersion reports whether v can name a research store file.
func ValidVersion(v string) bool {
	return versionRE.MatchString(v)
}

// StorePath is the research database of a version inside dir.
func StorePath(dir, version string) string {
	return filepath.Join(dir, "research_v"+version+".db")
}

// ManifestPath is the manifest of a version inside dir.
func ManifestPath(dir, version string) string {
	return filepath.Join(dir, "research_v"+version+".manifest.json")
}

// WriteManifest writes m as indented JSON, replacing any earlier manifest.
func WriteManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest reads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return m, nil
}
