// Command validate checks a template archive against the SQLite manifest
// written during the run and against the source catalog. It verifies that
// every manifest row has a decodable file, every file is indexed, names
// follow the naming scheme, and windows agree with the configuration.
//
// Usage:
//
//	go run ./cmd/validate -config data/mock/trim.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/seismic-template-trim/internal/adapter/mseed"
	"github.com/couchcryptid/seismic-template-trim/internal/adapter/sqlite"
	"github.com/couchcryptid/seismic-template-trim/internal/catalog"
	"github.com/couchcryptid/seismic-template-trim/internal/config"
	"github.com/couchcryptid/seismic-template-trim/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	configPath := flag.String("config", "trim.yaml", "run configuration (yaml or legacy .par)")
	manifestPath := flag.String("manifest", "", "manifest database (defaults to the configured manifest)")
	flag.Parse()

	if code := run(*configPath, *manifestPath); code != 0 {
		os.Exit(code)
	}
}

func run(configPath, manifestPath string) int {
	fmt.Println("=== Template Archive Validation ===")
	fmt.Println()

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		return 1
	}
	if manifestPath == "" {
		manifestPath = cfg.Manifest
	}
	if manifestPath == "" {
		fmt.Fprintln(os.Stderr, "FATAL: no manifest configured; pass -manifest")
		return 1
	}

	manifest, err := sqlite.Open(manifestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open manifest: %v\n", err)
		return 1
	}
	defer manifest.Close()

	records, err := manifest.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: list manifest: %v\n", err)
		return 1
	}

	events, err := catalog.ReadZMAPFile(cfg.Catalog, cfg.TimePrecision)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load catalog: %v\n", err)
		return 1
	}

	files, err := listTemplates(cfg.TemplateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: list templates: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateParity(records, files),
		validateNaming(records),
		validateIntegrity(records, cfg.TemplateDir),
		validateCatalog(records, events, cfg),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d manifest rows, %d template files, %d catalog events\n",
		len(records), len(files), len(events))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func listTemplates(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), domain.TemplateExt) {
			continue
		}
		files[e.Name()] = true
	}
	return files, nil
}

// validateParity checks that the manifest and the directory list the
// same templates.
func validateParity(records []domain.TemplateRecord, files map[string]bool) *phase {
	p := &phase{name: "Manifest/archive parity"}
	indexed := make(map[string]bool, len(records))
	for _, rec := range records {
		indexed[rec.Name] = true
		if !files[rec.Name] {
			p.errorf("%s: in manifest but missing on disk", rec.Name)
		}
	}
	for name := range files {
		if !indexed[name] {
			p.errorf("%s: on disk but not in manifest", name)
		}
	}
	return p
}

func validateNaming(records []domain.TemplateRecord) *phase {
	p := &phase{name: "Naming scheme"}
	for _, rec := range records {
		want := domain.TemplateName(rec.EventIndex, rec.Network, rec.Station, rec.Channel)
		if rec.Name != want {
			p.errorf("%s: want name %s", rec.Name, want)
		}
	}
	return p
}

// validateIntegrity decodes every file and compares it with its row.
func validateIntegrity(records []domain.TemplateRecord, dir string) *phase {
	p := &phase{name: "Template integrity"}
	for _, rec := range records {
		traces, err := mseed.ReadFile(filepath.Join(dir, rec.Name))
		if err != nil {
			p.errorf("%s: %v", rec.Name, err)
			continue
		}
		if len(traces) == 0 {
			p.errorf("%s: no data records", rec.Name)
			continue
		}

		first := traces[0]
		samples := 0
		for _, tr := range traces {
			samples += len(tr.Samples)
			if tr.Network != rec.Network || tr.Station != rec.Station || tr.Channel != rec.Channel {
				p.errorf("%s: record id %s does not match manifest", rec.Name, tr.ID())
			}
		}
		if samples != rec.SampleCount {
			p.errorf("%s: %d samples, manifest says %d", rec.Name, samples, rec.SampleCount)
		}
		if math.Abs(first.SampleRate-rec.SampleRate) > 1e-9 {
			p.errorf("%s: rate %v, manifest says %v", rec.Name, first.SampleRate, rec.SampleRate)
		}
		// miniSEED start times carry 100 microsecond resolution.
		if d := first.Start.Sub(rec.Start); d.Abs().Microseconds() >= 100 {
			p.errorf("%s: starts %s, manifest says %s", rec.Name, first.Start, rec.Start)
		}
	}
	return p
}

// validateCatalog checks rows against the catalog events they were cut for
// and the configured window lengths.
func validateCatalog(records []domain.TemplateRecord, events []domain.Event, cfg *config.Config) *phase {
	p := &phase{name: "Catalog/window consistency"}
	window := cfg.WindowBefore() + cfg.WindowAfter()
	for _, rec := range records {
		if rec.EventIndex < 0 || rec.EventIndex >= len(events) {
			p.errorf("%s: event index %d outside catalog of %d", rec.Name, rec.EventIndex, len(events))
			continue
		}
		ev := events[rec.EventIndex]
		if !ev.Origin.Equal(rec.Origin) {
			p.errorf("%s: origin %s, catalog says %s", rec.Name, rec.Origin, ev.Origin)
		}
		if rec.ArrivalSec < 0 {
			p.errorf("%s: negative arrival %v", rec.Name, rec.ArrivalSec)
		}
		if rec.Start.Before(rec.Origin.Add(domain.Seconds(rec.ArrivalSec) - cfg.WindowBefore() - samplePeriod(rec))) {
			p.errorf("%s: starts before the window", rec.Name)
		}
		// Trimming clips at the edges of the recorded span, so only an
		// overlong template is an error.
		if rec.End.Sub(rec.Start) > window+samplePeriod(rec) {
			p.errorf("%s: spans %s, window is %s", rec.Name, rec.End.Sub(rec.Start), window)
		}
	}
	return p
}

func samplePeriod(rec domain.TemplateRecord) time.Duration {
	if rec.SampleRate <= 0 {
		return 0
	}
	return domain.Seconds(1 / rec.SampleRate)
}
