// Command genmock writes a small synthetic archive that a template run can
// be pointed at: continuous miniSEED day files, a ZMAP catalog, a
// StationXML inventory, a travel-time model, a day list and trim.yaml.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock
//	TRIM_CONFIG=data/mock/trim.yaml go run ./cmd/trimtemplates
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/seismic-template-trim/internal/mockdata"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock", "directory to write the archive into")
	force := flag.Bool("force", false, "write into a non-empty directory")
	flag.Parse()

	if entries, err := os.ReadDir(*out); err == nil && len(entries) > 0 && !*force {
		return fmt.Errorf("%s is not empty (use -force to overwrite)", *out)
	}

	abs, err := filepath.Abs(*out)
	if err != nil {
		return err
	}
	layout, err := mockdata.Generate(abs)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	log.Printf("wrote config: %s", layout.ConfigPath)
	log.Printf("catalog: %s", layout.Catalog)
	log.Printf("inventory: %s", layout.Inventory)
	log.Printf("model: %s/%s.tvel", layout.ModelDir, mockdata.ModelName)
	return printContinuous(layout.ContinuousDir)
}

func printContinuous(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	fmt.Println("\n=== Continuous data ===")
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		fmt.Printf("  %-20s %8d bytes\n", name, info.Size())
	}
	return nil
}
