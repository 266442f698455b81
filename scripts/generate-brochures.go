//go:build ignore

// Package main generates a synthetic brochure tree for load-testing ingest,
// index builds and retrieval.
// Usage: go run scripts/generate-brochures.go -vehicles 200 -pages 6 -output testdata/brochures
package main

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var (
	numVehicles = flag.Int("vehicles", 200, "Number of make/model/year brochures to generate")
	numPages    = flag.Int("pages", 6, "Pages per brochure")
	outputDir   = flag.String("output", "testdata/brochures", "Output directory")
	seed        = flag.Uint64("seed", 42, "Random seed for reproducibility")
)

var lineup = map[string][]string{
	"toyota":     {"land-cruiser", "prado", "hilux", "camry", "rav4", "fortuner"},
	"nissan":     {"patrol", "x-trail", "altima", "navara", "kicks"},
	"lexus":      {"lx", "gx", "es", "rx"},
	"mitsubishi": {"pajero", "outlander", "l200"},
	"hyundai":    {"tucson", "santa-fe", "palisade", "elantra"},
	"kia":        {"sportage", "sorento", "telluride"},
}

// Page templates take the display model name.
var pages = []string{
	`The %[1]s is powered by a %[2]s engine paired with a %[3]s transmission. %[4]s
delivers confident traction, and a towing capacity of %[5]d kg makes light work
of boats and caravans.`,
	`Inside the %[1]s, %[6]s seats, a %[7]s inch touchscreen with Apple CarPlay and
Android Auto, and %[8]s create a calm, connected cabin for every passenger.`,
	`Safety comes standard on the %[1]s: adaptive cruise control, lane keeping
assist, blind spot monitoring and autonomous emergency braking watch the road
with you. %[9]s`,
	`Every %[1]s is backed by a %[10]d year warranty and scheduled servicing at
%[11]s km intervals. Genuine accessories include roof racks, side steps and an
all-weather floor mat set.`,
}

var (
	engines       = []string{"2.5 litre hybrid", "3.5 litre twin-turbo V6", "2.8 litre turbo-diesel", "5.6 litre V8", "2.0 litre turbocharged"}
	transmissions = []string{"ten-speed automatic", "eight-speed automatic", "CVT", "six-speed manual"}
	drivetrains   = []string{"Full-time four-wheel drive", "Intelligent all-wheel drive", "Front-wheel drive with traction control"}
	trims         = []string{"leather", "heated and ventilated leather", "premium fabric", "quilted nappa"}
	screens       = []string{"8", "9", "12.3", "14"}
	extras        = []string{"a panoramic sunroof", "a 14-speaker JBL audio system", "tri-zone climate control", "a wireless charging pad"}
	assists       = []string{"A 360-degree camera helps in tight car parks.", "Rear cross-traffic alert adds reassurance when reversing.", "Driver attention alert encourages breaks on long drives."}
	intervals     = []string{"10,000", "15,000"}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewPCG(*seed, *seed))

	makes := make([]string, 0, len(lineup))
	for m := range lineup {
		makes = append(makes, m)
	}
	// Map order is random; sort for reproducible output.
	slices.Sort(makes)

	written := 0
	for i := 0; i < *numVehicles; i++ {
		mk := makes[i%len(makes)]
		models := lineup[mk]
		model := models[(i/len(makes))%len(models)]
		year := 2018 + (i/(len(makes)*len(models)))%8

		if err := writeBrochure(rng, mk, model, year); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		written++
	}

	fmt.Printf("Generated %d brochures (%d pages each) in %s\n", written, *numPages, *outputDir)
}

func pick(rng *rand.Rand, pool []string) string {
	return pool[rng.IntN(len(pool))]
}

func displayName(slug string) string {
	parts := strings.Split(slug, "-")
	for i, p := range parts {
		if len(p) <= 2 {
			parts[i] = strings.ToUpper(p)
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func writeBrochure(rng *rand.Rand, mk, model string, year int) error {
	dir := filepath.Join(*outputDir, mk, model, fmt.Sprint(year))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	name := displayName(model)
	out := make([]string, 0, *numPages)
	for p := 0; p < *numPages; p++ {
		out = append(out, fmt.Sprintf(pages[p%len(pages)],
			name,
			pick(rng, engines),
			pick(rng, transmissions),
			pick(rng, drivetrains),
			1500+rng.IntN(8)*250,
			pick(rng, trims),
			pick(rng, screens),
			pick(rng, extras),
			pick(rng, assists),
			3+rng.IntN(5),
			pick(rng, intervals),
		))
	}

	path := filepath.Join(dir, model+"-brochure.txt")
	// Form feeds separate pages the way pdftotext does.
	return os.WriteFile(path, []byte(strings.Join(out, "\n\f")), 0o644)
}
