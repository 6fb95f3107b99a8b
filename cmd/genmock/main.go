// Command genmock generates deterministic mock report batches for local runs
// and fixture files. Reports are scattered around a few disaster hotspots with
// some background noise. The batches are fed through the real incident engine
// so the printed stats match what the pipeline will produce.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock/report_batches.json \
//	  -batches 20 -reports 25 \
//	  -brokers localhost:9092 -topic disaster-report-batches
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
	"github.com/couchcryptid/disaster-incident-service/internal/observability"
	"github.com/couchcryptid/disaster-incident-service/internal/pipeline"
	"github.com/couchcryptid/disaster-incident-service/internal/scoring"
)

var baseDate = time.Date(2024, time.April, 26, 15, 0, 0, 0, time.UTC)

// batchNamespace seeds deterministic batch ids.
var batchNamespace = uuid.MustParse("6f1c9a7e-2b0d-4e7a-9c55-3d8f0e2a4b11")

type hotspot struct {
	name         string
	center       domain.Coordinate
	disasterType string
	scatterM     float64
	descriptions []string
}

var hotspots = []hotspot{
	{
		name: "mission-quake", center: domain.Coordinate{Lat: 37.7599, Lon: -122.4148},
		disasterType: "earthquake", scatterM: 30,
		descriptions: []string{
			"Major earthquake hits downtown area, walls cracked",
			"Strong earthquake shaking, building collapse on the corner",
			"Earthquake damage in the commercial district. People are trapped.",
		},
	},
	{
		name: "river-flood", center: domain.Coordinate{Lat: 29.7604, Lon: -95.3698},
		disasterType: "flood", scatterM: 40,
		descriptions: []string{
			"Flash floods reported in residential zones near the bayou",
			"Flood water rising fast on our street. Cars are floating.",
			"Residential flooding, need boats to evacuate",
		},
	},
	{
		name: "canyon-fire", center: domain.Coordinate{Lat: 34.1341, Lon: -118.3215},
		disasterType: "wildfire", scatterM: 45,
		descriptions: []string{
			"Wildfire spreading through forest areas above the canyon",
			"Smoke and flames moving toward the houses. Evacuate now.",
			"Forest fire spreading quickly with strong wind",
		},
	},
}

var noise = []string{
	"",
	"lunch was great today",
	"is anyone else seeing this?",
	"test test",
	"my cat is sleeping on the sofa",
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the JSON batch fixture")
	batches := flag.Int("batches", 20, "number of batches")
	reports := flag.Int("reports", 25, "reports per batch")
	noiseRatio := flag.Float64("noise", 0.15, "fraction of reports scattered away from hotspots")
	seed := flag.Uint64("seed", 42, "random seed")
	brokers := flag.String("brokers", "", "comma-separated Kafka brokers to publish to (optional)")
	topic := flag.String("topic", "disaster-report-batches", "Kafka topic to publish to")
	flag.Parse()

	if *out == "" && *brokers == "" {
		flag.Usage()
		return fmt.Errorf("nothing to do: set -out and/or -brokers")
	}
	if *reports < 1 || *reports > domain.DefaultMaxBatchReports {
		return fmt.Errorf("-reports must be 1-%d", domain.DefaultMaxBatchReports)
	}

	// Fixed clock so batches without timestamps parse reproducibly.
	clk := clockwork.NewFakeClockAt(baseDate)
	domain.SetClock(clk)
	defer domain.SetClock(nil)

	gen := generator{rng: rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)), clock: clk, noise: *noiseRatio}
	payloads := make([]json.RawMessage, 0, *batches)
	for i := range *batches {
		payload, err := json.Marshal(gen.batch(i, *reports))
		if err != nil {
			return fmt.Errorf("marshal batch %d: %w", i, err)
		}
		payloads = append(payloads, payload)
		clk.Advance(10 * time.Minute)
	}
	log.Printf("generated %d batches of %d reports", len(payloads), *reports)

	if *out != "" {
		if err := writeJSON(*out, payloads); err != nil {
			return fmt.Errorf("writing fixture: %w", err)
		}
		log.Printf("wrote fixture: %s", *out)
	}

	if *brokers != "" {
		if err := publish(strings.Split(*brokers, ","), *topic, payloads); err != nil {
			return fmt.Errorf("publishing to kafka: %w", err)
		}
		log.Printf("published %d batches to %s", len(payloads), *topic)
	}

	return printStats(payloads)
}

type wireReport struct {
	ID           string    `json:"id"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Title        string    `json:"title,omitempty"`
	Description  string    `json:"description,omitempty"`
	DisasterType string    `json:"disaster_type,omitempty"`
	Needs        []string  `json:"needs,omitempty"`
	Priority     int       `json:"priority,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

type wireBatch struct {
	BatchID string       `json:"batch_id"`
	Reports []wireReport `json:"reports"`
}

type generator struct {
	rng   *rand.Rand
	clock clockwork.Clock
	noise float64
}

func (g generator) batch(n, size int) wireBatch {
	b := wireBatch{
		BatchID: uuid.NewSHA1(batchNamespace, []byte(fmt.Sprintf("batch-%d", n))).String(),
		Reports: make([]wireReport, 0, size),
	}
	for i := range size {
		id := fmt.Sprintf("r-%03d-%03d", n, i)
		at := g.clock.Now().Add(-time.Duration(g.rng.IntN(600)) * time.Second)
		if g.rng.Float64() < g.noise {
			b.Reports = append(b.Reports, g.noiseReport(id, at))
			continue
		}
		b.Reports = append(b.Reports, g.hotspotReport(id, at, hotspots[g.rng.IntN(len(hotspots))]))
	}
	return b
}

func (g generator) hotspotReport(id string, at time.Time, h hotspot) wireReport {
	c := g.offset(h.center, h.scatterM)
	r := wireReport{
		ID:           id,
		Latitude:     c.Lat,
		Longitude:    c.Lon,
		Title:        h.name,
		Description:  h.descriptions[g.rng.IntN(len(h.descriptions))],
		DisasterType: h.disasterType,
		Priority:     1 + g.rng.IntN(5),
		SubmittedAt:  at,
	}
	if g.rng.IntN(3) == 0 {
		r.Needs = []string{"medical", "shelter"}
	}
	return r
}

// noiseReport lands a few kilometres from a random hotspot.
func (g generator) noiseReport(id string, at time.Time) wireReport {
	c := g.offset(hotspots[g.rng.IntN(len(hotspots))].center, 5000)
	return wireReport{
		ID:          id,
		Latitude:    c.Lat,
		Longitude:   c.Lon,
		Description: noise[g.rng.IntN(len(noise))],
		SubmittedAt: at,
	}
}

// offset returns a point uniformly distributed within radiusM of c.
func (g generator) offset(c domain.Coordinate, radiusM float64) domain.Coordinate {
	d := radiusM * math.Sqrt(g.rng.Float64())
	bearing := 2 * math.Pi * g.rng.Float64()
	dLat := d * math.Cos(bearing) / domain.MetersPerDegreeLat
	dLon := d * math.Sin(bearing) / (domain.MetersPerDegreeLat * math.Cos(c.Lat*math.Pi/180))
	return domain.Coordinate{Lat: c.Lat + dLat, Lon: domain.NormalizeLon(c.Lon + dLon)}
}

func publish(brokers []string, topic string, payloads []json.RawMessage) error {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		AllowAutoTopicCreation: true,
	}
	defer w.Close()

	msgs := make([]kafkago.Message, len(payloads))
	for i, p := range payloads {
		msgs[i] = kafkago.Message{Key: []byte(fmt.Sprintf("batch-%d", i)), Value: p, Time: baseDate}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return w.WriteMessages(ctx, msgs...)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// printStats replays the batches through the engine with the default settings.
func printStats(payloads []json.RawMessage) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	engine := pipeline.NewEngine(pipeline.DefaultEngineConfig(),
		scoring.New(scoring.NewDefaultCorpus(), logger, metrics), logger, metrics)

	var (
		state   domain.State
		total   int
		changes int
	)
	for i, p := range payloads {
		batch, err := domain.ParseBatch(domain.RawBatch{Value: p, Timestamp: baseDate}, domain.DefaultMaxBatchReports)
		if err != nil {
			return fmt.Errorf("parse batch %d: %w", i, err)
		}
		res, err := engine.ProcessBatch(context.Background(), batch.Reports, state)
		if err != nil {
			return fmt.Errorf("process batch %d: %w", i, err)
		}
		total += len(batch.Reports)
		changes += len(res.Changed)
		state = res.State
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Reports: %d\n", total)
	fmt.Printf("Incidents: %d (changes emitted: %d)\n", len(state.Incidents), changes)

	incidents := append([]domain.Incident(nil), state.Incidents...)
	sort.Slice(incidents, func(i, j int) bool { return incidents[i].ReportCount > incidents[j].ReportCount })

	var verified int
	for _, inc := range incidents {
		if inc.Status == domain.StatusVerified {
			verified++
		}
	}
	fmt.Printf("Verified: %d\n", verified)

	fmt.Println("\nLargest incidents:")
	for _, inc := range incidents[:min(5, len(incidents))] {
		fmt.Printf("  %s: %d reports, confidence %.2f, %s, types=%v\n",
			inc.ID, inc.ReportCount, inc.Confidence, inc.Status, inc.DisasterTypes)
		fmt.Printf("    centroid %.5f,%.5f  summary %q\n", inc.Centroid.Lat, inc.Centroid.Lon, inc.Summary)
	}
	return nil
}
