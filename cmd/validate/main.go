// Command validate checks a report batch fixture produced by genmock and the
// incidents the engine forms from it: batch integrity, incident invariants,
// replay determinism and the published incident schema.
//
// Usage:
//
//	go run ./cmd/validate -batches data/mock/report_batches.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-incident-service/internal/domain"
	"github.com/couchcryptid/disaster-incident-service/internal/incident"
	"github.com/couchcryptid/disaster-incident-service/internal/observability"
	"github.com/couchcryptid/disaster-incident-service/internal/pipeline"
	"github.com/couchcryptid/disaster-incident-service/internal/scoring"
)

var baseDate = time.Date(2024, time.April, 26, 15, 0, 0, 0, time.UTC)

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
	batchesJSON := flag.String("batches", "", "path to the report batch fixture")
	flag.Parse()

	if *batchesJSON == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*batchesJSON); code != 0 {
		os.Exit(code)
	}
}

func run(path string) int {
	// Same fixed clock as genmock so fallback timestamps line up.
	domain.SetClock(clockwork.NewFakeClockAt(baseDate))
	defer domain.SetClock(nil)

	fmt.Println("=== Incident Fixture Validation ===")
	fmt.Println()

	payloads, err := loadJSON[json.RawMessage](path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load batch fixture: %v\n", err)
		return 1
	}

	batchPhase, batches := validateBatches(payloads)
	engine := newEngine()
	cfg := pipeline.DefaultEngineConfig()

	final, err := replay(engine, batches, domain.State{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: replay batches: %v\n", err)
		return 1
	}

	phases := []*phase{
		batchPhase,
		validateIncidents(final, batches, cfg),
		validateReplay(engine, batches, final),
		validateSchema(final),
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
	fmt.Printf("Batches: %d, reports: %d, incidents: %d\n", len(batches), countReports(batches), len(final.Incidents))

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

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func newEngine() *pipeline.Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	return pipeline.NewEngine(pipeline.DefaultEngineConfig(),
		scoring.New(scoring.NewDefaultCorpus(), logger, metrics), logger, metrics)
}

func replay(engine *pipeline.Engine, batches []domain.Batch, state domain.State) (domain.State, error) {
	for _, b := range batches {
		res, err := engine.ProcessBatch(context.Background(), b.Reports, state)
		if err != nil {
			return domain.State{}, fmt.Errorf("batch %s: %w", b.ID, err)
		}
		state = res.State
	}
	return state, nil
}

func countReports(batches []domain.Batch) int {
	n := 0
	for _, b := range batches {
		n += len(b.Reports)
	}
	return n
}

// ── Phase 1: batch integrity ──

func validateBatches(payloads []json.RawMessage) (*phase, []domain.Batch) {
	p := &phase{name: "Batch integrity"}
	batches := make([]domain.Batch, 0, len(payloads))
	seenBatch := map[string]int{}
	seenReport := map[string]string{}

	for i, payload := range payloads {
		b, err := domain.ParseBatch(domain.RawBatch{Value: payload, Timestamp: baseDate}, domain.DefaultMaxBatchReports)
		if err != nil {
			p.errorf("batch %d: %v", i, err)
			continue
		}
		if prev, ok := seenBatch[b.ID]; ok {
			p.errorf("batch %d: id %s already used by batch %d", i, b.ID, prev)
		}
		seenBatch[b.ID] = i

		for id, rerr := range b.Rejected {
			p.errorf("batch %s: report %s rejected: %v", b.ID, id, rerr)
		}
		for _, r := range b.Reports {
			if prev, ok := seenReport[r.ID]; ok {
				p.errorf("report %s appears in batches %s and %s", r.ID, prev, b.ID)
			}
			seenReport[r.ID] = b.ID
			if !domain.ValidCoordinate(r.Latitude, r.Longitude) {
				p.errorf("report %s: invalid coordinate %g,%g", r.ID, r.Latitude, r.Longitude)
			}
			if r.SourceBatchID != b.ID {
				p.errorf("report %s: source_batch_id %q, want %q", r.ID, r.SourceBatchID, b.ID)
			}
		}
		batches = append(batches, b)
	}
	return p, batches
}

// ── Phase 2: incident invariants ──

func validateIncidents(state domain.State, batches []domain.Batch, cfg pipeline.EngineConfig) *phase {
	p := &phase{name: "Incident invariants"}

	owner := map[string]string{}
	for i, inc := range state.Incidents {
		if want := incident.FormatID(i + 1); inc.ID != want {
			p.errorf("incident %d: id %s, want %s", i, inc.ID, want)
		}
		checkIncident(p, inc, cfg)
		for _, id := range inc.MemberReportIDs {
			if prev, ok := owner[id]; ok {
				p.errorf("report %s belongs to %s and %s", id, prev, inc.ID)
			}
			owner[id] = inc.ID
		}
	}
	if state.LastSequence != len(state.Incidents) {
		p.errorf("last_sequence %d, want %d", state.LastSequence, len(state.Incidents))
	}

	for _, b := range batches {
		for _, r := range b.Reports {
			if _, ok := owner[r.ID]; !ok && domain.ValidCoordinate(r.Latitude, r.Longitude) {
				p.errorf("report %s belongs to no incident", r.ID)
			}
		}
	}
	return p
}

func checkIncident(p *phase, inc domain.Incident, cfg pipeline.EngineConfig) {
	if inc.ReportCount != len(inc.MemberReportIDs) || inc.ReportCount == 0 {
		p.errorf("%s: report_count %d with %d members", inc.ID, inc.ReportCount, len(inc.MemberReportIDs))
	}
	if len(inc.MemberLocations) != len(inc.MemberReportIDs) {
		p.errorf("%s: %d member locations for %d members", inc.ID, len(inc.MemberLocations), len(inc.MemberReportIDs))
	}
	if inc.AuthenticReports > inc.ReportCount {
		p.errorf("%s: %d authentic reports out of %d", inc.ID, inc.AuthenticReports, inc.ReportCount)
	}
	if inc.Confidence < 0 || inc.Confidence > 1 || math.IsNaN(inc.Confidence) {
		p.errorf("%s: confidence %g out of range", inc.ID, inc.Confidence)
	}
	if inc.Status == domain.StatusVerified &&
		(inc.Confidence < cfg.SimilarityThreshold || inc.ReportCount < cfg.VerifyMinReports) {
		p.errorf("%s: verified with confidence %g and %d reports", inc.ID, inc.Confidence, inc.ReportCount)
	}
	if inc.CreatedAt.After(inc.LastUpdatedAt) {
		p.errorf("%s: created_at after last_updated_at", inc.ID)
	}
	b := inc.Bounds
	if inc.Centroid.Lat < b.MinLat || inc.Centroid.Lat > b.MaxLat {
		p.errorf("%s: centroid latitude %g outside bounds [%g, %g]", inc.ID, inc.Centroid.Lat, b.MinLat, b.MaxLat)
	}
}

// ── Phase 3: replay determinism ──

func validateReplay(engine *pipeline.Engine, batches []domain.Batch, final domain.State) *phase {
	p := &phase{name: "Replay determinism and idempotency"}

	again, err := replay(engine, batches, domain.State{})
	if err != nil {
		p.errorf("second replay: %v", err)
		return p
	}
	if diff := cmp.Diff(final, again); diff != "" {
		p.errorf("second replay differs (-first +second):\n%s", diff)
	}

	for _, b := range batches {
		res, err := engine.ProcessBatch(context.Background(), b.Reports, final)
		if err != nil {
			p.errorf("reprocess batch %s: %v", b.ID, err)
			continue
		}
		if len(res.Changed) > 0 {
			p.errorf("reprocessing batch %s changed %d incidents", b.ID, len(res.Changed))
		}
	}
	return p
}

// ── Phase 4: published schema ──

func validateSchema(state domain.State) *phase {
	p := &phase{name: "Incident schema"}
	required := []string{"id", "centroid", "member_report_ids", "report_count", "confidence", "status", "created_at", "last_updated_at", "bounds"}

	for _, inc := range state.Incidents {
		data, err := json.Marshal(inc)
		if err != nil {
			p.errorf("%s: marshal: %v", inc.ID, err)
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			p.errorf("%s: unmarshal: %v", inc.ID, err)
			continue
		}
		for _, f := range required {
			if _, ok := fields[f]; !ok {
				p.errorf("%s: missing field %q", inc.ID, f)
			}
		}
		switch inc.Status {
		case domain.StatusVerified, domain.StatusUnverified:
		default:
			p.errorf("%s: unknown status %q", inc.ID, inc.Status)
		}
	}
	return p
}
