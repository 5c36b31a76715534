package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"contact-insights-go/internal/config"
	"contact-insights-go/internal/contacts"
	"contact-insights-go/internal/dataset"
	"contact-insights-go/internal/logger"
	"contact-insights-go/internal/output"
	"contact-insights-go/internal/persons"
	"contact-insights-go/internal/report"
	"contact-insights-go/internal/telemetry"
	"contact-insights-go/internal/types"
)

const ManifestFile = "manifest.toml"

// Normalizer rewrites Surname and Name of persons in place.
type Normalizer interface {
	Normalize(ctx context.Context, persons []types.Person) error
}

// Report is one file written by a run.
type Report struct {
	ID      string `toml:"id"`
	Path    string `toml:"path"`
	Records int    `toml:"records"`
}

// Manifest describes a finished run and is stored next to the reports.
type Manifest struct {
	RunID      string            `toml:"run_id"`
	StartedAt  time.Time         `toml:"started_at"`
	FinishedAt time.Time         `toml:"finished_at"`
	DurationMs int64             `toml:"duration_ms"`
	Normalized bool              `toml:"normalized"`
	Reports    []Report          `toml:"reports"`
	Datasets   []dataset.Summary `toml:"datasets"`
}

func (m *Manifest) add(id, path string, records int) {
	m.Reports = append(m.Reports, Report{ID: id, Path: path, Records: records})
}

// Runner produces every report for the configured datasets.
type Runner struct {
	cfg        *config.Config
	source     dataset.Source
	writer     *output.Writer
	corrector  *persons.Corrector
	mode       contacts.AgeGroupMode
	normalizer Normalizer
	log        *logger.Logger
	metrics    *telemetry.Metrics
}

// New validates cfg and prepares a Runner. A nil normalizer skips name
// normalization.
func New(cfg *config.Config, normalizer Normalizer, log *logger.Logger, metrics *telemetry.Metrics) (*Runner, error) {
	table, err := cfg.Mistype.Table()
	if err != nil {
		return nil, fmt.Errorf("mistype table: %w", err)
	}
	policy, err := persons.ParsePolicy(cfg.Mistype.Policy)
	if err != nil {
		return nil, err
	}
	mode, err := contacts.ParseAgeGroupMode(cfg.AgeGroupMode)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:        cfg,
		source:     dataset.Source{Dir: cfg.SourceDir, Encoding: cfg.SourceEncoding},
		writer:     output.NewWriter(cfg.ResultDir, metrics),
		corrector:  persons.NewCorrector(table, policy),
		mode:       mode,
		normalizer: normalizer,
		log:        log.WithComponent("pipeline"),
		metrics:    metrics,
	}, nil
}

// Run executes the whole report sequence and writes the manifest.
func (r *Runner) Run(ctx context.Context) (*Manifest, error) {
	log, runID := r.log.WithRun()
	start := time.Now()
	m := &Manifest{RunID: runID, StartedAt: start.UTC(), Normalized: r.normalizer != nil}
	log.WithField("datasets", len(r.cfg.Datasets)).Info("run started")

	byName := make(map[string][]types.Person, len(r.cfg.Datasets))
	summaries := make([]dataset.Summary, len(r.cfg.Datasets))

	// 1) persons: correct, normalize, sort, pair
	for i, ds := range r.cfg.Datasets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		list, summary, err := r.processPersons(ctx, log, ds, m)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", ds.Name, err)
		}
		byName[ds.Name] = list
		summaries[i] = summary
	}

	// 2) surnames of the candidates unknown to the reference
	if ls := r.cfg.LostSurnames; ls.Reference != "" && ls.Candidates != "" {
		t0 := time.Now()
		lost := persons.SurnamesMissingFrom(byName[ls.Reference], byName[ls.Candidates])
		path, err := output.WriteLines(r.writer, "1.5 lost_surnames", lost, output.Overwrite)
		if err != nil {
			return nil, err
		}
		m.add("1.5", path, len(lost))
		r.metrics.ObserveStage("lost_surnames", t0)
		log.WithField("lost", len(lost)).Info("lost surnames written")
	}

	// 3) contacts joined back onto persons
	for i, ds := range r.cfg.Datasets {
		if ds.Contacts == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.processContacts(log, ds, byName[ds.Name], &summaries[i], m); err != nil {
			return nil, fmt.Errorf("dataset %s: %w", ds.Name, err)
		}
	}

	for _, s := range summaries {
		log.WithField("summary", s).Info("dataset processed")
	}
	m.Datasets = summaries
	m.FinishedAt = time.Now().UTC()
	m.DurationMs = time.Since(start).Milliseconds()

	if err := r.writeManifest(m); err != nil {
		return nil, err
	}
	if err := r.metrics.WriteTextfile(r.cfg.MetricsTextfile); err != nil {
		log.WithError(err).Warn("failed to write metrics textfile")
	}
	log.WithField("duration_ms", m.DurationMs).WithField("reports", len(m.Reports)).Info("run finished")
	return m, nil
}

func (r *Runner) processPersons(ctx context.Context, runLog *logger.Logger, ds config.Dataset, m *Manifest) ([]types.Person, dataset.Summary, error) {
	log := runLog.WithField("dataset", ds.Name)
	t0 := time.Now()

	list, err := r.source.LoadPersons(ds.Persons)
	if err != nil {
		return nil, dataset.Summary{}, err
	}
	r.metrics.CountRecords("persons", ds.Name, len(list))
	summary := dataset.SummarizePersons(ds.Name, list)

	mistyped, err := r.corrector.Correct(list)
	if err != nil {
		return nil, summary, err
	}
	summary.MistypedNames = len(mistyped)
	path, err := output.WriteLines(r.writer, "1.7 "+ds.Persons, mistyped, output.Overwrite)
	if err != nil {
		return nil, summary, err
	}
	m.add("1.7", path, len(mistyped))

	if r.normalizer != nil {
		n0 := time.Now()
		if err := r.normalizer.Normalize(ctx, list); err != nil {
			return nil, summary, fmt.Errorf("normalize names: %w", err)
		}
		r.metrics.ObserveStage("normalize", n0)
	}
	if ds.SortBy != "" {
		if err := persons.SortBy(list, ds.SortBy); err != nil {
			return nil, summary, err
		}
	}
	path, err = r.writer.WriteSheet("1.4 resulting_data", ds.Name, output.PersonRows(list), output.Append)
	if err != nil {
		return nil, summary, err
	}
	m.add("1.4", path, len(list))
	if r.cfg.Output.VCard {
		path, err := r.writer.WriteVCards(ds.Persons, list)
		if err != nil {
			return nil, summary, err
		}
		m.add("vcard", path, len(list))
	}

	pairs := persons.FindAgeBandedNamesakes(list, r.cfg.NamesakeBandYears)
	summary.Namesakes = len(pairs)
	path, err = output.WriteLines(r.writer, "1.6 "+ds.Persons, pairs, output.Overwrite)
	if err != nil {
		return nil, summary, err
	}
	m.add("1.6", path, len(pairs))

	r.metrics.ObserveStage("persons", t0)
	log.WithField("persons", len(list)).
		WithField("mistyped", len(mistyped)).
		WithField("namesakes", len(pairs)).
		Info("persons processed")
	return list, summary, nil
}

func (r *Runner) processContacts(runLog *logger.Logger, ds config.Dataset, people []types.Person, summary *dataset.Summary, m *Manifest) error {
	log := runLog.WithField("dataset", ds.Name)
	t0 := time.Now()

	list, err := r.source.LoadContacts(ds.Contacts)
	if err != nil {
		return err
	}
	r.metrics.CountRecords("contacts", ds.Name, len(list))
	summary.AddContacts(list)

	counts := report.FillMissing(people, contacts.UniqueContactsPerMember(list), 0)
	byCount, err := report.JoinAndSortDescending(people, counts, report.FieldContactsNumber)
	if err != nil {
		return fmt.Errorf("join contact counts: %w", err)
	}
	path, err := output.WriteLines(r.writer, "2.4 "+ds.Contacts, byCount, output.Overwrite)
	if err != nil {
		return err
	}
	m.add("2.4", path, len(byCount))

	durations := report.FillMissing(people, contacts.TotalDurationPerMember(list), 0.0)
	byDuration, err := report.JoinAndSortDescending(people, durations, report.FieldContactDuration)
	if err != nil {
		return fmt.Errorf("join contact durations: %w", err)
	}
	path, err = output.WriteLines(r.writer, "2.5 "+ds.Contacts, byDuration, output.Overwrite)
	if err != nil {
		return err
	}
	m.add("2.5", path, len(byDuration))

	groups, err := contacts.MostTalkativeAgeGroup(list, persons.IDToAge(people), r.mode)
	if err != nil {
		return fmt.Errorf("age groups: %w", err)
	}
	path, err = output.WriteLines(r.writer, "2.6 "+ds.Contacts, groups, output.Overwrite)
	if err != nil {
		return err
	}
	m.add("2.6", path, len(groups))

	r.metrics.ObserveStage("contacts", t0)
	log.WithField("contacts", len(list)).
		WithField("qualifying", summary.QualifyingContacts).
		Info("contacts processed")
	return nil
}

func (r *Runner) writeManifest(m *Manifest) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(r.cfg.ResultDir, 0o755); err != nil {
		return fmt.Errorf("create result dir: %w", err)
	}
	path := filepath.Join(r.cfg.ResultDir, ManifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	r.metrics.CountReport("manifest")
	return nil
}

// ReadManifest loads a manifest written by Run.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}
