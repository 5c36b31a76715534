package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"contact-insights-go/internal/config"
	"contact-insights-go/internal/contacts"
	"contact-insights-go/internal/logger"
	"contact-insights-go/internal/persons"
	"contact-insights-go/internal/telemetry"
	"contact-insights-go/internal/types"
)

const (
	smallPersons = `[
  {"ID": "1", "Name": "Иван", "Surname": "Петров", "Age": "20", "City": "Тула"},
  {"ID": "2", "Name": "Пoлина", "Surname": "Петров", "Age": "30"},
  {"ID": "3", "Name": "Анна", "Surname": "Сидорова", "Age": "25"}
]`
	bigPersons = `[
  {"ID": "10", "Name": "Борис", "Surname": "Петров", "Age": "40"}
]`
	smallContacts = `[
  {"Member1_ID": "1", "Member2_ID": "2", "From": "01.01.2021 10:00:00", "To": "01.01.2021 10:10:00"},
  {"Member1_ID": "1", "Member2_ID": "3", "From": "01.01.2021 11:00:00", "To": "01.01.2021 11:03:00"}
]`
)

func writeFixture(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0o644))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	src := t.TempDir()
	writeFixture(t, src, "small_data_persons", smallPersons)
	writeFixture(t, src, "big_data_persons", bigPersons)
	writeFixture(t, src, "small_data_contracts", smallContacts)

	return &config.Config{
		SourceDir: src,
		ResultDir: filepath.Join(t.TempDir(), "result"),
		Datasets: []config.Dataset{
			{Name: "small_data", Persons: "small_data_persons", Contacts: "small_data_contracts", SortBy: types.FieldSurname},
			{Name: "big_data", Persons: "big_data_persons", SortBy: types.FieldName},
		},
		LostSurnames:      config.LostSurnames{Reference: "big_data", Candidates: "small_data"},
		Mistype:           config.Mistype{Substitutions: []string{"a=а", "e=е", "o=о"}, Policy: string(persons.PolicyStrict)},
		NamesakeBandYears: 10,
		AgeGroupMode:      string(contacts.ModeIncremental),
	}
}

func readLines(t *testing.T, dir, name string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var v map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &v), line)
		out = append(out, v)
	}
	return out
}

type stubNormalizer struct {
	calls int
	err   error
}

func (s *stubNormalizer) Normalize(_ context.Context, list []types.Person) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	for i := range list {
		list[i].Name = strings.ToUpper(list[i].Name)
	}
	return nil
}

func newRunner(t *testing.T, cfg *config.Config, n Normalizer) *Runner {
	t.Helper()
	r, err := New(cfg, n, logger.NewWithOutput(io.Discard), telemetry.NewMetrics("test"))
	require.NoError(t, err)
	return r
}

func TestRunWritesAllReports(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	m, err := newRunner(t, cfg, nil).Run(context.Background())
	require.NoError(t, err)
	out := cfg.ResultDir

	mistyped := readLines(t, out, "1.7 small_data_persons")
	require.Len(t, mistyped, 1)
	assert.Equal(t, "2", mistyped[0]["ID"])
	assert.Equal(t, "Полина", mistyped[0]["Name"])
	assert.Empty(t, readLines(t, out, "1.7 big_data_persons"))

	data, err := os.ReadFile(filepath.Join(out, "1.6 small_data_persons"))
	require.NoError(t, err)
	var pair []map[string]any
	require.NoError(t, json.Unmarshal(data, &pair))
	require.Len(t, pair, 2)
	assert.Equal(t, "2", pair[0]["ID"])
	assert.Equal(t, "1", pair[1]["ID"])

	lost := readLines(t, out, "1.5 lost_surnames")
	require.Len(t, lost, 1)
	assert.Equal(t, "Сидорова", lost[0]["Surname"])

	byCount := readLines(t, out, "2.4 small_data_contracts")
	require.Len(t, byCount, 3)
	assert.Equal(t, []any{"1", "2", "3"}, []any{byCount[0]["ID"], byCount[1]["ID"], byCount[2]["ID"]})
	assert.Equal(t, 1.0, byCount[0]["Contacts_Number"])
	assert.Equal(t, 0.0, byCount[2]["Contacts_Number"])
	assert.Equal(t, "Тула", byCount[0]["City"])

	byDuration := readLines(t, out, "2.5 small_data_contracts")
	require.Len(t, byDuration, 3)
	assert.Equal(t, 780.0, byDuration[0]["Total_contacts_duration_in_seconds"])
	assert.Equal(t, 600.0, byDuration[1]["Total_contacts_duration_in_seconds"])
	assert.Equal(t, 180.0, byDuration[2]["Total_contacts_duration_in_seconds"])

	groups := readLines(t, out, "2.6 small_data_contracts")
	require.Len(t, groups, 1)
	assert.Equal(t, map[string]any{"Age_group": 20.0, "Avg_contacts_per_age_group": 1.0}, groups[0])

	f, err := excelize.OpenFile(filepath.Join(out, "1.4 resulting_data.xlsx"))
	require.NoError(t, err)
	defer f.Close()
	assert.ElementsMatch(t, []string{"small_data", "big_data"}, f.GetSheetList())
	rows, err := f.GetRows("small_data")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Полина", rows[2][1])

	assert.False(t, m.Normalized)
	assert.Len(t, m.Reports, 10)
	require.Len(t, m.Datasets, 2)
	assert.Equal(t, 1, m.Datasets[0].MistypedNames)
	assert.Equal(t, 1, m.Datasets[0].Namesakes)
	assert.Equal(t, 2, m.Datasets[0].Contacts)
	assert.Equal(t, 1, m.Datasets[0].QualifyingContacts)

	stored, err := ReadManifest(filepath.Join(out, ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, m.RunID, stored.RunID)
	assert.Equal(t, m.Datasets, stored.Datasets)
	assert.Len(t, stored.Reports, 10)
}

func TestRunNormalizesBeforeSorting(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	norm := &stubNormalizer{}
	m, err := newRunner(t, cfg, norm).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, norm.calls)
	assert.True(t, m.Normalized)

	f, err := excelize.OpenFile(filepath.Join(cfg.ResultDir, "1.4 resulting_data.xlsx"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("big_data")
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "БОРИС", "Петров", "40"}, rows[1])
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	normErr := errors.New("api down")

	tests := []struct {
		name   string
		mutate func(t *testing.T, cfg *config.Config)
		norm   Normalizer
		want   error
	}{
		{
			name: "untranslatable letter",
			mutate: func(t *testing.T, cfg *config.Config) {
				writeFixture(t, cfg.SourceDir, "big_data_persons", `[{"ID": "10", "Name": "Алexандр", "Surname": "Петров", "Age": "40"}]`)
			},
			want: types.ErrUntranslatableCharacter,
		},
		{
			name: "contact with unknown member",
			mutate: func(t *testing.T, cfg *config.Config) {
				writeFixture(t, cfg.SourceDir, "small_data_contracts",
					`[{"Member1_ID": "1", "Member2_ID": "99", "From": "01.01.2021 10:00:00", "To": "01.01.2021 10:10:00"}]`)
			},
			want: types.ErrUnmappedKey,
		},
		{
			name: "malformed age",
			mutate: func(t *testing.T, cfg *config.Config) {
				writeFixture(t, cfg.SourceDir, "big_data_persons", `[{"ID": "10", "Name": "Борис", "Surname": "Петров", "Age": "forty"}]`)
			},
			want: types.ErrMalformedInput,
		},
		{
			name: "missing persons file",
			mutate: func(t *testing.T, cfg *config.Config) {
				require.NoError(t, os.Remove(filepath.Join(cfg.SourceDir, "big_data_persons.json")))
			},
			want: os.ErrNotExist,
		},
		{
			name:   "normalizer failure",
			mutate: func(*testing.T, *config.Config) {},
			norm:   &stubNormalizer{err: normErr},
			want:   normErr,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			tc.mutate(t, cfg)

			_, err := newRunner(t, cfg, tc.norm).Run(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRunHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newRunner(t, testConfig(t), nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsBadSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr string
	}{
		{name: "unknown mode", mutate: func(cfg *config.Config) { cfg.AgeGroupMode = "sideways" }, wantErr: "unknown age group mode"},
		{name: "empty substitutions", mutate: func(cfg *config.Config) { cfg.Mistype.Substitutions = nil }, wantErr: "substitutions must not be empty"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			tc.mutate(cfg)
			_, err := New(cfg, nil, logger.NewWithOutput(io.Discard), nil)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}
