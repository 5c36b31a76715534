package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"contact-insights-go/internal/credentials"
	"contact-insights-go/internal/pipeline"
)

func TestVersionPrintsBuildVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", stdout)
}

func TestRunWritesReportsAndManifest(t *testing.T) {
	src := t.TempDir()
	writeDatasetFixtures(t, src)
	out := filepath.Join(t.TempDir(), "result")

	stdout, _, err := executeCLI(t, "run", "--source-dir", src, "--result-dir", out, "--skip-normalize")
	require.NoError(t, err)
	assert.Contains(t, stdout, "reports written to "+out)

	m, err := pipeline.ReadManifest(filepath.Join(out, pipeline.ManifestFile))
	require.NoError(t, err)
	assert.False(t, m.Normalized)
	assert.NotEmpty(t, m.RunID)
	require.Len(t, m.Datasets, 2)
	assert.Equal(t, "small_data", m.Datasets[0].Dataset)
	assert.Equal(t, "big_data", m.Datasets[1].Dataset)

	for _, name := range []string{
		"1.7 small_data_persons",
		"1.6 big_data_persons",
		"1.5 lost_surnames",
		"1.4 resulting_data.xlsx",
		"2.4 small_data_contracts",
		"2.5 big_data_contracts",
		"2.6 big_data_contracts",
	} {
		assert.FileExists(t, filepath.Join(out, name))
	}
}

func TestRunReadsConfigFile(t *testing.T) {
	src := t.TempDir()
	writeDatasetFixtures(t, src)
	out := filepath.Join(t.TempDir(), "result")

	cfgPath := filepath.Join(t.TempDir(), "report.toml")
	cfg := `source_dir = "` + filepath.ToSlash(src) + `"
result_dir = "` + filepath.ToSlash(out) + `"
age_group_mode = "global"

[normalizer]
enabled = false

[output]
vcard = true
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	_, _, err := executeCLI(t, "run", "--config", cfgPath)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "small_data_persons.vcf"))
	assert.FileExists(t, filepath.Join(out, "big_data_persons.vcf"))
}

func TestRunFailsOnMissingSource(t *testing.T) {
	_, _, err := executeCLI(t, "run", "--source-dir", t.TempDir(), "--result-dir", t.TempDir(), "--skip-normalize")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCredentialsSetStoresInKeyring(t *testing.T) {
	keyring.MockInit()

	stdout, _, err := executeCLI(t, "credentials", "set", "--api-key", "key-1", "--secret", "secret-1", "--user", "tester")
	require.NoError(t, err)
	assert.Contains(t, stdout, `credentials for "tester" stored`)

	got, err := credentials.Keyring{Service: "contact-insights-go", User: "tester"}.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, credentials.Credentials{APIKey: "key-1", Secret: "secret-1"}, got)
}

func TestCredentialsSetRequiresSecret(t *testing.T) {
	keyring.MockInit()

	_, _, err := executeCLI(t, "credentials", "set", "--api-key", "key-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "secret" not set`)
}

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeDatasetFixtures(t *testing.T, dir string) {
	t.Helper()

	files := map[string]string{
		"small_data_persons.json": `[
  {"ID": "1", "Name": "Иван", "Surname": "Петров", "Age": "20"},
  {"ID": "2", "Name": "Анна", "Surname": "Сидорова", "Age": "31"}
]`,
		"big_data_persons.json": `[
  {"ID": "1", "Name": "Олег", "Surname": "Петров", "Age": "45"},
  {"ID": "2", "Name": "Мария", "Surname": "Петров", "Age": "35"}
]`,
		"small_data_contracts.json": `[
  {"Member1_ID": "1", "Member2_ID": "2", "From": "03.02.2021 09:00:00", "To": "03.02.2021 09:06:00"}
]`,
		"big_data_contracts.json": `[
  {"Member1_ID": "2", "Member2_ID": "1", "From": "03.02.2021 09:00:00", "To": "03.02.2021 09:01:00"}
]`,
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}
