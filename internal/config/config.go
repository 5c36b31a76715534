// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"contact-insights-go/internal/contacts"
	"contact-insights-go/internal/persons"
	"contact-insights-go/internal/types"
)

const EnvPrefix = "REPORT"

const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1251 = "windows-1251"

	CredentialsEnv     = "env"
	CredentialsKeyring = "keyring"

	DefaultKeyringService = "contact-insights-go"
)

// Dataset names one persons/contacts pair and how its persons are ordered in reports.
type Dataset struct {
	Name     string `mapstructure:"name"`
	Persons  string `mapstructure:"persons"`
	Contacts string `mapstructure:"contacts"`
	SortBy   string `mapstructure:"sort_by"`
}

type LostSurnames struct {
	Reference  string `mapstructure:"reference"`
	Candidates string `mapstructure:"candidates"`
}

// Mistype holds substitutions as "latin=cyrillic" strings; a list keeps the
// letter case that viper would fold in map keys.
type Mistype struct {
	Substitutions []string `mapstructure:"substitutions"`
	Policy        string   `mapstructure:"policy"`
}

func (m Mistype) Table() (map[rune]rune, error) {
	if len(m.Substitutions) == 0 {
		return nil, errors.New("substitutions must not be empty")
	}
	raw := make(map[string]string, len(m.Substitutions))
	for _, s := range m.Substitutions {
		from, to, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("substitution %q: want latin=cyrillic", s)
		}
		raw[from] = to
	}
	return persons.ParseTable(raw)
}

type Credentials struct {
	Source         string `mapstructure:"source"`
	APIKey         string `mapstructure:"api_key"`
	Secret         string `mapstructure:"secret"`
	KeyringService string `mapstructure:"keyring_service"`
	KeyringUser    string `mapstructure:"keyring_user"`
}

type Normalizer struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoint    string        `mapstructure:"endpoint"`
	ChunkSize   int           `mapstructure:"chunk_size"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxElapsed  time.Duration `mapstructure:"max_elapsed"`
	Credentials Credentials   `mapstructure:"credentials"`
}

type Output struct {
	VCard bool `mapstructure:"vcard"`
}

type Config struct {
	SourceDir         string       `mapstructure:"source_dir"`
	ResultDir         string       `mapstructure:"result_dir"`
	SourceEncoding    string       `mapstructure:"source_encoding"`
	Datasets          []Dataset    `mapstructure:"datasets"`
	LostSurnames      LostSurnames `mapstructure:"lost_surnames"`
	Mistype           Mistype      `mapstructure:"mistype"`
	NamesakeBandYears int          `mapstructure:"namesake_band_years"`
	AgeGroupMode      string       `mapstructure:"age_group_mode"`
	Normalizer        Normalizer   `mapstructure:"normalizer"`
	Output            Output       `mapstructure:"output"`
	MetricsTextfile   string       `mapstructure:"metrics_textfile"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source_dir", "data/SourceData_JSON")
	v.SetDefault("result_dir", "result")
	v.SetDefault("source_encoding", EncodingUTF8)
	v.SetDefault("datasets", []map[string]any{
		{"name": "small_data", "persons": "small_data_persons", "contacts": "small_data_contracts", "sort_by": types.FieldSurname},
		{"name": "big_data", "persons": "big_data_persons", "contacts": "big_data_contracts", "sort_by": types.FieldName},
	})
	v.SetDefault("lost_surnames.reference", "big_data")
	v.SetDefault("lost_surnames.candidates", "small_data")
	v.SetDefault("mistype.substitutions", []string{"a=а", "e=е", "o=о"})
	v.SetDefault("mistype.policy", string(persons.PolicyStrict))
	v.SetDefault("namesake_band_years", 10)
	v.SetDefault("age_group_mode", string(contacts.ModeIncremental))

	v.SetDefault("normalizer.enabled", true)
	v.SetDefault("normalizer.endpoint", "https://cleaner.dadata.ru/api/v1/clean/name")
	v.SetDefault("normalizer.chunk_size", 50)
	v.SetDefault("normalizer.concurrency", 4)
	v.SetDefault("normalizer.timeout", 15*time.Second)
	v.SetDefault("normalizer.max_elapsed", 30*time.Second)
	v.SetDefault("normalizer.credentials.source", CredentialsEnv)
	v.SetDefault("normalizer.credentials.api_key", "")
	v.SetDefault("normalizer.credentials.secret", "")
	v.SetDefault("normalizer.credentials.keyring_service", DefaultKeyringService)
	v.SetDefault("normalizer.credentials.keyring_user", "dadata")

	v.SetDefault("output.vcard", false)
	v.SetDefault("metrics_textfile", "")
}

// Load merges defaults, the optional config file at path, a .env file and
// REPORT_* environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // loads .env

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if len(c.Datasets) == 0 {
		errs = append(errs, errors.New("at least one dataset is required"))
	}
	names := map[string]struct{}{}
	for i, ds := range c.Datasets {
		if strings.TrimSpace(ds.Name) == "" {
			errs = append(errs, fmt.Errorf("datasets[%d]: name is required", i))
			continue
		}
		if _, dup := names[ds.Name]; dup {
			errs = append(errs, fmt.Errorf("datasets[%d]: duplicate name %q", i, ds.Name))
		}
		names[ds.Name] = struct{}{}
		if strings.TrimSpace(ds.Persons) == "" {
			errs = append(errs, fmt.Errorf("dataset %q: persons is required", ds.Name))
		}
		switch ds.SortBy {
		case "", types.FieldID, types.FieldName, types.FieldSurname, types.FieldAge:
		default:
			errs = append(errs, fmt.Errorf("dataset %q: unsupported sort_by %q", ds.Name, ds.SortBy))
		}
	}
	if ref, cand := c.LostSurnames.Reference, c.LostSurnames.Candidates; ref != "" || cand != "" {
		for _, n := range []string{ref, cand} {
			if _, ok := names[n]; !ok {
				errs = append(errs, fmt.Errorf("lost_surnames: unknown dataset %q", n))
			}
		}
	}

	if _, err := c.Mistype.Table(); err != nil {
		errs = append(errs, fmt.Errorf("mistype: %w", err))
	}
	if _, err := persons.ParsePolicy(c.Mistype.Policy); err != nil {
		errs = append(errs, err)
	}
	if c.NamesakeBandYears <= 0 {
		errs = append(errs, errors.New("namesake_band_years must be positive"))
	}
	if _, err := contacts.ParseAgeGroupMode(c.AgeGroupMode); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.SourceEncoding) {
	case "", EncodingUTF8, EncodingWindows1251:
	default:
		errs = append(errs, fmt.Errorf("unsupported source_encoding %q", c.SourceEncoding))
	}

	if c.Normalizer.Enabled {
		n := c.Normalizer
		if strings.TrimSpace(n.Endpoint) == "" {
			errs = append(errs, errors.New("normalizer.endpoint is required"))
		}
		if n.ChunkSize <= 0 {
			errs = append(errs, errors.New("normalizer.chunk_size must be positive"))
		}
		if n.Concurrency <= 0 {
			errs = append(errs, errors.New("normalizer.concurrency must be positive"))
		}
		switch n.Credentials.Source {
		case CredentialsEnv, CredentialsKeyring:
		default:
			errs = append(errs, fmt.Errorf("unsupported normalizer.credentials.source %q", n.Credentials.Source))
		}
	}

	return errors.Join(errs...)
}

// Dataset returns the dataset with the given name.
func (c *Config) Dataset(name string) (Dataset, bool) {
	for _, ds := range c.Datasets {
		if ds.Name == name {
			return ds, true
		}
	}
	return Dataset{}, false
}
