// Package config loads credentials from the environment and run settings
// from an optional YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Duration is a time.Duration that unmarshals from YAML as either a
// human-readable string ("90s", "2m") or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var secs int64
	if err := value.Decode(&secs); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Credentials holds the app registration used for client-credential token
// acquisition. Loaded from the environment (optionally via a .env file).
type Credentials struct {
	TenantID     string `validate:"required"`
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
}

// LoadCredentials reads AZURE_TENANT_ID, AZURE_CLIENT_ID and
// AZURE_CLIENT_SECRET, loading a .env file first when one exists.
func LoadCredentials() (Credentials, error) {
	// Missing .env is fine; real environments set the variables directly.
	_ = godotenv.Load()

	creds := Credentials{
		TenantID:     os.Getenv("AZURE_TENANT_ID"),
		ClientID:     os.Getenv("AZURE_CLIENT_ID"),
		ClientSecret: os.Getenv("AZURE_CLIENT_SECRET"),
	}
	if err := validate.Struct(creds); err != nil {
		return Credentials{}, fmt.Errorf("credentials: set AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_CLIENT_SECRET: %w", err)
	}
	return creds, nil
}

// RunConfig is the YAML-configurable shape of a provisioning run.
type RunConfig struct {
	// GraphBaseURL overrides the Graph endpoint, mainly for tests.
	GraphBaseURL string `yaml:"graph_base_url"`

	// SiteURL is the SharePoint site backing the document library.
	SiteURL string `yaml:"sharepoint_site_url" validate:"required,url"`

	// GroupID is the default team/group receiving channels and plans.
	GroupID string `yaml:"group_id"`

	// Subfolders are created under every project folder, in order.
	Subfolders []string `yaml:"subfolders" validate:"min=1"`

	// InitialSubfolder receives the template uploads. Must be one of
	// Subfolders.
	InitialSubfolder string `yaml:"initial_subfolder" validate:"required"`

	// HelpFolder is ensured once per run at the drive root.
	HelpFolder string `yaml:"help_folder"`

	// TemplatesDir holds the files listed in Templates.
	TemplatesDir string `yaml:"templates_dir"`

	// Templates are uploaded into InitialSubfolder for each project.
	Templates []string `yaml:"templates"`

	// PropagationDelay is the wait after channel creation before membership
	// grants; the directory is only eventually consistent.
	PropagationDelay Duration `yaml:"propagation_delay"`

	// CheckpointPath is where per-project progress is persisted.
	CheckpointPath string `yaml:"checkpoint_path" validate:"required"`
}

// DefaultRunConfig returns the settings used when no config file is given.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		SiteURL:          "https://cosemar.sharepoint.com/sites/Gestioncontrolproyectos",
		Subfolders:       []string{"01_INICIO", "02_PLANIFICACION", "03_EJECUCION", "04_CONTROL", "05_CIERRE"},
		InitialSubfolder: "01_INICIO",
		HelpFolder:       "_AYUDA_PM",
		TemplatesDir:     "templates/default_init",
		Templates: []string{
			"Ficha_de_Proyecto_Nueva_Iniciativa.docx",
			"Acta_de_Inicio_de_Proyecto.docx",
		},
		PropagationDelay: Duration(60 * time.Second),
		CheckpointPath:   "project_config.json",
	}
}

// LoadRunConfig reads a YAML settings file over the defaults. An empty path
// returns the defaults unchanged.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return RunConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return RunConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Validate checks structural constraints and that InitialSubfolder is one
// of Subfolders.
func (c RunConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid run config: %w", err)
	}
	for _, sub := range c.Subfolders {
		if sub == c.InitialSubfolder {
			return nil
		}
	}
	return fmt.Errorf("invalid run config: initial_subfolder %q is not one of subfolders", c.InitialSubfolder)
}
