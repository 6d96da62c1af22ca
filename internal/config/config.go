package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"welfareflow/internal/domain"
)

// Config models welfareflow.yml.
type Config struct {
	Server struct {
		Addr      string `yaml:"addr"`
		BasePath  string `yaml:"base_path"`
		RateLimit struct {
			Requests int    `yaml:"requests"`
			Window   string `yaml:"window"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Database struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`
	Logging struct {
		Mode string `yaml:"mode"`
	} `yaml:"logging"`
	Sanction struct {
		ArtifactRoot string `yaml:"artifact_root"`
	} `yaml:"sanction"`
	Uploads struct {
		MaxBytes     int64    `yaml:"max_bytes"`
		AllowedTypes []string `yaml:"allowed_types"`
	} `yaml:"uploads"`
	Services []ServiceConfig `yaml:"services"`
	Areas    struct {
		Districts []domain.District `yaml:"districts"`
		Tehsils   []domain.Tehsil   `yaml:"tehsils"`
	} `yaml:"areas"`
	Officers []OfficerConfig     `yaml:"officers"`
	Banks    []domain.BankBranch `yaml:"banks"`
}

type ServiceConfig struct {
	ID       int          `yaml:"id"`
	Name     string       `yaml:"name"`
	Workflow []StepConfig `yaml:"workflow"`
}

type StepConfig struct {
	Designation        string `yaml:"designation"`
	AccessLevel        string `yaml:"access_level"`
	Prev               *int   `yaml:"prev"`
	Next               *int   `yaml:"next"`
	CanPull            bool   `yaml:"can_pull"`
	CanForwardToPlayer bool   `yaml:"can_forward"`
	CanReturnToPlayer  bool   `yaml:"can_return"`
	CanReturnToCitizen bool   `yaml:"can_return_to_citizen"`
	CanSanction        bool   `yaml:"can_sanction"`
}

type OfficerConfig struct {
	Username    string `yaml:"username"`
	Name        string `yaml:"name"`
	Designation string `yaml:"designation"`
	AccessLevel string `yaml:"access_level"`
	AccessCode  int    `yaml:"access_code"`
	UserType    string `yaml:"user_type"`
}

// Service converts the YAML service into its domain workflow template.
func (s ServiceConfig) Service() domain.Service {
	steps := make(domain.Workflow, 0, len(s.Workflow))
	for i, st := range s.Workflow {
		steps = append(steps, domain.Player{
			PlayerID:           i,
			Designation:        st.Designation,
			AccessLevel:        st.AccessLevel,
			PrevPlayerID:       st.Prev,
			NextPlayerID:       st.Next,
			CanPull:            st.CanPull,
			CanForwardToPlayer: st.CanForwardToPlayer,
			CanReturnToPlayer:  st.CanReturnToPlayer,
			CanReturnToCitizen: st.CanReturnToCitizen,
			CanSanction:        st.CanSanction,
		})
	}
	return domain.Service{ServiceID: s.ID, Name: s.Name, Steps: steps}
}

func (o OfficerConfig) Officer() domain.Officer {
	userType := o.UserType
	if userType == "" {
		userType = domain.UserTypeOfficer
	}
	return domain.Officer{
		Username:    o.Username,
		Name:        o.Name,
		Role:        o.Designation,
		AccessLevel: o.AccessLevel,
		AccessCode:  o.AccessCode,
		UserType:    userType,
	}
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with wf config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if d := c.Database.Driver; d != "" && d != "sqlite" && d != "postgres" {
		return fmt.Errorf("config.database.driver must be sqlite or postgres, got %q", d)
	}
	if w := c.Server.RateLimit.Window; w != "" {
		if _, err := time.ParseDuration(w); err != nil {
			return fmt.Errorf("config.server.rate_limit.window: %w", err)
		}
	}
	if len(c.Services) == 0 {
		return fmt.Errorf("config.services must define at least one service")
	}
	seenServices := map[int]bool{}
	for _, svc := range c.Services {
		if svc.ID <= 0 {
			return fmt.Errorf("service %q needs a positive id", svc.Name)
		}
		if seenServices[svc.ID] {
			return fmt.Errorf("service id %d defined twice", svc.ID)
		}
		seenServices[svc.ID] = true
		if strings.TrimSpace(svc.Name) == "" {
			return fmt.Errorf("service %d has no name", svc.ID)
		}
		if err := validateWorkflow(svc); err != nil {
			return err
		}
	}
	districts := map[int]bool{}
	for _, d := range c.Areas.Districts {
		if d.ID <= 0 || d.Name == "" {
			return fmt.Errorf("district entries need id and name")
		}
		if d.Division != 1 && d.Division != 2 {
			return fmt.Errorf("district %d has unknown division %d", d.ID, d.Division)
		}
		districts[d.ID] = true
	}
	for _, t := range c.Areas.Tehsils {
		if t.ID <= 0 || t.Name == "" {
			return fmt.Errorf("tehsil entries need id and name")
		}
		if !districts[t.DistrictID] {
			return fmt.Errorf("tehsil %d references unknown district %d", t.ID, t.DistrictID)
		}
	}
	seenUsers := map[string]bool{}
	for _, o := range c.Officers {
		if o.Username == "" {
			return fmt.Errorf("config.officers contains empty username")
		}
		if seenUsers[o.Username] {
			return fmt.Errorf("officer %s defined twice", o.Username)
		}
		seenUsers[o.Username] = true
		if o.Designation == "" {
			return fmt.Errorf("officer %s has no designation", o.Username)
		}
		if !domain.IsAccessLevel(o.AccessLevel) {
			return fmt.Errorf("officer %s has invalid access_level %q", o.Username, o.AccessLevel)
		}
	}
	for _, b := range c.Banks {
		if b.IFSC == "" || b.Bank == "" {
			return fmt.Errorf("bank entries need ifsc and bank")
		}
	}
	return nil
}

func validateWorkflow(svc ServiceConfig) error {
	if len(svc.Workflow) == 0 {
		return fmt.Errorf("service %d has an empty workflow", svc.ID)
	}
	designations := map[string]bool{}
	sanction := false
	for i, st := range svc.Workflow {
		if st.Designation == "" {
			return fmt.Errorf("service %d step %d has no designation", svc.ID, i)
		}
		if designations[st.Designation] {
			return fmt.Errorf("service %d lists designation %s twice", svc.ID, st.Designation)
		}
		designations[st.Designation] = true
		if !domain.IsAccessLevel(st.AccessLevel) {
			return fmt.Errorf("service %d step %d has invalid access_level %q", svc.ID, i, st.AccessLevel)
		}
		if st.CanSanction {
			sanction = true
		}
	}
	if !sanction {
		return fmt.Errorf("service %d has no step that can sanction", svc.ID)
	}
	if err := svc.Service().Steps.Validate(); err != nil {
		return fmt.Errorf("service %d: %w", svc.ID, err)
	}
	return nil
}

// RateWindow returns the parsed rate-limit window, defaulting to one minute.
func (c *Config) RateWindow() time.Duration {
	if d, err := time.ParseDuration(c.Server.RateLimit.Window); err == nil && d > 0 {
		return d
	}
	return time.Minute
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "welfareflow.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in sample configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1
  rate_limit:
    requests: 120
    window: 1m

database:
  driver: sqlite

logging:
  mode: development

sanction:
  artifact_root: ./signed

uploads:
  max_bytes: 2097152
  allowed_types: [application/pdf, image/jpeg, image/png]

services:
  - id: 1
    name: Old Age Pension
    workflow:
      - designation: TSWO
        access_level: Tehsil
        can_forward: true
        can_return_to_citizen: true
        can_pull: true
      - designation: DSWO
        access_level: District
        can_forward: true
        can_return: true
        can_return_to_citizen: true
        can_pull: true
      - designation: JD
        access_level: Division
        can_return: true
        can_sanction: true
  - id: 2
    name: Disability Pension
    workflow:
      - designation: TSWO
        access_level: Tehsil
        can_forward: true
        can_return_to_citizen: true
        can_pull: true
      - designation: DSWO
        access_level: District
        can_return: true
        can_sanction: true

areas:
  districts:
    - {id: 1, name: Jammu, division: 1}
    - {id: 2, name: Kathua, division: 1}
    - {id: 3, name: Srinagar, division: 2}
    - {id: 4, name: Baramulla, division: 2}
  tehsils:
    - {id: 1, name: Bishnah, district_id: 1}
    - {id: 2, name: R.S. Pura, district_id: 1}
    - {id: 3, name: Hiranagar, district_id: 2}
    - {id: 4, name: Khanyar, district_id: 3}
    - {id: 5, name: Sopore, district_id: 4}

officers:
  - {username: tswo.bishnah, name: Tehsil Social Welfare Officer Bishnah, designation: TSWO, access_level: Tehsil, access_code: 1}
  - {username: dswo.jammu, name: District Social Welfare Officer Jammu, designation: DSWO, access_level: District, access_code: 1}
  - {username: jd.jammu, name: Joint Director Jammu, designation: JD, access_level: Division, access_code: 1}
  - {username: citizen.demo, name: Demo Citizen, designation: Citizen, access_level: State, access_code: 0, user_type: Citizen}

banks:
  - {ifsc: JAKA0BISHNA, bank: J&K Bank, branch: Bishnah}
  - {ifsc: SBIN0001234, bank: State Bank of India, branch: Jammu Main}
`
