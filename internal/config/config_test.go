package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"welfareflow/internal/domain"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "/v1", cfg.Server.BasePath)
	require.Equal(t, 120, cfg.Server.RateLimit.Requests)
	require.Equal(t, time.Minute, cfg.RateWindow())
	require.Len(t, cfg.Services, 2)

	svc := cfg.Services[0].Service()
	require.Equal(t, 1, svc.ServiceID)
	require.Len(t, svc.Steps, 3)
	require.Equal(t, "TSWO", svc.Steps[0].Designation)
	require.Equal(t, 0, svc.Steps[0].PlayerID)
	jd, ok := svc.StepFor("JD")
	require.True(t, ok)
	require.True(t, jd.CanSanction)
}

func TestOfficerDefaultsToOfficerUserType(t *testing.T) {
	o := OfficerConfig{Username: "x", Designation: "TSWO", AccessLevel: domain.LevelTehsil, AccessCode: 1}.Officer()
	require.Equal(t, domain.UserTypeOfficer, o.UserType)
	require.Equal(t, "TSWO", o.Role)
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	cases := map[string]func(c *Config){
		"unknown driver": func(c *Config) { c.Database.Driver = "mysql" },
		"bad window":     func(c *Config) { c.Server.RateLimit.Window = "often" },
		"no services":    func(c *Config) { c.Services = nil },
		"duplicate service": func(c *Config) {
			c.Services = append(c.Services, c.Services[0])
		},
		"no sanction step": func(c *Config) {
			for i := range c.Services[0].Workflow {
				c.Services[0].Workflow[i].CanSanction = false
			}
		},
		"bad step level": func(c *Config) { c.Services[0].Workflow[0].AccessLevel = "Village" },
		"link out of range": func(c *Config) {
			n := 9
			c.Services[0].Workflow[0].Next = &n
		},
		"orphan tehsil": func(c *Config) {
			c.Areas.Tehsils = append(c.Areas.Tehsils, domain.Tehsil{ID: 99, Name: "Nowhere", DistrictID: 99})
		},
		"duplicate officer": func(c *Config) { c.Officers = append(c.Officers, c.Officers[0]) },
		"bad officer level": func(c *Config) { c.Officers[0].AccessLevel = "Block" },
		"bank without name": func(c *Config) { c.Banks = append(c.Banks, domain.BankBranch{IFSC: "ABCD0123456"}) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestFromYAMLRejectsGarbage(t *testing.T) {
	_, err := FromYAML([]byte("services: [1, 2"))
	require.ErrorContains(t, err, "invalid config yaml")
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	require.Nil(t, cfg)

	_, err = Load(dir)
	require.ErrorContains(t, err, "not found")

	require.NoError(t, os.WriteFile(Path(dir), []byte(GenerateDefault()), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	require.Len(t, cfg.Officers, len(Default().Officers))

	cfg, err = FromFile(Path(dir))
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Database.Driver)
}
