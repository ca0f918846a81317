package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/terraform-plugin-log/tfsdklog"
	"github.com/spf13/viper"

	"github.com/isometry/terraform-provider-dirsrv/internal/idm"
	"github.com/isometry/terraform-provider-dirsrv/internal/ldap"
	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

const (
	configFileName = "dsidm"
	configFileType = "yaml"
	envPrefix      = "DSIDM"

	// Config keys, shared with the persistent flag names.
	cfgKeyLDAPURL       = "ldap-url"
	cfgKeyDomain        = "domain"
	cfgKeyBaseDN        = "base-dn"
	cfgKeyBindDN        = "bind-dn"
	cfgKeyPassword      = "password"
	cfgKeyServicesRDN   = "services-rdn"
	cfgKeyTypes         = "types"
	cfgKeyTimeout       = "timeout"
	cfgKeyNoTLS         = "no-tls"
	cfgKeySkipTLSVerify = "skip-tls-verify"
	cfgKeyDryRun        = "dry-run"
)

// settings is the resolved configuration: flags override DSIDM_* environment
// variables, which override the config file.
type settings struct {
	LDAPURL       string
	Domain        string
	BaseDN        string
	BindDN        string
	Password      string
	ServicesRDN   string
	TypesFile     string
	Timeout       time.Duration
	NoTLS         bool
	SkipTLSVerify bool
	DryRun        bool
}

// newViper returns a viper instance reading DSIDM_* environment variables.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(cfgKeyTimeout, 30*time.Second)
	return v
}

// readConfig loads file, or dsidm.yaml from the working directory or the user
// config directory when file is empty. A missing default file is not an error.
func readConfig(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "dsidm"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func loadSettings(v *viper.Viper) settings {
	return settings{
		LDAPURL:       v.GetString(cfgKeyLDAPURL),
		Domain:        v.GetString(cfgKeyDomain),
		BaseDN:        v.GetString(cfgKeyBaseDN),
		BindDN:        v.GetString(cfgKeyBindDN),
		Password:      v.GetString(cfgKeyPassword),
		ServicesRDN:   v.GetString(cfgKeyServicesRDN),
		TypesFile:     v.GetString(cfgKeyTypes),
		Timeout:       v.GetDuration(cfgKeyTimeout),
		NoTLS:         v.GetBool(cfgKeyNoTLS),
		SkipTLSVerify: v.GetBool(cfgKeySkipTLSVerify),
		DryRun:        v.GetBool(cfgKeyDryRun),
	}
}

// connectionConfig translates s into an LDAP connection configuration.
func (s settings) connectionConfig() (*ldap.ConnectionConfig, error) {
	config := ldap.DefaultConfig()
	config.Domain = s.Domain
	config.LDAPURLs = strings.Fields(s.LDAPURL)
	config.BaseDN = s.BaseDN
	config.Username = s.BindDN
	config.Password = s.Password
	if s.Timeout > 0 {
		config.Timeout = s.Timeout
	}
	config.UseTLS = !s.NoTLS
	config.TLSConfig.InsecureSkipVerify = s.SkipTLSVerify

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection settings: %w", err)
	}
	return config, nil
}

// dialLDAP connects and binds to the directory described by s.
func dialLDAP(ctx context.Context, s settings) (mapping.Backend, func() error, error) {
	config, err := s.connectionConfig()
	if err != nil {
		return nil, nil, err
	}

	backend, err := ldap.Dial(ctx, config)
	if err != nil {
		return nil, nil, err
	}
	return backend, backend.Close, nil
}

// loadRegistry returns the built-in entry types plus any declared in file.
func loadRegistry(file string) (*mapping.Registry, error) {
	registry := idm.NewRegistry()
	if file == "" {
		return registry, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := registry.LoadYAML(f); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return registry, nil
}

// withLogging creates the root logger, silent unless DSIDM_LOG names a level,
// and registers the mapping and ldap subsystems below it.
func withLogging(ctx context.Context) context.Context {
	level := hclog.LevelFromString(os.Getenv("DSIDM_LOG"))
	if level == hclog.NoLevel {
		level = hclog.Off
	}

	ctx = tfsdklog.NewRootProviderLogger(ctx,
		tfsdklog.WithLogName("dsidm"),
		tfsdklog.WithLevel(level),
		tfsdklog.WithoutLocation(),
	)
	ctx = mapping.WithLogging(ctx)
	return ldap.WithLogging(ctx)
}
