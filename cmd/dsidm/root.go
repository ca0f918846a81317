package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/isometry/terraform-provider-dirsrv/internal/idm"
	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

// version is set at build time.
var version = "dev"

// annotationOffline marks commands that never contact the directory.
const annotationOffline = "dsidm/offline"

// app carries state shared by every command of one invocation.
type app struct {
	out io.Writer

	configFile string
	settings   settings
	registry   *mapping.Registry
	backend    mapping.Backend
	baseDN     string

	// dial opens the directory. Tests replace it.
	dial    func(ctx context.Context, s settings) (mapping.Backend, func() error, error)
	closeFn func() error
}

func newApp(out io.Writer) *app {
	return &app{out: out, dial: dialLDAP}
}

func newRootCmd(a *app) *cobra.Command {
	v := newViper()

	root := &cobra.Command{
		Use:   "dsidm",
		Short: "Manage identity entries in a directory server",
		Long: `dsidm manages identity entries, such as the service accounts applications
bind as, in a 389 Directory Server style directory.

Settings are read from flags, then DSIDM_* environment variables, then
dsidm.yaml in the working directory or the user configuration directory.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := readConfig(v, a.configFile); err != nil {
				return err
			}
			a.settings = loadSettings(v)
			cmd.SetContext(withLogging(cmd.Context()))

			registry, err := loadRegistry(a.settings.TypesFile)
			if err != nil {
				return fmt.Errorf("load entry types: %w", err)
			}
			a.registry = registry

			if cmd.Annotations[annotationOffline] != "" {
				return nil
			}
			return a.connect(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: ./dsidm.yaml or <user config dir>/dsidm/dsidm.yaml)")
	flags.String(cfgKeyLDAPURL, "", "space separated LDAP URLs, e.g. ldaps://ds1.example.com")
	flags.String(cfgKeyDomain, "", "DNS domain used to discover servers by SRV lookup")
	flags.String(cfgKeyBaseDN, "", "suffix under which entries are managed (default: the server's naming context)")
	flags.StringP(cfgKeyBindDN, "D", "", "DN to bind as")
	flags.StringP(cfgKeyPassword, "w", "", "bind password")
	flags.String(cfgKeyServicesRDN, idm.ServicesRDN, "container holding service accounts, relative to the base DN")
	flags.String(cfgKeyTypes, "", "YAML file declaring additional entry types")
	flags.Duration(cfgKeyTimeout, 0, "per-operation timeout (default 30s)")
	flags.Bool(cfgKeyNoTLS, false, "do not upgrade plain connections with StartTLS")
	flags.Bool(cfgKeySkipTLSVerify, false, "skip server certificate verification")
	flags.Bool(cfgKeyDryRun, false, "print the LDIF of changes instead of applying them")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newTypesCmd(a))
	root.AddCommand(newWhoAmICmd(a))
	root.AddCommand(newEntriesCmd(a))
	root.AddCommand(newServiceCmd(a))

	return root
}

// connect opens the backend unless one is already set, and resolves the base DN.
func (a *app) connect(ctx context.Context) error {
	if a.backend == nil {
		backend, closeFn, err := a.dial(ctx, a.settings)
		if err != nil {
			return err
		}
		a.backend = backend
		a.closeFn = closeFn
	}

	a.baseDN = a.settings.BaseDN
	if a.baseDN == "" {
		if b, ok := a.backend.(interface{ BaseDN() string }); ok {
			a.baseDN = b.BaseDN()
		}
	}
	if a.baseDN == "" {
		return errors.New("no base DN: set --base-dn or DSIDM_BASE_DN")
	}

	if a.settings.DryRun {
		a.backend = newDryRunBackend(a.backend, a.out)
	}
	return nil
}

func (a *app) close() error {
	if a.closeFn == nil {
		return nil
	}
	err := a.closeFn()
	a.closeFn = nil
	return err
}

// options returns the mapping options every collection and object uses.
func (a *app) options() []mapping.Option {
	return []mapping.Option{
		mapping.WithTimeout(a.settings.Timeout),
		mapping.WithRegistry(a.registry),
	}
}

// services opens the service account collection.
func (a *app) services() (*mapping.Collection, error) {
	return idm.ServiceAccounts(a.backend, a.baseDN, a.settings.ServicesRDN, a.options()...)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version number",
		Annotations: map[string]string{annotationOffline: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "dsidm", version)
		},
	}
}
