package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

type whoAmIer interface {
	WhoAmI(ctx context.Context) (string, error)
}

func newTypesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "types",
		Short:       "List the registered entry types",
		Long:        `List the built-in entry types and those declared in the --types file.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationOffline: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tRDN\tOBJECTCLASSES\tCONTAINER")
			for _, name := range a.registry.Names() {
				typ, err := a.registry.Lookup(name)
				if err != nil {
					return err
				}
				container := typ.DefaultRDN
				if container == "" {
					container = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", typ.Name, typ.RDNAttribute, strings.Join(typ.CreateObjectClasses, ","), container)
			}
			return w.Flush()
		},
	}
}

func newEntriesCmd(a *app) *cobra.Command {
	var (
		filterText string
		scopeText  string
		attrs      []string
	)

	cmd := &cobra.Command{
		Use:   "entries <type>",
		Short: "Print entries of a registered type as LDIF",
		Long: `Search for entries of a registered entry type below the base DN, or below
the type's default container when it has one, and print them as LDIF.

Example:
  dsidm entries group
  dsidm entries organizationalunit --scope one
  dsidm entries service --filter '(description=frontend)' --attrs cn,description`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := a.registry.Lookup(args[0])
			if err != nil {
				return err
			}
			scope, err := mapping.ParseScope(strings.ToLower(scopeText))
			if err != nil {
				return err
			}

			var filter mapping.Filter
			if filterText != "" {
				if filter, err = mapping.ParseFilter(filterText); err != nil {
					return err
				}
			}

			col, err := mapping.NewCollection(a.backend, typ, a.baseDN, append(a.options(), mapping.WithScope(scope))...)
			if err != nil {
				return err
			}

			first := true
			for obj, err := range col.List(cmd.Context(), filter) {
				if err != nil {
					return err
				}
				e, err := obj.Entry(cmd.Context())
				if err != nil {
					return err
				}
				if len(attrs) > 0 {
					e = project(e, attrs)
				}
				if !first {
					fmt.Fprintln(a.out)
				}
				first = false
				fmt.Fprint(a.out, e.LDIF())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filterText, "filter", "", "additional LDAP filter")
	cmd.Flags().StringVar(&scopeText, "scope", "sub", "search scope: base, one or sub")
	cmd.Flags().StringSliceVar(&attrs, "attrs", nil, "attributes to print (default: all)")
	return cmd
}

// project returns a copy of e holding only names.
func project(e *mapping.Entry, names []string) *mapping.Entry {
	out := mapping.NewEntry(e.DN)
	for _, name := range names {
		if values := e.Get(name); len(values) > 0 {
			out.Set(name, values...)
		}
	}
	return out
}

func newWhoAmICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the identity the connection is bound as",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, ok := a.backend.(whoAmIer)
			if !ok {
				return errors.New("the directory does not support the Who Am I? operation")
			}
			authzID, err := w.WhoAmI(cmd.Context())
			if err != nil {
				return err
			}
			if authzID == "" {
				authzID = "anonymous"
			}
			a.printf("%s\n", authzID)
			return nil
		},
	}
}
