package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isometry/terraform-provider-dirsrv/internal/idm"
	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

func newServiceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage service accounts",
		Long: `Service accounts are netscapeServer entries below the services container
(ou=Services by default) that applications bind as.`,
	}

	cmd.AddCommand(newServiceListCmd(a))
	cmd.AddCommand(newServiceGetCmd(a))
	cmd.AddCommand(newServiceCreateCmd(a))
	cmd.AddCommand(newServiceModifyCmd(a))
	cmd.AddCommand(newServiceDeleteCmd(a))
	cmd.AddCommand(newServiceRenameCmd(a))
	cmd.AddCommand(newServiceLockCmd(a, true))
	cmd.AddCommand(newServiceLockCmd(a, false))
	cmd.AddCommand(newServiceStatusCmd(a))
	cmd.AddCommand(newServiceResetPasswordCmd(a))
	return cmd
}

// serviceRow is one line of service list output.
type serviceRow struct {
	Name        string `json:"name"`
	DN          string `json:"dn"`
	Description string `json:"description,omitempty"`
}

func newServiceListCmd(a *app) *cobra.Command {
	var (
		filterText string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List service accounts",
		Long: `List the service accounts in the services container. A missing container
lists as empty.

Example:
  dsidm service list
  dsidm service list --filter '(description=frontend*)'
  dsidm service list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter mapping.Filter
			if filterText != "" {
				f, err := mapping.ParseFilter(filterText)
				if err != nil {
					return err
				}
				filter = f
			}

			services, err := a.services()
			if err != nil {
				return err
			}

			var rows []serviceRow
			for obj, err := range services.List(cmd.Context(), filter) {
				if err != nil {
					return err
				}
				e, err := obj.Entry(cmd.Context())
				if err != nil {
					return err
				}
				rows = append(rows, serviceRow{
					Name:        e.First("cn"),
					DN:          obj.DN(),
					Description: e.First("description"),
				})
			}

			if jsonOutput {
				return a.printJSON(rows)
			}
			a.printServiceTable(rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&filterText, "filter", "", "additional LDAP filter")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func newServiceGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name|dn>",
		Short: "Show a service account as LDIF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := a.serviceObject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			e, err := obj.Entry(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, e.LDIF())
			return nil
		},
	}
}

func newServiceCreateCmd(a *app) *cobra.Command {
	var (
		description string
		password    string
		attrs       []string
		noContainer bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a service account",
		Long: `Create a service account named <name>. The services container is created
first when it does not exist, unless --no-create-container is given.

Example:
  dsidm service create web01 --description frontend
  dsidm service create batch --attr seeAlso=cn=jobs,dc=example,dc=com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAttributeArgs(attrs)
			if err != nil {
				return err
			}
			if description != "" {
				values["description"] = mapping.Texts(description)
			}
			if password != "" {
				values["userPassword"] = mapping.Texts(password)
			}

			services, err := a.services()
			if err != nil {
				return err
			}
			if !noContainer {
				created, err := services.Ensure(cmd.Context())
				if err != nil {
					return err
				}
				if created {
					a.printf("Created container %s\n", services.BaseDN())
				}
			}

			obj, err := services.Create(cmd.Context(), args[0], values)
			if err != nil {
				return err
			}
			a.printf("Successfully created %s\n", obj.DN())
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "description of the service account")
	cmd.Flags().StringVar(&password, "password", "", "initial userPassword")
	cmd.Flags().StringArrayVar(&attrs, "attr", nil, "additional attribute as name=value (repeatable)")
	cmd.Flags().BoolVar(&noContainer, "no-create-container", false, "fail if the services container does not exist")
	return cmd
}

func newServiceModifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "modify <name|dn> <change>...",
		Short: "Modify a service account",
		Long: `Apply changes of the form add:<attr>:<value>, replace:<attr>:<value>,
delete:<attr>:<value> or delete:<attr> to a service account. Several replace
changes to one attribute replace it with all of their values.

Example:
  dsidm service modify web01 replace:description:frontend add:seeAlso:cn=web,dc=example,dc=com`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := parseChanges(args[1:])
			if err != nil {
				return err
			}

			obj, err := a.serviceObject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := applyChanges(cmd.Context(), obj, changes); err != nil {
				return err
			}
			if err := obj.Save(cmd.Context()); err != nil {
				return err
			}
			a.printf("Successfully modified %s\n", obj.DN())
			return nil
		},
	}
}

func newServiceDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name|dn>",
		Short: "Delete a service account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := a.serviceObject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			dn := obj.DN()
			if err := obj.Delete(cmd.Context()); err != nil {
				return err
			}
			a.printf("Successfully deleted %s\n", dn)
			return nil
		},
	}
}

func newServiceRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <name|dn> <new-name>",
		Short: "Rename a service account within its container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := a.serviceObject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			old := obj.DN()
			if err := obj.Rename(cmd.Context(), args[1]); err != nil {
				return err
			}
			a.printf("Successfully renamed %s to %s\n", old, obj.DN())
			return nil
		},
	}
}

func newServiceLockCmd(a *app, lock bool) *cobra.Command {
	use, short, verb, apply := "unlock <name|dn>", "Re-enable binds as a service account", "unlocked", idm.Unlock
	if lock {
		use, short, verb, apply = "lock <name|dn>", "Refuse binds as a service account", "locked", idm.Lock
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Long: short + ` by setting or removing nsAccountLock.

Example:
  dsidm service lock web01
  dsidm service unlock cn=web01,ou=Services,dc=example,dc=com`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := a.serviceObject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := apply(cmd.Context(), obj); err != nil {
				return err
			}
			a.printf("Successfully %s %s\n", verb, obj.DN())
			return nil
		},
	}
}

func newServiceStatusCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status <name|dn>",
		Short: "Show whether a service account is locked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := a.serviceObject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			locked, err := idm.IsLocked(cmd.Context(), obj)
			if err != nil {
				return err
			}

			if jsonOutput {
				return a.printJSON(struct {
					DN     string `json:"dn"`
					Locked bool   `json:"locked"`
				}{DN: obj.DN(), Locked: locked})
			}
			state := "unlocked"
			if locked {
				state = "locked"
			}
			a.printf("%s: %s\n", obj.DN(), state)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func newServiceResetPasswordCmd(a *app) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "reset-password <name|dn>",
		Short: "Replace the bind password of a service account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := a.serviceObject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := idm.ResetPassword(cmd.Context(), obj, password); err != nil {
				return err
			}
			a.printf("Successfully reset the password of %s\n", obj.DN())
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "new userPassword")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// serviceObject resolves selector, either a DN or a value matched against the
// service account filter attributes.
func (a *app) serviceObject(ctx context.Context, selector string) (*mapping.Object, error) {
	if strings.Contains(selector, "=") {
		if _, err := mapping.ParseDN(selector); err == nil {
			obj, err := idm.ServiceAccountObject(a.backend, selector, a.options()...)
			if err != nil {
				return nil, err
			}
			return obj, obj.Load(ctx)
		}
	}

	services, err := a.services()
	if err != nil {
		return nil, err
	}
	return services.Get(ctx, selector)
}

// parseAttributeArgs parses name=value pairs into attribute values.
func parseAttributeArgs(args []string) (map[string][]mapping.Value, error) {
	values := make(map[string][]mapping.Value)
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid attribute %q: expected name=value", arg)
		}
		values[name] = append(values[name], mapping.Text(value))
	}
	return values, nil
}

// change is one parsed modify argument.
type change struct {
	op       string
	attr     string
	value    string
	hasValue bool
}

func parseChanges(args []string) ([]change, error) {
	changes := make([]change, 0, len(args))
	for _, arg := range args {
		op, rest, ok := strings.Cut(arg, ":")
		if !ok {
			return nil, fmt.Errorf("invalid change %q: expected <op>:<attr>[:<value>]", arg)
		}
		attr, value, hasValue := strings.Cut(rest, ":")
		if attr == "" {
			return nil, fmt.Errorf("invalid change %q: missing attribute name", arg)
		}

		c := change{op: strings.ToLower(op), attr: attr, value: value, hasValue: hasValue}
		switch c.op {
		case "add", "replace":
			if !hasValue {
				return nil, fmt.Errorf("invalid change %q: %s needs a value", arg, c.op)
			}
		case "delete":
		default:
			return nil, fmt.Errorf("invalid change %q: unknown operation %q", arg, op)
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// applyChanges stages changes on obj without saving. Replacements are applied
// before additions and deletions.
func applyChanges(ctx context.Context, obj *mapping.Object, changes []change) error {
	replaced := make(map[string][]mapping.Value)
	var order []string
	for _, c := range changes {
		if c.op != "replace" {
			continue
		}
		key := strings.ToLower(c.attr)
		if _, seen := replaced[key]; !seen {
			order = append(order, c.attr)
		}
		replaced[key] = append(replaced[key], mapping.Text(c.value))
	}

	for _, attr := range order {
		if err := obj.Set(ctx, attr, replaced[strings.ToLower(attr)]...); err != nil {
			return err
		}
	}

	for _, c := range changes {
		var err error
		switch {
		case c.op == "replace":
			continue
		case c.op == "add":
			err = obj.Add(ctx, c.attr, mapping.Text(c.value))
		case c.hasValue:
			err = obj.RemoveValue(ctx, c.attr, mapping.Text(c.value))
		default:
			err = obj.RemoveAll(ctx, c.attr)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printServiceTable prints rows in a human-readable table.
func (a *app) printServiceTable(rows []serviceRow) {
	if len(rows) == 0 {
		a.printf("No service accounts found.\n")
		return
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDN\tDESCRIPTION")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.DN, r.Description)
	}
	w.Flush()

	a.printf("Total: %d service account(s)\n", len(rows))
}
