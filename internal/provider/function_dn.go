package provider

import (
	"context"
	"fmt"

	"github.com/hashicorp/terraform-plugin-framework/function"

	"github.com/isometry/terraform-provider-dirsrv/internal/idm"
	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

var (
	_ function.Function = &NormalizeDNFunction{}
	_ function.Function = &ServiceAccountDNFunction{}
)

func NewNormalizeDNFunction() function.Function {
	return &NormalizeDNFunction{}
}

// NormalizeDNFunction implements the normalize_dn function.
type NormalizeDNFunction struct{}

func (f NormalizeDNFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "normalize_dn"
}

func (f NormalizeDNFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary: "Normalize a distinguished name",
		MarkdownDescription: "Returns the canonical form of a distinguished name: attribute types and values lower-cased, " +
			"whitespace around separators removed and special characters escaped. Two DNs naming the same entry normalize to the same string.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:                "dn",
				MarkdownDescription: "The distinguished name to normalize.",
			},
		},
		Return: function.StringReturn{},
	}
}

func (f NormalizeDNFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var dn string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &dn))
	if resp.Error != nil {
		return
	}

	normalized, err := mapping.NormalizeDN(dn)
	if err != nil {
		resp.Error = function.NewArgumentFuncError(0, fmt.Sprintf("Invalid distinguished name %q: %s", dn, err))
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, normalized))
}

func NewServiceAccountDNFunction() function.Function {
	return &ServiceAccountDNFunction{}
}

// ServiceAccountDNFunction implements the service_account_dn function.
type ServiceAccountDNFunction struct{}

func (f ServiceAccountDNFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "service_account_dn"
}

func (f ServiceAccountDNFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary: "Build the distinguished name of a service account",
		MarkdownDescription: "Returns `cn=<name>,ou=Services,<base_dn>`, escaping `name` as needed. " +
			"Useful for granting access to a service account before it exists.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:                "name",
				MarkdownDescription: "The common name of the service account.",
			},
			function.StringParameter{
				Name:                "base_dn",
				MarkdownDescription: "The suffix holding the `ou=Services` container.",
			},
		},
		Return: function.StringReturn{},
	}
}

func (f ServiceAccountDNFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var name, baseDN string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &name, &baseDN))
	if resp.Error != nil {
		return
	}

	if name == "" {
		resp.Error = function.NewArgumentFuncError(0, "name cannot be empty")
		return
	}
	if _, err := mapping.ParseDN(baseDN); err != nil {
		resp.Error = function.NewArgumentFuncError(1, fmt.Sprintf("Invalid distinguished name %q: %s", baseDN, err))
		return
	}

	dn := mapping.JoinDN("cn", name, idm.ServicesRDN+","+baseDN)
	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, dn))
}
