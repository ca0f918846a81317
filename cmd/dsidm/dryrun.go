package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/isometry/terraform-provider-dirsrv/internal/mapping"
)

// dryRunBackend reads from the directory but prints writes as LDIF change
// records instead of sending them.
type dryRunBackend struct {
	mapping.Backend
	out io.Writer
}

func newDryRunBackend(backend mapping.Backend, out io.Writer) *dryRunBackend {
	return &dryRunBackend{Backend: backend, out: out}
}

func (b *dryRunBackend) print(record string) error {
	_, err := fmt.Fprintln(b.out, record)
	return err
}

func (b *dryRunBackend) Add(_ context.Context, dn string, attrs []mapping.RawAttribute) error {
	e, err := mapping.Decode(mapping.RawEntry{DN: dn, Attributes: attrs})
	if err != nil {
		return err
	}
	return b.print(e.AddLDIF())
}

func (b *dryRunBackend) Modify(_ context.Context, dn string, changes []mapping.AttributeChange) error {
	return b.print(mapping.ModifyLDIF(dn, changes))
}

func (b *dryRunBackend) Delete(_ context.Context, dn string) error {
	return b.print(mapping.DeleteLDIF(dn))
}

func (b *dryRunBackend) Rename(_ context.Context, dn, newRDN string) error {
	return b.print(mapping.ModRDNLDIF(dn, newRDN))
}

func (b *dryRunBackend) WhoAmI(ctx context.Context) (string, error) {
	w, ok := b.Backend.(whoAmIer)
	if !ok {
		return "", errors.New("the directory does not support the Who Am I? operation")
	}
	return w.WhoAmI(ctx)
}
