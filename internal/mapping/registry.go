package mapping

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// EntryType is the data-driven declaration of one kind of directory entry.
type EntryType struct {
	// Name is the registry key, e.g. "service".
	Name string `yaml:"name"`

	// RDNAttribute names the attribute forming the entry's RDN.
	RDNAttribute string `yaml:"rdn_attribute"`

	// MustAttributes must hold at least one value before any write.
	MustAttributes []string `yaml:"must_attributes"`

	// CreateObjectClasses are asserted on creation.
	CreateObjectClasses []string `yaml:"create_objectclasses"`

	// FilterObjectClasses select entries of this type in searches. Defaults to
	// CreateObjectClasses minus "top".
	FilterObjectClasses []string `yaml:"filter_objectclasses"`

	// FilterAttributes are matched by Collection.Get. Defaults to RDNAttribute.
	FilterAttributes []string `yaml:"filter_attributes"`

	// DefaultRDN is the container RDN relative to the base DN, e.g. "ou=Services".
	DefaultRDN string `yaml:"default_rdn"`

	// Defaults supplies values for attributes left unset on creation.
	Defaults map[string][]string `yaml:"defaults"`

	// Child names the entry type of nested entries, if any.
	Child string `yaml:"child"`

	// Protected blocks deletion.
	Protected bool `yaml:"protected"`
}

// Validate checks the declaration and fills derived defaults.
func (t *EntryType) Validate() error {
	t.Name = strings.TrimSpace(t.Name)
	t.RDNAttribute = strings.TrimSpace(t.RDNAttribute)

	if t.Name == "" {
		return validationError("register", "", "entry type name is required")
	}
	if t.RDNAttribute == "" {
		return validationError("register", "", "entry type %q: rdn_attribute is required", t.Name)
	}
	if len(t.CreateObjectClasses) == 0 {
		return validationError("register", "", "entry type %q: at least one create objectclass is required", t.Name)
	}

	if !slices.ContainsFunc(t.MustAttributes, func(a string) bool { return strings.EqualFold(a, t.RDNAttribute) }) {
		t.MustAttributes = append([]string{t.RDNAttribute}, t.MustAttributes...)
	}

	if len(t.FilterObjectClasses) == 0 {
		for _, oc := range t.CreateObjectClasses {
			if !strings.EqualFold(oc, "top") {
				t.FilterObjectClasses = append(t.FilterObjectClasses, oc)
			}
		}
	}
	if len(t.FilterAttributes) == 0 {
		t.FilterAttributes = []string{t.RDNAttribute}
	}

	if t.DefaultRDN != "" {
		if _, err := ParseDN(t.DefaultRDN); err != nil {
			return validationError("register", "", "entry type %q: default_rdn: %v", t.Name, err)
		}
	}

	return nil
}

// clone returns a deep copy so holders never share slices with the registry.
func (t EntryType) clone() EntryType {
	c := t
	c.MustAttributes = slices.Clone(t.MustAttributes)
	c.CreateObjectClasses = slices.Clone(t.CreateObjectClasses)
	c.FilterObjectClasses = slices.Clone(t.FilterObjectClasses)
	c.FilterAttributes = slices.Clone(t.FilterAttributes)
	if t.Defaults != nil {
		c.Defaults = make(map[string][]string, len(t.Defaults))
		for k, v := range t.Defaults {
			c.Defaults[k] = slices.Clone(v)
		}
	}
	return c
}

func (t *EntryType) isMust(attr string) bool {
	return slices.ContainsFunc(t.MustAttributes, func(a string) bool { return strings.EqualFold(a, attr) })
}

// Registry maps entry-type names to their declarations. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]EntryType
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]EntryType)}
}

// Register validates t and adds it. Names are case-insensitive and unique.
func (r *Registry) Register(t EntryType) error {
	t = t.clone()
	if err := t.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(t.Name)
	if _, ok := r.types[key]; ok {
		return NewError(KindAlreadyExists, "register", "", fmt.Sprintf("entry type %q already registered", t.Name))
	}
	r.types[key] = t
	return nil
}

// Lookup returns a copy of the named entry type.
func (r *Registry) Lookup(name string) (EntryType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return EntryType{}, NewError(KindNotFound, "lookup", "", fmt.Sprintf("unknown entry type %q", name))
	}
	return t.clone(), nil
}

// Names returns the registered type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for _, k := range slices.Sorted(maps.Keys(r.types)) {
		names = append(names, r.types[k].Name)
	}
	return names
}

type registryFile struct {
	Types []EntryType `yaml:"types"`
}

// LoadYAML registers every type declared in a document of the form:
//
//	types:
//	  - name: service
//	    rdn_attribute: cn
//	    create_objectclasses: [top, netscapeServer]
//
// Registration stops at the first invalid or duplicate type.
func (r *Registry) LoadYAML(in io.Reader) error {
	var doc registryFile
	dec := yaml.NewDecoder(in)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return validationError("load_types", "", "invalid entry type document: %v", err)
	}

	for _, t := range doc.Types {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
