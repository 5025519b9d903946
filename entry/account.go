package entry

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator computes values for one attribute from other attributes of the
// same entry. Name is the attribute it produces; Required lists the
// attributes that must hold at least one value before Fn runs.
type Generator struct {
	Name     string
	Required []string
	Fn       func(*Entry) ([]string, error)
}

// Service is a named bundle of account state: attributes set verbatim,
// attributes to generate, and other services it depends on.
type Service struct {
	Name     string
	Static   []Attribute
	Generate []string
	Depends  []string
}

// NoGeneratorError reports an attribute no registered generator produces.
type NoGeneratorError struct {
	Attr string
}

func (e *NoGeneratorError) Error() string {
	return fmt.Sprintf("ldapdir: no generator for attribute %q", e.Attr)
}

// NoServiceError reports an unregistered service name.
type NoServiceError struct {
	Name string
}

func (e *NoServiceError) Error() string {
	return fmt.Sprintf("ldapdir: no service %q", e.Name)
}

// ServiceDepError reports a service dependency that is not registered.
type ServiceDepError struct {
	Service string
	Dep     string
}

func (e *ServiceDepError) Error() string {
	return fmt.Sprintf("ldapdir: service %q depends on unknown service %q", e.Service, e.Dep)
}

// GeneratorDepError reports a generated attribute whose generator's required
// set cannot be satisfied from the entry or from other pending generators.
type GeneratorDepError struct {
	Service string
	Attr    string
}

func (e *GeneratorDepError) Error() string {
	return fmt.Sprintf("ldapdir: service %q: generator dependencies for %q are unsatisfiable", e.Service, e.Attr)
}

// SortError reports a dependency cycle among pending generators. Remaining
// holds the attributes that could not be ordered.
type SortError struct {
	Remaining []string
}

func (e *SortError) Error() string {
	return fmt.Sprintf("ldapdir: cannot sort generator dependencies: %s", strings.Join(e.Remaining, ", "))
}

// GenerationError reports a failed generator run.
type GenerationError struct {
	Attr            string
	MissingRequired []string
	Cause           error
}

func (e *GenerationError) Error() string {
	if len(e.MissingRequired) > 0 {
		return fmt.Sprintf("ldapdir: generating %q: missing required attributes: %s",
			e.Attr, strings.Join(e.MissingRequired, ", "))
	}
	return fmt.Sprintf("ldapdir: generating %q: %v", e.Attr, e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// AccountEntry is a schema-checked entry augmented with generator and
// service registries. Generated attributes accumulate in a pending set and
// are produced in dependency order by Generate.
type AccountEntry struct {
	*SchemaEntry
	generators map[string]Generator // folded attribute name -> generator
	services   map[string]Service   // folded service name -> service
	pending    map[string]bool      // folded names of attributes to generate
	applied    map[string]bool      // folded names of services already added
}

// NewAccountEntry wraps a schema-checked entry with empty registries.
func NewAccountEntry(se *SchemaEntry) *AccountEntry {
	return &AccountEntry{
		SchemaEntry: se,
		generators:  make(map[string]Generator),
		services:    make(map[string]Service),
		pending:     make(map[string]bool),
		applied:     make(map[string]bool),
	}
}

// RegisterGenerator adds or replaces the generator for g.Name.
func (ae *AccountEntry) RegisterGenerator(g Generator) {
	ae.generators[fold(g.Name)] = g
}

// RegisterService adds or replaces a service definition.
func (ae *AccountEntry) RegisterService(s Service) {
	ae.services[fold(s.Name)] = s
}

// AddGenerate marks an attribute for generation. The attribute must be
// produced by a registered generator.
func (ae *AccountEntry) AddGenerate(attr string) error {
	if _, ok := ae.generators[fold(attr)]; !ok {
		return &NoGeneratorError{Attr: attr}
	}
	ae.pending[fold(attr)] = true
	return nil
}

// AdaptService returns a copy of the named service with static and
// generated attributes already present on the entry filtered out, so adding
// a service to a populated entry never clobbers existing values.
func (ae *AccountEntry) AdaptService(name string) (Service, error) {
	svc, ok := ae.services[fold(name)]
	if !ok {
		return Service{}, &NoServiceError{Name: name}
	}
	adapted := Service{Name: svc.Name, Depends: svc.Depends}
	for _, a := range svc.Static {
		if !ae.Entry().Exists(a.Name) {
			adapted.Static = append(adapted.Static, a)
		}
	}
	for _, attr := range svc.Generate {
		if !ae.Entry().Exists(attr) {
			adapted.Generate = append(adapted.Generate, attr)
		}
	}
	return adapted, nil
}

// AddService enqueues a service: dependencies first, then static attributes
// as replaces, then the generate set into pending. The whole chain is
// checked before anything is applied.
func (ae *AccountEntry) AddService(name string) error {
	if err := ae.checkService(name, make(map[string]bool)); err != nil {
		return err
	}
	return ae.applyService(name)
}

// checkService validates a service and its dependency closure without
// touching the entry.
func (ae *AccountEntry) checkService(name string, visiting map[string]bool) error {
	if visiting[fold(name)] {
		return nil
	}
	visiting[fold(name)] = true
	svc, ok := ae.services[fold(name)]
	if !ok {
		return &NoServiceError{Name: name}
	}
	for _, dep := range svc.Depends {
		if _, ok := ae.services[fold(dep)]; !ok {
			return &ServiceDepError{Service: svc.Name, Dep: dep}
		}
		if err := ae.checkService(dep, visiting); err != nil {
			return err
		}
	}
	// Every generated attribute needs a generator, and that generator's
	// required attributes must be present already, set statically by the
	// service, or producible by another pending generator.
	reachable := make(map[string]bool, len(ae.pending))
	for attr := range ae.pending {
		reachable[attr] = true
	}
	for _, attr := range svc.Generate {
		reachable[fold(attr)] = true
	}
	for _, a := range svc.Static {
		reachable[fold(a.Name)] = true
	}
	for _, attr := range svc.Generate {
		gen, ok := ae.generators[fold(attr)]
		if !ok {
			return &GeneratorDepError{Service: svc.Name, Attr: attr}
		}
		for _, req := range gen.Required {
			if ae.Entry().Exists(req) || reachable[fold(req)] {
				continue
			}
			if _, ok := ae.generators[fold(req)]; ok && ae.pending[fold(req)] {
				continue
			}
			return &GeneratorDepError{Service: svc.Name, Attr: attr}
		}
	}
	return nil
}

// applyService applies a validated service and its dependencies.
func (ae *AccountEntry) applyService(name string) error {
	if ae.applied[fold(name)] {
		return nil
	}
	ae.applied[fold(name)] = true
	svc, err := ae.AdaptService(name)
	if err != nil {
		return err
	}
	for _, dep := range svc.Depends {
		if err := ae.applyService(dep); err != nil {
			return err
		}
	}
	for _, a := range svc.Static {
		if err := ae.Replace(a.Name, a.Vals); err != nil {
			return err
		}
	}
	for _, attr := range svc.Generate {
		ae.pending[fold(attr)] = true
	}
	return nil
}

// Generate produces every pending attribute in dependency order: an
// attribute whose generator requires another pending attribute runs after
// it. A cycle aborts before any value is written.
func (ae *AccountEntry) Generate() error {
	order, err := ae.sortPending()
	if err != nil {
		return err
	}
	for _, attr := range order {
		gen := ae.generators[attr]
		var missing []string
		for _, req := range gen.Required {
			if len(ae.Entry().Values(req)) == 0 {
				missing = append(missing, req)
			}
		}
		if len(missing) > 0 {
			return &GenerationError{Attr: gen.Name, MissingRequired: missing}
		}
		vals, err := gen.Fn(ae.Entry())
		if err != nil {
			return &GenerationError{Attr: gen.Name, Cause: err}
		}
		if err := ae.Replace(gen.Name, vals); err != nil {
			return err
		}
		delete(ae.pending, attr)
	}
	return nil
}

// sortPending topologically sorts the pending set. Edge A→B when A's
// generator requires B and B is itself pending; B sorts first.
func (ae *AccountEntry) sortPending() ([]string, error) {
	indegree := make(map[string]int, len(ae.pending))
	dependents := make(map[string][]string, len(ae.pending))
	for attr := range ae.pending {
		indegree[attr] += 0
		for _, req := range ae.generators[attr].Required {
			if ae.pending[fold(req)] {
				indegree[attr]++
				dependents[fold(req)] = append(dependents[fold(req)], attr)
			}
		}
	}
	var queue, order []string
	for attr, deg := range indegree {
		if deg == 0 {
			queue = append(queue, attr)
		}
	}
	for len(queue) > 0 {
		attr := queue[0]
		queue = queue[1:]
		order = append(order, attr)
		for _, dep := range dependents[attr] {
			if indegree[dep]--; indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if len(order) != len(indegree) {
		var remaining []string
		for attr := range indegree {
			if !containsFoldName(order, attr) {
				remaining = append(remaining, attr)
			}
		}
		return nil, &SortError{Remaining: remaining}
	}
	return order, nil
}

func containsFoldName(list []string, name string) bool {
	for _, x := range list {
		if x == name {
			return true
		}
	}
	return false
}

// DefaultGenerators returns the stock generators shipped with the package.
// Currently that is entryUUID, which needs nothing from the entry.
func DefaultGenerators() []Generator {
	return []Generator{
		{
			Name: "entryUUID",
			Fn: func(*Entry) ([]string, error) {
				return []string{uuid.NewString()}, nil
			},
		},
	}
}
