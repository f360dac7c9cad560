package async

import (
	"fmt"
	"sort"
	"sync"
)

// Builder constructs the runner for one job from validated parameters
type Builder func(p Params) (Runner, error)

// JobType registers a job kind with the catalog
type JobType struct {
	Name        string
	Description string
	Category    Category
	Params      []ParamSpec
	// Global types run without an owner. All other types require a user.
	Global bool
	Build  Builder
}

// TypeDescriptor is the public description of a job type
type TypeDescriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Category    string      `json:"category"`
	Global      bool        `json:"global,omitempty"`
	Params      []ParamSpec `json:"params"`
}

// Catalog maps job type names to typed builders.
// Safe for concurrent registration and lookup.
type Catalog struct {
	mu    sync.RWMutex
	types map[string]JobType
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{types: make(map[string]JobType)}
}

// Register adds a job type.
// Panics on an empty name, a nil builder or a duplicate name.
func (c *Catalog) Register(t JobType) {
	if t.Name == "" {
		panic("job type registered without a name")
	}
	if t.Build == nil {
		panic(fmt.Sprintf("job type %s registered without a builder", t.Name))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.types[t.Name]; exists {
		panic(fmt.Sprintf("job type already registered: %s", t.Name))
	}
	c.types[t.Name] = t
}

// Lookup returns the job type registered under name
func (c *Catalog) Lookup(name string) (JobType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[name]
	return t, ok
}

// Names returns every registered type name, sorted
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe lists every type with its parameters, sorted by name
func (c *Catalog) Describe() []TypeDescriptor {
	names := c.Names()

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]TypeDescriptor, 0, len(names))
	for _, name := range names {
		t := c.types[name]
		params := t.Params
		if params == nil {
			params = []ParamSpec{}
		}
		out = append(out, TypeDescriptor{
			Name:        t.Name,
			Description: t.Description,
			Category:    t.Category.String(),
			Global:      t.Global,
			Params:      params,
		})
	}
	return out
}

// Validate checks raw parameters against the type's declared parameters and
// converts them. Extra parameters are ignored.
func (c *Catalog) Validate(name string, raw map[string]interface{}, userID string) (JobType, Params, error) {
	t, ok := c.Lookup(name)
	if !ok {
		return JobType{}, Params{}, &ParamError{JobType: name, Kind: ParamErrUnknownType}
	}
	if !t.Global && userID == "" {
		return JobType{}, Params{}, &ParamError{JobType: name, Kind: ParamErrMissingUser}
	}

	values := make(map[string]interface{}, len(t.Params))
	for _, spec := range t.Params {
		v, present := raw[spec.Name]
		if !present || v == nil {
			if spec.Optional {
				continue
			}
			return JobType{}, Params{}, &ParamError{JobType: name, Kind: ParamErrMissing, Param: spec.Name, Expected: spec.Type}
		}

		converted, ok := convertParam(spec.Type, v)
		if !ok {
			return JobType{}, Params{}, &ParamError{JobType: name, Kind: ParamErrInvalidType, Param: spec.Name, Expected: spec.Type, Got: v}
		}
		values[spec.Name] = converted
	}
	return t, Params{values: values}, nil
}

// Build validates the request and constructs a queued job owned by userID
func (c *Catalog) Build(name string, raw map[string]interface{}, userID string) (*Job, error) {
	t, params, err := c.Validate(name, raw, userID)
	if err != nil {
		return nil, err
	}

	runner, err := t.Build(params)
	if err != nil {
		return nil, err
	}
	if t.Global {
		userID = ""
	}
	return NewJob(t.Name, userID, t.Category, runner), nil
}
