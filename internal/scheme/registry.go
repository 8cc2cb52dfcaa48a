package scheme

import (
	"fmt"
	"math"
	"sort"
)

// valueEpsilon is the tolerance for matching a conversion entry's fromValue.
// Conversion tables hold discrete scale values; this only absorbs float noise.
const valueEpsilon = 1e-9

// ConversionEntry maps one grade value of one scheme onto another scheme.
// Entries are exact: no interpolation between them.
type ConversionEntry struct {
	FromScheme string
	ToScheme   string
	FromValue  float64
	ToValue    float64
}

// UnmappedGradeValueError reports a conversion lookup with no table entry.
type UnmappedGradeValueError struct {
	FromScheme string
	ToScheme   string
	Value      float64
}

func (e *UnmappedGradeValueError) Error() string {
	return fmt.Sprintf("no conversion entry for %.4g from scheme %q to scheme %q", e.Value, e.FromScheme, e.ToScheme)
}

// UnknownSchemeError reports a reference to a scheme the registry does not hold.
type UnknownSchemeError struct {
	Name string
}

func (e *UnknownSchemeError) Error() string {
	return fmt.Sprintf("unknown grading scheme %q", e.Name)
}

// Registry holds scheme definitions and the pairwise conversion tables.
// It is loaded once from the store and is a plain in-memory lookup afterwards.
type Registry struct {
	schemes     map[string]*Scheme
	conversions map[string][]ConversionEntry // keyed by fromScheme|toScheme
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schemes:     make(map[string]*Scheme),
		conversions: make(map[string][]ConversionEntry),
	}
}

// Register validates and adds a scheme definition. Re-registering a name
// replaces the previous definition.
func (r *Registry) Register(s *Scheme) error {
	if err := s.Validate(); err != nil {
		return err
	}
	cp := *s
	cp.Scale = append([]float64(nil), s.Scale...)
	r.schemes[s.Name] = &cp
	return nil
}

// Get returns a scheme by name.
func (r *Registry) Get(name string) (*Scheme, error) {
	s, ok := r.schemes[name]
	if !ok {
		return nil, &UnknownSchemeError{Name: name}
	}
	return s, nil
}

// Names returns the registered scheme names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemes))
	for n := range r.schemes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AddConversion records a conversion entry. An entry with the same
// (from, to, fromValue) triple replaces the previous one.
func (r *Registry) AddConversion(e ConversionEntry) error {
	if _, err := r.Get(e.FromScheme); err != nil {
		return err
	}
	to, err := r.Get(e.ToScheme)
	if err != nil {
		return err
	}
	if !to.InBounds(e.ToValue) {
		return &InvalidSchemeError{Name: e.ToScheme, Reason: fmt.Sprintf("conversion target %.4g outside scale bounds", e.ToValue)}
	}
	key := e.FromScheme + "|" + e.ToScheme
	entries := r.conversions[key]
	for i := range entries {
		if math.Abs(entries[i].FromValue-e.FromValue) < valueEpsilon {
			entries[i] = e
			r.conversions[key] = entries
			return nil
		}
	}
	r.conversions[key] = append(entries, e)
	return nil
}

// Convert translates a value between schemes by exact table lookup.
// Identity conversions always succeed; anything without a table entry fails
// with UnmappedGradeValueError.
func (r *Registry) Convert(value float64, fromScheme, toScheme string) (float64, error) {
	if _, err := r.Get(fromScheme); err != nil {
		return 0, err
	}
	if _, err := r.Get(toScheme); err != nil {
		return 0, err
	}
	if fromScheme == toScheme {
		return value, nil
	}
	for _, e := range r.conversions[fromScheme+"|"+toScheme] {
		if math.Abs(e.FromValue-value) < valueEpsilon {
			return e.ToValue, nil
		}
	}
	return 0, &UnmappedGradeValueError{FromScheme: fromScheme, ToScheme: toScheme, Value: value}
}

// Conversions returns all entries from fromScheme to toScheme, sorted by
// source value.
func (r *Registry) Conversions(fromScheme, toScheme string) []ConversionEntry {
	entries := append([]ConversionEntry(nil), r.conversions[fromScheme+"|"+toScheme]...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].FromValue < entries[j].FromValue })
	return entries
}

// Builtins returns the scheme definitions seeded into a fresh store. Scales
// and thresholds follow the conventions of the institutions they model.
func Builtins() []*Scheme {
	return []*Scheme{
		{
			Name:          "german",
			Direction:     LowerIsBetter,
			Scale:         []float64{1.0, 1.3, 1.7, 2.0, 2.3, 2.7, 3.0, 3.3, 3.7, 4.0, 5.0},
			PassThreshold: 4.0,
		},
		{
			// ECTS letters mapped numerically: A=1 ... F=6.
			Name:          "ects",
			Direction:     LowerIsBetter,
			Scale:         []float64{1.0, 2.0, 3.0, 4.0, 5.0, 6.0},
			PassThreshold: 5.0,
		},
		{
			Name:          "us",
			Direction:     HigherIsBetter,
			Scale:         []float64{4.0, 3.7, 3.3, 3.0, 2.7, 2.3, 2.0, 1.7, 1.3, 1.0, 0.0},
			PassThreshold: 2.0,
		},
		{
			Name:          "percentage",
			Direction:     HigherIsBetter,
			Scale:         []float64{100.0, 90.0, 80.0, 70.0, 60.0, 50.0, 40.0, 30.0, 20.0, 10.0, 0.0},
			PassThreshold: 50.0,
		},
		{
			Name:          "passfail",
			Direction:     HigherIsBetter,
			Scale:         []float64{1.0, 0.0},
			PassThreshold: 1.0,
		},
	}
}
