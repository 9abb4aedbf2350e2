package report

import (
	"fmt"
	"math"

	"github.com/google/cel-go/cel"

	"github.com/okian/medrank/internal/domain/apperr"
	"github.com/okian/medrank/internal/domain/model"
	"github.com/okian/medrank/internal/domain/normalize"
	"github.com/okian/medrank/internal/domain/ranking"
)

// Range is an inclusive numeric interval; a nil bound is open.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Contains reports whether v lies within r. A nil range contains everything.
func (r *Range) Contains(v float64) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

func (r *Range) validate(name string) error {
	if r == nil {
		return nil
	}
	for _, b := range []*float64{r.Min, r.Max} {
		if b != nil && (math.IsNaN(*b) || math.IsInf(*b, 0)) {
			return fmt.Errorf("%w: %s bound is not finite", ErrInvalidFilter, name)
		}
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("%w: %s min %.2f exceeds max %.2f", ErrInvalidFilter, name, *r.Min, *r.Max)
	}
	return nil
}

// Filter selects the doctors a report covers. Empty lists and nil ranges do
// not constrain. Expr is a CEL expression that must evaluate to a bool over
// the variables followers, likes, works, price, region, department, title,
// institution, composite and tier.
type Filter struct {
	Regions        []string `json:"regions,omitempty"`
	Departments    []string `json:"departments,omitempty"`
	Titles         []string `json:"titles,omitempty"`
	Institutions   []string `json:"institutions,omitempty"`
	ScoreRange     *Range   `json:"score_range,omitempty"`
	FollowersRange *Range   `json:"fans_range,omitempty"`
	PriceRange     *Range   `json:"price_range,omitempty"`
	Expr           string   `json:"expr,omitempty"`
}

// matcher is a compiled Filter.
type matcher struct {
	regions, departments, titles, institutions map[string]struct{}
	f                                          Filter
	prg                                        cel.Program
}

func labelSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if k := normalize.Label(v); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

func inSet(set map[string]struct{}, v string) bool {
	if set == nil {
		return true
	}
	_, ok := set[normalize.Label(v)]
	return ok
}

func newFilterEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("followers", cel.IntType),
		cel.Variable("likes", cel.IntType),
		cel.Variable("works", cel.IntType),
		cel.Variable("price", cel.DoubleType),
		cel.Variable("region", cel.StringType),
		cel.Variable("department", cel.StringType),
		cel.Variable("title", cel.StringType),
		cel.Variable("institution", cel.StringType),
		cel.Variable("composite", cel.DoubleType),
		cel.Variable("tier", cel.StringType),
	)
}

// compile validates f and prepares it for matching. Errors are Validation
// errors.
func (f Filter) compile() (*matcher, error) {
	const op = "filter"
	for name, r := range map[string]*Range{"score_range": f.ScoreRange, "fans_range": f.FollowersRange, "price_range": f.PriceRange} {
		if err := r.validate(name); err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, op, err)
		}
	}
	m := &matcher{
		regions:      labelSet(f.Regions),
		departments:  labelSet(f.Departments),
		titles:       labelSet(f.Titles),
		institutions: labelSet(f.Institutions),
		f:            f,
	}
	if f.Expr == "" {
		return m, nil
	}

	env, err := newFilterEnv()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	ast, iss := env.Compile(f.Expr)
	if iss.Err() != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("%w: %v", ErrInvalidExpr, iss.Err()))
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, apperr.Wrap(apperr.KindValidation, op,
			fmt.Errorf("%w: expression yields %s, want bool", ErrInvalidExpr, ast.OutputType()))
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, op, fmt.Errorf("%w: %v", ErrInvalidExpr, err))
	}
	m.prg = prg
	return m, nil
}

// keepDoctor applies the constraints that need no score.
func (m *matcher) keepDoctor(d *model.Doctor) bool {
	return inSet(m.regions, d.Region) &&
		inSet(m.departments, d.Department) &&
		inSet(m.titles, d.Title) &&
		inSet(m.institutions, d.AgencyName) &&
		m.f.FollowersRange.Contains(float64(d.TotalFollowers)) &&
		m.f.PriceRange.Contains(d.PriceOrZero())
}

// keepEntry applies the score range and the expression.
func (m *matcher) keepEntry(e *ranking.Entry) (bool, error) {
	if !m.f.ScoreRange.Contains(e.Record.Composite) {
		return false, nil
	}
	if m.prg == nil {
		return true, nil
	}
	out, _, err := m.prg.Eval(map[string]any{
		"followers":   e.Doctor.TotalFollowers,
		"likes":       e.Doctor.TotalLikes,
		"works":       e.Doctor.TotalWorks,
		"price":       e.Doctor.PriceOrZero(),
		"region":      e.Doctor.Region,
		"department":  e.Doctor.Department,
		"title":       e.Doctor.Title,
		"institution": e.Doctor.AgencyName,
		"composite":   e.Record.Composite,
		"tier":        string(e.Record.Tier),
	})
	if err != nil {
		return false, apperr.Wrap(apperr.KindValidation, "filter",
			fmt.Errorf("%w: doctor %s: %v", ErrInvalidExpr, e.Doctor.ID, err))
	}
	keep, ok := out.Value().(bool)
	return ok && keep, nil
}
