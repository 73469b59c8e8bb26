// Package condition evaluates the predicates of condition nodes.
//
// Every evaluation yields exactly "true" or "false". Problems with the
// predicate itself (a bad regex, an expression that does not compile) fail
// closed to false and are returned alongside as a *domain.ConfigurationError;
// an unavailable classifier fails closed with a *domain.SideEffectError.
package condition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/go-playground/validator/v10"

	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/interpolate"
	"github.com/botaas/flowengine/pkg/ports"
)

// DefaultRegexTimeout bounds a single author-supplied regex match.
const DefaultRegexTimeout = 100 * time.Millisecond

var (
	phonePattern = regexp.MustCompile(`^\+?\d{7,15}$`)
	phoneNoise   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// isNumber accepts any finite decimal literal, signed, with or without an
// exponent. NaN and Inf spellings are not numbers a user would type.
func isNumber(input string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Result is the outcome of one evaluation.
type Result struct {
	Matched bool
	// Detail carries a normalized value where one exists (a parsed date,
	// a toxicity score).
	Detail string
}

// Label returns the routing label, "true" or "false".
func (r Result) Label() string {
	if r.Matched {
		return domain.LabelTrue
	}
	return domain.LabelFalse
}

// Evaluator evaluates conditions. It is safe for concurrent use.
type Evaluator struct {
	classifier   ports.ToxicityClassifier
	regexTimeout time.Duration
	validate     *validator.Validate

	regexes  sync.Map // pattern -> *regexp2.Regexp
	programs sync.Map // source -> *vm.Program
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClassifier sets the classifier used by toxicity conditions.
func WithClassifier(c ports.ToxicityClassifier) Option {
	return func(e *Evaluator) { e.classifier = c }
}

// WithRegexTimeout bounds regex matching.
func WithRegexTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.regexTimeout = d
		}
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		regexTimeout: DefaultRegexTimeout,
		validate:     validator.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate tests input against cond. vars are used to interpolate the
// comparison value and are exposed to expressions.
func (e *Evaluator) Evaluate(ctx context.Context, cond domain.ConditionData, input string, vars map[string]string) (Result, error) {
	value := interpolate.String(cond.ConditionValue, vars)

	switch cond.ConditionType {
	case domain.ConditionEquals:
		return Result{Matched: input == value}, nil

	case domain.ConditionContains:
		return Result{Matched: strings.Contains(input, value)}, nil

	case domain.ConditionNumber:
		return Result{Matched: isNumber(input)}, nil

	case domain.ConditionEmail:
		return Result{Matched: e.validate.Var(strings.TrimSpace(input), "required,email") == nil}, nil

	case domain.ConditionPhone:
		return Result{Matched: phonePattern.MatchString(phoneNoise.Replace(strings.TrimSpace(input)))}, nil

	case domain.ConditionDate:
		t, ok := ParseDate(input)
		if !ok {
			return Result{}, nil
		}
		return Result{Matched: true, Detail: t.Format("2006-01-02")}, nil

	case domain.ConditionRegex:
		return e.matchRegex(value, input)

	case domain.ConditionToxicity:
		return e.toxicity(ctx, cond.ToxicitySensitivity, input)

	case domain.ConditionExpression:
		return e.expression(value, input, vars)
	}

	return Result{}, &domain.ConfigurationError{Reason: fmt.Sprintf("unknown condition type %q", cond.ConditionType)}
}

func (e *Evaluator) matchRegex(pattern, input string) (Result, error) {
	ok, err := e.MatchPattern(pattern, input)
	if err != nil {
		return Result{}, err
	}
	return Result{Matched: ok}, nil
}

// MatchPattern reports whether input matches pattern under the evaluator's
// match timeout. A pattern that fails to compile or times out is a
// *domain.ConfigurationError without a node id.
func (e *Evaluator) MatchPattern(pattern, input string) (bool, error) {
	re, err := e.regex(pattern)
	if err != nil {
		return false, &domain.ConfigurationError{Reason: fmt.Sprintf("invalid regex %q", pattern), Err: err}
	}
	ok, err := re.MatchString(input)
	if err != nil {
		return false, &domain.ConfigurationError{Reason: fmt.Sprintf("regex %q did not finish", pattern), Err: err}
	}
	return ok, nil
}

// regex compiles pattern once. A JavaScript literal such as /^a+$/i is
// accepted because that is what builder authors tend to paste.
func (e *Evaluator) regex(pattern string) (*regexp2.Regexp, error) {
	if cached, ok := e.regexes.Load(pattern); ok {
		return cached.(*regexp2.Regexp), nil
	}

	src, opts := pattern, regexp2.RegexOptions(regexp2.None)
	if len(src) > 2 && strings.HasPrefix(src, "/") {
		if end := strings.LastIndex(src, "/"); end > 0 {
			flags := src[end+1:]
			if strings.Trim(flags, "gimsuy") == "" {
				src = src[1:end]
				if strings.Contains(flags, "i") {
					opts |= regexp2.IgnoreCase
				}
				if strings.Contains(flags, "m") {
					opts |= regexp2.Multiline
				}
				if strings.Contains(flags, "s") {
					opts |= regexp2.Singleline
				}
			}
		}
	}

	re, err := regexp2.Compile(src, opts)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = e.regexTimeout
	e.regexes.Store(pattern, re)
	return re, nil
}

func (e *Evaluator) toxicity(ctx context.Context, sensitivity float64, input string) (Result, error) {
	if e.classifier == nil {
		return Result{}, &domain.SideEffectError{Effect: domain.EffectClassifier, Err: errors.New("classifier unavailable")}
	}
	score, err := e.classifier.Score(ctx, input)
	if err != nil {
		return Result{}, &domain.SideEffectError{Effect: domain.EffectClassifier, Err: err}
	}
	return Result{
		Matched: score >= sensitivity,
		Detail:  strconv.FormatFloat(score, 'f', 3, 64),
	}, nil
}

// expression runs an expr-lang program with "input" and "vars" in scope.
func (e *Evaluator) expression(source, input string, vars map[string]string) (Result, error) {
	prog, err := e.program(source)
	if err != nil {
		return Result{}, &domain.ConfigurationError{Reason: fmt.Sprintf("invalid expression %q", source), Err: err}
	}
	if vars == nil {
		vars = map[string]string{}
	}
	out, err := expr.Run(prog, exprEnv{Input: input, Vars: vars})
	if err != nil {
		return Result{}, &domain.ConfigurationError{Reason: fmt.Sprintf("expression %q failed", source), Err: err}
	}
	matched, _ := out.(bool)
	return Result{Matched: matched}, nil
}

type exprEnv struct {
	Input string            `expr:"input"`
	Vars  map[string]string `expr:"vars"`
}

func (e *Evaluator) program(source string) (*vm.Program, error) {
	if cached, ok := e.programs.Load(source); ok {
		return cached.(*vm.Program), nil
	}
	prog, err := expr.Compile(source, expr.Env(exprEnv{}), expr.AsBool())
	if err != nil {
		return nil, err
	}
	e.programs.Store(source, prog)
	return prog, nil
}

// SensitivityBand names the builder's slider band for a toxicity threshold.
func SensitivityBand(s float64) string {
	switch {
	case s < 0.34:
		return "low"
	case s < 0.67:
		return "mild"
	default:
		return "high"
	}
}
