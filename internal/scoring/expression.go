package scoring

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ExpressionVersion tags scores produced by a custom CEL expression.
const ExpressionVersion = "expression-v1"

// ExpressionStrategy scores with a tenant-supplied CEL expression evaluated
// over the feature vector. The expression must return a numeric score or a
// boolean (true maps to 1.0). Compiled once at construction.
type ExpressionStrategy struct {
	program cel.Program
}

// NewExpressionStrategy compiles a CEL expression into a scoring strategy.
// Every feature is exposed as a double variable plus a "features" map for
// dynamic access.
func NewExpressionStrategy(expression string) (*ExpressionStrategy, error) {
	if expression == "" {
		return nil, fmt.Errorf("expression is required")
	}

	opts := []cel.EnvOption{
		cel.Variable("features", cel.MapType(cel.StringType, cel.DoubleType)),
	}
	for name := range (&domain.FeatureVector{}).Map() {
		opts = append(opts, cel.Variable(name, cel.DoubleType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("expression must return bool, int, or double, got %s", outputType)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	return &ExpressionStrategy{program: program}, nil
}

// Name implements Strategy.
func (s *ExpressionStrategy) Name() string {
	return ExpressionVersion
}

// Score implements Strategy.
func (s *ExpressionStrategy) Score(_ context.Context, fv *domain.FeatureVector) (float64, []string, error) {
	features := fv.Map()

	activation := make(map[string]any, len(features)+1)
	for name, value := range features {
		activation[name] = value
	}
	activation["features"] = features

	out, _, err := s.program.Eval(activation)
	if err != nil {
		return 0, nil, fmt.Errorf("expression evaluation failed: %w", err)
	}

	return clamp(toScore(out)), nil, nil
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}
