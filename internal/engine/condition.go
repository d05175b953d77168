package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/campuspay/subsidy-engine/internal/models"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Directory resolves the organizational facts membership conditions
// compare against. Implementations are expected to be fast (cached or
// in-memory); the evaluator calls them once per condition.
type Directory interface {
	// UserGroupIDs returns the group IDs the user belongs to.
	UserGroupIDs(ctx context.Context, userID uint64) ([]uint64, error)
	// UserDepartmentID returns the user's department, 0 when unknown.
	UserDepartmentID(ctx context.Context, userID uint64) (uint64, error)
	// DeviceAreaID returns the area a device is installed in, 0 when unknown.
	DeviceAreaID(ctx context.Context, deviceID uint64) (uint64, error)
}

// ConditionEvaluator evaluates a rule's auxiliary conditions against a
// calculation input. It is pure with respect to the input: no side
// effects, no mutation. Unknown condition types evaluate to true so a
// missing implementation can never silently lock out subsidies;
// malformed condition payloads return an error, which excludes only
// the owning rule.
type ConditionEvaluator struct {
	dir      Directory // Optional; nil leaves membership conditions permissive.
	programs sync.Map  // Compiled expression cache, source -> *vm.Program.
}

// NewConditionEvaluator constructs an evaluator. dir may be nil.
func NewConditionEvaluator(dir Directory) *ConditionEvaluator {
	return &ConditionEvaluator{dir: dir}
}

// Evaluate reports whether a single condition holds for the input.
func (e *ConditionEvaluator) Evaluate(ctx context.Context, cond models.SubsidyRuleCondition, input CalculationInput) (bool, error) {
	switch strings.TrimSpace(cond.ConditionType) {
	case models.ConditionUserGroup:
		return e.evaluateUserGroup(ctx, cond.ConditionValue, input.UserID)
	case models.ConditionDepartment:
		return e.evaluateDepartment(ctx, cond.ConditionValue, input.UserID)
	case models.ConditionArea:
		return e.evaluateArea(ctx, cond.ConditionValue, input.DeviceID)
	case models.ConditionDevice:
		return evaluateMembership(cond.ConditionValue, input.DeviceID)
	case models.ConditionAmountRange:
		return evaluateAmountRange(cond.ConditionValue, input.ConsumeAmount)
	case models.ConditionExpression:
		return e.evaluateExpression(cond.ConditionValue, input)
	default:
		// Permissive default: an unrecognized condition type must not
		// reject the rule.
		return true, nil
	}
}

// evaluateUserGroup checks the user against a CSV list of group IDs.
func (e *ConditionEvaluator) evaluateUserGroup(ctx context.Context, value string, userID uint64) (bool, error) {
	if e.dir == nil {
		return true, nil
	}
	allowed, err := parseIDSet(value)
	if err != nil {
		return false, err
	}
	groups, errGroups := e.dir.UserGroupIDs(ctx, userID)
	if errGroups != nil {
		return false, fmt.Errorf("engine: resolve user groups: %w", errGroups)
	}
	for _, gid := range groups {
		if _, ok := allowed[gid]; ok {
			return true, nil
		}
	}
	return false, nil
}

// evaluateDepartment checks the user's department against a CSV list.
func (e *ConditionEvaluator) evaluateDepartment(ctx context.Context, value string, userID uint64) (bool, error) {
	if e.dir == nil {
		return true, nil
	}
	allowed, err := parseIDSet(value)
	if err != nil {
		return false, err
	}
	dept, errDept := e.dir.UserDepartmentID(ctx, userID)
	if errDept != nil {
		return false, fmt.Errorf("engine: resolve department: %w", errDept)
	}
	_, ok := allowed[dept]
	return ok, nil
}

// evaluateArea checks the device's area against a CSV list.
func (e *ConditionEvaluator) evaluateArea(ctx context.Context, value string, deviceID uint64) (bool, error) {
	if e.dir == nil {
		return true, nil
	}
	allowed, err := parseIDSet(value)
	if err != nil {
		return false, err
	}
	area, errArea := e.dir.DeviceAreaID(ctx, deviceID)
	if errArea != nil {
		return false, fmt.Errorf("engine: resolve device area: %w", errArea)
	}
	_, ok := allowed[area]
	return ok, nil
}

// evaluateMembership checks an ID against a CSV list.
func evaluateMembership(value string, id uint64) (bool, error) {
	allowed, err := parseIDSet(value)
	if err != nil {
		return false, err
	}
	_, ok := allowed[id]
	return ok, nil
}

// amountRange is the JSON payload of an amount_range condition.
type amountRange struct {
	Min *float64 `json:"min"` // Inclusive lower bound; nil means unbounded.
	Max *float64 `json:"max"` // Inclusive upper bound; nil means unbounded.
}

// evaluateAmountRange checks the consume amount against a JSON range.
func evaluateAmountRange(value string, amount float64) (bool, error) {
	var r amountRange
	if errUnmarshal := json.Unmarshal([]byte(value), &r); errUnmarshal != nil {
		return false, fmt.Errorf("engine: parse amount range: %w", errUnmarshal)
	}
	if r.Min != nil && amount < *r.Min {
		return false, nil
	}
	if r.Max != nil && amount > *r.Max {
		return false, nil
	}
	return true, nil
}

// evaluateExpression compiles and runs a boolean expression over the
// input. Compiled programs are cached by source.
func (e *ConditionEvaluator) evaluateExpression(source string, input CalculationInput) (bool, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return false, fmt.Errorf("engine: empty expression")
	}

	var program *vm.Program
	if cached, ok := e.programs.Load(source); ok {
		program = cached.(*vm.Program)
	} else {
		compiled, errCompile := expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables())
		if errCompile != nil {
			return false, fmt.Errorf("engine: compile expression: %w", errCompile)
		}
		e.programs.Store(source, compiled)
		program = compiled
	}

	env := map[string]any{
		"userId":        input.UserID,
		"consumeId":     input.ConsumeID,
		"deviceId":      input.DeviceID,
		"subsidyType":   input.SubsidyType,
		"mealType":      input.MealType,
		"consumeAmount": input.ConsumeAmount,
		"consumeTime":   input.ConsumeTime,
		"weekday":       int(input.ConsumeTime.Weekday()),
	}
	out, errRun := expr.Run(program, env)
	if errRun != nil {
		return false, fmt.Errorf("engine: run expression: %w", errRun)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("engine: expression is not boolean")
	}
	return result, nil
}

// parseIDSet parses a CSV of uint64 IDs into a set.
func parseIDSet(value string) (map[uint64]struct{}, error) {
	out := make(map[uint64]struct{})
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, errParse := strconv.ParseUint(part, 10, 64)
		if errParse != nil {
			return nil, fmt.Errorf("engine: parse id list %q: %w", value, errParse)
		}
		out[id] = struct{}{}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("engine: empty id list")
	}
	return out, nil
}

// parseIntSet parses a CSV of small integer codes into a set.
func parseIntSet(value string) map[int]struct{} {
	out := make(map[int]struct{})
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, errParse := strconv.Atoi(part)
		if errParse != nil {
			continue
		}
		out[code] = struct{}{}
	}
	return out
}
