package engine

import (
	"context"
	"testing"

	"github.com/campuspay/subsidy-engine/internal/models"
)

// fakeDirectory answers membership lookups from fixed maps.
type fakeDirectory struct {
	groups      map[uint64][]uint64
	departments map[uint64]uint64
	areas       map[uint64]uint64
}

func (d *fakeDirectory) UserGroupIDs(_ context.Context, userID uint64) ([]uint64, error) {
	return d.groups[userID], nil
}

func (d *fakeDirectory) UserDepartmentID(_ context.Context, userID uint64) (uint64, error) {
	return d.departments[userID], nil
}

func (d *fakeDirectory) DeviceAreaID(_ context.Context, deviceID uint64) (uint64, error) {
	return d.areas[deviceID], nil
}

func condition(condType, value string) models.SubsidyRuleCondition {
	return models.SubsidyRuleCondition{
		RuleID:         1,
		ConditionType:  condType,
		ConditionValue: value,
		Status:         models.RuleStatusActive,
	}
}

func TestEvaluateUserGroupCondition(t *testing.T) {
	dir := &fakeDirectory{groups: map[uint64][]uint64{1001: {7, 9}}}
	evaluator := NewConditionEvaluator(dir)
	input := testInput(20)

	ok, err := evaluator.Evaluate(context.Background(), condition(models.ConditionUserGroup, "9,12"), input)
	if err != nil || !ok {
		t.Fatalf("expected member match, got ok=%v err=%v", ok, err)
	}

	ok, err = evaluator.Evaluate(context.Background(), condition(models.ConditionUserGroup, "12,13"), input)
	if err != nil || ok {
		t.Fatalf("expected non-member, got ok=%v err=%v", ok, err)
	}
}

func TestEvaluateDepartmentCondition(t *testing.T) {
	dir := &fakeDirectory{departments: map[uint64]uint64{1001: 30}}
	evaluator := NewConditionEvaluator(dir)
	input := testInput(20)

	ok, err := evaluator.Evaluate(context.Background(), condition(models.ConditionDepartment, "30"), input)
	if err != nil || !ok {
		t.Fatalf("expected department match, got ok=%v err=%v", ok, err)
	}

	ok, err = evaluator.Evaluate(context.Background(), condition(models.ConditionDepartment, "31"), input)
	if err != nil || ok {
		t.Fatalf("expected department mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestEvaluateAreaCondition(t *testing.T) {
	dir := &fakeDirectory{areas: map[uint64]uint64{42: 5}}
	evaluator := NewConditionEvaluator(dir)
	input := testInput(20)

	ok, err := evaluator.Evaluate(context.Background(), condition(models.ConditionArea, "5,6"), input)
	if err != nil || !ok {
		t.Fatalf("expected area match, got ok=%v err=%v", ok, err)
	}
}

func TestEvaluateDeviceCondition(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)
	input := testInput(20) // DeviceID 42.

	ok, err := evaluator.Evaluate(context.Background(), condition(models.ConditionDevice, "41,42"), input)
	if err != nil || !ok {
		t.Fatalf("expected device match, got ok=%v err=%v", ok, err)
	}

	ok, err = evaluator.Evaluate(context.Background(), condition(models.ConditionDevice, "41"), input)
	if err != nil || ok {
		t.Fatalf("expected device mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestEvaluateDeviceConditionEmptyListErrors(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)

	if _, err := evaluator.Evaluate(context.Background(), condition(models.ConditionDevice, " , "), testInput(20)); err == nil {
		t.Fatal("expected error for empty id list")
	}
}

func TestEvaluateAmountRangeCondition(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)

	ok, err := evaluator.Evaluate(context.Background(), condition(models.ConditionAmountRange, `{"min":10,"max":30}`), testInput(20))
	if err != nil || !ok {
		t.Fatalf("expected in-range, got ok=%v err=%v", ok, err)
	}

	ok, err = evaluator.Evaluate(context.Background(), condition(models.ConditionAmountRange, `{"min":25}`), testInput(20))
	if err != nil || ok {
		t.Fatalf("expected below min, got ok=%v err=%v", ok, err)
	}

	ok, err = evaluator.Evaluate(context.Background(), condition(models.ConditionAmountRange, `{"max":15}`), testInput(20))
	if err != nil || ok {
		t.Fatalf("expected above max, got ok=%v err=%v", ok, err)
	}

	if _, err = evaluator.Evaluate(context.Background(), condition(models.ConditionAmountRange, "not json"), testInput(20)); err == nil {
		t.Fatal("expected error for malformed range")
	}
}

func TestEvaluateExpressionCondition(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)
	input := testInput(20) // MealType 2.

	ok, err := evaluator.Evaluate(context.Background(), condition(models.ConditionExpression, "consumeAmount > 10 && mealType == 2"), input)
	if err != nil || !ok {
		t.Fatalf("expected expression true, got ok=%v err=%v", ok, err)
	}

	ok, err = evaluator.Evaluate(context.Background(), condition(models.ConditionExpression, "consumeAmount > 100"), input)
	if err != nil || ok {
		t.Fatalf("expected expression false, got ok=%v err=%v", ok, err)
	}

	if _, err = evaluator.Evaluate(context.Background(), condition(models.ConditionExpression, "consumeAmount +"), input); err == nil {
		t.Fatal("expected compile error")
	}

	if _, err = evaluator.Evaluate(context.Background(), condition(models.ConditionExpression, ""), input); err == nil {
		t.Fatal("expected error for empty expression")
	}
}

func TestEvaluateUnknownConditionTypePermissive(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)

	ok, err := evaluator.Evaluate(context.Background(), condition("holiday", "whatever"), testInput(20))
	if err != nil || !ok {
		t.Fatalf("unknown type must be permissive, got ok=%v err=%v", ok, err)
	}
}

func TestEvaluateMembershipWithoutDirectoryPermissive(t *testing.T) {
	evaluator := NewConditionEvaluator(nil)

	for _, condType := range []string{models.ConditionUserGroup, models.ConditionDepartment, models.ConditionArea} {
		ok, err := evaluator.Evaluate(context.Background(), condition(condType, "1,2"), testInput(20))
		if err != nil || !ok {
			t.Fatalf("%s without directory must be permissive, got ok=%v err=%v", condType, ok, err)
		}
	}
}
