package engine

import (
	"testing"
	"time"

	"github.com/campuspay/subsidy-engine/internal/models"
)

// 2026-03-02 is a Monday, 2026-03-07 a Saturday.
var (
	monday   = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	saturday = time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
)

func TestRuleWindowContains(t *testing.T) {
	expire := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	rule := &models.SubsidyRule{
		EffectiveDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpireDate:    &expire,
	}

	if !ruleWindowContains(rule, monday) {
		t.Fatal("instant inside window rejected")
	}
	if ruleWindowContains(rule, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("instant before effective date accepted")
	}
	if ruleWindowContains(rule, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("instant after expire date accepted")
	}

	openEnded := &models.SubsidyRule{EffectiveDate: rule.EffectiveDate}
	if !ruleWindowContains(openEnded, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("open-ended rule rejected future instant")
	}
}

func TestRuleAppliesToTimeModes(t *testing.T) {
	all := &models.SubsidyRule{ApplyTimeType: models.ApplyTimeAll}
	if !ruleAppliesToTime(all, monday) || !ruleAppliesToTime(all, saturday) {
		t.Fatal("all mode must accept every day")
	}

	weekday := &models.SubsidyRule{ApplyTimeType: models.ApplyTimeWeekday}
	if !ruleAppliesToTime(weekday, monday) {
		t.Fatal("weekday mode rejected Monday")
	}
	if ruleAppliesToTime(weekday, saturday) {
		t.Fatal("weekday mode accepted Saturday")
	}

	weekend := &models.SubsidyRule{ApplyTimeType: models.ApplyTimeWeekend}
	if ruleAppliesToTime(weekend, monday) {
		t.Fatal("weekend mode accepted Monday")
	}
	if !ruleAppliesToTime(weekend, saturday) {
		t.Fatal("weekend mode rejected Saturday")
	}
}

func TestRuleAppliesToTimeCustom(t *testing.T) {
	custom := &models.SubsidyRule{
		ApplyTimeType: models.ApplyTimeCustom,
		ApplyDays:     "1,6", // Monday and Saturday.
	}
	if !ruleAppliesToTime(custom, monday) || !ruleAppliesToTime(custom, saturday) {
		t.Fatal("custom mode rejected listed days")
	}
	sunday := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	if ruleAppliesToTime(custom, sunday) {
		t.Fatal("custom mode accepted unlisted day")
	}

	empty := &models.SubsidyRule{ApplyTimeType: models.ApplyTimeCustom}
	if ruleAppliesToTime(empty, monday) {
		t.Fatal("custom mode with no days must reject")
	}
}

func TestRuleAppliesToTimeCustomWindow(t *testing.T) {
	custom := &models.SubsidyRule{
		ApplyTimeType:  models.ApplyTimeCustom,
		ApplyDays:      "1",
		ApplyStartTime: stringPtr("11:00"),
		ApplyEndTime:   stringPtr("13:00"),
	}
	if !ruleAppliesToTime(custom, monday) {
		t.Fatal("12:00 inside 11:00-13:00 rejected")
	}
	evening := time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)
	if ruleAppliesToTime(custom, evening) {
		t.Fatal("18:30 outside 11:00-13:00 accepted")
	}
}

func TestRuleAppliesToTimeUnknownModePermissive(t *testing.T) {
	rule := &models.SubsidyRule{ApplyTimeType: models.ApplyTimeType(42)}
	if !ruleAppliesToTime(rule, monday) {
		t.Fatal("unknown apply time mode must be permissive")
	}
}

func TestRuleAppliesToMeal(t *testing.T) {
	rule := &models.SubsidyRule{ApplyMealTypes: "1,2"}
	if !ruleAppliesToMeal(rule, 2) {
		t.Fatal("listed meal type rejected")
	}
	if ruleAppliesToMeal(rule, 3) {
		t.Fatal("unlisted meal type accepted")
	}

	unrestricted := &models.SubsidyRule{}
	if !ruleAppliesToMeal(unrestricted, 3) {
		t.Fatal("empty meal list must be unrestricted")
	}
}

func TestClockWithinWindow(t *testing.T) {
	noon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if !clockWithinWindow(noon, "11:00", "13:00") {
		t.Fatal("noon inside window rejected")
	}
	if !clockWithinWindow(noon, "12:00", "12:00") {
		t.Fatal("inclusive bounds rejected exact match")
	}
	if clockWithinWindow(noon, "13:00", "14:00") {
		t.Fatal("noon outside window accepted")
	}
	if clockWithinWindow(noon, "bogus", "14:00") {
		t.Fatal("malformed start must fail closed")
	}
	if clockWithinWindow(noon, "11:00", "25:99") {
		t.Fatal("out-of-range end must fail closed")
	}
}

func TestClockWithinWindowSecondPrecision(t *testing.T) {
	justPast := time.Date(2026, 3, 2, 12, 0, 59, 0, time.UTC)
	if clockWithinWindow(justPast, "11:00", "12:00") {
		t.Fatal("12:00:59 must be outside an end bound of 12:00")
	}
	exact := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	if !clockWithinWindow(exact, "11:00", "12:00") {
		t.Fatal("12:00:00 on the end bound rejected")
	}
	justBefore := time.Date(2026, 3, 2, 10, 59, 59, 0, time.UTC)
	if clockWithinWindow(justBefore, "11:00", "12:00") {
		t.Fatal("10:59:59 must be outside a start bound of 11:00")
	}
}

func TestIsoWeekday(t *testing.T) {
	if got := isoWeekday(monday); got != 1 {
		t.Fatalf("isoWeekday(Monday) = %d, want 1", got)
	}
	sunday := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	if got := isoWeekday(sunday); got != 7 {
		t.Fatalf("isoWeekday(Sunday) = %d, want 7", got)
	}
}
