package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/campuspay/subsidy-engine/internal/db"
	"github.com/campuspay/subsidy-engine/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return New(conn)
}

func seedRule(t *testing.T, st *Store, rule *models.SubsidyRule) {
	t.Helper()
	if rule.EffectiveDate.IsZero() {
		rule.EffectiveDate = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if errCreate := st.CreateRule(context.Background(), rule); errCreate != nil {
		t.Fatalf("seed rule %s: %v", rule.RuleCode, errCreate)
	}
}

func TestEffectiveRulesBySubsidyTypeFiltersAndOrders(t *testing.T) {
	st := openTestStore(t)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	expired := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	seedRule(t, st, &models.SubsidyRule{RuleCode: "LOW", RuleName: "low", SubsidyType: 1, RuleType: models.RuleTypeFixed, Status: models.RuleStatusActive, Priority: 10})
	seedRule(t, st, &models.SubsidyRule{RuleCode: "HIGH", RuleName: "high", SubsidyType: 1, RuleType: models.RuleTypeFixed, Status: models.RuleStatusActive, Priority: 100})
	seedRule(t, st, &models.SubsidyRule{RuleCode: "INACTIVE", RuleName: "off", SubsidyType: 1, RuleType: models.RuleTypeFixed, Status: models.RuleStatusInactive, Priority: 200})
	seedRule(t, st, &models.SubsidyRule{RuleCode: "EXPIRED", RuleName: "old", SubsidyType: 1, RuleType: models.RuleTypeFixed, Status: models.RuleStatusActive, Priority: 300, ExpireDate: &expired})
	seedRule(t, st, &models.SubsidyRule{RuleCode: "FUTURE", RuleName: "soon", SubsidyType: 1, RuleType: models.RuleTypeFixed, Status: models.RuleStatusActive, Priority: 400, EffectiveDate: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)})
	seedRule(t, st, &models.SubsidyRule{RuleCode: "OTHER", RuleName: "other type", SubsidyType: 2, RuleType: models.RuleTypeFixed, Status: models.RuleStatusActive, Priority: 500})

	rules, err := st.EffectiveRulesBySubsidyType(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(rules))
	}
	if rules[0].RuleCode != "HIGH" || rules[1].RuleCode != "LOW" {
		t.Fatalf("order = %s, %s; want HIGH, LOW", rules[0].RuleCode, rules[1].RuleCode)
	}
}

func TestEffectiveRulesPriorityTieBreaksOnID(t *testing.T) {
	st := openTestStore(t)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	seedRule(t, st, &models.SubsidyRule{RuleCode: "FIRST", RuleName: "first", SubsidyType: 1, RuleType: models.RuleTypeFixed, Status: models.RuleStatusActive, Priority: 50})
	seedRule(t, st, &models.SubsidyRule{RuleCode: "SECOND", RuleName: "second", SubsidyType: 1, RuleType: models.RuleTypeFixed, Status: models.RuleStatusActive, Priority: 50})

	rules, err := st.EffectiveRulesBySubsidyType(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 2 || rules[0].RuleCode != "FIRST" {
		t.Fatalf("tie break broken: %+v", rules)
	}
}

func TestCreateRuleDuplicateCode(t *testing.T) {
	st := openTestStore(t)
	seedRule(t, st, &models.SubsidyRule{RuleCode: "DUP", RuleName: "one", SubsidyType: 1, RuleType: models.RuleTypeFixed, Status: models.RuleStatusActive})

	err := st.CreateRule(context.Background(), &models.SubsidyRule{
		RuleCode: "DUP", RuleName: "two", SubsidyType: 1, RuleType: models.RuleTypeFixed,
		Status: models.RuleStatusActive, EffectiveDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrDuplicateRuleCode) {
		t.Fatalf("err = %v, want ErrDuplicateRuleCode", err)
	}
}

func TestRuleLookups(t *testing.T) {
	st := openTestStore(t)
	rule := &models.SubsidyRule{RuleCode: "LOOK", RuleName: "look", SubsidyType: 1, RuleType: models.RuleTypeFixed, Status: models.RuleStatusActive}
	seedRule(t, st, rule)

	byID, err := st.Rule(context.Background(), rule.ID)
	if err != nil || byID.RuleCode != "LOOK" {
		t.Fatalf("by id: %v %+v", err, byID)
	}
	byCode, err := st.RuleByCode(context.Background(), "LOOK")
	if err != nil || byCode.ID != rule.ID {
		t.Fatalf("by code: %v %+v", err, byCode)
	}
	if _, err = st.Rule(context.Background(), 9999); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("missing id err = %v, want ErrRuleNotFound", err)
	}
}

func TestSetRuleStatusAndPriority(t *testing.T) {
	st := openTestStore(t)
	rule := &models.SubsidyRule{RuleCode: "TOGGLE", RuleName: "toggle", SubsidyType: 1, RuleType: models.RuleTypeFixed, Status: models.RuleStatusActive, Priority: 1}
	seedRule(t, st, rule)

	found, err := st.SetRuleStatus(context.Background(), rule.ID, models.RuleStatusInactive)
	if err != nil || !found {
		t.Fatalf("set status: found=%v err=%v", found, err)
	}
	reloaded, _ := st.Rule(context.Background(), rule.ID)
	if reloaded.Status != models.RuleStatusInactive {
		t.Fatalf("status = %v, want inactive", reloaded.Status)
	}

	found, err = st.SetRulePriority(context.Background(), rule.ID, 77)
	if err != nil || !found {
		t.Fatalf("set priority: found=%v err=%v", found, err)
	}
	reloaded, _ = st.Rule(context.Background(), rule.ID)
	if reloaded.Priority != 77 {
		t.Fatalf("priority = %d, want 77", reloaded.Priority)
	}

	found, err = st.SetRuleStatus(context.Background(), 9999, models.RuleStatusActive)
	if err != nil || found {
		t.Fatalf("missing id: found=%v err=%v", found, err)
	}
}

func TestDeleteRuleRemovesConditions(t *testing.T) {
	st := openTestStore(t)
	rule := &models.SubsidyRule{RuleCode: "DEL", RuleName: "del", SubsidyType: 1, RuleType: models.RuleTypeFixed, Status: models.RuleStatusActive}
	seedRule(t, st, rule)

	condition := &models.SubsidyRuleCondition{RuleID: rule.ID, ConditionType: models.ConditionDevice, ConditionValue: "1", Status: models.RuleStatusActive}
	if errCreate := st.CreateCondition(context.Background(), condition); errCreate != nil {
		t.Fatalf("create condition: %v", errCreate)
	}

	if errDelete := st.DeleteRule(context.Background(), rule.ID); errDelete != nil {
		t.Fatalf("delete: %v", errDelete)
	}
	conditions, errList := st.RuleConditions(context.Background(), rule.ID)
	if errList != nil {
		t.Fatalf("list conditions: %v", errList)
	}
	if len(conditions) != 0 {
		t.Fatalf("conditions = %d, want 0 after rule delete", len(conditions))
	}

	if errDelete := st.DeleteRule(context.Background(), rule.ID); !errors.Is(errDelete, ErrRuleNotFound) {
		t.Fatalf("second delete err = %v, want ErrRuleNotFound", errDelete)
	}
}

func TestActiveConditionsSkipsInactive(t *testing.T) {
	st := openTestStore(t)
	rule := &models.SubsidyRule{RuleCode: "COND", RuleName: "cond", SubsidyType: 1, RuleType: models.RuleTypeFixed, Status: models.RuleStatusActive}
	seedRule(t, st, rule)

	active := &models.SubsidyRuleCondition{RuleID: rule.ID, ConditionType: models.ConditionDevice, ConditionValue: "1", Status: models.RuleStatusActive}
	inactive := &models.SubsidyRuleCondition{RuleID: rule.ID, ConditionType: models.ConditionArea, ConditionValue: "2", Status: models.RuleStatusInactive}
	for _, condition := range []*models.SubsidyRuleCondition{active, inactive} {
		if errCreate := st.CreateCondition(context.Background(), condition); errCreate != nil {
			t.Fatalf("create condition: %v", errCreate)
		}
	}

	conditions, err := st.ActiveConditions(context.Background(), rule.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(conditions) != 1 || conditions[0].ConditionType != models.ConditionDevice {
		t.Fatalf("unexpected conditions: %+v", conditions)
	}
}

func TestCreateConditionRequiresRule(t *testing.T) {
	st := openTestStore(t)
	err := st.CreateCondition(context.Background(), &models.SubsidyRuleCondition{
		RuleID: 9999, ConditionType: models.ConditionDevice, ConditionValue: "1", Status: models.RuleStatusActive,
	})
	if !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("err = %v, want ErrRuleNotFound", err)
	}
}

func TestListRulesKeywordFilter(t *testing.T) {
	st := openTestStore(t)
	seedRule(t, st, &models.SubsidyRule{RuleCode: "LUNCH-01", RuleName: "Lunch subsidy", SubsidyType: 1, RuleType: models.RuleTypeFixed, Status: models.RuleStatusActive})
	seedRule(t, st, &models.SubsidyRule{RuleCode: "DINNER-01", RuleName: "Dinner subsidy", SubsidyType: 1, RuleType: models.RuleTypeFixed, Status: models.RuleStatusActive})

	rules, err := st.ListRules(context.Background(), RuleFilter{Keyword: "lunch"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 1 || rules[0].RuleCode != "LUNCH-01" {
		t.Fatalf("keyword filter broken: %+v", rules)
	}
}

func TestLogAndRecordRoundTrip(t *testing.T) {
	st := openTestStore(t)
	consumeTime := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	logRow := &models.SubsidyRuleLog{
		LogUUID: "log-1", ConsumeID: 500, UserID: 1001, DeviceID: 42,
		ConsumeAmount: 20, ConsumeTime: consumeTime, SubsidyAmount: 5,
		ExecutionStatus: models.ExecutionSuccess,
	}
	if errCreate := st.CreateLog(context.Background(), logRow); errCreate != nil {
		t.Fatalf("create log: %v", errCreate)
	}

	userID := uint64(1001)
	logs, total, err := st.ListLogs(context.Background(), LogFilter{UserID: &userID}, 10, 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if total != 1 || len(logs) != 1 || logs[0].LogUUID != "log-1" {
		t.Fatalf("unexpected logs: total=%d %+v", total, logs)
	}

	record := &models.UserSubsidyRecord{
		RecordUUID: "rec-1", UserID: 1001, SubsidyType: 1, SubsidyAmount: 5,
		ConsumeAmount: 20, RuleID: 1, ConsumeID: 500, DeviceID: 42, MealType: 2,
		SubsidyDate: consumeTime.Truncate(24 * time.Hour), ConsumeTime: consumeTime,
		Status: models.RecordStatusGranted,
	}
	if errCreate := st.CreateRecord(context.Background(), record); errCreate != nil {
		t.Fatalf("create record: %v", errCreate)
	}

	records, total, err := st.ListRecords(context.Background(), RecordFilter{UserID: &userID}, 10, 0)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if total != 1 || len(records) != 1 || records[0].RecordUUID != "rec-1" {
		t.Fatalf("unexpected records: total=%d %+v", total, records)
	}

	sum, err := st.UserSubsidyTotal(context.Background(), 1001,
		consumeTime.Add(-24*time.Hour), consumeTime.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != 5 {
		t.Fatalf("sum = %v, want 5", sum)
	}
}

func TestReverseRecord(t *testing.T) {
	st := openTestStore(t)
	consumeTime := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	record := &models.UserSubsidyRecord{
		RecordUUID: "rec-2", UserID: 1001, SubsidyType: 1, SubsidyAmount: 5,
		ConsumeAmount: 20, RuleID: 1, ConsumeID: 501, DeviceID: 42, MealType: 2,
		SubsidyDate: consumeTime.Truncate(24 * time.Hour), ConsumeTime: consumeTime,
		Status: models.RecordStatusGranted,
	}
	if errCreate := st.CreateRecord(context.Background(), record); errCreate != nil {
		t.Fatalf("create record: %v", errCreate)
	}

	reversed, err := st.ReverseRecord(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if reversed.Status != models.RecordStatusReversed || reversed.UserID != 1001 {
		t.Fatalf("unexpected reversed record: %+v", reversed)
	}

	reloaded, err := st.Record(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Status != models.RecordStatusReversed {
		t.Fatalf("status = %d, want reversed", reloaded.Status)
	}

	// Reversed grants no longer count toward the user's subsidy total.
	sum, err := st.UserSubsidyTotal(context.Background(), 1001,
		consumeTime.Add(-24*time.Hour), consumeTime.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if sum != 0 {
		t.Fatalf("sum = %v, want 0 after reversal", sum)
	}

	if _, err = st.ReverseRecord(context.Background(), record.ID); !errors.Is(err, ErrRecordReversed) {
		t.Fatalf("second reverse err = %v, want ErrRecordReversed", err)
	}
	if _, err = st.ReverseRecord(context.Background(), 9999); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("unknown record err = %v, want ErrRecordNotFound", err)
	}
	if _, err = st.Record(context.Background(), 9999); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("record lookup err = %v, want ErrRecordNotFound", err)
	}
}
