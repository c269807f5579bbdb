package repair

import (
	"context"
	"testing"
	"time"

	"github.com/garagehq/vhc/internal/models"
)

func TestCreateRepairItem(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	hc := createHealthCheck(t, gdb)
	f := createFinding(t, gdb, hc, "Brake fluid", "amber", 0)

	view, err := svc.CreateRepairItem(context.Background(), staff, hc.ID, CreateItemInput{
		Name:       "  Brake fluid change ",
		Labour:     dec("40"),
		Parts:      dec("10"),
		VAT:        dec("10"),
		FindingIDs: []string{f.ID},
		Options: []OptionInput{
			{Name: "Standard", Labour: dec("40"), Parts: dec("10"), VAT: dec("10")},
			{Name: "Premium", Labour: dec("40"), Parts: dec("25"), VAT: dec("13"), IsRecommended: true},
		},
	})
	if err != nil {
		t.Fatalf("CreateRepairItem: %v", err)
	}
	if view.Name != "Brake fluid change" || view.Source != ItemSourceManual {
		t.Errorf("view = %+v", view)
	}
	if view.Severity != SeverityAmber {
		t.Errorf("Severity = %q, want amber from the linked finding", view.Severity)
	}
	if len(view.Options) != 2 {
		t.Fatalf("options = %d, want 2", len(view.Options))
	}
	if !view.Price.Total.Equal(dec("78")) || !view.Options[1].Selected {
		t.Errorf("price = %+v, want the recommended option (78)", view.Price)
	}
	if view.Outcome != Incomplete {
		t.Errorf("Outcome = %s, want incomplete", view.Outcome)
	}
}

func TestCreateRepairItem_Validation(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	hc := createHealthCheck(t, gdb)
	other := createHealthCheck(t, gdb)
	foreignFinding := createFinding(t, gdb, other, "Elsewhere", "red", 0)
	leaf := createItem(t, gdb, hc, "Leaf")

	tests := []struct {
		name string
		in   CreateItemInput
		code string
	}{
		{"name required", CreateItemInput{Name: "  "}, "NAME_REQUIRED"},
		{"bad source", CreateItemInput{Name: "x", Source: "finding"}, "INVALID_SOURCE"},
		{"bad severity", CreateItemInput{Name: "x", Severity: "purple"}, "INVALID_SEVERITY"},
		{"group with findings", CreateItemInput{Name: "x", IsGroup: true, FindingIDs: []string{"f"}}, "GROUP_FINDINGS"},
		{"nested group", CreateItemInput{Name: "x", IsGroup: true, ParentID: leaf.ID}, "NESTED_GROUP"},
		{"option name", CreateItemInput{Name: "x", Options: []OptionInput{{}}}, "NAME_REQUIRED"},
		{"parent not a group", CreateItemInput{Name: "x", ParentID: leaf.ID}, "INVALID_PARENT"},
		{"finding from another health check", CreateItemInput{Name: "x", FindingIDs: []string{foreignFinding.ID}}, "INVALID_FINDING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateRepairItem(context.Background(), staff, hc.ID, tt.in)
			assertKind(t, err, KindValidation, tt.code)
		})
	}
}

func TestCreateRepairItem_IntoGroup(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	hc := createHealthCheck(t, gdb)
	ctx := context.Background()

	group, err := svc.CreateRepairItem(ctx, staff, hc.ID, CreateItemInput{Name: "Brakes", IsGroup: true})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	child, err := svc.CreateRepairItem(ctx, staff, hc.ID, CreateItemInput{Name: "Pads", ParentID: group.ID, Severity: "red"})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if child.ParentID == nil || *child.ParentID != group.ID {
		t.Errorf("ParentID = %v, want %s", child.ParentID, group.ID)
	}

	d, err := svc.Detail(ctx, staff, hc.ID)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if len(d.Items) != 1 || len(d.Items[0].Children) != 1 {
		t.Fatalf("detail items = %+v, want one group with one child", d.Items)
	}
}

func TestUpdateProgress_MakesItemReady(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	hc := createHealthCheck(t, gdb)
	item := createItem(t, gdb, hc, "Oil change")
	complete := StatusComplete
	yes := true

	view, err := svc.UpdateProgress(context.Background(), staff, hc.ID, item.ID, ProgressInput{
		LabourStatus:    &complete,
		NoPartsRequired: &yes,
	})
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if view.Outcome != Ready {
		t.Errorf("Outcome = %s, want ready", view.Outcome)
	}
}

func TestUpdateProgress_Validation(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	hc := createHealthCheck(t, gdb)
	item := createItem(t, gdb, hc, "Oil change")
	bogus := "done"

	_, err := svc.UpdateProgress(context.Background(), staff, hc.ID, item.ID, ProgressInput{PartsStatus: &bogus})
	assertKind(t, err, KindValidation, "INVALID_STATUS")

	_, err = svc.UpdateProgress(context.Background(), staff, hc.ID, item.ID, ProgressInput{})
	assertKind(t, err, KindValidation, "NOTHING_TO_UPDATE")
}

func TestUpdateProgress_DeletedItem(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	hc := createHealthCheck(t, gdb)
	item := createItem(t, gdb, hc, "Gone", func(i *models.RepairItem) { i.DeletedAt = &testNow })
	complete := StatusComplete

	_, err := svc.UpdateProgress(context.Background(), staff, hc.ID, item.ID, ProgressInput{LabourStatus: &complete})
	assertKind(t, err, KindConflict, "ITEM_DELETED")
}

func TestMarkWorkComplete(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	hc := createHealthCheck(t, gdb)
	item := createItem(t, gdb, hc, "Brake pads", ready)
	ctx := context.Background()

	_, err := svc.MarkWorkComplete(ctx, staff, hc.ID, item.ID)
	assertKind(t, err, KindConflict, "NOT_AUTHORISED")

	if _, err := svc.Authorise(ctx, staff, hc.ID, item.ID); err != nil {
		t.Fatalf("Authorise: %v", err)
	}
	view, err := svc.MarkWorkComplete(ctx, staff, hc.ID, item.ID)
	if err != nil {
		t.Fatalf("MarkWorkComplete: %v", err)
	}
	if view.WorkCompletedAt == nil || !view.WorkCompletedAt.Equal(testNow) {
		t.Errorf("WorkCompletedAt = %v, want %v", view.WorkCompletedAt, testNow)
	}

	later := testNow.Add(time.Hour)
	svc.now = func() time.Time { return later }
	view, err = svc.MarkWorkComplete(ctx, staff, hc.ID, item.ID)
	if err != nil {
		t.Fatalf("second MarkWorkComplete: %v", err)
	}
	if !view.WorkCompletedAt.Equal(testNow) {
		t.Errorf("WorkCompletedAt moved to %v on repeat", view.WorkCompletedAt)
	}

	view, err = svc.ClearWorkComplete(ctx, staff, hc.ID, item.ID)
	if err != nil {
		t.Fatalf("ClearWorkComplete: %v", err)
	}
	if view.WorkCompletedAt != nil || view.WorkCompletedBy != nil {
		t.Errorf("work completion not cleared: %v %v", view.WorkCompletedAt, view.WorkCompletedBy)
	}
}

func TestSelectOption(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	hc := createHealthCheck(t, gdb)
	item := createItem(t, gdb, hc, "Tyres", func(i *models.RepairItem) {
		i.Options = []models.RepairOption{
			{ID: "opt-budget", Name: "Budget", Total: dec("80"), SortOrder: 0},
			{ID: "opt-premium", Name: "Premium", Total: dec("160"), SortOrder: 1, IsRecommended: true},
		}
	})
	ctx := context.Background()

	view, err := svc.SelectOption(ctx, staff, hc.ID, item.ID, "opt-budget")
	if err != nil {
		t.Fatalf("SelectOption: %v", err)
	}
	if !view.Price.Total.Equal(dec("80")) {
		t.Errorf("Total = %s, want 80 after selecting budget", view.Price.Total)
	}

	_, err = svc.SelectOption(ctx, staff, hc.ID, item.ID, "opt-other")
	assertKind(t, err, KindValidation, "INVALID_OPTION")
}

func TestIssuePublicToken(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	hc := createHealthCheck(t, gdb)
	ctx := context.Background()

	grant, err := svc.IssuePublicToken(ctx, staff, hc.ID)
	if err != nil {
		t.Fatalf("IssuePublicToken: %v", err)
	}
	if len(grant.Token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(grant.Token))
	}
	if !grant.ExpiresAt.Equal(testNow.Add(DefaultTokenTTL)) {
		t.Errorf("ExpiresAt = %v", grant.ExpiresAt)
	}

	var got models.HealthCheck
	if err := gdb.First(&got, "id = ?", hc.ID).Error; err != nil {
		t.Fatal(err)
	}
	if got.Status != HealthCheckAwaitingAuthorisation {
		t.Errorf("status = %s, want awaiting_authorisation", got.Status)
	}
	if got.PublicToken == nil || *got.PublicToken != grant.Token {
		t.Errorf("stored token = %v", got.PublicToken)
	}

	rotated, err := svc.IssuePublicToken(ctx, staff, hc.ID)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.Token == grant.Token {
		t.Error("rotation returned the same token")
	}
	if _, err := svc.Portal(ctx, grant.Token); err == nil {
		t.Error("old token still resolves after rotation")
	}
}
