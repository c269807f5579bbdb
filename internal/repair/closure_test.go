package repair

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/garagehq/vhc/internal/events"
	"github.com/garagehq/vhc/internal/lock"
	"github.com/garagehq/vhc/internal/models"
)

func outcome(o string) itemOpt {
	return func(i *models.RepairItem) { i.OutcomeStatus = &o }
}

func sortOrder(n int) itemOpt {
	return func(i *models.RepairItem) { i.SortOrder = n }
}

func TestClose_PendingOutcomes(t *testing.T) {
	svc, gdb, rec := newTestService(t)
	hc := createHealthCheck(t, gdb)
	createItem(t, gdb, hc, "Decided", outcome("declined"), sortOrder(0))
	pending := createItem(t, gdb, hc, "Pending", ready, sortOrder(1))
	incomplete := createItem(t, gdb, hc, "Incomplete", sortOrder(2))
	createItem(t, gdb, hc, "Deleted", func(i *models.RepairItem) { i.DeletedAt = &testNow })

	_, err := svc.Close(context.Background(), staff, hc.ID)
	var cerr *ClosureError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *ClosureError", err)
	}
	if cerr.Code != CodePendingOutcomes || cerr.Count != 2 {
		t.Fatalf("closure error = %+v", cerr)
	}
	if cerr.Items[0].ID != pending.ID || cerr.Items[0].Outcome != Ready || cerr.Items[0].Title != "Pending" {
		t.Errorf("Items[0] = %+v", cerr.Items[0])
	}
	if cerr.Items[1].ID != incomplete.ID || cerr.Items[1].Outcome != Incomplete {
		t.Errorf("Items[1] = %+v", cerr.Items[1])
	}

	var got models.HealthCheck
	gdb.First(&got, "id = ?", hc.ID)
	if got.Status == HealthCheckClosed || got.ClosedAt != nil {
		t.Error("health check closed despite pending items")
	}
	if len(rec.OfType(events.Closed)) != 0 {
		t.Error("closed event published on a refused close")
	}
}

func TestClose_GeneratesItemsFromFindingsFirst(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	hc := createHealthCheck(t, gdb)
	createFinding(t, gdb, hc, "Brake pads", "red", 0)
	createFinding(t, gdb, hc, "Tyres", "amber", 1)
	ctx := context.Background()

	_, err := svc.Close(ctx, staff, hc.ID)
	var cerr *ClosureError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *ClosureError", err)
	}
	if cerr.Code != CodePendingOutcomes || cerr.Count != 2 {
		t.Fatalf("closure error = %+v", cerr)
	}
	if cerr.Items[0].Title != "Brake pads" || cerr.Items[1].Title != "Tyres" {
		t.Errorf("blocking items = %+v", cerr.Items)
	}

	d, err := svc.Detail(ctx, staff, hc.ID)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if d.HealthCheck.Status == HealthCheckClosed {
		t.Error("health check closed with undecided findings")
	}
	if len(d.Items) != 2 {
		t.Errorf("items = %d, want 2", len(d.Items))
	}
}

func TestClose_FindingsWithoutItemsBlock(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	locker := lock.NewDB(gdb)
	svc.locker = locker
	hc := createHealthCheck(t, gdb)
	createFinding(t, gdb, hc, "Brake pads", "red", 0)
	ctx := context.Background()

	// Another reader is mid-generation, so Close cannot generate itself.
	lease, err := locker.Obtain(ctx, "autogen:"+hc.ID, time.Minute)
	if err != nil {
		t.Fatalf("Obtain: %v", err)
	}
	defer lease.Release(ctx)

	_, err = svc.Close(ctx, staff, hc.ID)
	assertKind(t, err, KindConflict, "ITEMS_NOT_GENERATED")

	var got models.HealthCheck
	gdb.First(&got, "id = ?", hc.ID)
	if got.Status == HealthCheckClosed {
		t.Error("health check closed while findings had no repair items")
	}
}

func TestDetail_ClosedHealthCheckIsNotGenerated(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	hc := createHealthCheck(t, gdb)
	createFinding(t, gdb, hc, "Brake pads", "red", 0)
	if err := gdb.Model(hc).Update("status", HealthCheckClosed).Error; err != nil {
		t.Fatal(err)
	}

	d, err := svc.Detail(context.Background(), staff, hc.ID)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if len(d.Items) != 0 {
		t.Errorf("items = %d on a closed health check, want 0", len(d.Items))
	}
}

func TestClose_IncompleteWork(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	hc := createHealthCheck(t, gdb)
	done := createItem(t, gdb, hc, "Done", outcome("authorised"), func(i *models.RepairItem) { i.WorkCompletedAt = &testNow })
	notDone := createItem(t, gdb, hc, "Not done", outcome("authorised"))
	createItem(t, gdb, hc, "Deferred", outcome("deferred"))

	_, err := svc.Close(context.Background(), staff, hc.ID)
	var cerr *ClosureError
	if !errors.As(err, &cerr) {
		t.Fatalf("error = %v, want *ClosureError", err)
	}
	if cerr.Code != CodeIncompleteWork || cerr.Count != 1 || cerr.Items[0].ID != notDone.ID {
		t.Errorf("closure error = %+v (done item %s)", cerr, done.ID)
	}
}

func TestClose_Success(t *testing.T) {
	svc, gdb, rec := newTestService(t)
	hc := createHealthCheck(t, gdb)
	createItem(t, gdb, hc, "Done", outcome("authorised"), priced("200"), func(i *models.RepairItem) { i.WorkCompletedAt = &testNow })
	createItem(t, gdb, hc, "Deferred", outcome("deferred"), priced("75"))
	createItem(t, gdb, hc, "Declined", outcome("declined"), priced("30"))
	createItem(t, gdb, hc, "Deleted", priced("1000"), func(i *models.RepairItem) { i.DeletedAt = &testNow })

	res, err := svc.Close(context.Background(), staff, hc.ID)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !res.ClosedAt.Equal(testNow) || res.ClosedBy != staff.UserID {
		t.Errorf("result = %+v", res)
	}
	if !res.Totals.Authorised.Equal(dec("200")) || !res.Totals.Deferred.Equal(dec("75")) || !res.Totals.Declined.Equal(dec("30")) {
		t.Errorf("Totals = %+v, deleted item must not be summed", res.Totals)
	}

	var got models.HealthCheck
	gdb.First(&got, "id = ?", hc.ID)
	if got.Status != HealthCheckClosed || got.ClosedBy == nil || *got.ClosedBy != staff.UserID {
		t.Errorf("health check = status %s closed_by %v", got.Status, got.ClosedBy)
	}

	evs := rec.OfType(events.Closed)
	if len(evs) != 1 || !evs[0].Total.Equal(dec("200")) {
		t.Errorf("closed events = %+v", evs)
	}

	_, err = svc.Close(context.Background(), staff, hc.ID)
	assertKind(t, err, KindConflict, "ALREADY_CLOSED")
}

func TestClose_EmptyHealthCheck(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	hc := createHealthCheck(t, gdb)

	if _, err := svc.Close(context.Background(), staff, hc.ID); err != nil {
		t.Fatalf("Close with no items: %v", err)
	}
}

func TestClose_WrongOrganization(t *testing.T) {
	svc, gdb, _ := newTestService(t)
	hc := createHealthCheck(t, gdb)

	_, err := svc.Close(context.Background(), Actor{UserID: "u", OrganizationID: "org-2"}, hc.ID)
	assertKind(t, err, KindNotFound, "")
}

// TestRepairLifecycle walks a health check from findings to closure through
// both the staff and customer channels.
func TestRepairLifecycle(t *testing.T) {
	svc, gdb, rec := newTestService(t)
	hc := createHealthCheck(t, gdb)
	createFinding(t, gdb, hc, "Front brake pads", "red", 0)
	createFinding(t, gdb, hc, "Rear tyres", "amber", 1)
	createFinding(t, gdb, hc, "Wiper blades", "amber", 2)
	ctx := context.Background()
	complete := StatusComplete
	yes := true

	d, err := svc.Detail(ctx, staff, hc.ID)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if len(d.Items) != 3 {
		t.Fatalf("generated %d items, want 3", len(d.Items))
	}
	brakes, tyres, wipers := d.Items[0].ID, d.Items[1].ID, d.Items[2].ID

	for _, id := range []string{brakes, tyres, wipers} {
		if _, err := svc.UpdateProgress(ctx, staff, hc.ID, id, ProgressInput{LabourStatus: &complete, NoPartsRequired: &yes}); err != nil {
			t.Fatalf("UpdateProgress %s: %v", id, err)
		}
	}
	if _, err := svc.Defer(ctx, staff, hc.ID, tyres, DeferInput{Until: testNow.Add(90 * 24 * time.Hour)}); err != nil {
		t.Fatalf("Defer: %v", err)
	}

	grant, err := svc.IssuePublicToken(ctx, staff, hc.ID)
	if err != nil {
		t.Fatalf("IssuePublicToken: %v", err)
	}
	if _, err := svc.Approve(ctx, grant.Token, brakes, nil); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := svc.DeclineOnline(ctx, grant.Token, wipers); err != nil {
		t.Fatalf("DeclineOnline: %v", err)
	}
	// Tyres were deferred by staff but remain open to the customer.
	if _, err := svc.Sign(ctx, grant.Token, SignInput{Data: signatureData(t)}); err == nil {
		t.Fatal("Sign succeeded with the deferred item undecided")
	}
	if _, err := svc.DeclineOnline(ctx, grant.Token, tyres); err != nil {
		t.Fatalf("DeclineOnline tyres: %v", err)
	}
	if _, err := svc.Sign(ctx, grant.Token, SignInput{Data: signatureData(t)}); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	_, err = svc.Close(ctx, staff, hc.ID)
	var cerr *ClosureError
	if !errors.As(err, &cerr) || cerr.Code != CodeIncompleteWork {
		t.Fatalf("Close before work done = %v, want INCOMPLETE_WORK", err)
	}

	if _, err := svc.MarkWorkComplete(ctx, staff, hc.ID, brakes); err != nil {
		t.Fatalf("MarkWorkComplete: %v", err)
	}
	res, err := svc.Close(ctx, staff, hc.ID)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if res.HealthCheckID != hc.ID {
		t.Errorf("closed %s, want %s", res.HealthCheckID, hc.ID)
	}

	_, err = svc.Reset(ctx, staff, hc.ID, wipers)
	assertKind(t, err, KindConflict, "HEALTH_CHECK_CLOSED")

	types := map[events.Type]int{}
	for _, e := range rec.Events() {
		types[e.Type]++
	}
	if types[events.Signed] != 1 || types[events.Closed] != 1 || types[events.OutcomeChanged] != 4 {
		t.Errorf("event counts = %v", types)
	}
}
