package core

import (
	"errors"
	"farmvault/pkg/domain"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// A caller that holds a decoded record across a suspension and writes it back
// overwrites anything stored in between.
func TestInterleavedRoundTripIsLastWriterWins(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	p := mustProducer(t, s, "alice")

	// A reads.
	held, err := s.GetProducer(ctx, p.ID)
	if err != nil {
		t.Fatalf("A get: %v", err)
	}
	// B verifies in between.
	if err := s.Verify(ctx, domain.EntityProducer, p.ID, true); err != nil {
		t.Fatalf("B verify: %v", err)
	}
	if got, _ := s.GetProducer(ctx, p.ID); !got.Verified {
		t.Fatalf("B write not visible")
	}
	// A writes its stale copy.
	held.FarmDescription = "irrigated maize"
	if err := s.PutProducer(ctx, held); err != nil {
		t.Fatalf("A put: %v", err)
	}
	got, _ := s.GetProducer(ctx, p.ID)
	if got.Verified {
		t.Fatalf("expected A's stale copy to overwrite B's verification")
	}
	if got.FarmDescription != "irrigated maize" {
		t.Fatalf("A's change lost: %q", got.FarmDescription)
	}
}

func TestPutProducerRequiresExistingRecord(t *testing.T) {
	s := newTestStore(t)
	if err := s.PutProducer(t.Context(), domain.Producer{ID: 7}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("put unknown: %v", err)
	}
}

func TestUpdateKeepsIDAndOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	v := mustInvestor(t, s, "ivy")
	out, err := s.UpdateInvestor(ctx, v.ID, func(in *domain.Investor) error {
		in.ID = 99
		in.Owner = "mallory"
		in.Name = "Ivy Capital"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if out.ID != v.ID || out.Owner != "ivy" || out.Name != "Ivy Capital" {
		t.Fatalf("unexpected update result %+v", out)
	}
	boom := errors.New("boom")
	if _, err := s.UpdateInvestor(ctx, v.ID, func(*domain.Investor) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("mutator error not returned: %v", err)
	}
	got, _ := s.GetInvestor(ctx, v.ID)
	if got.Name != "Ivy Capital" {
		t.Fatalf("failed mutator changed record: %+v", got)
	}
}

func TestVerifyAndKYCAcrossKinds(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	sup, _ := s.RegisterSupplyAgriBusiness(ctx, "seedco", domain.NewSupplyAgriBusiness{Name: "SeedCo"})
	biz, _ := s.RegisterFarmsAgriBusiness(ctx, "agri", domain.NewFarmsAgriBusiness{Name: "Agri", TotalFarmers: 40})

	if err := s.Verify(ctx, domain.EntitySupplyAgriBusiness, sup.ID, true); err != nil {
		t.Fatalf("verify supplier: %v", err)
	}
	if err := s.SetKYCJobID(ctx, domain.EntityFarmsAgriBusiness, biz.ID, "job-1"); err != nil {
		t.Fatalf("kyc: %v", err)
	}
	if err := s.SetKYCJobID(ctx, domain.EntityFarmsAgriBusiness, biz.ID, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty kyc job: %v", err)
	}
	if err := s.Verify(ctx, domain.EntityOrder, 1, true); err == nil {
		t.Fatalf("verify on orders should fail")
	}
	gotSup, _ := s.GetSupplyAgriBusiness(ctx, sup.ID)
	gotBiz, _ := s.GetFarmsAgriBusiness(ctx, biz.ID)
	if !gotSup.Verified || gotBiz.KYCJobID == nil || *gotBiz.KYCJobID != "job-1" {
		t.Fatalf("supplier=%+v biz=%+v", gotSup, gotBiz)
	}
	if err := s.UpdateFarmsAgriBusinessName(ctx, biz.ID, "Agri Ltd"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	found, err := s.FindFarmsAgriBusinessByIdentity(ctx, "agri")
	if err != nil || found.Name != "Agri Ltd" {
		t.Fatalf("find = %+v err=%v", found, err)
	}
	if _, err := s.FindInvestorByIdentity(ctx, "agri"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("find investor for agribusiness: %v", err)
	}
}

func TestTags(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	p := mustProducer(t, s, "alice")

	for _, tag := range []string{"maize", "organic"} {
		if err := s.AddTag(ctx, p.ID, tag); err != nil {
			t.Fatalf("add %s: %v", tag, err)
		}
	}
	if err := s.AddTag(ctx, p.ID, "maize"); !errors.Is(err, domain.ErrStateGuard) {
		t.Fatalf("duplicate tag: %v", err)
	}
	if err := s.DeleteTag(ctx, p.ID, "maize"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteTag(ctx, p.ID, "maize"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete missing tag: %v", err)
	}
	got, _ := s.GetProducer(ctx, p.ID)
	if diff := cmp.Diff([]string{"organic"}, got.Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestReports(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	p := mustProducer(t, s, "alice")
	content := "planted 4ha"

	if err := s.AddFinancialReport(ctx, p.ID, domain.FinancialReport{Title: "Q1", Summary: "break even"}); err != nil {
		t.Fatalf("financial: %v", err)
	}
	if err := s.AddFarmReport(ctx, p.ID, domain.FarmReport{Title: "Season", Sections: []domain.ReportSection{{Title: "Planting", Content: &content}}}); err != nil {
		t.Fatalf("farm: %v", err)
	}
	if err := s.AddFarmReport(ctx, p.ID, domain.FarmReport{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("untitled report: %v", err)
	}
	if err := s.DeleteReport(ctx, p.ID, ReportFinancial, 3); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete out of range: %v", err)
	}
	if err := s.DeleteReport(ctx, p.ID, ReportFinancial, 0); err != nil {
		t.Fatalf("delete financial: %v", err)
	}
	got, _ := s.GetProducer(ctx, p.ID)
	if len(got.FinancialReports) != 0 || len(got.FarmReports) != 1 {
		t.Fatalf("reports = %+v / %+v", got.FinancialReports, got.FarmReports)
	}
	if sec := got.FarmReports[0].Sections[0]; sec.Content == nil || *sec.Content != content {
		t.Fatalf("section content lost: %+v", sec)
	}
}

func TestSaveFarm(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	p := mustProducer(t, s, "alice")
	v := mustInvestor(t, s, "ivy")

	if _, err := s.SaveFarm(ctx, "alice", p.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("producer saving farm: %v", err)
	}
	if _, err := s.SaveFarm(ctx, "ivy", 404); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown farm: %v", err)
	}
	for range 2 {
		if _, err := s.SaveFarm(ctx, "ivy", p.ID); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	saved, err := s.SavedFarms(ctx, v.ID)
	if err != nil {
		t.Fatalf("saved farms: %v", err)
	}
	if diff := cmp.Diff([]uint64{p.ID}, saved); diff != "" {
		t.Fatalf("saved farms mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteProducerChecksOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	p := mustProducer(t, s, "alice")
	if err := s.DeleteProducer(ctx, "bob", p.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("delete by stranger: %v", err)
	}
	if err := s.DeleteProducer(ctx, "alice", p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetProducer(ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get after delete: %v", err)
	}
	if ok, _ := s.IsIdentityRegistered(ctx, "alice"); ok {
		t.Fatalf("identity still registered after delete")
	}
}

func TestListsAreInIDOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	for _, owner := range []domain.Identity{"a", "b", "c"} {
		mustProducer(t, s, owner)
	}
	list, err := s.ListProducers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []uint64
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]uint64{1, 2, 3}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	invs, err := s.ListInvestors(ctx)
	if err != nil || len(invs) != 0 {
		t.Fatalf("investors = %v err=%v", invs, err)
	}
}
