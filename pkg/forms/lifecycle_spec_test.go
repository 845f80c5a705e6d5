package forms

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Inspection lifecycle", func() {
	Context("a crew fills in and signs an inspection", Ordered, func() {
		var (
			ctx        = context.Background()
			svc        *Service
			clock      *testClock
			sink       *recordingSink
			form       *Form
			responseID string
		)

		BeforeAll(func() {
			clock = &testClock{now: time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC)}
			sink = &recordingSink{}
			svc, _ = newTestService(GinkgoT(), WithClock(clock.Now), WithEventSink(sink))

			var err error
			form, err = svc.CreateForm(ctx, testTenant, inspector, FormInput{
				Name:   "Site Inspection",
				Type:   "inspection",
				Schema: inspectionSchema(),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("saves a partial draft without required fields", func() {
			By("creating a draft with only the site name")
			resp, err := svc.CreateResponse(ctx, testTenant, CreateResponseInput{
				FormID: form.ID,
				User:   inspector,
				Data:   map[string]any{"site_name": "North Yard"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Submitted).To(BeFalse())
			Expect(resp.SubmittedAt).To(BeNil())
			responseID = resp.ID
		})

		It("refuses to submit while required fields are missing", func() {
			_, err := svc.UpdateResponse(ctx, testTenant, inspector, responseID, UpdateResponseInput{
				Data:      map[string]any{"site_name": "North Yard"},
				Submitted: true,
			})
			Expect(err).To(MatchError(ErrRequiredFieldMissing))

			stored, err := svc.GetResponse(ctx, testTenant, responseID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Submitted).To(BeFalse())
		})

		It("submits the completed response with a signature", func() {
			clock.Advance(30 * time.Minute)
			resp, err := svc.UpdateResponse(ctx, testTenant, inspector, responseID, UpdateResponseInput{
				Data: map[string]any{
					"site_name":  "North Yard",
					"visit_date": "2024-03-13",
					"crew_size":  4,
					"hard_hat":   true,
					"hazards":    []any{"fall", "electrical"},
				},
				Submitted: true,
				Signatures: []SignatureInput{{
					FieldName:  "supervisor_sign",
					SignerName: "Sam Supervisor",
					SignerRole: "supervisor",
					ImageRef:   "tenants/acme/signatures/" + responseID + "/01.png",
				}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Submitted).To(BeTrue())
			Expect(resp.SubmittedAt).NotTo(BeNil())
			Expect(resp.SubmittedAt.Equal(clock.Now().UTC())).To(BeTrue())

			sigs, err := svc.ListSignatures(ctx, testTenant, responseID)
			Expect(err).NotTo(HaveOccurred())
			Expect(sigs).To(HaveLen(1))
			Expect(sigs[0].SignerName).To(Equal("Sam Supervisor"))
		})

		It("keeps the submitted response immutable", func() {
			_, err := svc.UpdateResponse(ctx, testTenant, inspector, responseID, UpdateResponseInput{
				Data: map[string]any{"site_name": "South Yard"},
			})
			Expect(err).To(MatchError(ErrAlreadySubmitted))

			stored, err := svc.GetResponse(ctx, testTenant, responseID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ResponseData["site_name"]).To(Equal("North Yard"))
		})

		It("reports the submission in stats, trend and export", func() {
			stats, err := svc.ResponseStats(ctx, testTenant, form.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stats.Total).To(BeEquivalentTo(1))
			Expect(stats.Submitted).To(BeEquivalentTo(1))
			Expect(stats.Draft).To(BeEquivalentTo(0))

			trend, err := svc.CompletionTrend(ctx, testTenant, form.ID, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(trend).To(ConsistOf(TrendPoint{Date: "2024-03-13", Total: 1, Submitted: 1}))

			table, err := svc.ExportRows(ctx, testTenant, form.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(table.Rows).To(HaveLen(1))
			var csv strings.Builder
			Expect(table.WriteCSV(&csv)).To(Succeed())
			Expect(csv.String()).To(ContainSubstring("Ivy Inspector"))
			Expect(csv.String()).To(ContainSubstring("fall; electrical"))
		})

		It("blocks deleting a form that has responses", func() {
			Expect(svc.DeleteForm(ctx, testTenant, inspector, form.ID)).To(MatchError(ErrFormHasResponses))
			Expect(svc.DeleteResponse(ctx, testTenant, inspector, responseID)).To(Succeed())
			Expect(svc.DeleteForm(ctx, testTenant, inspector, form.ID)).To(Succeed())
		})

		It("published an event for every committed write", func() {
			Expect(sink.types()).To(Equal([]string{
				EventFormCreated,
				EventResponseCreated,
				EventResponseUpdated,
				EventResponseSubmitted,
				EventResponseDeleted,
				EventFormDeleted,
			}))
		})
	})
})
