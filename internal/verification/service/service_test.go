package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycverify/internal/decision"
	"kycverify/internal/evidence"
	evmocks "kycverify/internal/evidence/mocks"
	"kycverify/internal/fraud"
	"kycverify/internal/verification/dedup"
	"kycverify/internal/verification/models"
	"kycverify/internal/verification/store"
	"kycverify/internal/verification/worker"
	"kycverify/internal/webhook"
	id "kycverify/pkg/domain"
	dErrors "kycverify/pkg/domain-errors"
	audit "kycverify/pkg/platform/audit"
	auditpublisher "kycverify/pkg/platform/audit/publisher"
	auditmemory "kycverify/pkg/platform/audit/store/memory"
)

type fakeQueue struct {
	mu   sync.Mutex
	jobs []worker.Job
	err  error
}

func (q *fakeQueue) Submit(_ context.Context, job worker.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) names() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []string
	for _, j := range q.jobs {
		out = append(out, j.Name)
	}
	return out
}

// drain runs queued jobs in order on the calling goroutine.
func (q *fakeQueue) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		_ = job.Run(ctx)
	}
}

type fakeAssessor struct {
	assessment fraud.Assessment
	panics     bool
	signals    []fraud.Signals
}

func (a *fakeAssessor) Assess(_ context.Context, sig fraud.Signals) fraud.Assessment {
	if a.panics {
		panic("scoring exploded")
	}
	a.signals = append(a.signals, sig)
	return a.assessment
}

type fakeNotifier struct {
	mu       sync.Mutex
	payloads []webhook.Payload
	deliver  bool
}

func (n *fakeNotifier) Notify(_ context.Context, target webhook.Target, p webhook.Payload) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !target.Enabled() {
		return false
	}
	n.payloads = append(n.payloads, p)
	return n.deliver
}

type staticProjects struct{ target webhook.Target }

func (p staticProjects) WebhookTarget(context.Context, id.ProjectID) (webhook.Target, error) {
	return p.target, nil
}

type fakeGeo struct {
	calls []string
	geo   *models.Geolocation
}

func (g *fakeGeo) Lookup(_ context.Context, ip string) (*models.Geolocation, error) {
	g.calls = append(g.calls, ip)
	return g.geo, nil
}

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	docs      *evmocks.MockDocumentExtractor
	faces     *evmocks.MockFaceDetector
	comparer  *evmocks.MockFaceComparer
	storage   *evmocks.MockObjectStorage
	store     *store.InMemory
	queue     *fakeQueue
	assessor  *fakeAssessor
	notifier  *fakeNotifier
	auditLog  *auditmemory.InMemoryStore
	geo       *fakeGeo
	clock     time.Time
	project   id.ProjectID
	svc       *Service
	stageWait time.Duration
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.docs = evmocks.NewMockDocumentExtractor(s.ctrl)
	s.faces = evmocks.NewMockFaceDetector(s.ctrl)
	s.comparer = evmocks.NewMockFaceComparer(s.ctrl)
	s.storage = evmocks.NewMockObjectStorage(s.ctrl)
	s.store = store.NewInMemory()
	s.queue = &fakeQueue{}
	s.assessor = &fakeAssessor{assessment: fraud.Assessment{
		Score:     10,
		RiskLevel: fraud.RiskLow,
		Reasons:   []string{"IP address not determined"},
		Source:    fraud.SourceRules,
	}}
	s.notifier = &fakeNotifier{deliver: true}
	s.auditLog = auditmemory.NewInMemoryStore()
	s.geo = &fakeGeo{geo: &models.Geolocation{Country: "Kazakhstan", City: "Astana"}}
	s.clock = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s.project = id.NewProjectID()
	s.stageWait = time.Second
	s.svc = s.newService()
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := dedup.New(s.store, logger)
	base := []Option{
		WithLogger(logger),
		WithClock(func() time.Time { return s.clock }),
		WithStageTimeout(s.stageWait),
		WithWebhooks(staticProjects{target: webhook.Target{URL: "https://hooks.example/kyc", Secret: "whsec_test"}}, s.notifier),
		WithAuditPublisher(auditpublisher.New(s.auditLog)),
		WithGeoLocator(s.geo),
	}
	return New(s.store, d, s.queue, Sources{
		Documents: s.docs,
		Faces:     s.faces,
		Comparer:  s.comparer,
		Storage:   s.storage,
	}, s.assessor, append(base, opts...)...)
}

func (s *ServiceSuite) command() SubmitCommand {
	return SubmitCommand{
		ProjectID:  s.project,
		ExternalID: "user-42",
		FirstName:  "Aruzhan",
		LastName:   "Sadykova",
		Email:      "aruzhan@example.kz",
		Uploads: Uploads{
			Front:  &Upload{Filename: "front.JPG", ContentType: "image/jpeg", Data: []byte("front")},
			Selfie: &Upload{Filename: "selfie.png", ContentType: "image/png", Data: []byte("selfie")},
		},
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	}
}

func (s *ServiceSuite) expectStorage() {
	s.storage.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, key, _ string, _ []byte) (evidence.ObjectRef, error) {
			return evidence.ObjectRef{Bucket: "kyc-documents-bucket", Key: key}, nil
		}).AnyTimes()
}

func (s *ServiceSuite) expectEvidence(faces []evidence.FaceQuality, cmp evidence.FaceComparison) {
	s.expectStorage()
	s.docs.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(evidence.Extraction{
		Fields: []evidence.OCRField{
			{Tag: "FIRST_NAME", Value: "ARUZHAN", Confidence: 97},
			{Tag: "LAST_NAME", Value: "SADYKOVA", Confidence: 96},
			{Tag: "DOCUMENT_NUMBER", Value: "N12345678", Confidence: 99},
			{Tag: "DATE_OF_BIRTH", Value: "14.02.1994", Confidence: 95},
		},
	}, nil)
	s.faces.EXPECT().Detect(gomock.Any(), gomock.Any()).Return(faces, nil)
	s.comparer.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any(), 85.0).Return(cmp, nil)
}

func oneFace() []evidence.FaceQuality {
	return []evidence.FaceQuality{{
		Brightness:          evidence.Float(60),
		Sharpness:           evidence.Float(70),
		EyesOpen:            &evidence.Attribute{Value: true, Confidence: 99},
		DetectionConfidence: evidence.Float(99.9),
	}}
}

func goodMatch() evidence.FaceComparison {
	return evidence.FaceComparison{IsMatch: true, Similarity: 98.5, Confidence: 99.9}
}

func (s *ServiceSuite) submitAndProcess() *models.Verification {
	res, err := s.svc.Submit(context.Background(), s.command())
	s.Require().NoError(err)
	s.queue.drain(context.Background())
	v, err := s.store.FindByID(context.Background(), res.ID)
	s.Require().NoError(err)
	return v
}

func (s *ServiceSuite) auditActions(vid id.VerificationID) []audit.Action {
	events, err := s.auditLog.ListByVerification(context.Background(), vid)
	s.Require().NoError(err)
	var out []audit.Action
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func eventTypes(v *models.Verification) []models.SessionEventType {
	var out []models.SessionEventType
	for _, e := range v.SessionEvents {
		out = append(out, e.Type)
	}
	return out
}

func (s *ServiceSuite) TestSubmitValidation() {
	s.Run("front and selfie are required", func() {
		cmd := s.command()
		cmd.Uploads.Selfie = nil
		_, err := s.svc.Submit(context.Background(), cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		cmd = s.command()
		cmd.Uploads.Front = &Upload{Filename: "front.jpg"}
		_, err = s.svc.Submit(context.Background(), cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("malformed email", func() {
		cmd := s.command()
		cmd.Email = "not an email"
		_, err := s.svc.Submit(context.Background(), cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing project", func() {
		cmd := s.command()
		cmd.ProjectID = id.ProjectID{}
		_, err := s.svc.Submit(context.Background(), cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Empty(s.queue.names(), "nothing is queued for rejected input")
}

func (s *ServiceSuite) TestSubmitCreatesProcessingRecord() {
	res, err := s.svc.Submit(context.Background(), s.command())
	s.Require().NoError(err)
	s.Equal(decision.StatusProcessing, res.Status)
	s.False(res.Duplicate)
	s.Equal([]string{"process", "geolocate"}, s.queue.names())

	v, err := s.store.FindByID(context.Background(), res.ID)
	s.Require().NoError(err)
	s.Equal("user-42", v.ExternalID)
	s.Equal("aruzhan@example.kz", v.Hints.Email)
	s.Require().NotNil(v.Client.DeviceInfo)
	s.Equal("Firefox", v.Client.DeviceInfo.Browser)
	s.Equal([]models.SessionEventType{models.EventStarted}, eventTypes(v))
	s.Equal([]audit.Action{audit.ActionVerificationCreated}, s.auditActions(res.ID))
}

func (s *ServiceSuite) TestApprovedPipeline() {
	s.expectEvidence(oneFace(), goodMatch())

	v := s.submitAndProcess()

	s.Equal(decision.StatusApproved, v.Status)
	s.Empty(v.RejectionReason)
	s.Equal("ARUZHAN", v.Identity.FirstName)
	s.Equal("1994-02-14", v.Identity.DateOfBirth)
	s.Require().NotNil(v.FaceMatchScore)
	s.InDelta(98.5, *v.FaceMatchScore, 0.001)
	s.NotNil(v.LivenessScore)
	s.Require().NotNil(v.FraudScore)
	s.Equal(10, *v.FraudScore)
	s.Equal(fraud.RiskLow, v.FraudRiskLevel)
	s.Require().NotNil(v.CompletedAt)
	s.Equal("verifications/"+v.ID.String()+"/front.jpg", v.Documents.Front)
	s.Equal("verifications/"+v.ID.String()+"/selfie.png", v.Documents.Selfie)
	s.Empty(v.Documents.Back)
	s.Equal([]models.SessionEventType{
		models.EventStarted,
		models.EventDocumentUploaded,
		models.EventEvidenceGathered,
		models.EventDecisionRecorded,
	}, eventTypes(v))

	s.Require().Len(s.assessor.signals, 1)
	sig := s.assessor.signals[0]
	s.Equal("203.0.113.7", sig.IPAddress)
	s.Equal("aruzhan@example.kz", sig.Email)
	s.Equal("N12345678", sig.DocumentNumber)

	s.Require().Len(s.notifier.payloads, 1)
	p := s.notifier.payloads[0]
	s.Equal(webhook.EventCompleted, p.Event)
	s.Equal("APPROVED", p.Status)
	s.Equal("user-42", *p.Data.ExternalID)
	s.Equal("LOW", p.Data.FraudRiskLevel)

	s.Equal([]audit.Action{audit.ActionVerificationCreated, audit.ActionVerificationDecided}, s.auditActions(v.ID))
	s.Equal("Astana", v.Client.Geolocation.City)
}

func (s *ServiceSuite) TestDecisionOutcomes() {
	cases := []struct {
		name   string
		faces  []evidence.FaceQuality
		cmp    evidence.FaceComparison
		risk   fraud.RiskLevel
		status decision.Status
		reason string
	}{
		{"no face", nil, goodMatch(), fraud.RiskLow, decision.StatusRejected, decision.ReasonNoFace},
		{"two faces", append(oneFace(), oneFace()...), goodMatch(), fraud.RiskLow, decision.StatusRejected, decision.ReasonMultipleFaces},
		{"mismatch", oneFace(), evidence.FaceComparison{IsMatch: false, Similarity: 40}, fraud.RiskLow, decision.StatusRejected, decision.ReasonFaceMismatch},
		{"high risk", oneFace(), goodMatch(), fraud.RiskHigh, decision.StatusRejected, decision.ReasonHighFraudRisk},
		{"medium risk", oneFace(), goodMatch(), fraud.RiskMedium, decision.StatusManualReview, ""},
		{"weak match", oneFace(), evidence.FaceComparison{IsMatch: true, Similarity: 87}, fraud.RiskLow, decision.StatusManualReview, ""},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.SetupTest()
			s.assessor.assessment.RiskLevel = tc.risk
			s.expectEvidence(tc.faces, tc.cmp)

			v := s.submitAndProcess()
			s.Equal(tc.status, v.Status)
			s.Equal(tc.reason, v.RejectionReason)
			s.Require().Len(s.notifier.payloads, 1)
			s.Equal(webhook.EventCompleted, s.notifier.payloads[0].Event)
		})
	}
}

func (s *ServiceSuite) TestNoFaceLeavesLivenessUnset() {
	s.expectEvidence(nil, goodMatch())
	v := s.submitAndProcess()
	s.Nil(v.LivenessScore)
}

func (s *ServiceSuite) TestEvidenceFailureFailsClosed() {
	s.expectStorage()
	s.docs.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(evidence.Extraction{}, nil).AnyTimes()
	s.faces.EXPECT().Detect(gomock.Any(), gomock.Any()).Return(oneFace(), nil).AnyTimes()
	s.comparer.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(evidence.FaceComparison{}, errors.New("InvalidParameterException: no face in source"))

	v := s.submitAndProcess()

	s.Equal(decision.StatusRejected, v.Status)
	s.Equal(decision.ReasonProcessingFailed, v.RejectionReason)
	s.Nil(v.FraudScore)
	s.Empty(s.assessor.signals, "scoring never runs on partial evidence")
	s.Contains(eventTypes(v), models.EventFailed)

	s.Require().Len(s.notifier.payloads, 1)
	p := s.notifier.payloads[0]
	s.Equal(webhook.EventFailed, p.Event)
	s.Equal("REJECTED", p.Status)
	s.Equal(decision.ReasonProcessingFailed, p.Data.Reason)
	s.Contains(s.auditActions(v.ID), audit.ActionVerificationFailed)
}

func (s *ServiceSuite) TestStageTimeoutFailsClosed() {
	s.stageWait = 20 * time.Millisecond
	s.svc = s.newService()
	s.expectStorage()
	s.docs.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(evidence.Extraction{}, nil).AnyTimes()
	s.comparer.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(goodMatch(), nil).AnyTimes()
	s.faces.EXPECT().Detect(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ evidence.ObjectRef) ([]evidence.FaceQuality, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	v := s.submitAndProcess()
	s.Equal(decision.StatusRejected, v.Status)
	s.Equal(decision.ReasonProcessingFailed, v.RejectionReason)
}

func (s *ServiceSuite) TestStorageFailureFailsClosed() {
	s.storage.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(evidence.ObjectRef{}, errors.New("AccessDenied")).AnyTimes()

	v := s.submitAndProcess()
	s.Equal(decision.StatusRejected, v.Status)
	s.Equal(decision.ReasonProcessingFailed, v.RejectionReason)
	s.Empty(v.Documents.Front)
}

func (s *ServiceSuite) TestStalledUploadFailsClosed() {
	s.stageWait = 20 * time.Millisecond
	s.svc = s.newService()
	release := make(chan struct{})
	defer close(release)
	s.storage.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, string, []byte) (evidence.ObjectRef, error) {
			<-release
			return evidence.ObjectRef{}, nil
		}).AnyTimes()

	start := time.Now()
	v := s.submitAndProcess()
	s.Less(time.Since(start), time.Second)
	s.Equal(decision.StatusRejected, v.Status)
	s.Equal(decision.ReasonProcessingFailed, v.RejectionReason)
	s.Empty(v.Documents.Front)
}

func (s *ServiceSuite) TestPanicInEvidenceSourceFailsClosed() {
	s.expectStorage()
	s.docs.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(evidence.Extraction{}, nil).AnyTimes()
	s.comparer.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(goodMatch(), nil).AnyTimes()
	s.faces.EXPECT().Detect(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, evidence.ObjectRef) ([]evidence.FaceQuality, error) {
			panic("detector exploded")
		})

	v := s.submitAndProcess()
	s.Equal(decision.StatusRejected, v.Status)
	s.Equal(decision.ReasonProcessingFailed, v.RejectionReason)
}

func (s *ServiceSuite) TestPanicDuringUploadFailsClosed() {
	s.storage.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, string, []byte) (evidence.ObjectRef, error) {
			panic("storage client exploded")
		}).AnyTimes()

	v := s.submitAndProcess()
	s.Equal(decision.StatusRejected, v.Status)
	s.Equal(decision.ReasonProcessingFailed, v.RejectionReason)
}

func (s *ServiceSuite) TestPanicDuringScoringFailsClosed() {
	s.assessor.panics = true
	s.expectEvidence(oneFace(), goodMatch())

	v := s.submitAndProcess()
	s.Equal(decision.StatusRejected, v.Status)
	s.Equal(decision.ReasonProcessingFailed, v.RejectionReason)
}

func (s *ServiceSuite) TestBackImageIsStoredAndRead() {
	s.expectStorage()
	s.docs.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(evidence.Extraction{}, nil).Times(2)
	s.faces.EXPECT().Detect(gomock.Any(), gomock.Any()).Return(oneFace(), nil)
	s.comparer.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(goodMatch(), nil)

	cmd := s.command()
	cmd.Uploads.Back = &Upload{Filename: "back", Data: []byte("back")}
	res, err := s.svc.Submit(context.Background(), cmd)
	s.Require().NoError(err)
	s.queue.drain(context.Background())

	v, err := s.store.FindByID(context.Background(), res.ID)
	s.Require().NoError(err)
	s.Equal("verifications/"+v.ID.String()+"/back.jpg", v.Documents.Back)
}

func (s *ServiceSuite) TestDuplicateSubmissionsCollapse() {
	first, err := s.svc.Submit(context.Background(), s.command())
	s.Require().NoError(err)

	s.clock = s.clock.Add(3 * time.Second)
	second, err := s.svc.Submit(context.Background(), s.command())
	s.Require().NoError(err)
	s.True(second.Duplicate)
	s.Equal(first.ID, second.ID)

	s.clock = s.clock.Add(10 * time.Second)
	third, err := s.svc.Submit(context.Background(), s.command())
	s.Require().NoError(err)
	s.False(third.Duplicate)
	s.NotEqual(first.ID, third.ID)

	s.Equal([]string{"process", "geolocate", "process", "geolocate"}, s.queue.names())
}

func (s *ServiceSuite) TestProcessIsIdempotentOnceDecided() {
	s.expectEvidence(oneFace(), goodMatch())
	v := s.submitAndProcess()
	s.Require().Equal(decision.StatusApproved, v.Status)

	// no further evidence expectations: a second run must not call out
	s.svc.Process(context.Background(), v.ID, s.command().Uploads)

	again, err := s.store.FindByID(context.Background(), v.ID)
	s.Require().NoError(err)
	s.Equal(decision.StatusApproved, again.Status)
	s.Len(s.notifier.payloads, 1)
}

func (s *ServiceSuite) TestEnqueueFailureRejectsImmediately() {
	s.queue.err = worker.ErrStopped

	res, err := s.svc.Submit(context.Background(), s.command())
	s.Require().NoError(err)
	s.Equal(decision.StatusRejected, res.Status)

	v, err := s.store.FindByID(context.Background(), res.ID)
	s.Require().NoError(err)
	s.Equal(decision.ReasonProcessingFailed, v.RejectionReason)
}

func (s *ServiceSuite) TestPrivateAddressesAreNotGeolocated() {
	cmd := s.command()
	cmd.IPAddress = "192.168.1.20"
	_, err := s.svc.Submit(context.Background(), cmd)
	s.Require().NoError(err)
	s.Equal([]string{"process"}, s.queue.names())
}

func (s *ServiceSuite) TestGetIsScopedToProject() {
	res, err := s.svc.Submit(context.Background(), s.command())
	s.Require().NoError(err)

	v, err := s.svc.Get(context.Background(), s.project, res.ID)
	s.Require().NoError(err)
	s.Equal(res.ID, v.ID)

	_, err = s.svc.Get(context.Background(), id.NewProjectID(), res.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.svc.Get(context.Background(), s.project, id.NewVerificationID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestList() {
	for range 3 {
		_, err := s.svc.Submit(context.Background(), s.command())
		s.Require().NoError(err)
		s.clock = s.clock.Add(time.Minute)
	}

	page, err := s.svc.List(context.Background(), s.project, models.ListFilter{Page: 1, Limit: 2})
	s.Require().NoError(err)
	s.Equal(3, page.Total)
	s.Len(page.Items, 2)
	s.Equal(2, page.TotalPages())

	_, err = s.svc.List(context.Background(), s.project, models.ListFilter{Status: "DONE"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestEnrichmentNeverTouchesDecision() {
	s.expectEvidence(oneFace(), goodMatch())
	v := s.submitAndProcess()

	err := s.svc.ApplyEnrichment(context.Background(), v.ID, models.Enrichment{
		Geolocation: &models.Geolocation{Country: "Kazakhstan", IsDataCenter: true},
	})
	s.Require().NoError(err)

	after, err := s.store.FindByID(context.Background(), v.ID)
	s.Require().NoError(err)
	s.Equal(v.Status, after.Status)
	s.Equal(*v.FraudScore, *after.FraudScore)
	s.Equal(v.CompletedAt, after.CompletedAt)
	s.True(after.Client.Geolocation.IsDataCenter)

	err = s.svc.ApplyEnrichment(context.Background(), id.NewVerificationID(), models.Enrichment{Geolocation: &models.Geolocation{}})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestFailStale() {
	stale, err := s.svc.Submit(context.Background(), s.command())
	s.Require().NoError(err)

	s.clock = s.clock.Add(20 * time.Minute)
	fresh, err := s.svc.Submit(context.Background(), s.command())
	s.Require().NoError(err)

	n, err := s.svc.FailStale(context.Background(), 15*time.Minute)
	s.Require().NoError(err)
	s.Equal(1, n)

	v, _ := s.store.FindByID(context.Background(), stale.ID)
	s.Equal(decision.StatusRejected, v.Status)
	s.Equal(decision.ReasonProcessingFailed, v.RejectionReason)
	s.Contains(s.auditActions(stale.ID), audit.ActionVerificationStale)

	f, _ := s.store.FindByID(context.Background(), fresh.ID)
	s.Equal(decision.StatusProcessing, f.Status)

	s.Require().Len(s.notifier.payloads, 1)
	s.Equal(webhook.EventFailed, s.notifier.payloads[0].Event)

	_, err = s.svc.FailStale(context.Background(), 0)
	s.Error(err)
}

type reloadFailingStore struct {
	*store.InMemory
	fail bool
}

func (f *reloadFailingStore) FindByID(ctx context.Context, vid id.VerificationID) (*models.Verification, error) {
	if f.fail {
		return nil, errors.New("connection reset")
	}
	return f.InMemory.FindByID(ctx, vid)
}

func (s *ServiceSuite) TestFailStaleLogsWhenReloadFails() {
	var logs bytes.Buffer
	backing := &reloadFailingStore{InMemory: s.store}
	svc := New(backing, dedup.New(s.store, slog.New(slog.NewTextHandler(io.Discard, nil))), s.queue, Sources{
		Documents: s.docs,
		Faces:     s.faces,
		Comparer:  s.comparer,
		Storage:   s.storage,
	}, s.assessor,
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithClock(func() time.Time { return s.clock }),
		WithWebhooks(staticProjects{target: webhook.Target{URL: "https://hooks.example/kyc", Secret: "whsec_test"}}, s.notifier),
		WithAuditPublisher(auditpublisher.New(s.auditLog)),
	)
	res, err := svc.Submit(context.Background(), s.command())
	s.Require().NoError(err)

	s.clock = s.clock.Add(20 * time.Minute)
	backing.fail = true
	n, err := svc.FailStale(context.Background(), 15*time.Minute)
	s.Require().NoError(err)
	s.Equal(1, n)

	v, err := s.store.FindByID(context.Background(), res.ID)
	s.Require().NoError(err)
	s.Equal(decision.StatusRejected, v.Status)
	s.Empty(s.notifier.payloads)
	s.Contains(logs.String(), "level=WARN")
	s.Contains(logs.String(), "stale verification rejected but not reloaded")
	s.Contains(logs.String(), res.ID.String())
}

func (s *ServiceSuite) TestWebhookFailureIsAudited() {
	s.notifier.deliver = false
	s.expectEvidence(oneFace(), goodMatch())

	v := s.submitAndProcess()
	s.Equal(decision.StatusApproved, v.Status, "delivery failure never changes the decision")
	s.Contains(s.auditActions(v.ID), audit.ActionWebhookDeliveryFailed)
}
