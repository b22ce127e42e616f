package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycverify/internal/decision"
	"kycverify/internal/fraud"
	"kycverify/internal/verification/handler/mocks"
	"kycverify/internal/verification/models"
	"kycverify/internal/verification/service"
	id "kycverify/pkg/domain"
	dErrors "kycverify/pkg/domain-errors"
	"kycverify/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	service   *mocks.MockService
	router    chi.Router
	projectID id.ProjectID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.projectID = id.NewProjectID()

	h := New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)), 1<<20)
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) do(req *http.Request) *http.Response {
	req = testutil.WithProject(req, s.projectID)
	req = testutil.WithClient(req, "203.0.113.7", "Mozilla/5.0")
	return testutil.DoRequest(s.router, req).Result()
}

func (s *HandlerSuite) submitRequest(parts ...testutil.Part) *http.Request {
	return testutil.NewMultipartRequest(s.T(), http.MethodPost, "/v1/verifications", parts...)
}

var (
	frontPart  = testutil.Part{Field: "documentFront", Filename: "front.jpg", ContentType: "image/jpeg", Content: []byte("front")}
	selfiePart = testutil.Part{Field: "selfie", Filename: "selfie.png", ContentType: "image/png", Content: []byte("selfie")}
)

func (s *HandlerSuite) TestSubmit() {
	t := s.T()
	vid := id.NewVerificationID()

	s.service.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ any, cmd service.SubmitCommand) (*service.SubmitResult, error) {
			assert.Equal(t, s.projectID, cmd.ProjectID)
			assert.Equal(t, "user-42", cmd.ExternalID)
			assert.Equal(t, "ada@example.com", cmd.Email)
			assert.Equal(t, "203.0.113.7", cmd.IPAddress)
			assert.Equal(t, "Mozilla/5.0", cmd.UserAgent)
			require.NotNil(t, cmd.Uploads.Front)
			assert.Equal(t, []byte("front"), cmd.Uploads.Front.Data)
			assert.Equal(t, "image/jpeg", cmd.Uploads.Front.ContentType)
			assert.Nil(t, cmd.Uploads.Back)
			require.NotNil(t, cmd.Uploads.Selfie)
			return &service.SubmitResult{ID: vid, Status: decision.StatusProcessing}, nil
		})

	rr := testutil.DoRequest(s.router, testutil.WithClient(testutil.WithProject(s.submitRequest(
		testutil.Part{Field: "externalId", Content: []byte("user-42")},
		testutil.Part{Field: "email", Content: []byte("ada@example.com")},
		frontPart, selfiePart,
	), s.projectID), "203.0.113.7", "Mozilla/5.0"))

	testutil.AssertStatus(t, rr, http.StatusAccepted)
	resp := testutil.UnmarshalResponse[SubmitResponse](t, rr)
	assert.Equal(t, vid.String(), resp.Verification.ID)
	assert.Equal(t, "PROCESSING", resp.Verification.Status)
	assert.NotEmpty(t, resp.Message)
}

func (s *HandlerSuite) TestSubmitErrors() {
	testutil.Given(s.T(), "a submission", func(t *testing.T) {
		testutil.When(t, "the service rejects missing files", func(t *testing.T) {
			s.SetupTest()
			s.service.EXPECT().Submit(gomock.Any(), gomock.Any()).
				Return(nil, dErrors.New(dErrors.CodeValidation, "Document front and selfie are required"))

			req := testutil.WithProject(s.submitRequest(frontPart), s.projectID)
			rr := testutil.DoRequest(s.router, req)

			testutil.Then(t, "it responds 400 with the description", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeValidation))
				body := testutil.UnmarshalErrorResponse(t, rr)
				assert.Equal(t, "Document front and selfie are required", body["error_description"])
			})
		})

		testutil.When(t, "the body is not multipart", func(t *testing.T) {
			s.SetupTest()
			req := testutil.WithProject(testutil.NewRequest(t, http.MethodPost, "/v1/verifications"), s.projectID)
			rr := testutil.DoRequest(s.router, req)

			testutil.Then(t, "it responds 400 without calling the service", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
			})
		})

		testutil.When(t, "the body exceeds the upload limit", func(t *testing.T) {
			s.SetupTest()
			big := testutil.Part{Field: "documentFront", Filename: "front.jpg", Content: make([]byte, 2<<20)}
			req := testutil.WithProject(s.submitRequest(big, selfiePart), s.projectID)
			rr := testutil.DoRequest(s.router, req)

			testutil.Then(t, "it responds 400", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
				assert.Equal(t, "request body too large", testutil.UnmarshalErrorResponse(t, rr)["error_description"])
			})
		})

		testutil.When(t, "the service fails internally", func(t *testing.T) {
			s.SetupTest()
			s.service.EXPECT().Submit(gomock.Any(), gomock.Any()).
				Return(nil, dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "create verification"))

			req := testutil.WithProject(s.submitRequest(frontPart, selfiePart), s.projectID)
			rr := testutil.DoRequest(s.router, req)

			testutil.Then(t, "it responds 500 without internals", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, string(dErrors.CodeInternal))
				_, ok := testutil.UnmarshalErrorResponse(t, rr)["error_description"]
				assert.False(t, ok)
			})
		})
	})
}

func (s *HandlerSuite) TestGet() {
	t := s.T()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	completed := created.Add(40 * time.Second)
	match := 97.5
	live, score := 88, 12

	decided := &models.Verification{
		ID:        id.NewVerificationID(),
		ProjectID: s.projectID,
		Status:    decision.StatusApproved,
		Identity: models.Identity{
			FirstName: "ADA", LastName: "LOVELACE", DateOfBirth: "1990-12-10",
			DocumentNumber: "X1234567", Nationality: "GBR",
		},
		FaceMatchScore: &match,
		LivenessScore:  &live,
		FraudScore:     &score,
		FraudRiskLevel: fraud.RiskLow,
		Client:         models.ClientInfo{IPAddress: "203.0.113.7"},
		CreatedAt:      created,
		CompletedAt:    &completed,
	}
	s.service.EXPECT().Get(gomock.Any(), s.projectID, decided.ID).Return(decided, nil)

	res := s.do(testutil.NewRequest(t, http.MethodGet, "/v1/verifications/"+decided.ID.String()))
	require.Equal(t, http.StatusOK, res.StatusCode)
	var body struct {
		Verification map[string]any `json:"verification"`
	}
	require.NoError(t, decodeJSON(res, &body))
	v := body.Verification
	assert.Equal(t, "APPROVED", v["status"])
	assert.Equal(t, "X1234567", v["documentNumber"])
	assert.InDelta(t, 97.5, v["faceMatchScore"], 0.001)
	assert.Equal(t, "LOW", v["fraudRiskLevel"])
	assert.Equal(t, []any{}, v["reasons"])
	assert.Nil(t, v["rejectionReason"])
	assert.Nil(t, v["externalId"])
}

func (s *HandlerSuite) TestGetRejectedListsReasonsAlongsideRejection() {
	t := s.T()
	completed := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	score := 72
	rejected := &models.Verification{
		ID:              id.NewVerificationID(),
		ProjectID:       s.projectID,
		Status:          decision.StatusRejected,
		FraudScore:      &score,
		FraudRiskLevel:  fraud.RiskHigh,
		RejectionReason: "Face does not match document",
		Reasons:         []string{"face match below threshold", "Face does not match document"},
		CreatedAt:       completed.Add(-time.Minute),
		CompletedAt:     &completed,
	}
	s.service.EXPECT().Get(gomock.Any(), s.projectID, rejected.ID).Return(rejected, nil)

	res := s.do(testutil.NewRequest(t, http.MethodGet, "/v1/verifications/"+rejected.ID.String()))
	require.Equal(t, http.StatusOK, res.StatusCode)
	var body struct {
		Verification map[string]any `json:"verification"`
	}
	require.NoError(t, decodeJSON(res, &body))
	v := body.Verification
	assert.Equal(t, "Face does not match document", v["rejectionReason"])
	assert.Equal(t, []any{"face match below threshold", "Face does not match document"}, v["reasons"])
	assert.NotContains(t, v, "fraudReasons")
}

func (s *HandlerSuite) TestGetProcessingHidesDecisionFields() {
	t := s.T()
	pending := &models.Verification{
		ID:        id.NewVerificationID(),
		ProjectID: s.projectID,
		Status:    decision.StatusProcessing,
		Identity:  models.Identity{DocumentNumber: "X1234567"},
		CreatedAt: time.Now(),
	}
	s.service.EXPECT().Get(gomock.Any(), s.projectID, pending.ID).Return(pending, nil)

	res := s.do(testutil.NewRequest(t, http.MethodGet, "/v1/verifications/"+pending.ID.String()))
	require.Equal(t, http.StatusOK, res.StatusCode)
	var body struct {
		Verification map[string]any `json:"verification"`
	}
	require.NoError(t, decodeJSON(res, &body))
	assert.Nil(t, body.Verification["documentNumber"])
	assert.Nil(t, body.Verification["fraudScore"])
	assert.Equal(t, []any{}, body.Verification["sessionEvents"])
}

func (s *HandlerSuite) TestGetNotFound() {
	t := s.T()
	other := id.NewVerificationID()
	s.service.EXPECT().Get(gomock.Any(), s.projectID, other).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "Verification not found"))

	res := s.do(testutil.NewRequest(t, http.MethodGet, "/v1/verifications/"+other.String()))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = s.do(testutil.NewRequest(t, http.MethodGet, "/v1/verifications/not-a-uuid"))
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func (s *HandlerSuite) TestList() {
	t := s.T()
	items := []*models.Verification{
		{ID: id.NewVerificationID(), Status: decision.StatusRejected, ExternalID: "a", CreatedAt: time.Now()},
		{ID: id.NewVerificationID(), Status: decision.StatusRejected, ExternalID: "b", CreatedAt: time.Now()},
	}
	s.service.EXPECT().
		List(gomock.Any(), s.projectID, models.ListFilter{Status: decision.StatusRejected, Page: 2, Limit: 2}).
		Return(models.Page{Items: items, Total: 5, Page: 2, Limit: 2}, nil)

	rr := testutil.DoRequest(s.router, testutil.WithProject(
		testutil.NewRequest(t, http.MethodGet, "/v1/verifications?status=rejected&page=2&limit=2"), s.projectID))

	testutil.AssertStatus(t, rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[ListResponse](t, rr)
	require.Len(t, resp.Verifications, 2)
	assert.Equal(t, "a", *resp.Verifications[0].ExternalID)
	assert.Equal(t, Pagination{Page: 2, Limit: 2, Total: 5, TotalPages: 3}, resp.Pagination)
}

func (s *HandlerSuite) TestListInvalidStatus() {
	t := s.T()
	s.service.EXPECT().List(gomock.Any(), s.projectID, gomock.Any()).
		Return(models.Page{}, dErrors.New(dErrors.CodeValidation, "invalid status filter"))

	res := s.do(testutil.NewRequest(t, http.MethodGet, "/v1/verifications?status=bogus"))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func decodeJSON(res *http.Response, v any) error {
	defer res.Body.Close()
	return json.NewDecoder(res.Body).Decode(v)
}
