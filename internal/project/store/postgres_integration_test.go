//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycverify/internal/project/models"
	"kycverify/internal/project/store"
	id "kycverify/pkg/domain"
	"kycverify/pkg/platform/sentinel"
	"kycverify/pkg/testutil/containers"
)

type PostgresProjectSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresProjectSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresProjectSuite))
}

func (s *PostgresProjectSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresProjectSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "projects"))
}

func (s *PostgresProjectSuite) newProject(prefix string) *models.Project {
	p, err := models.NewProject(id.NewProjectID(), "acme", prefix, "$2a$10$hash", time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return p
}

func (s *PostgresProjectSuite) TestRoundTrip() {
	ctx := context.Background()
	p := s.newProject("sk_live_aaaaaaaa")
	s.Require().NoError(p.SetWebhook("https://hooks.example.com/kyc", "whsec_abc"))
	s.Require().NoError(s.store.Create(ctx, p))

	got, err := s.store.FindByKeyPrefix(ctx, "sk_live_aaaaaaaa")
	s.Require().NoError(err)
	s.Equal(p.ID, got.ID)
	s.Equal("https://hooks.example.com/kyc", got.WebhookURL)
	s.Equal("whsec_abc", got.WebhookSecret)
	s.True(got.Active)
	s.True(p.CreatedAt.Equal(got.CreatedAt))
}

func (s *PostgresProjectSuite) TestDuplicatePrefixConflicts() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.newProject("sk_live_aaaaaaaa")))
	s.ErrorIs(s.store.Create(ctx, s.newProject("sk_live_aaaaaaaa")), sentinel.ErrConflict)
}

func (s *PostgresProjectSuite) TestUpdate() {
	ctx := context.Background()
	p := s.newProject("sk_live_aaaaaaaa")
	s.Require().NoError(s.store.Create(ctx, p))

	p.Active = false
	s.Require().NoError(s.store.Update(ctx, p))
	got, err := s.store.FindByID(ctx, p.ID)
	s.Require().NoError(err)
	s.False(got.Active)

	s.ErrorIs(s.store.Update(ctx, s.newProject("sk_live_bbbbbbbb")), sentinel.ErrNotFound)
}
