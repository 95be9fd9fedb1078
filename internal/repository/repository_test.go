package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmehdipour/activitylog-webhook/internal/repository/repotest"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
)

type RepositorySuite struct {
	suite.Suite

	ctx        context.Context
	db         *sqlx.DB
	subs       *SubscriptionsRepositoryImpl
	secrets    SecretsRepository
	deliveries *DeliveriesRepositoryImpl
	activity   *ActivityRepositoryImpl
}

func (s *RepositorySuite) SetupTest() {
	db := repotest.NewSQLite(s.T())

	s.ctx = context.Background()
	s.db = db
	s.subs = NewSubscriptionsRepository(db)
	s.secrets = NewSecretsRepository(db)
	s.deliveries = NewDeliveriesRepository(db)
	s.activity = NewActivityRepository(db)
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) createSub(uuid, scope string, active bool, topics ...model.Topic) *model.Subscription {
	sub := &model.Subscription{UUID: uuid, Scope: scope, URL: "https://example.com/" + uuid, Active: active}
	s.Require().NoError(s.subs.Create(s.ctx, nil, sub))
	s.Require().NoError(s.subs.ReplaceTopics(s.ctx, nil, sub.ID, topics))
	return sub
}

func (s *RepositorySuite) TestCreateAndGet() {
	sub := s.createSub("u-1", "democon", true, "submission.create", "submission.update")
	s.NotZero(sub.ID)

	got, err := s.subs.GetByID(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal("u-1", got.UUID)
	s.True(got.Active)
	s.ElementsMatch([]model.Topic{"submission.create", "submission.update"}, got.Topics)

	byUUID, err := s.subs.GetByUUID(s.ctx, "democon", "u-1")
	s.Require().NoError(err)
	s.Equal(sub.ID, byUUID.ID)

	_, err = s.subs.GetByUUID(s.ctx, "othercon", "u-1")
	s.ErrorIs(err, ErrNotFound)

	_, err = s.subs.GetByID(s.ctx, 999)
	s.ErrorIs(err, ErrNotFound)
}

func (s *RepositorySuite) TestReplaceTopicsCollapsesDuplicates() {
	sub := s.createSub("u-1", "democon", true)
	s.Require().NoError(s.subs.ReplaceTopics(s.ctx, nil, sub.ID,
		[]model.Topic{"event.update", "event.update", "submission.create"}))

	var n int
	s.Require().NoError(s.db.Get(&n, `SELECT COUNT(*) FROM subscription_topics WHERE subscription_id = ?`, sub.ID))
	s.Equal(2, n)

	s.Require().NoError(s.subs.ReplaceTopics(s.ctx, nil, sub.ID, []model.Topic{"event.update"}))
	got, err := s.subs.GetByID(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal([]model.Topic{"event.update"}, got.Topics)
}

func (s *RepositorySuite) TestFindActiveByTopic() {
	a := s.createSub("a", "democon", true, "submission.create", "submission.update")
	b := s.createSub("b", "democon", true, "submission.create")
	s.createSub("c", "democon", false, "submission.create")
	s.createSub("d", "othercon", true, "submission.create")
	s.createSub("e", "democon", true, "event.update")

	refs, err := s.subs.FindActiveByTopic(s.ctx, "democon", "submission.create")
	s.Require().NoError(err)
	s.ElementsMatch([]model.SubscriberRef{{ID: a.ID, UUID: "a"}, {ID: b.ID, UUID: "b"}}, refs)

	refs, err = s.subs.FindActiveByTopic(s.ctx, "democon", "review.create")
	s.Require().NoError(err)
	s.Empty(refs)
}

func (s *RepositorySuite) TestUpdateAndList() {
	sub := s.createSub("a", "democon", true, "submission.create")
	s.createSub("b", "democon", true)
	s.createSub("c", "othercon", true)

	sub.Active = false
	sub.URL = "https://example.org/hook"
	s.Require().NoError(s.subs.Update(s.ctx, nil, sub))

	list, err := s.subs.ListByScope(s.ctx, "democon", 0, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("https://example.org/hook", list[0].URL)
	s.False(list[0].Active)
	s.Equal([]model.Topic{"submission.create"}, list[0].Topics)
	s.Empty(list[1].Topics)

	s.ErrorIs(s.subs.Update(s.ctx, nil, &model.Subscription{ID: 999}), ErrNotFound)
}

func (s *RepositorySuite) TestDeleteKeepsDeliveryHistory() {
	sub := s.createSub("a", "democon", true, "submission.create")
	_, err := s.secrets.Create(s.ctx, nil, sub.ID, "0123456789abcdef")
	s.Require().NoError(err)

	rec := &model.DeliveryRecord{SubscriptionID: &sub.ID, DeliveryID: "d1", Payload: []byte(`{}`), URL: sub.URL, Topic: "submission.create"}
	s.Require().NoError(s.deliveries.InsertPending(s.ctx, rec))

	s.Require().NoError(s.subs.Delete(s.ctx, sub.ID))

	_, err = s.subs.GetByID(s.ctx, sub.ID)
	s.ErrorIs(err, ErrNotFound)

	latest, err := s.secrets.Latest(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Nil(latest)

	kept, err := s.deliveries.Get(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Nil(kept.SubscriptionID)

	s.ErrorIs(s.subs.Delete(s.ctx, sub.ID), ErrNotFound)
}

func (s *RepositorySuite) TestSecretsLatestIsNewest() {
	sub := s.createSub("a", "democon", true)

	t1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	restore := now
	defer func() { now = restore }()

	now = func() time.Time { return t1 }
	_, err := s.secrets.Create(s.ctx, nil, sub.ID, "secret-created-at-t1")
	s.Require().NoError(err)
	now = func() time.Time { return t2 }
	_, err = s.secrets.Create(s.ctx, nil, sub.ID, "secret-created-at-t2")
	s.Require().NoError(err)

	latest, err := s.secrets.Latest(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Require().NotNil(latest)
	s.Equal("secret-created-at-t2", latest.Token)

	all, err := s.secrets.List(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Len(all, 2)

	s.Require().NoError(s.secrets.Delete(s.ctx, sub.ID, latest.ID))
	latest, err = s.secrets.Latest(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal("secret-created-at-t1", latest.Token)

	s.ErrorIs(s.secrets.Delete(s.ctx, sub.ID, 999), ErrNotFound)
}

func (s *RepositorySuite) TestSecretMinimumLength() {
	sub := s.createSub("a", "democon", true)
	_, err := s.secrets.Create(s.ctx, nil, sub.ID, "short")
	s.ErrorIs(err, model.ErrSecretTooShort)
}

func (s *RepositorySuite) TestLedgerLifecycle() {
	sub := s.createSub("a", "democon", true)
	rec := &model.DeliveryRecord{
		SubscriptionID: &sub.ID,
		DeliveryID:     "01J0000000000000000000000",
		Payload:        []byte(`{"topic":"submission.create"}`),
		URL:            sub.URL,
		Topic:          "submission.create",
		Attempts:       1,
	}
	s.Require().NoError(s.deliveries.InsertPending(s.ctx, rec))
	s.NotZero(rec.ID)

	got, err := s.deliveries.Get(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(model.DeliveryPending, got.Status)
	s.JSONEq(`{"topic":"submission.create"}`, string(got.Payload))

	s.Require().NoError(s.deliveries.MarkAttempt(s.ctx, rec.ID, model.DeliveryFailure, 1, "status 500"))
	got, err = s.deliveries.Get(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(model.DeliveryFailure, got.Status)
	s.Require().NotNil(got.LastError)
	s.Equal("status 500", *got.LastError)

	s.Require().NoError(s.deliveries.MarkAttempt(s.ctx, rec.ID, model.DeliverySuccess, 2, ""))
	list, err := s.deliveries.ListBySubscription(s.ctx, sub.ID, model.DeliverySuccess, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(2, list[0].Attempts)
	s.Nil(list[0].LastError)

	list, err = s.deliveries.ListBySubscription(s.ctx, sub.ID, model.DeliveryFailure, 10, 0)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *RepositorySuite) TestListByFilterReachesDetachedRows() {
	sub := s.createSub("a", "democon", true, "submission.create")
	other := s.createSub("b", "othercon", true, "submission.create")

	mine := &model.DeliveryRecord{SubscriptionID: &sub.ID, Scope: "democon", DeliveryID: "d-mine", Payload: []byte(`{}`), URL: sub.URL, Topic: "submission.create"}
	theirs := &model.DeliveryRecord{SubscriptionID: &other.ID, Scope: "othercon", DeliveryID: "d-theirs", Payload: []byte(`{}`), URL: sub.URL, Topic: "submission.create"}
	s.Require().NoError(s.deliveries.InsertPending(s.ctx, mine))
	s.Require().NoError(s.deliveries.InsertPending(s.ctx, theirs))
	s.Require().NoError(s.subs.Delete(s.ctx, sub.ID))

	list, err := s.deliveries.ListByFilter(s.ctx, DeliveryFilter{Scope: "democon", URL: sub.URL}, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("d-mine", list[0].DeliveryID)
	s.Equal("democon", list[0].Scope)
	s.Nil(list[0].SubscriptionID)

	list, err = s.deliveries.ListByFilter(s.ctx, DeliveryFilter{Scope: "democon", DeliveryID: "d-mine", DetachedOnly: true}, 10, 0)
	s.Require().NoError(err)
	s.Len(list, 1)

	list, err = s.deliveries.ListByFilter(s.ctx, DeliveryFilter{Scope: "democon", DeliveryID: "d-theirs"}, 10, 0)
	s.Require().NoError(err)
	s.Empty(list)

	list, err = s.deliveries.ListByFilter(s.ctx, DeliveryFilter{Scope: "othercon", DetachedOnly: true}, 10, 0)
	s.Require().NoError(err)
	s.Empty(list)
}

type stubReader struct {
	rows []model.DeliveryRecord
	err  error
}

func (r stubReader) ListBySubscription(context.Context, int64, model.DeliveryStatus, int, int) ([]model.DeliveryRecord, error) {
	return r.rows, r.err
}

func (r stubReader) ListByFilter(context.Context, DeliveryFilter, int, int) ([]model.DeliveryRecord, error) {
	return r.rows, r.err
}

func (s *RepositorySuite) TestFallbackReaderUsesMySQLWhenReadModelMissingOrEmpty() {
	sub := s.createSub("a", "democon", true, "submission.create")
	rec := &model.DeliveryRecord{SubscriptionID: &sub.ID, Scope: "democon", DeliveryID: "d1", Payload: []byte(`{}`), URL: sub.URL, Topic: "submission.create"}
	s.Require().NoError(s.deliveries.InsertPending(s.ctx, rec))

	missing := NewFallbackDeliveriesReader(stubReader{err: errors.New("table webhooks.deliveries_latest doesn't exist")}, s.deliveries, nil)
	list, err := missing.ListBySubscription(s.ctx, sub.ID, "", 10, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("d1", list[0].DeliveryID)

	empty := NewFallbackDeliveriesReader(stubReader{}, s.deliveries, nil)
	list, err = empty.ListByFilter(s.ctx, DeliveryFilter{Scope: "democon"}, 10, 0)
	s.Require().NoError(err)
	s.Len(list, 1)

	fed := NewFallbackDeliveriesReader(stubReader{rows: []model.DeliveryRecord{{DeliveryID: "from-ch"}}}, s.deliveries, nil)
	list, err = fed.ListBySubscription(s.ctx, sub.ID, "", 10, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("from-ch", list[0].DeliveryID)
}

func (s *RepositorySuite) TestPurgeOlderThan() {
	current := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	old := &model.DeliveryRecord{DeliveryID: "old", Payload: []byte(`{}`), CreatedAt: current.AddDate(0, 0, -31)}
	recent := &model.DeliveryRecord{DeliveryID: "recent", Payload: []byte(`{}`), CreatedAt: current.AddDate(0, 0, -29)}
	s.Require().NoError(s.deliveries.InsertPending(s.ctx, old))
	s.Require().NoError(s.deliveries.InsertPending(s.ctx, recent))

	cutoff := current.AddDate(0, 0, -30)
	n, err := s.deliveries.PurgeOlderThan(s.ctx, cutoff)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	_, err = s.deliveries.Get(s.ctx, old.ID)
	s.ErrorIs(err, ErrNotFound)
	_, err = s.deliveries.Get(s.ctx, recent.ID)
	s.NoError(err)

	n, err = s.deliveries.PurgeOlderThan(s.ctx, cutoff)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RepositorySuite) TestActivityInsert() {
	entry := &model.ActivityLog{
		Scope:       "democon",
		ActionType:  "submission.create",
		ContentType: "submission",
		ObjectID:    "ABCDE",
		Actor:       &model.Actor{Code: "SPKR1", Name: "Jane"},
		Data:        []byte(`{"title":"Talk"}`),
	}
	s.Require().NoError(s.activity.Insert(s.ctx, nil, entry))
	s.NotZero(entry.ID)
	s.False(entry.Timestamp.IsZero())

	var code string
	s.Require().NoError(s.db.Get(&code, `SELECT actor_code FROM activity_log WHERE id = ?`, entry.ID))
	s.Equal("SPKR1", code)
}
