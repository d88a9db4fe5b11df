package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/rentflow/internal/cache"
	"github.com/smallbiznis/rentflow/internal/clock"
	"github.com/smallbiznis/rentflow/internal/contract/domain"
	"github.com/smallbiznis/rentflow/internal/contract/repository"
	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
	"github.com/smallbiznis/rentflow/internal/orgcontext"
	"github.com/smallbiznis/rentflow/pkg/db/dbtest"
	"github.com/smallbiznis/rentflow/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testOrgID = snowflake.ID(1001)

type fixture struct {
	svc   domain.Service
	store cache.Store
	clock *clock.FakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := dbtest.Open(t, &domain.Contract{}, &domain.ContractService{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	store := cache.NewMemoryStore(time.Minute)
	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Cache: store,
		Clock: fake,
	})
	return fixture{svc: svc, store: store, clock: fake}
}

func orgCtx() context.Context {
	return orgcontext.WithOrgID(context.Background(), testOrgID)
}

func validRequest() domain.CreateRequest {
	return domain.CreateRequest{
		RoomID:      "A-101",
		TenantName:  "Tran Thi B",
		MonthlyRent: decimal.NewFromInt(3000000),
		StartDate:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Services: []domain.ServiceRequest{
			{Name: "Electricity", Unit: "meter", Price: decimal.NewFromInt(3500)},
			{Name: "Internet", Unit: "quantity", Price: decimal.NewFromInt(100000)},
			{ServiceID: "Trash Pickup", Name: "Trash", Unit: "Quantity", Price: decimal.NewFromInt(20000), Quantity: 2},
		},
	}
}

func TestCreateAndGet(t *testing.T) {
	f := newFixture(t)
	ctx := orgCtx()

	created, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, created.Status)
	require.Len(t, created.Services, 3)
	assert.Equal(t, "electricity", created.Services[0].ServiceID)
	assert.Equal(t, 0, created.Services[0].Quantity)
	assert.Equal(t, 1, created.Services[1].Quantity)
	assert.Equal(t, "trash-pickup", created.Services[2].ServiceID)
	assert.Equal(t, "quantity", created.Services[2].Unit)

	got, err := f.svc.GetByID(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "A-101", got.RoomID)
	assert.True(t, decimal.NewFromInt(3000000).Equal(got.MonthlyRent))
	require.Len(t, got.Services, 3)
	assert.Equal(t, []string{"electricity", "internet", "trash-pickup"}, []string{
		got.Services[0].ServiceID, got.Services[1].ServiceID, got.Services[2].ServiceID,
	})
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := orgCtx()

	cases := []struct {
		name   string
		mutate func(*domain.CreateRequest)
		want   error
	}{
		{name: "room", mutate: func(r *domain.CreateRequest) { r.RoomID = " " }, want: domain.ErrInvalidRoom},
		{name: "tenant", mutate: func(r *domain.CreateRequest) { r.TenantName = "" }, want: domain.ErrInvalidTenant},
		{name: "rent", mutate: func(r *domain.CreateRequest) { r.MonthlyRent = decimal.NewFromInt(-1) }, want: domain.ErrInvalidRent},
		{name: "term", mutate: func(r *domain.CreateRequest) {
			end := r.StartDate.AddDate(0, 0, -1)
			r.EndDate = &end
		}, want: domain.ErrInvalidTerm},
		{name: "unit", mutate: func(r *domain.CreateRequest) { r.Services[0].Unit = "kwh" }, want: domain.ErrInvalidServiceUnit},
		{name: "price", mutate: func(r *domain.CreateRequest) { r.Services[1].Price = decimal.NewFromInt(-5) }, want: domain.ErrInvalidServicePrice},
		{name: "quantity", mutate: func(r *domain.CreateRequest) { r.Services[1].Quantity = -2 }, want: domain.ErrInvalidQuantity},
		{name: "duplicate", mutate: func(r *domain.CreateRequest) { r.Services[1].Name = "electricity" }, want: domain.ErrDuplicateService},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := f.svc.Create(ctx, req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRequiresOrganization(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), validRequest())
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

func TestGetByIDIsTenantScoped(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(orgCtx(), validRequest())
	require.NoError(t, err)

	other := orgcontext.WithOrgID(context.Background(), snowflake.ID(2002))
	_, err = f.svc.GetByID(other, created.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.GetByID(orgCtx(), "not-an-id")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := orgCtx()
	for _, room := range []string{"A-101", "A-102", "A-103"} {
		req := validRequest()
		req.RoomID = room
		_, err := f.svc.Create(ctx, req)
		require.NoError(t, err)
	}

	first, err := f.svc.List(ctx, domain.ListRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Contracts, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "A-103", first.Contracts[0].RoomID)
	assert.Len(t, first.Contracts[0].Services, 3)

	second, err := f.svc.List(ctx, domain.ListRequest{PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Contracts, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "A-101", second.Contracts[0].RoomID)

	filtered, err := f.svc.List(ctx, domain.ListRequest{RoomID: "A-102"})
	require.NoError(t, err)
	require.Len(t, filtered.Contracts, 1)
}

func TestListClampsOversizedPage(t *testing.T) {
	f := newFixture(t)
	ctx := orgCtx()
	total := option.MaxPageSize + 10
	for i := 0; i < total; i++ {
		req := validRequest()
		req.RoomID = fmt.Sprintf("B-%03d", i)
		req.Services = req.Services[:1]
		_, err := f.svc.Create(ctx, req)
		require.NoError(t, err)
	}

	first, err := f.svc.List(ctx, domain.ListRequest{PageSize: 300})
	require.NoError(t, err)
	require.Len(t, first.Contracts, option.MaxPageSize)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	rest, err := f.svc.List(ctx, domain.ListRequest{PageSize: 300, PageToken: first.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, rest.Contracts, total-option.MaxPageSize)
	assert.False(t, rest.HasMore)
}

func TestSnapshotIsCached(t *testing.T) {
	f := newFixture(t)
	ctx := orgCtx()
	created, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)

	snapshot, err := f.svc.Snapshot(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, created.ID.String(), snapshot.ContractID)
	require.Len(t, snapshot.Services, 3)
	assert.Equal(t, calc.UnitMeter, snapshot.Services[0].Unit)

	cached, ok, err := cache.GetJSON[calc.ContractSnapshot](ctx, f.store, snapshotKey(testOrgID, created.ID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, snapshot.MonthlyRent.Equal(cached.MonthlyRent))
}

func TestTerminate(t *testing.T) {
	f := newFixture(t)
	ctx := orgCtx()
	created, err := f.svc.Create(ctx, validRequest())
	require.NoError(t, err)
	_, err = f.svc.Snapshot(ctx, created.ID.String())
	require.NoError(t, err)

	f.clock.Set(time.Date(2024, 6, 30, 17, 0, 0, 0, time.UTC))
	terminated, err := f.svc.Terminate(ctx, created.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTerminated, terminated.Status)
	require.NotNil(t, terminated.EndDate)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), *terminated.EndDate)

	_, ok, err := cache.GetJSON[calc.ContractSnapshot](ctx, f.store, snapshotKey(testOrgID, created.ID))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.Terminate(ctx, created.ID.String())
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminated)
}
