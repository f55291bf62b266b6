package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novasettle/loan-marketplace/internal/domain"
)

const (
	testCreator = "5YNmS1R9nNSCDzb5a7mMJ1dwK9uHeAAF4CerVckCBAnj"
	testBuyer   = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	testTx      = "2ZgydTugHJKQjGGkonjRPSGp6RvKmKRt2yzX3tp1FjAS"
)

// RunStoreTests runs the shared behavioral suite against any Store implementation
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(*testing.T, Store)
	}{
		{"Create", testCreate},
		{"CreateValidation", testCreateValidation},
		{"GetByIDNotFound", testGetByIDNotFound},
		{"GetAllOrder", testGetAllOrder},
		{"GetByCreatorAndOwner", testGetByCreatorAndOwner},
		{"RecordPurchase", testRecordPurchase},
		{"ReturnedTimestampsMatchReads", testReturnedTimestampsMatchReads},
		{"RecordPurchaseFirstWriterWins", testRecordPurchaseFirstWriterWins},
		{"RecordPurchaseGuard", testRecordPurchaseGuard},
		{"RecordPurchaseMissingFields", testRecordPurchaseMissingFields},
		{"RecordPurchaseNotFound", testRecordPurchaseNotFound},
		{"SetStatus", testSetStatus},
		{"SetStatusGuard", testSetStatusGuard},
		{"SetStatusInvalid", testSetStatusInvalid},
		{"Reset", testReset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, store)
		})
	}
}

func sampleInput(creator string) domain.CreateListingInput {
	return domain.CreateListingInput{
		LoanToken:        "USDC",
		LoanAmount:       "5000.50",
		CollateralToken:  "SOL",
		CollateralAmount: "100",
		APR:              "8.5",
		TermDays:         30,
		Creator:          creator,
		TokenAddress:     "CT5zKYSQHNmP6TXc5n1nqP9V1CZL15gyY6DoBP3qKhry",
	}
}

func mustCreate(t *testing.T, s Store, creator string) *domain.Listing {
	t.Helper()
	l, err := s.Create(context.Background(), sampleInput(creator))
	require.NoError(t, err)
	return l
}

func testCreate(t *testing.T, s Store) {
	ctx := context.Background()
	before := time.Now().Add(-time.Second)

	first := mustCreate(t, s, testCreator)
	second := mustCreate(t, s, testCreator)

	assert.Greater(t, second.ID, first.ID)
	assert.Equal(t, domain.ListingStatusActive, first.Status)
	assert.Equal(t, domain.TokenUSDC, first.LoanToken)
	assert.True(t, first.LoanAmount.Equal(decimal.RequireFromString("5000.5")))
	assert.True(t, first.APR.Equal(decimal.RequireFromString("8.5")))
	assert.Nil(t, first.Owner)
	assert.Nil(t, first.TransactionHash)
	assert.Nil(t, first.PurchasedAt)
	assert.True(t, first.CreatedAt.After(before))

	got, err := s.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.True(t, got.CollateralAmount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, testCreator, got.Creator)
}

func testCreateValidation(t *testing.T, s Store) {
	ctx := context.Background()
	in := sampleInput(testCreator)
	in.LoanAmount = "-5"

	l, err := s.Create(ctx, in)
	assert.Nil(t, l)
	assert.ErrorIs(t, err, domain.ErrValidation)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testGetByIDNotFound(t *testing.T, s Store) {
	_, err := s.GetByID(context.Background(), 999999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testGetAllOrder(t *testing.T, s Store) {
	for i := 0; i < 3; i++ {
		mustCreate(t, s, testCreator)
	}

	all, err := s.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Less(t, all[0].ID, all[1].ID)
	assert.Less(t, all[1].ID, all[2].ID)
}

func testGetByCreatorAndOwner(t *testing.T, s Store) {
	ctx := context.Background()
	mine := mustCreate(t, s, testCreator)
	theirs := mustCreate(t, s, "another-creator")

	_, err := s.RecordPurchase(ctx, theirs.ID, testBuyer, testTx)
	require.NoError(t, err)

	created, err := s.GetByCreator(ctx, testCreator)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, mine.ID, created[0].ID)

	owned, err := s.GetByOwner(ctx, testBuyer)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, theirs.ID, owned[0].ID)

	none, err := s.GetByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testRecordPurchase(t *testing.T, s Store) {
	ctx := context.Background()
	l := mustCreate(t, s, testCreator)

	bought, err := s.RecordPurchase(ctx, l.ID, testBuyer, testTx)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusPurchased, bought.Status)
	require.NotNil(t, bought.Owner)
	require.NotNil(t, bought.TransactionHash)
	require.NotNil(t, bought.PurchasedAt)
	assert.Equal(t, testBuyer, *bought.Owner)
	assert.Equal(t, testTx, *bought.TransactionHash)

	got, err := s.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusPurchased, got.Status)
	assert.Equal(t, testBuyer, *got.Owner)
}

func testRecordPurchaseFirstWriterWins(t *testing.T, s Store) {
	ctx := context.Background()
	l := mustCreate(t, s, testCreator)

	_, err := s.RecordPurchase(ctx, l.ID, testBuyer, testTx)
	require.NoError(t, err)

	_, err = s.RecordPurchase(ctx, l.ID, "late-buyer", "late-tx")
	require.Error(t, err)
	var ite *domain.IllegalTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, domain.ReasonNotActive, ite.Reason)

	got, err := s.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, testBuyer, *got.Owner)
	assert.Equal(t, testTx, *got.TransactionHash)
}

func testRecordPurchaseGuard(t *testing.T, s Store) {
	ctx := context.Background()
	l := mustCreate(t, s, testCreator)
	rejected := errors.New("rejected by guard")

	var seen domain.Listing
	_, err := s.RecordPurchase(ctx, l.ID, testBuyer, testTx, func(current domain.Listing) error {
		seen = current
		return rejected
	})
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, l.ID, seen.ID)

	got, err := s.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusActive, got.Status)
	assert.Nil(t, got.Owner)
}

func testRecordPurchaseMissingFields(t *testing.T, s Store) {
	l := mustCreate(t, s, testCreator)

	_, err := s.RecordPurchase(context.Background(), l.ID, "", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func testRecordPurchaseNotFound(t *testing.T, s Store) {
	_, err := s.RecordPurchase(context.Background(), 424242, testBuyer, testTx)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testSetStatus(t *testing.T, s Store) {
	ctx := context.Background()
	l := mustCreate(t, s, testCreator)

	updated, err := s.SetStatus(ctx, l.ID, domain.ListingStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusCancelled, updated.Status)

	got, err := s.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusCancelled, got.Status)

	_, err = s.SetStatus(ctx, 777777, domain.ListingStatusCancelled)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testSetStatusGuard(t *testing.T, s Store) {
	ctx := context.Background()
	l := mustCreate(t, s, testCreator)

	_, err := s.SetStatus(ctx, l.ID, domain.ListingStatusCancelled, func(current domain.Listing) error {
		return &domain.IllegalTransitionError{ListingID: current.ID, Reason: domain.ReasonNotCreator}
	})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	got, err := s.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusActive, got.Status)
}

func testSetStatusInvalid(t *testing.T, s Store) {
	l := mustCreate(t, s, testCreator)

	_, err := s.SetStatus(context.Background(), l.ID, domain.ListingStatus("archived"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func testReset(t *testing.T, s Store) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		mustCreate(t, s, testCreator)
	}

	require.NoError(t, s.Reset(ctx))

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	l := mustCreate(t, s, testCreator)
	assert.Equal(t, uint64(1), l.ID)
}

func testReturnedTimestampsMatchReads(t *testing.T, s Store) {
	ctx := context.Background()

	created := mustCreate(t, s, testCreator)
	fetched, err := s.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, created.CreatedAt.Equal(fetched.CreatedAt), "created %v, read %v", created.CreatedAt, fetched.CreatedAt)

	purchased, err := s.RecordPurchase(ctx, created.ID, testBuyer, testTx)
	require.NoError(t, err)
	fetched, err = s.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, purchased.PurchasedAt)
	require.NotNil(t, fetched.PurchasedAt)
	assert.True(t, purchased.PurchasedAt.Equal(*fetched.PurchasedAt), "purchased %v, read %v", *purchased.PurchasedAt, *fetched.PurchasedAt)
}
