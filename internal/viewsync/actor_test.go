package viewsync_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/mocks"
	"github.com/novasettle/loan-marketplace/internal/viewsync"
)

type countingInvalidator struct {
	count int
}

func (c *countingInvalidator) Invalidate() {
	c.count++
}

type actorMocks struct {
	api    *mocks.MockMarketplaceAPI
	wallet *mocks.MockWallet
	view   *countingInvalidator
	actor  *viewsync.Actor
}

func newActor(t *testing.T) *actorMocks {
	ctrl := gomock.NewController(t)
	m := &actorMocks{
		api:    mocks.NewMockMarketplaceAPI(ctrl),
		wallet: mocks.NewMockWallet(ctrl),
		view:   &countingInvalidator{},
	}
	m.wallet.EXPECT().Address().Return(viewer).AnyTimes()
	m.actor = viewsync.NewActor(m.api, m.wallet, m.view)
	return m
}

func TestActorPurchase(t *testing.T) {
	ctx := context.Background()
	l := activeListing(7, seller)

	t.Run("happy path", func(t *testing.T) {
		m := newActor(t)
		purchased := purchasedListing(7, seller, viewer)

		gomock.InOrder(
			m.api.EXPECT().IsVerified(gomock.Any(), viewer).Return(true, nil),
			m.wallet.EXPECT().SignAndSubmit(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, tr viewsync.Transfer) (string, error) {
					assert.Equal(t, uint64(7), tr.ListingID)
					assert.True(t, tr.Amount.Equal(l.LoanAmount))
					assert.Equal(t, domain.TokenUSDC, tr.Token)
					return "sig-1", nil
				}),
			m.api.EXPECT().PurchaseListing(gomock.Any(), uint64(7), viewer, "sig-1").Return(&purchased, nil),
		)

		got, err := m.actor.Purchase(ctx, l)
		require.NoError(t, err)
		assert.Equal(t, domain.ListingStatusPurchased, got.Status)
		assert.Equal(t, 1, m.view.count)
	})

	t.Run("wallet failure never reaches the api", func(t *testing.T) {
		m := newActor(t)
		m.api.EXPECT().IsVerified(gomock.Any(), viewer).Return(true, nil)
		m.wallet.EXPECT().SignAndSubmit(gomock.Any(), gomock.Any()).Return("", errors.New("user rejected the request"))

		_, err := m.actor.Purchase(ctx, l)
		var extErr *domain.ExternalCapabilityError
		require.ErrorAs(t, err, &extErr)
		assert.Equal(t, "wallet", extErr.Capability)
		assert.Zero(t, m.view.count)
	})

	t.Run("unverified buyer is rejected before signing", func(t *testing.T) {
		m := newActor(t)
		m.api.EXPECT().IsVerified(gomock.Any(), viewer).Return(false, nil)

		_, err := m.actor.Purchase(ctx, l)
		var illegal *domain.IllegalTransitionError
		require.ErrorAs(t, err, &illegal)
		assert.Equal(t, domain.ReasonUnverified, illegal.Reason)
	})

	t.Run("own listing is rejected before signing", func(t *testing.T) {
		m := newActor(t)
		m.api.EXPECT().IsVerified(gomock.Any(), viewer).Return(true, nil)

		_, err := m.actor.Purchase(ctx, activeListing(8, viewer))
		assert.True(t, errors.Is(err, domain.ErrIllegalTransition))
	})

	t.Run("lost race still invalidates", func(t *testing.T) {
		m := newActor(t)
		m.api.EXPECT().IsVerified(gomock.Any(), viewer).Return(true, nil)
		m.wallet.EXPECT().SignAndSubmit(gomock.Any(), gomock.Any()).Return("sig-2", nil)
		m.api.EXPECT().PurchaseListing(gomock.Any(), uint64(7), viewer, "sig-2").
			Return(nil, &domain.IllegalTransitionError{ListingID: 7, From: domain.ListingStatusPurchased, To: domain.ListingStatusPurchased, Actor: viewer, Reason: domain.ReasonNotActive})

		_, err := m.actor.Purchase(ctx, l)
		assert.True(t, errors.Is(err, domain.ErrIllegalTransition))
		assert.Equal(t, 1, m.view.count)
	})
}

func TestActorCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("mints token then publishes", func(t *testing.T) {
		m := newActor(t)
		created := activeListing(1, viewer)

		m.wallet.EXPECT().CreateToken(gomock.Any()).Return("MintNew", nil)
		m.api.EXPECT().CreateListing(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, in domain.CreateListingInput) (*domain.Listing, error) {
				assert.Equal(t, viewer, in.Creator)
				assert.Equal(t, "MintNew", in.TokenAddress)
				assert.Equal(t, "500", in.LoanAmount)
				return &created, nil
			})

		got, err := m.actor.Create(ctx, domain.CreateListingInput{
			LoanToken: "USDC", LoanAmount: "500", CollateralToken: "SOL", CollateralAmount: "12",
			APR: "9", TermDays: 30,
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), got.ID)
		assert.Equal(t, 1, m.view.count)
	})

	t.Run("mint failure", func(t *testing.T) {
		m := newActor(t)
		m.wallet.EXPECT().CreateToken(gomock.Any()).Return("", errors.New("insufficient funds"))

		_, err := m.actor.Create(ctx, domain.CreateListingInput{})
		assert.True(t, errors.Is(err, domain.ErrExternal))
		assert.Zero(t, m.view.count)
	})
}

func TestActorCancel(t *testing.T) {
	m := newActor(t)
	cancelled := activeListing(3, viewer)
	cancelled.Status = domain.ListingStatusCancelled

	m.api.EXPECT().CancelListing(gomock.Any(), uint64(3), viewer).Return(&cancelled, nil)

	got, err := m.actor.Cancel(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusCancelled, got.Status)
	assert.Equal(t, 1, m.view.count)
}
