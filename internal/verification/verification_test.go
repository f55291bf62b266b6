package verification_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novasettle/loan-marketplace/internal/domain"
	"github.com/novasettle/loan-marketplace/internal/mocks"
	"github.com/novasettle/loan-marketplace/internal/verification"
)

const wallet = "5YNmS1R9nNSCDzb5a7mMJ1dwK9uHeAAF4CerVckCBAnj"

func TestSimulatedVerifier_Verify(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	clock := mocks.NewMockClock(ctrl)
	fired := make(chan time.Time, 1)
	fired <- time.Now()
	clock.EXPECT().After(2 * time.Second).Return(fired)

	v := verification.NewSimulatedVerifier(2*time.Second, clock)
	ctx := context.Background()

	verified, err := v.IsVerified(ctx, wallet)
	require.NoError(t, err)
	assert.False(t, verified)

	ok, err := v.Verify(ctx, wallet)
	require.NoError(t, err)
	assert.True(t, ok)

	verified, err = v.IsVerified(ctx, wallet)
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestSimulatedVerifier_VerifyCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	clock := mocks.NewMockClock(ctrl)
	never := make(chan time.Time)
	clock.EXPECT().After(time.Minute).Return(never)

	v := verification.NewSimulatedVerifier(time.Minute, clock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := v.Verify(ctx, wallet)
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrExternal)

	verified, err := v.IsVerified(context.Background(), wallet)
	require.NoError(t, err)
	assert.False(t, verified)
}

func TestSimulatedVerifier_RequiresAddress(t *testing.T) {
	v := verification.NewSimulatedVerifier(0, nil)

	_, err := v.Verify(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = v.IsVerified(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
