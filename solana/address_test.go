package solana

import (
	"math/rand"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(r *rand.Rand) solana.PublicKey {
	var key solana.PublicKey
	r.Read(key[:])
	return key
}

func TestDeriveAssociatedAddressDeterministic(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		mint, owner := randomKey(r), randomKey(r)
		assert.Equal(t, DeriveAssociatedAddress(mint, owner), DeriveAssociatedAddress(mint, owner))
	}
}

func TestDeriveAssociatedAddressInjective(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	mints := []solana.PublicKey{randomKey(r), randomKey(r), randomKey(r)}
	owners := []solana.PublicKey{randomKey(r), randomKey(r), randomKey(r), randomKey(r)}

	seen := make(map[solana.PublicKey][2]solana.PublicKey)
	for _, mint := range mints {
		for _, owner := range owners {
			ata := DeriveAssociatedAddress(mint, owner)
			prev, dup := seen[ata]
			require.Falsef(t, dup, "%s derived for both %v and %v", ata, prev, [2]solana.PublicKey{mint, owner})
			seen[ata] = [2]solana.PublicKey{mint, owner}
		}
	}

	// swapping roles must not collide either
	a, b := randomKey(r), randomKey(r)
	assert.NotEqual(t, DeriveAssociatedAddress(a, b), DeriveAssociatedAddress(b, a))
}

func TestDeriveAssociatedAddressMatchesLibrary(t *testing.T) {
	mint := solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB")
	owner := solana.MustPublicKeyFromBase58("5HfLhj117ucm2FoqjfcSeZMf91CuJbzxZ9BeRRpZWN6m")

	want, _, err := solana.FindProgramAddress(
		[][]byte{owner.Bytes(), solana.TokenProgramID.Bytes(), mint.Bytes()},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	require.NoError(t, err)
	assert.Equal(t, want, DeriveAssociatedAddress(mint, owner))
}

func TestIsOnCurve(t *testing.T) {
	wallet := solana.NewWallet()
	assert.True(t, IsOnCurve(wallet.PublicKey()))

	r := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		ata := DeriveAssociatedAddress(randomKey(r), wallet.PublicKey())
		assert.False(t, IsOnCurve(ata), "derived address %s is on curve", ata)
	}
}
