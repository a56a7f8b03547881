package clients

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
)

func word32(v uint64) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32)
}

func TestComputeRequestID_MatchesManualEncoding(t *testing.T) {
	keyHash := common.HexToHash("0xd89b2bf150e3b9e13446986e571fb9cab24b13cea0a43ea20a6049a85cc807cc")
	sender := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

	requestID, preSeed := ComputeRequestID(keyHash, sender, 1, 1)

	var enc []byte
	enc = append(enc, keyHash.Bytes()...)
	enc = append(enc, common.LeftPadBytes(sender.Bytes(), 32)...)
	enc = append(enc, word32(1)...)
	enc = append(enc, word32(1)...)
	wantPreSeed := new(big.Int).SetBytes(crypto.Keccak256(enc))
	assert.Equal(t, wantPreSeed, preSeed)

	enc = append(append([]byte{}, keyHash.Bytes()...), common.LeftPadBytes(wantPreSeed.Bytes(), 32)...)
	assert.Equal(t, new(big.Int).SetBytes(crypto.Keccak256(enc)), requestID)
}

func TestComputeRequestID_NonceChangesID(t *testing.T) {
	keyHash := common.HexToHash("0x01")
	sender := common.HexToAddress("0x02")

	a, _ := ComputeRequestID(keyHash, sender, 1, 1)
	b, _ := ComputeRequestID(keyHash, sender, 1, 2)
	c, _ := ComputeRequestID(keyHash, sender, 1, 1)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
}

func TestDeriveRandomWords(t *testing.T) {
	id := big.NewInt(1)
	words := DeriveRandomWords(id, 2)
	assert.Len(t, words, 2)

	want0 := new(big.Int).SetBytes(crypto.Keccak256(append(word32(1), word32(0)...)))
	want1 := new(big.Int).SetBytes(crypto.Keccak256(append(word32(1), word32(1)...)))
	assert.Equal(t, want0, words[0])
	assert.Equal(t, want1, words[1])

	assert.Empty(t, DeriveRandomWords(id, 0))
}
