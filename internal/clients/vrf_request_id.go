package clients

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	uint256Type = mustABIType("uint256")
	uint64Type  = mustABIType("uint64")
	bytes32Type = mustABIType("bytes32")
	addressType = mustABIType("address")

	preSeedArgs = abi.Arguments{{Type: bytes32Type}, {Type: addressType}, {Type: uint64Type}, {Type: uint64Type}}
	requestArgs = abi.Arguments{{Type: bytes32Type}, {Type: uint256Type}}
	wordArgs    = abi.Arguments{{Type: uint256Type}, {Type: uint256Type}}
)

func mustABIType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// ComputeRequestID derives the request id the way the VRF coordinator does:
// preSeed = keccak256(abi.encode(keyHash, sender, subId, nonce)) and
// requestId = keccak256(abi.encode(keyHash, preSeed)).
func ComputeRequestID(keyHash common.Hash, sender common.Address, subID, nonce uint64) (requestID, preSeed *big.Int) {
	packed, err := preSeedArgs.Pack([32]byte(keyHash), sender, subID, nonce)
	if err != nil {
		panic(err)
	}
	preSeed = new(big.Int).SetBytes(crypto.Keccak256(packed))

	packed, err = requestArgs.Pack([32]byte(keyHash), preSeed)
	if err != nil {
		panic(err)
	}
	return new(big.Int).SetBytes(crypto.Keccak256(packed)), preSeed
}

// DeriveRandomWords expands a request id into numWords words,
// word i = uint256(keccak256(abi.encode(requestId, i))).
func DeriveRandomWords(requestID *big.Int, numWords uint32) []*big.Int {
	words := make([]*big.Int, numWords)
	for i := range words {
		packed, err := wordArgs.Pack(requestID, big.NewInt(int64(i)))
		if err != nil {
			panic(err)
		}
		words[i] = new(big.Int).SetBytes(crypto.Keccak256(packed))
	}
	return words
}
