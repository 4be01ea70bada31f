package benchmark

import (
	"encoding/binary"
	mrand "math/rand"
)

// KeyDistribution defines how keys are accessed
type KeyDistribution string

const (
	DistUniform    KeyDistribution = "uniform"    // All keys equally likely
	DistZipfian    KeyDistribution = "zipfian"    // 80/20 rule (realistic)
	DistSequential KeyDistribution = "sequential" // Sequential access
)

// KeyGenerator generates keys according to a distribution
type KeyGenerator struct {
	numKeys      int
	keySize      int
	distribution KeyDistribution
	rng          *mrand.Rand
	zipf         *mrand.Zipf
	seqCounter   int64
}

func NewKeyGenerator(numKeys, keySize int, distribution KeyDistribution, seed int64) *KeyGenerator {
	rng := mrand.New(mrand.NewSource(seed))

	kg := &KeyGenerator{
		numKeys:      numKeys,
		keySize:      keySize,
		distribution: distribution,
		rng:          rng,
	}

	if distribution == DistZipfian {
		kg.zipf = mrand.NewZipf(rng, 1.1, 1, uint64(numKeys-1))
	}

	return kg
}

// KeyAt returns the key for a fixed key number, for preloading.
func (kg *KeyGenerator) KeyAt(keyNum int) []byte {
	key := make([]byte, kg.keySize)
	binary.BigEndian.PutUint64(key[kg.keySize-8:], uint64(keyNum))
	copy(key, "bench-")
	return key
}

// NextKey returns the next key of the configured distribution.
func (kg *KeyGenerator) NextKey() []byte {
	var keyNum int

	switch kg.distribution {
	case DistUniform:
		keyNum = kg.rng.Intn(kg.numKeys)
	case DistZipfian:
		keyNum = int(kg.zipf.Uint64())
	case DistSequential:
		kg.seqCounter++
		keyNum = int(kg.seqCounter % int64(kg.numKeys))
	default:
		keyNum = kg.rng.Intn(kg.numKeys)
	}

	return kg.KeyAt(keyNum)
}

// NextValue returns a pseudo-random value payload.
func (kg *KeyGenerator) NextValue(valueSize int) []byte {
	value := make([]byte, valueSize)
	kg.rng.Read(value)
	return value
}
