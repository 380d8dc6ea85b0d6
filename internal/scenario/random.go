package scenario

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"
	"github.com/iti/rngstream"
)

// Moduli of the two MRG32k3a components; seed words must stay below them.
const (
	mrgM1 = 4294967087
	mrgM2 = 4294944443
)

// rngstream.New advances a package-wide seed.
var streamMu sync.Mutex

// newStream returns a random stream whose state depends only on the run
// seed and the stream name, so equal seeds replay equal runs no matter
// how many streams the process created before.
func newStream(seed, name string) *rngstream.RngStream {
	streamMu.Lock()
	g := rngstream.New(name)
	streamMu.Unlock()
	g.SetSeed(streamSeed(seed, name))
	return g
}

func streamSeed(seed, name string) []uint64 {
	first := uuid.NewSHA1(uuid.NameSpaceURL, []byte("dtnsim:"+seed+"/"+name))
	second := uuid.NewSHA1(first, []byte(name))

	var raw [32]byte
	copy(raw[:16], first[:])
	copy(raw[16:], second[:])

	out := make([]uint64, 6)
	for i := range out {
		w := uint64(binary.BigEndian.Uint32(raw[i*4:]))
		m := uint64(mrgM1)
		if i >= 3 {
			m = mrgM2
		}
		out[i] = w%(m-1) + 1
	}
	return out
}
