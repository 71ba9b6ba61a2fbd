package msafe

import (
	"bytes"

	"github.com/pandodao/mtg/mtgpack"
)

var (
	walletPrefix      = []byte("w:")
	transactionPrefix = []byte("t:")
	entryPrefix       = []byte("r:")
	propertyPrefix    = []byte("p:")
	eventPrefix       = []byte("e:")

	eventSequenceKey = []byte("s:event")
)

// buildIndexKey packs values after prefix. The prefix slice is never
// appended to in place.
func buildIndexKey(prefix []byte, values ...any) []byte {
	enc := mtgpack.NewEncoder()
	if err := enc.EncodeValues(values...); err != nil {
		panic(err)
	}

	b := enc.Bytes()
	key := make([]byte, 0, len(prefix)+len(b))
	key = append(key, prefix...)
	return append(key, b...)
}

func decodeIndexKey(key, prefix []byte, values ...any) error {
	b := bytes.TrimPrefix(key, prefix)
	dec := mtgpack.NewDecoder(b)
	return dec.DecodeValues(values...)
}
