package pool

import "strconv"

var (
	poolCollateralPrefix   = []byte("pool/collateral/")
	poolCollateralCountKey = []byte("pool/collateral/count")
	poolBookingsKey        = []byte("pool/bookings")
	poolMintersKey         = []byte("pool/minters")
	poolParamsKey          = []byte("pool/params")
)

func poolCollateralKey(index uint64) []byte {
	suffix := strconv.FormatUint(index, 10)
	buf := make([]byte, len(poolCollateralPrefix)+len(suffix))
	copy(buf, poolCollateralPrefix)
	copy(buf[len(poolCollateralPrefix):], suffix)
	return buf
}
