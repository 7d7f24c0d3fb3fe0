package proof

import "gitlab.com/warrant1/connector/internal/errs"

var (
	errEncodeNilAmount      = errs.New(errs.KindUnknown, "codec: amount is nil")
	errEncodeNegativeAmount = errs.New(errs.KindUnknown, "codec: amount is negative")
	errEncodeOverflow       = errs.New(errs.KindUnknown, "codec: amount overflows uint256")
)
