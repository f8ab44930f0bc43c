package autoscale

import "errors"

// Sentinel errors for the autoscale service layer.
var (
	ErrNonPositiveBudget = errors.New("new budget cannot be $0 or negative")
	ErrAssetOwnership    = errors.New("ad asset does not belong to this user")
	ErrInvalidRange      = errors.New("unknown stats range")
)
