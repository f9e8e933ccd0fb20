package errors

import stderrors "errors"

// Fatal input and resolution errors.
var (
	ErrPermissionNotFound  = stderrors.New("deploy: no permission authorises this signer")
	ErrSentinelCount       = stderrors.New("deploy: sentinel must occur exactly once in template")
	ErrValidateMismatch    = stderrors.New("deploy: unsigned transaction diverges from resolved permission")
	ErrBroadcastRejected   = stderrors.New("deploy: broadcast rejected by node")
	ErrContractReverted    = stderrors.New("deploy: contract execution reverted")
	ErrAllStrategiesFailed = stderrors.New("deploy: every submission strategy failed")
)

// Category labels a terminal submission failure for the diagnostics report.
type Category string

const (
	CategorySignatureMismatch      Category = "signature-mismatch"
	CategoryPermissionNotContained Category = "permission-not-contained"
	CategoryResourceInsufficient   Category = "resource-insufficient"
	CategoryNetworkTimeout         Category = "network-timeout"
	CategoryConfirmationTimeout    Category = "confirmation-timeout"
	CategorySignatureRejected      Category = "signature-rejected"
	CategoryContractReverted       Category = "contract-reverted"
	CategoryUnknown                Category = "unknown"
)
