package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cerrors "tronforge/core/errors"
	"tronforge/core/types"
	"tronforge/crypto"
	"tronforge/rpc"
	"tronforge/signer"
)

// Report explains a failed submission by re-inspecting live permission state
// and comparing it against the permission the submission actually used. It
// is purely informational: building a report never retries anything and
// never mutates state.
type Report struct {
	Category         cerrors.Category
	SignerAddress    string
	UsedPermissionID int32
	PermissionKind   types.PermissionKind
	PermissionFound  bool
	KeyPresent       bool
	CapabilitySet    bool
	Threshold        int64
	Resources        *types.AccountResources
	Remediation      []string
	Notes            []string
}

var remediation = map[cerrors.Category][]string{
	cerrors.CategorySignatureMismatch: {
		"confirm the signing key matches a key listed under the used permission",
		"confirm the signing provider signed under the same permission id the transaction declares",
		"if the account uses a non-default active permission, select it explicitly in the signing provider",
	},
	cerrors.CategoryPermissionNotContained: {
		"re-fetch the account and check the permission id still exists",
		"check the permission's operations vector includes contract creation/invocation",
		"if permissions were recently changed on-chain, retry after the change confirms",
	},
	cerrors.CategoryResourceInsufficient: {
		"check the account's remaining energy and bandwidth",
		"top up the account balance or raise the fee limit",
		"consider freezing balance for energy before redeploying",
	},
	cerrors.CategoryNetworkTimeout: {
		"verify the transaction id on a block explorer before retrying",
		"check node endpoint health and rate limits",
	},
	cerrors.CategoryConfirmationTimeout: {
		"the transaction was broadcast but never confirmed within the polling budget",
		"verify the transaction id on a block explorer before resubmitting anything",
	},
	cerrors.CategorySignatureRejected: {
		"the signature request was declined or expired in the signing provider; no transaction was sent",
		"retry and approve the request within the provider's timeout",
	},
	cerrors.CategoryContractReverted: {
		"inspect the revert message and the contract's constructor requirements",
		"the fee was consumed; fix the input before resubmitting",
	},
	cerrors.CategoryUnknown: {
		"inspect the raw error messages from each strategy",
		"verify account state and node health, then retry once",
	},
}

// Diagnose classifies a submission failure and re-checks the account's
// permission structure against the permission id that was used.
func Diagnose(ctx context.Context, ledger Ledger, signerAddr crypto.Address, usedPermission int32, opBit uint, submitErr error) *Report {
	report := &Report{
		Category:         classifyError(submitErr),
		SignerAddress:    signerAddr.String(),
		UsedPermissionID: usedPermission,
	}
	report.Remediation = append(report.Remediation, remediation[report.Category]...)

	if report.Category == cerrors.CategoryResourceInsufficient {
		if res, resErr := ledger.GetAccountResources(ctx, signerAddr); resErr != nil {
			report.Notes = append(report.Notes, fmt.Sprintf("could not fetch resource state: %v", resErr))
		} else {
			report.Resources = res
			report.Notes = append(report.Notes, fmt.Sprintf(
				"account has %d energy and %d bandwidth remaining", res.EnergyAvailable(), res.BandwidthAvailable()))
		}
	}

	account, err := ledger.GetAccount(ctx, signerAddr)
	if err != nil {
		report.Notes = append(report.Notes, fmt.Sprintf("could not re-fetch account state: %v", err))
		return report
	}

	perm, ok := account.PermissionByID(usedPermission)
	report.PermissionFound = ok
	if !ok {
		report.Notes = append(report.Notes, fmt.Sprintf("permission id %d no longer exists on the account", usedPermission))
		return report
	}
	report.PermissionKind = perm.Kind
	report.KeyPresent = perm.HasKey(signerAddr)
	report.CapabilitySet = perm.Operations.Has(opBit)
	report.Threshold = perm.Threshold

	if !report.KeyPresent {
		report.Notes = append(report.Notes, "signer key is not listed under the used permission")
	}
	if !report.CapabilitySet {
		report.Notes = append(report.Notes, "used permission lacks the required capability bit")
	}
	if perm.Threshold > 1 {
		report.Notes = append(report.Notes, fmt.Sprintf("used permission requires %d total signature weight", perm.Threshold))
	}

	// Known failure pattern: the resolver prefers the owner permission, but
	// several external signing providers default to an active permission.
	// When both would have qualified, a signature mismatch is most likely
	// that divergence, not a key problem.
	if report.Category == cerrors.CategorySignatureMismatch && usedPermission == types.OwnerPermissionID {
		for _, active := range account.Actives {
			if active.HasKey(signerAddr) && active.Operations.Has(opBit) && active.Unilateral() {
				report.Notes = append(report.Notes, fmt.Sprintf(
					"active permission id %d also qualifies; the signing provider may have signed under it while the transaction declares the owner permission", active.ID))
				break
			}
		}
	}

	return report
}

// classifyError maps a terminal submission error onto the report taxonomy.
func classifyError(err error) cerrors.Category {
	if err == nil {
		return cerrors.CategoryUnknown
	}
	if errors.Is(err, signer.ErrRejected) || errors.Is(err, signer.ErrTimeout) {
		return cerrors.CategorySignatureRejected
	}
	if errors.Is(err, cerrors.ErrValidateMismatch) {
		return cerrors.CategoryPermissionNotContained
	}
	if errors.Is(err, cerrors.ErrContractReverted) {
		return cerrors.CategoryContractReverted
	}
	var broadcastErr *rpc.BroadcastError
	if errors.As(err, &broadcastErr) {
		return classifyBroadcast(broadcastErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return cerrors.CategoryNetworkTimeout
	}
	return cerrors.CategoryUnknown
}

func classifyBroadcast(err *rpc.BroadcastError) cerrors.Category {
	code := strings.ToUpper(err.Code)
	msg := strings.ToLower(err.Message)
	switch {
	case code == "SIGERROR":
		return cerrors.CategorySignatureMismatch
	case strings.Contains(code, "BANDWITH") || strings.Contains(code, "BANDWIDTH"):
		return cerrors.CategoryResourceInsufficient
	case strings.Contains(msg, "energy") || strings.Contains(msg, "balance is not sufficient"):
		return cerrors.CategoryResourceInsufficient
	case strings.Contains(msg, "permission"):
		return cerrors.CategoryPermissionNotContained
	case code == "SERVER_BUSY" || code == "NOT_ENOUGH_EFFECTIVE_CONNECTION":
		return cerrors.CategoryNetworkTimeout
	default:
		return cerrors.CategoryUnknown
	}
}
