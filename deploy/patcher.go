package deploy

import (
	"encoding/hex"
	"fmt"
	"strings"

	cerrors "tronforge/core/errors"
	"tronforge/crypto"
)

const sentinelHexLen = 2 * crypto.AddressBodyLength

// PatchBytecode substitutes the template's sentinel run with the normalised
// 20-byte hex body of the target address. The substitution is length
// preserving by construction and verified anyway.
//
// The sentinel must occur exactly once. A template that repeats the sentinel
// bytes — even coincidentally inside unrelated opcodes or data — would be
// silently corrupted by a blind global replace, so that case fails loudly
// with ErrSentinelCount instead.
func PatchBytecode(templateHex, sentinelHex, target string) (string, error) {
	template := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(templateHex), "0x"))
	sentinel := strings.ToLower(strings.TrimSpace(sentinelHex))

	if len(sentinel) != sentinelHexLen {
		return "", fmt.Errorf("deploy: sentinel must be %d hex chars, got %d", sentinelHexLen, len(sentinel))
	}
	if _, err := hex.DecodeString(sentinel); err != nil {
		return "", fmt.Errorf("deploy: sentinel is not hex: %w", err)
	}
	if len(template)%2 != 0 {
		return "", fmt.Errorf("deploy: template bytecode has odd hex length %d", len(template))
	}
	if _, err := hex.DecodeString(template); err != nil {
		return "", fmt.Errorf("deploy: template bytecode is not hex: %w", err)
	}

	body, err := crypto.Normalize(target)
	if err != nil {
		return "", err
	}

	switch n := strings.Count(template, sentinel); n {
	case 1:
	case 0:
		return "", fmt.Errorf("%w: sentinel not found", cerrors.ErrSentinelCount)
	default:
		return "", fmt.Errorf("%w: found %d occurrences", cerrors.ErrSentinelCount, n)
	}

	patched := strings.Replace(template, sentinel, body, 1)
	if len(patched) != len(template) {
		return "", fmt.Errorf("deploy: patch changed bytecode length from %d to %d", len(template), len(patched))
	}
	return patched, nil
}
