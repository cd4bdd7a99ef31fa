package agentloop

import (
	"crypto/sha256"
	"fmt"
)

// decisionSignature computes a deterministic signature for a decision
// (name + hash of the canonical argument JSON).
func decisionSignature(name string, arguments []byte) string {
	h := sha256.Sum256(arguments)
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// lastSignatures returns the signatures of the most recent count entries in
// chronological order.
func lastSignatures(entries []Entry, count int) []string {
	if len(entries) > count {
		entries = entries[len(entries)-count:]
	}
	sigs := make([]string, len(entries))
	for i, e := range entries {
		sigs[i] = e.Decision.signature()
	}
	return sigs
}

// DetectLoop checks if the last windowSize decisions follow a repeating
// pattern of length 1, 2, or 3.
func DetectLoop(entries []Entry, windowSize int) bool {
	if windowSize < 2 {
		return false
	}
	sigs := lastSignatures(entries, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 || windowSize == patternLen {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}

	return false
}
