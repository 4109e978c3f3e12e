package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"wagering_service/internal/wagering"
)

// requestHash fingerprints what a settlement asks for. Two requests with the
// same reference are the same request only when their hashes agree.
func requestHash(st settlement) string {
	parts := []string{string(st.event.Operation()), st.playerID, st.roundID}
	switch e := st.event.(type) {
	case wagering.Deposit:
		parts = append(parts, strconv.FormatInt(e.Amount, 10))
	case wagering.GrantBonus:
		parts = append(parts, strconv.FormatInt(e.Amount, 10))
	case wagering.GrantFreeSpins:
		parts = append(parts, strconv.FormatInt(e.Count, 10))
	case wagering.Bet:
		parts = append(parts, strconv.FormatInt(e.Amount, 10), strconv.FormatBool(e.IsFreeSpin))
	case wagering.Win:
		parts = append(parts, strconv.FormatInt(e.Amount, 10), strconv.FormatBool(e.IsFreeSpinWin))
	case wagering.Spin:
		parts = append(parts,
			strconv.FormatInt(e.Bet.Amount, 10),
			strconv.FormatBool(e.Bet.IsFreeSpin),
			strconv.FormatInt(e.WinAmount, 10))
	case wagering.Withdraw:
		parts = append(parts, strconv.FormatInt(e.Amount, 10))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// replay returns the original outcome of a reference when the request matches
// the one first settled under it. Records written before hashes were stored
// are matched on operation alone.
func replay(st settlement, existing *Transaction) (*Result, error) {
	match := existing.RequestHash == st.hash
	if existing.RequestHash == "" {
		match = existing.Operation == string(st.event.Operation())
	}
	if !match {
		return nil, fmt.Errorf("%w: %s settled as %s in transaction %s",
			ErrReferenceConflict, st.referenceID, existing.Operation, existing.TransactionID)
	}
	return duplicateResult(existing), nil
}
