package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"bank-ledger/internal/store"
)

var requiredColumns = []string{"seq", "payload_json", "payload_canonical", "payload_hash_hex"}

// verify checks every exported audit row: the canonical payload must be the
// JCS form of payload_json, the hash must match it, and seq must increase.
func verify(in io.Reader) (int, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, need := range requiredColumns {
		if _, ok := col[need]; !ok {
			return 0, fmt.Errorf("missing column: %s", need)
		}
	}

	var (
		lineNo  = 1
		rows    int
		lastSeq int64 = -1
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		lineNo++
		if err != nil {
			return rows, fmt.Errorf("csv read: %w", err)
		}
		if len(rec) < len(header) {
			return rows, fmt.Errorf("line %d: short record", lineNo)
		}

		seq, err := strconv.ParseInt(strings.TrimSpace(rec[col["seq"]]), 10, 64)
		if err != nil {
			return rows, fmt.Errorf("line %d: invalid seq: %w", lineNo, err)
		}
		if seq <= lastSeq {
			return rows, fmt.Errorf("line %d: seq %d not after %d", lineNo, seq, lastSeq)
		}
		lastSeq = seq

		ev := store.Event{
			PayloadJSON:      json.RawMessage(rec[col["payload_json"]]),
			PayloadCanonical: rec[col["payload_canonical"]],
			PayloadHash:      strings.ToLower(strings.TrimSpace(rec[col["payload_hash_hex"]])),
		}
		if !store.VerifyEvent(ev) {
			return rows, fmt.Errorf("line %d: payload mismatch at seq=%d", lineNo, seq)
		}
		rows++
	}

	if rows == 0 {
		return 0, errors.New("empty export")
	}
	return rows, nil
}
