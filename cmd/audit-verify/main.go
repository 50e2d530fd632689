// audit-verify checks the conservation invariant over an offline export of
// the ledger: given a CSV of accounts (opening and closing balances) and a
// CSV of transaction records, it replays every COMPLETED record and verifies
// that each closing balance equals the arithmetic sum of effects, that no
// balance ever requires going negative, and that reference numbers are
// unique and well formed.
//
// Export shapes:
//
//	accounts.csv:     account_id,opening_balance,closing_balance
//	transactions.csv: reference_number,transaction_type,status,amount,account_id,destination_account_id
package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"banking-core/internal/domain"
)

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func usagef(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}

func openCSV(path string) (*csv.Reader, func()) {
	f, err := os.Open(path)
	if err != nil {
		usagef("open: %v", err)
	}
	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	return r, func() { f.Close() }
}

func headerIndex(r *csv.Reader, required ...string) map[string]int {
	header, err := r.Read()
	if err != nil {
		usagef("read header: %v", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, need := range required {
		if _, ok := col[need]; !ok {
			usagef("missing column: %s", need)
		}
	}
	return col
}

func mustDecimal(s, what string, line int) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		fatalf("line %d: invalid %s: %v", line, what, err)
	}
	return d
}

func main() {
	var (
		accountsPath = flag.String("accounts", "", "CSV of account_id,opening_balance,closing_balance")
		txPath       = flag.String("transactions", "", "CSV export of transaction records")
	)
	flag.Parse()

	if *accountsPath == "" {
		usagef("missing -accounts")
	}
	if *txPath == "" {
		usagef("missing -transactions")
	}

	ar, closeAccounts := openCSV(*accountsPath)
	defer closeAccounts()
	acol := headerIndex(ar, "account_id", "opening_balance", "closing_balance")

	balances := map[string]decimal.Decimal{}
	closing := map[string]decimal.Decimal{}
	lineNo := 1
	for {
		rec, err := ar.Read()
		if err == io.EOF {
			break
		}
		lineNo++
		if err != nil {
			usagef("accounts csv read: %v", err)
		}
		id := strings.TrimSpace(rec[acol["account_id"]])
		balances[id] = mustDecimal(rec[acol["opening_balance"]], "opening_balance", lineNo)
		closing[id] = mustDecimal(rec[acol["closing_balance"]], "closing_balance", lineNo)
	}
	if len(balances) == 0 {
		fatalf("FAIL: empty accounts export")
	}

	tr, closeTx := openCSV(*txPath)
	defer closeTx()
	tcol := headerIndex(tr,
		"reference_number", "transaction_type", "status", "amount",
		"account_id", "destination_account_id")

	seenRefs := map[string]struct{}{}
	lineNo = 1
	replayed := 0
	for {
		rec, err := tr.Read()
		if err == io.EOF {
			break
		}
		lineNo++
		if err != nil {
			usagef("transactions csv read: %v", err)
		}

		ref := strings.TrimSpace(rec[tcol["reference_number"]])
		if !domain.ValidReference(ref) {
			fatalf("line %d: malformed reference %q", lineNo, ref)
		}
		if _, dup := seenRefs[ref]; dup {
			fatalf("FAIL: duplicate reference %s at line %d", ref, lineNo)
		}
		seenRefs[ref] = struct{}{}

		if strings.TrimSpace(rec[tcol["status"]]) != string(domain.TxCompleted) {
			continue
		}

		amount := mustDecimal(rec[tcol["amount"]], "amount", lineNo)
		if !amount.IsPositive() {
			fatalf("line %d: non-positive amount %s", lineNo, amount)
		}
		src := strings.TrimSpace(rec[tcol["account_id"]])
		dst := strings.TrimSpace(rec[tcol["destination_account_id"]])

		bal, ok := balances[src]
		if !ok {
			fatalf("line %d: unknown account %s", lineNo, src)
		}

		switch typ := strings.TrimSpace(rec[tcol["transaction_type"]]); domain.TransactionType(typ) {
		case domain.TypeDeposit:
			balances[src] = bal.Add(amount)
		case domain.TypeWithdrawal:
			balances[src] = bal.Sub(amount)
		case domain.TypeTransfer:
			if dst == "" {
				fatalf("line %d: transfer %s without destination", lineNo, ref)
			}
			dbal, ok := balances[dst]
			if !ok {
				fatalf("line %d: unknown destination account %s", lineNo, dst)
			}
			balances[src] = bal.Sub(amount)
			balances[dst] = dbal.Add(amount)
		default:
			fatalf("line %d: unknown transaction type %q", lineNo, typ)
		}
		replayed++
	}

	for id, got := range balances {
		if got.IsNegative() {
			fatalf("FAIL: account %s replays to negative balance %s", id, got)
		}
		want := closing[id]
		if !got.Equal(want) {
			fatalf("FAIL: account %s closing balance mismatch\nexpected=%s\nreplayed=%s",
				id, want.StringFixed(2), got.StringFixed(2))
		}
	}

	fmt.Printf("OK: %d completed records replayed across %d accounts, all balances conserved\n",
		replayed, len(balances))
}
