package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
)

func main() {
	inPath := flag.String("in", "", "CSV exported from event_log_proof_export_v")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}

	f, err := os.Open(*inPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(2)
	}
	defer f.Close()

	rows, err := verify(bufio.NewReader(f))
	if err != nil {
		fmt.Fprintln(os.Stderr, "FAIL:", err)
		os.Exit(1)
	}

	fmt.Printf("OK: %d events verified\n", rows)
}
