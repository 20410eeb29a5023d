// Command verify_capture compares the raw payloads recorded in two
// binlog captures, used to confirm that replaying a capture through a
// gateway source reproduces the exact byte stream that was originally
// mirrored to disk.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"btracked-go/binlog"
)

func main() {
	file1 := flag.String("1", "", "first capture")
	file2 := flag.String("2", "", "second capture")
	flag.Parse()

	if *file1 == "" || *file2 == "" {
		log.Fatal("usage: verify_capture -1 <capture> -2 <capture>")
	}

	pkts1, err := readPayloads(*file1)
	if err != nil {
		log.Fatalf("reading %s: %v", *file1, err)
	}
	pkts2, err := readPayloads(*file2)
	if err != nil {
		log.Fatalf("reading %s: %v", *file2, err)
	}

	fmt.Printf("%s: %d records\n", *file1, len(pkts1))
	fmt.Printf("%s: %d records\n", *file2, len(pkts2))

	minLen := len(pkts1)
	if len(pkts2) < minLen {
		minLen = len(pkts2)
	}

	mismatches := 0
	for i := 0; i < minLen; i++ {
		if !bytes.Equal(pkts1[i], pkts2[i]) {
			fmt.Printf("mismatch at record %d: len1=%d len2=%d\n", i, len(pkts1[i]), len(pkts2[i]))
			mismatches++
			if mismatches > 10 {
				fmt.Println("too many mismatches, stopping")
				break
			}
		}
	}
	if len(pkts1) != len(pkts2) {
		fmt.Printf("record count mismatch: %d vs %d\n", len(pkts1), len(pkts2))
		mismatches++
	}

	if mismatches == 0 {
		fmt.Println("SUCCESS: all records match")
		return
	}
	fmt.Println("FAILURE: mismatches found")
	os.Exit(1)
}

func readPayloads(path string) ([][]byte, error) {
	r, err := binlog.OpenCaptureReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out [][]byte
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec.Data)
	}
	return out, nil
}
