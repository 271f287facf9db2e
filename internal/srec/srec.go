// Package srec formats Motorola S-record lines: S3 data records
// (32-bit address) and a single S7 termination record.
package srec

import (
	"fmt"
	"io"
	"strings"
)

// MaxWordsPerRecord bounds how many 32-bit words a single S3 record
// may carry.
const MaxWordsPerRecord = 10

// FormatS3 renders one S3 data record starting at address and
// carrying at most MaxWordsPerRecord words.
func FormatS3(address uint32, words []uint32) (string, error) {
	if len(words) > MaxWordsPerRecord {
		return "", fmt.Errorf("srec: S3 record carries %d words, max %d", len(words), MaxWordsPerRecord)
	}
	return formatRecord('3', address, words), nil
}

// FormatS7 renders the single S7 termination record at the entry
// point address.
func FormatS7(entry uint32) string {
	return formatRecord('7', entry, nil)
}

func formatRecord(recType byte, address uint32, words []uint32) string {
	length := 4 + 4*len(words) + 1

	var sum int
	sum += length
	sum += int(byte(address >> 24))
	sum += int(byte(address >> 16))
	sum += int(byte(address >> 8))
	sum += int(byte(address))
	for _, w := range words {
		sum += int(byte(w >> 24))
		sum += int(byte(w >> 16))
		sum += int(byte(w >> 8))
		sum += int(byte(w))
	}
	checksum := byte(^byte(sum))

	var b strings.Builder
	fmt.Fprintf(&b, "S%c%02X%08X", recType, length, address)
	for _, w := range words {
		fmt.Fprintf(&b, "%08X", w)
	}
	fmt.Fprintf(&b, "%02X", checksum)
	return b.String()
}

// EmitS3Sequence writes words starting at startAddr as a contiguous
// run of S3 records, each carrying at most MaxWordsPerRecord words.
func EmitS3Sequence(w io.Writer, startAddr uint32, words []uint32) error {
	for i := 0; i < len(words); i += MaxWordsPerRecord {
		end := i + MaxWordsPerRecord
		if end > len(words) {
			end = len(words)
		}
		rec, err := FormatS3(startAddr+uint32(i), words[i:end])
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, rec); err != nil {
			return err
		}
	}
	return nil
}

// EmitTermination writes the final S7 record.
func EmitTermination(w io.Writer, entry uint32) error {
	_, err := fmt.Fprintln(w, FormatS7(entry))
	return err
}
