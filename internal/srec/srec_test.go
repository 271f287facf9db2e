package srec

import (
	"bytes"
	"strings"
	"testing"
)

func checksumOK(t *testing.T, record string) {
	t.Helper()
	if len(record) < 4 {
		t.Fatalf("record too short: %q", record)
	}
	lengthHex := record[2:4]
	var length int
	fmtSscanHex(t, lengthHex, &length)

	// sum of (length, address, data) bytes, as hex pairs after "Sx".
	body := record[2 : len(record)-2]
	sum := 0
	for i := 0; i < len(body); i += 2 {
		var b int
		fmtSscanHex(t, body[i:i+2], &b)
		sum += b
	}
	var check int
	fmtSscanHex(t, record[len(record)-2:], &check)
	if (sum+check)&0xFF != 0xFF {
		t.Errorf("checksum invariant violated for %q: sum=%d check=%d", record, sum, check)
	}
}

func fmtSscanHex(t *testing.T, s string, out *int) {
	t.Helper()
	n, err := parseHex(s)
	if err != nil {
		t.Fatalf("parseHex(%q): %v", s, err)
	}
	*out = n
}

func parseHex(s string) (int, error) {
	n := 0
	for _, c := range s {
		n <<= 4
		switch {
		case c >= '0' && c <= '9':
			n |= int(c - '0')
		case c >= 'A' && c <= 'F':
			n |= int(c-'A') + 10
		default:
			return 0, errBadHex
		}
	}
	return n, nil
}

var errBadHex = &hexError{}

type hexError struct{}

func (*hexError) Error() string { return "bad hex digit" }

func TestFormatS3Checksum(t *testing.T) {
	rec, err := FormatS3(0x100, []uint32{0x21000005, 0x90000100})
	if err != nil {
		t.Fatalf("FormatS3: %v", err)
	}
	if !strings.HasPrefix(rec, "S3") {
		t.Errorf("record %q does not start with S3", rec)
	}
	checksumOK(t, rec)
}

func TestFormatS7(t *testing.T) {
	rec := FormatS7(0x100)
	if !strings.HasPrefix(rec, "S7") {
		t.Errorf("record %q does not start with S7", rec)
	}
	checksumOK(t, rec)
	if rec != "S70500000100F9" {
		t.Errorf("FormatS7(0x100) = %q, want S70500000100F9", rec)
	}
}

func TestFormatS3TooManyWords(t *testing.T) {
	words := make([]uint32, MaxWordsPerRecord+1)
	if _, err := FormatS3(0, words); err == nil {
		t.Fatal("expected error for over-length S3 record")
	}
}

func TestEmitS3SequenceChunks(t *testing.T) {
	words := make([]uint32, 25)
	for i := range words {
		words[i] = uint32(i)
	}
	var buf bytes.Buffer
	if err := EmitS3Sequence(&buf, 0, words); err != nil {
		t.Fatalf("EmitS3Sequence: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d records, want 3 (10+10+5)", len(lines))
	}
	for _, l := range lines {
		checksumOK(t, l)
	}
}
