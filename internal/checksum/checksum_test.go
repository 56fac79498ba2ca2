package checksum

import (
	"bytes"
	"testing"
)

func TestSumReaderMatchesSum(t *testing.T) {
	data := bytes.Repeat([]byte("typsite"), 100000)
	got, err := SumReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("SumReader: %v", err)
	}
	if got != Sum(data) {
		t.Errorf("SumReader = %s, Sum = %s", got, Sum(data))
	}
}

func TestSumEmpty(t *testing.T) {
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if Sum(nil) != empty {
		t.Errorf("Sum(nil) = %s", Sum(nil))
	}
}
