package jsonseq

import (
	"strings"
	"testing"
)

func TestReaderSplitsRecords(t *testing.T) {
	input := "\x1e[1,2,3]\n\x1e{\"nid\":\"1\",\"msg\":{\"payload\":1}}\n"
	r := NewReader(strings.NewReader(input))

	first, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != "[1,2,3]" {
		t.Errorf("expected the flows array record, got %q", first)
	}

	second, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if string(second) != `{"nid":"1","msg":{"payload":1}}` {
		t.Errorf("expected the injection record, got %q", second)
	}

	if _, err := r.Next(); err == nil {
		t.Fatal("expected EOF after the last record")
	}
}

func TestReaderHandlesTrailingRecordWithoutFinalNewline(t *testing.T) {
	input := "\x1e[1]\n\x1e{\"nid\":\"2\",\"msg\":{}}"
	r := NewReader(strings.NewReader(input))

	if _, err := r.Next(); err != nil {
		t.Fatal(err)
	}
	second, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if string(second) != `{"nid":"2","msg":{}}` {
		t.Errorf("expected the trailing record without its own newline, got %q", second)
	}
}
