package session

import "testing"

func TestPollBook_RememberLookup(t *testing.T) {
	book := newPollBook(8)
	book.Remember("MSG1", []string{"Yes", "No"})

	opts, ok := book.Lookup("MSG1")
	if !ok {
		t.Fatal("expected poll to be known")
	}
	if len(opts) != 2 || opts[0] != "Yes" || opts[1] != "No" {
		t.Fatalf("unexpected options: %v", opts)
	}
	if _, ok := book.Lookup("MSG2"); ok {
		t.Fatal("unknown poll should not resolve")
	}
}

func TestPollBook_EvictsOldest(t *testing.T) {
	book := newPollBook(2)
	book.Remember("A", []string{"1"})
	book.Remember("B", []string{"2"})
	book.Remember("C", []string{"3"})

	if _, ok := book.Lookup("A"); ok {
		t.Fatal("oldest entry should be evicted")
	}
	if _, ok := book.Lookup("B"); !ok {
		t.Fatal("entry B should survive")
	}
	if _, ok := book.Lookup("C"); !ok {
		t.Fatal("entry C should survive")
	}
}

func TestPollBook_IgnoresEmpty(t *testing.T) {
	book := newPollBook(8)
	book.Remember("", []string{"x"})
	book.Remember("MSG", nil)
	if _, ok := book.Lookup(""); ok {
		t.Fatal("empty id must not be stored")
	}
	if _, ok := book.Lookup("MSG"); ok {
		t.Fatal("poll without options must not be stored")
	}
}
