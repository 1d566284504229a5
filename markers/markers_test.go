package markers

import (
	"reflect"
	"strings"
	"testing"
)

func TestFindIgnoresCase(t *testing.T) {
	set := Build([]string{"<script", "eval"})
	marker, ok := set.Find([]byte("Nice photo <SCRIPT>alert(1)</script>"))
	if !ok || marker != "<script" {
		t.Fatalf("expected <script, got %q %v", marker, ok)
	}
	if _, ok := set.Find([]byte("Canon EOS 5D")); ok {
		t.Fatal("unexpected match")
	}
}

func TestFindReportsMarkerOrder(t *testing.T) {
	set := Build([]string{"base64", "<?"})
	marker, ok := set.Find([]byte("<?php echo base64_decode($x); ?>"))
	if !ok || marker != "base64" {
		t.Fatalf("expected first configured marker, got %q", marker)
	}
}

func TestBuildNormalizesTerms(t *testing.T) {
	set := Build([]string{" EVAL ", "eval", "", "$_"})
	if got := set.Terms(); !reflect.DeepEqual(got, []string{"eval", "$_"}) {
		t.Fatalf("unexpected terms: %v", got)
	}
	empty := Build(nil)
	if _, ok := empty.Find([]byte("eval")); ok {
		t.Fatal("empty set must never match")
	}
	if len(empty.FindAll([]byte("eval"))) != 0 {
		t.Fatal("empty set must never match")
	}
}

func TestAutoSetParity(t *testing.T) {
	content := []byte(strings.Repeat("Exif padding ", 512) + "x=<IFRAME src=//evil> passthru($cmd)")
	auto := Build(DefaultInjection).(autoSet)
	if len(content) < autoAhoMinContentBytes || len(DefaultInjection) < autoAhoMinTerms {
		t.Fatal("test input must exercise the aho path")
	}
	want := auto.naive.FindAll(content)
	got := auto.aho.FindAll(content)
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("naive=%v aho=%v", want, got)
	}
	if !reflect.DeepEqual(auto.FindAll(content), []string{"<iframe", "passthru("}) {
		t.Fatalf("unexpected hits: %v", auto.FindAll(content))
	}
	m, ok := auto.Find(content)
	if !ok || m != "<iframe" {
		t.Fatalf("unexpected first hit %q", m)
	}
}

func TestLowerASCIIDoesNotMutateInput(t *testing.T) {
	in := []byte("ABC")
	out := lowerASCII(in)
	if string(in) != "ABC" || string(out) != "abc" {
		t.Fatalf("in=%q out=%q", in, out)
	}
	already := []byte("abc")
	if &lowerASCII(already)[0] != &already[0] {
		t.Fatal("lowercase input should be returned as is")
	}
}
