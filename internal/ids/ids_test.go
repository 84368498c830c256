package ids

import (
	"testing"
	"time"
)

func TestRequestIDsSortAndParse(t *testing.T) {
	before := time.Now().Add(-time.Second)
	a := RequestID()
	b := RequestID()
	if a >= b {
		t.Fatalf("ids not increasing: %s >= %s", a, b)
	}
	if !Valid(a) || Valid("not-a-ulid") {
		t.Fatal("validity check failed")
	}
	ts, err := Time(a)
	if err != nil {
		t.Fatal(err)
	}
	if ts.Before(before) || ts.After(time.Now().Add(time.Second)) {
		t.Fatalf("unexpected id time %v", ts)
	}
}
