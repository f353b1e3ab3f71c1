package storage

import (
	"reflect"
	"testing"
)

func TestLockSetNormalized(t *testing.T) {
	got := LockSet{Owners: []string{"carol", "", "alice", "carol"}, Items: []string{"b", "a"}}.normalized()
	want := LockSet{Owners: []string{"alice", "carol"}, Items: []string{"a", "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
