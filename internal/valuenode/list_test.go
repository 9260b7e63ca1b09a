package valuenode

import (
	"reflect"
	"testing"
)

func TestListPushPop(t *testing.T) {
	l := NewList()
	l.PushBack("a")
	l.PushBack("b")
	l.PushFront("z")

	if got := l.ToSlice(); !reflect.DeepEqual(got, []string{"z", "a", "b"}) {
		t.Fatalf("ToSlice() = %v", got)
	}

	v, ok := l.PopFront()
	if !ok || v != "z" {
		t.Fatalf("PopFront() = %q, %v, want z, true", v, ok)
	}
	v, ok = l.PopBack()
	if !ok || v != "b" {
		t.Fatalf("PopBack() = %q, %v, want b, true", v, ok)
	}
	if l.Length != 1 {
		t.Fatalf("Length = %d, want 1", l.Length)
	}
}

func TestListEmptyPop(t *testing.T) {
	l := NewList()
	if _, ok := l.PopFront(); ok {
		t.Fatal("PopFront on empty list returned ok=true")
	}
	if _, ok := l.PopBack(); ok {
		t.Fatal("PopBack on empty list returned ok=true")
	}
}

func TestListRangeNegativeIndices(t *testing.T) {
	l := NewList()
	for _, v := range []string{"a", "b", "c", "d", "e"} {
		l.PushBack(v)
	}
	got := l.Range(-3, -1)
	want := []string{"c", "d", "e"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Range(-3, -1) = %v, want %v", got, want)
	}
}

func TestListGetAtSetAt(t *testing.T) {
	l := NewList()
	l.PushBack("a")
	l.PushBack("b")
	l.SetAt(-1, "z")
	v, ok := l.GetAt(1)
	if !ok || v != "z" {
		t.Fatalf("GetAt(1) = %q, %v, want z, true", v, ok)
	}
}

func TestListTrim(t *testing.T) {
	l := NewList()
	for _, v := range []string{"a", "b", "c", "d"} {
		l.PushBack(v)
	}
	l.Trim(1, 2)
	if got := l.ToSlice(); !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("Trim(1,2) left %v", got)
	}
}
