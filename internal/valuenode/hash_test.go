package valuenode

import "testing"

func TestHashSetGetDelete(t *testing.T) {
	h := NewHash()
	if !h.Set("field", "value") {
		t.Fatal("Set on new field should report new=true")
	}
	if h.Set("field", "value2") {
		t.Fatal("Set on existing field should report new=false")
	}
	v, ok := h.Get("field")
	if !ok || v != "value2" {
		t.Fatalf("Get() = %q, %v, want value2, true", v, ok)
	}
	if !h.Delete("field") {
		t.Fatal("Delete of existing field should return true")
	}
	if h.Delete("field") {
		t.Fatal("Delete of already-deleted field should return false")
	}
}

func TestHashSetNX(t *testing.T) {
	h := NewHash()
	if !h.SetNX("f", "1") {
		t.Fatal("SetNX on missing field should succeed")
	}
	if h.SetNX("f", "2") {
		t.Fatal("SetNX on existing field should fail")
	}
	v, _ := h.Get("f")
	if v != "1" {
		t.Fatalf("Get() = %q, want 1 (SetNX should not overwrite)", v)
	}
}

func TestHashGetAll(t *testing.T) {
	h := NewHash()
	h.Set("a", "1")
	h.Set("b", "2")
	all := h.GetAll()
	if len(all) != 4 {
		t.Fatalf("GetAll() len = %d, want 4", len(all))
	}
	seen := map[string]string{}
	for i := 0; i+1 < len(all); i += 2 {
		seen[all[i]] = all[i+1]
	}
	if seen["a"] != "1" || seen["b"] != "2" {
		t.Fatalf("GetAll() = %v, want a=1 b=2", seen)
	}
}
