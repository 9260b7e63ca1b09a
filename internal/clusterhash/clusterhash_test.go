package clusterhash

import "testing"

func TestPartitionDeterministic(t *testing.T) {
	a := Partition("user:42", 8)
	b := Partition("user:42", 8)
	if a != b {
		t.Fatalf("Partition not deterministic: got %d and %d", a, b)
	}
}

func TestPartitionInRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		key := string(rune('a' + i%26))
		p := Partition(key, 16)
		if p < 0 || p >= 16 {
			t.Fatalf("Partition(%q, 16) = %d, out of range", key, p)
		}
	}
}

func TestPartitionZeroPartitions(t *testing.T) {
	if p := Partition("anything", 0); p != 0 {
		t.Fatalf("Partition with 0 partitions = %d, want 0", p)
	}
}

func TestPartitionDistribution(t *testing.T) {
	const numPartitions = 4
	counts := make(map[int]int)
	for i := 0; i < 4000; i++ {
		key := "key:" + string(rune(i%97)) + string(rune(i/97))
		counts[Partition(key, numPartitions)]++
	}
	if len(counts) != numPartitions {
		t.Fatalf("expected keys to land in all %d partitions, got %d occupied", numPartitions, len(counts))
	}
}
