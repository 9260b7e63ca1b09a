// Package clusterhash implements curiodb's partition assignment: a plain
// `hash(key) mod P` over a fixed partition count, no virtual nodes and no
// rebalancing, since cluster topology is static at boot. Uses xxhash64
// for a fast, well-distributed, non-cryptographic hash — the one primitive
// this partition scheme actually needs.
package clusterhash

import "github.com/cespare/xxhash/v2"

// Partition returns which of numPartitions partitions owns key.
func Partition(key string, numPartitions int) int {
	if numPartitions <= 0 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(numPartitions))
}
