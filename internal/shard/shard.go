// Package shard spreads the relationship records of one parent over several
// DynamoDB partitions.
package shard

import (
	"fmt"
	"hash/fnv"
)

// Max is the largest supported shard count.
const Max = 256

// Key returns the partition key of the record linking childRef to parentRef.
// Children are assigned to a shard by hashing their ref, so the same child
// always lands on the same shard of a parent.
func Key(parentRef, childRef string, numShards int) string {
	if numShards <= 1 {
		return format(parentRef, 0)
	}
	if numShards > Max {
		numShards = Max
	}
	h := fnv.New32a()
	h.Write([]byte(childRef))
	return format(parentRef, int(h.Sum32()%uint32(numShards)))
}

// All returns every partition key a parent's records may be stored under.
func All(parentRef string, numShards int) []string {
	if numShards < 1 {
		numShards = 1
	}
	if numShards > Max {
		numShards = Max
	}
	keys := make([]string, numShards)
	for i := range keys {
		keys[i] = format(parentRef, i)
	}
	return keys
}

func format(parentRef string, n int) string {
	return fmt.Sprintf("%s#%02x", parentRef, n)
}
