package cache

import "fmt"

// similarityTag keeps the similarity index and its entries in one cluster slot.
const similarityTag = "{simcache}"

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}

func SimilarityIndexKey() string {
	return similarityTag + ":index"
}

func SimilarityEntryKey(id string) string {
	return similarityTag + ":entry:" + id
}
