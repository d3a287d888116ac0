package cache

import "fmt"

// KeyPrefix namespaces every key written by RedisCache.
const KeyPrefix = "m365dash:"

func namespaced(key string) string {
	return KeyPrefix + key
}

func TenantDataKey(tenantID string) string {
	return fmt.Sprintf("tenant:%s:data", tenantID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
