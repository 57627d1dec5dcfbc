package sqlitecache

import "encoding/json"

// encodeValue and decodeValue round-trip a cached value through JSON so
// it can live in a TEXT column; this mirrors the wire encoding the core
// package already uses for snapshot export (snapshot.go) and cache keys
// (cache.go's deriveCacheKey).
func encodeValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeValue(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}
