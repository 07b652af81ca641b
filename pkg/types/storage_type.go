// Package types holds the value types shared between the schema, marshal, and
// dao layers.
package types

import "fmt"

// StorageType is the SQL storage class a mapped field is persisted as.
type StorageType int

const (
	Text StorageType = iota
	Integer
	BigInt
	Double
	Blob
)

var storageTypeNames = [...]string{
	Text:    "TEXT",
	Integer: "INTEGER",
	BigInt:  "BIGINT",
	Double:  "DOUBLE",
	Blob:    "BLOB",
}

// SQL returns the type name used in CREATE TABLE statements.
func (s StorageType) SQL() string {
	if s < 0 || int(s) >= len(storageTypeNames) {
		return fmt.Sprintf("StorageType(%d)", int(s))
	}
	return storageTypeNames[s]
}

func (s StorageType) String() string {
	return s.SQL()
}

// ParseStorageType is the inverse of SQL.
func ParseStorageType(name string) (StorageType, error) {
	for i, n := range storageTypeNames {
		if n == name {
			return StorageType(i), nil
		}
	}
	return 0, fmt.Errorf("types: unknown storage type %q", name)
}
