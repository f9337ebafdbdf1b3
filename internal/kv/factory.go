package kv

// Type identifies a storage backend.
type Type string

const (
	TypeBadger   Type = "badger"
	TypeMemory   Type = "memory"
	TypePostgres Type = "postgres"
	TypeMySQL    Type = "mysql"
)

// SupportedTypes returns the backends a server can be configured with.
func SupportedTypes() []Type {
	return []Type{TypeBadger, TypeMemory, TypePostgres, TypeMySQL}
}

// IsSupported returns true if the storage type is a known backend.
func IsSupported(t Type) bool {
	switch t {
	case TypeBadger, TypeMemory, TypePostgres, TypeMySQL:
		return true
	}
	return false
}
