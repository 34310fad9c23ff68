package cachemodel

// Entity is the persistence collaborator's view of a row.
//
// InstanceID must be stable for the row's lifetime (usually the primary key).
// A nil InstanceID denotes the entity type itself; see TypeOf.
type Entity interface {
	TypeName() string
	InstanceID() any
}

// Fielder exposes current field values for by-field invalidation.
// ok=false means the entity has no such field.
type Fielder interface {
	Entity
	Field(name string) (value any, ok bool)
}

// FieldSetter receives denormalized values before the entity is persisted.
type FieldSetter interface {
	SetField(name string, value any) error
}

// TypeOf returns the owner that stands for a whole entity type: type-scoped
// namespaces and manager-level memoized functions hang off it.
func TypeOf(typeName string) Entity { return typeOwner(typeName) }

type typeOwner string

func (t typeOwner) TypeName() string { return string(t) }
func (typeOwner) InstanceID() any    { return nil }
