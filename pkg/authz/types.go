package authz

import "fmt"

// ObjectType is the closed set of object namespaces in the authorization
// model.
type ObjectType string

const (
	ObjectUser    ObjectType = "user"
	ObjectPost    ObjectType = "post"
	ObjectComment ObjectType = "comment"
)

// Relation is the closed relation vocabulary. Tuples are the only source of
// authorization truth; the relational store holds none.
type Relation string

const (
	RelationIsSuperAdmin Relation = "is_super_admin"
	RelationIsOwner      Relation = "is_owner"
	RelationCanCreate    Relation = "can_create"
	RelationCanGetDetail Relation = "can_get_detail"
	RelationCanGetList   Relation = "can_get_list"
	RelationCanUpdate    Relation = "can_update"
	RelationCanDelete    Relation = "can_delete"
)

// ObjectRef formats an object reference as "<type>:<id>".
func ObjectRef(typ ObjectType, id string) string {
	return fmt.Sprintf("%s:%s", typ, id)
}

// Tuple is a (subject, relation, object) triple, the atomic unit of the
// engine's state. Subject and Object use the ObjectRef form.
type Tuple struct {
	Subject  string   `json:"user"`
	Relation Relation `json:"relation"`
	Object   string   `json:"object"`
}

// OwnerTuple builds the is_owner tuple written when ownerID creates an
// object of the given type.
func OwnerTuple(ownerID string, typ ObjectType, objectID string) Tuple {
	return Tuple{
		Subject:  ObjectRef(ObjectUser, ownerID),
		Relation: RelationIsOwner,
		Object:   ObjectRef(typ, objectID),
	}
}

func (t Tuple) String() string {
	return fmt.Sprintf("(%s, %s, %s)", t.Subject, t.Relation, t.Object)
}
