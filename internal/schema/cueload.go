package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Load parses CUE source declaring an entity registry.
//
// The expected shape is a top-level "entities" struct:
//
//	entities: {
//		user: {
//			table: "users"
//			fields: {
//				id:   {type: "int", pk: true}
//				name: {type: "string"}
//			}
//			relations: {
//				posts: {target: "post", toMany: true, owner: "id", ref: "user_id"}
//			}
//		}
//	}
//
// Field and relation declaration order is preserved. Hybrid properties and
// methods are Go expression builders and are registered on the returned
// registry programmatically after loading.
func Load(src []byte) (*Registry, error) {
	ctx := cuecontext.New()
	val := ctx.CompileBytes(src)
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}

	entities := val.LookupPath(cue.ParsePath("entities"))
	if err := entities.Err(); err != nil {
		return nil, fmt.Errorf("schema has no 'entities' struct: %w", err)
	}

	reg := NewRegistry()
	iter, err := entities.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	for iter.Next() {
		name := iter.Selector().String()
		es, err := parseEntity(name, iter.Value())
		if err != nil {
			return nil, fmt.Errorf("entity '%s': %w", name, err)
		}
		reg.Register(es)
	}

	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// LoadFile reads and parses a CUE schema file.
func LoadFile(path string) (*Registry, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	return Load(src)
}

func parseEntity(name string, val cue.Value) (*EntitySchema, error) {
	table, err := val.LookupPath(cue.ParsePath("table")).String()
	if err != nil {
		return nil, fmt.Errorf("missing table name: %w", err)
	}
	es := &EntitySchema{Name: name, Table: table}

	fields := val.LookupPath(cue.ParsePath("fields"))
	if fields.Err() != nil {
		return nil, fmt.Errorf("missing fields struct")
	}
	fiter, err := fields.Fields()
	if err != nil {
		return nil, err
	}
	for fiter.Next() {
		fm, err := parseField(fiter.Selector().String(), fiter.Value())
		if err != nil {
			return nil, err
		}
		es.AddField(fm)
	}

	relations := val.LookupPath(cue.ParsePath("relations"))
	if relations.Exists() {
		riter, err := relations.Fields()
		if err != nil {
			return nil, err
		}
		for riter.Next() {
			rm, err := parseRelation(riter.Selector().String(), riter.Value())
			if err != nil {
				return nil, err
			}
			es.AddRelation(rm)
		}
	}

	return es, nil
}

func parseField(name string, val cue.Value) (*FieldMeta, error) {
	typeName, err := val.LookupPath(cue.ParsePath("type")).String()
	if err != nil {
		return nil, fmt.Errorf("field '%s': missing type: %w", name, err)
	}
	ft, err := fieldTypeFromName(typeName)
	if err != nil {
		return nil, fmt.Errorf("field '%s': %w", name, err)
	}
	return &FieldMeta{
		Name:       name,
		Type:       ft,
		Optional:   boolAt(val, "optional"),
		PrimaryKey: boolAt(val, "pk"),
	}, nil
}

func parseRelation(name string, val cue.Value) (*RelationMeta, error) {
	target, err := val.LookupPath(cue.ParsePath("target")).String()
	if err != nil {
		return nil, fmt.Errorf("relation '%s': missing target: %w", name, err)
	}
	owner, err := val.LookupPath(cue.ParsePath("owner")).String()
	if err != nil {
		return nil, fmt.Errorf("relation '%s': missing owner column: %w", name, err)
	}
	ref, err := val.LookupPath(cue.ParsePath("ref")).String()
	if err != nil {
		return nil, fmt.Errorf("relation '%s': missing ref column: %w", name, err)
	}
	return &RelationMeta{
		Name:        name,
		Target:      target,
		ToMany:      boolAt(val, "toMany"),
		ViewOnly:    boolAt(val, "viewOnly"),
		OwnerColumn: owner,
		RefColumn:   ref,
	}, nil
}

func fieldTypeFromName(name string) (FieldType, error) {
	switch name {
	case "string":
		return FieldString, nil
	case "int":
		return FieldInt, nil
	case "int64":
		return FieldInt64, nil
	case "float":
		return FieldFloat, nil
	case "bool":
		return FieldBool, nil
	case "time":
		return FieldTime, nil
	case "uuid":
		return FieldUUID, nil
	default:
		return FieldString, fmt.Errorf("unknown field type '%s'", name)
	}
}

func boolAt(val cue.Value, path string) bool {
	v := val.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		return false
	}
	b, err := v.Bool()
	return err == nil && b
}
