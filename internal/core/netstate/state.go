// Package netstate records which replicated fields of an entity changed since
// the last replication pass. It does not serialize anything.
package netstate

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/zeusync/substrate/internal/core/entity"
	"github.com/zeusync/substrate/internal/core/transform"
	"github.com/zeusync/substrate/pkg/vmath"
)

// State is the replicated view of one entity. Field offsets into this struct
// are the change keys used by Tracker.
type State struct {
	Origin     vmath.Vec3         `net:"origin" json:"origin"`
	Angles     vmath.Angles       `net:"angles" json:"angles"`
	Velocity   vmath.Vec3         `net:"velocity" json:"velocity"`
	Parent     entity.ID          `net:"parent" json:"parent"`
	Attachment int                `net:"attachment" json:"attachment"`
	Ground     entity.ID          `net:"ground" json:"ground"`
	Solidity   transform.Solidity `net:"solidity" json:"solidity"`
	Flags      uint32             `net:"flags" json:"flags"`
}

// Field describes one replicated struct member.
type Field struct {
	Name   string
	Offset uintptr
	Size   uintptr
	Type   reflect.Type
}

// Schema maps replicated field names to byte offsets and back.
type Schema struct {
	name     string
	fields   []Field
	byName   map[string]int
	byOffset map[uintptr]int
}

// StateSchema is the schema of State.
var StateSchema = MustSchema(State{})

// Well-known offsets of State, resolved once.
var (
	OriginOffset     = StateSchema.MustOffset("origin")
	AnglesOffset     = StateSchema.MustOffset("angles")
	VelocityOffset   = StateSchema.MustOffset("velocity")
	ParentOffset     = StateSchema.MustOffset("parent")
	AttachmentOffset = StateSchema.MustOffset("attachment")
	GroundOffset     = StateSchema.MustOffset("ground")
	SolidityOffset   = StateSchema.MustOffset("solidity")
	FlagsOffset      = StateSchema.MustOffset("flags")
)

// NewSchema builds a schema from a struct value or pointer. Exported fields are
// included unless tagged `net:"-"`; the tag overrides the field name.
func NewSchema(v any) (*Schema, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %T", ErrNotStruct, v)
	}

	s := &Schema{
		name:     t.Name(),
		byName:   make(map[string]int),
		byOffset: make(map[uintptr]int),
	}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("net"); ok {
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		if _, dup := s.byName[name]; dup {
			return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateField, s.name, name)
		}
		s.byName[name] = len(s.fields)
		s.byOffset[sf.Offset] = len(s.fields)
		s.fields = append(s.fields, Field{Name: name, Offset: sf.Offset, Size: sf.Type.Size(), Type: sf.Type})
	}
	return s, nil
}

func MustSchema(v any) *Schema {
	s, err := NewSchema(v)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string {
	return s.name
}

// Fields returns the replicated fields in declaration order.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

func (s *Schema) Offset(name string) (uintptr, bool) {
	i, ok := s.byName[name]
	if !ok {
		return 0, false
	}
	return s.fields[i].Offset, true
}

func (s *Schema) MustOffset(name string) uintptr {
	off, ok := s.Offset(name)
	if !ok {
		panic(fmt.Sprintf("netstate: %s has no field %q", s.name, name))
	}
	return off
}

// Field returns the field starting at offset.
func (s *Schema) Field(offset uintptr) (Field, bool) {
	i, ok := s.byOffset[offset]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Names resolves a change set to field names. A full change lists every field.
func (s *Schema) Names(cs ChangeSet) []string {
	if cs.Full {
		names := make([]string, len(s.fields))
		for i, f := range s.fields {
			names[i] = f.Name
		}
		return names
	}
	offsets := append([]uintptr(nil), cs.Offsets...)
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	names := make([]string, 0, len(offsets))
	for _, off := range offsets {
		if f, ok := s.Field(off); ok {
			names = append(names, f.Name)
		}
	}
	return names
}
