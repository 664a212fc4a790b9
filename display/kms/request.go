package kms

import (
	"fmt"
	"strings"
)

type AtomicProperty struct {
	Object uint32
	Name   string
	Value  uint64
	// IsBlob marks a property whose value is created from Blob by the device
	// at commit time. A nil Blob resets the property to 0.
	IsBlob bool
	Blob   []byte
}

func (p AtomicProperty) String() string {
	if p.IsBlob {
		return fmt.Sprintf("%d.%s=blob(%d bytes)", p.Object, p.Name, len(p.Blob))
	}
	return fmt.Sprintf("%d.%s=%d", p.Object, p.Name, p.Value)
}

// AtomicRequest is an ordered set of property assignments submitted to the
// device as one transaction. Setting the same (object, name) twice keeps the
// position of the first assignment and the value of the last.
type AtomicRequest struct {
	props []AtomicProperty
	index map[atomicKey]int
}

type atomicKey struct {
	object uint32
	name   string
}

func NewAtomicRequest() *AtomicRequest {
	return &AtomicRequest{
		index: make(map[atomicKey]int),
	}
}

func (r *AtomicRequest) set(prop AtomicProperty) {
	key := atomicKey{prop.Object, prop.Name}
	if i, ok := r.index[key]; ok {
		r.props[i] = prop
		return
	}
	r.index[key] = len(r.props)
	r.props = append(r.props, prop)
}

func (r *AtomicRequest) Add(object uint32, name string, value uint64) {
	r.set(AtomicProperty{Object: object, Name: name, Value: value})
}

func (r *AtomicRequest) AddBlob(object uint32, name string, data []byte) {
	r.set(AtomicProperty{Object: object, Name: name, IsBlob: true, Blob: data})
}

func (r *AtomicRequest) Merge(other *AtomicRequest) {
	if other == nil {
		return
	}
	for _, prop := range other.props {
		r.set(prop)
	}
}

func (r *AtomicRequest) Get(object uint32, name string) (AtomicProperty, bool) {
	i, ok := r.index[atomicKey{object, name}]
	if !ok {
		return AtomicProperty{}, false
	}
	return r.props[i], true
}

func (r *AtomicRequest) Has(object uint32, name string) bool {
	_, ok := r.index[atomicKey{object, name}]
	return ok
}

func (r *AtomicRequest) Len() int {
	return len(r.props)
}

// Properties returns the assignments in submission order.
func (r *AtomicRequest) Properties() []AtomicProperty {
	result := make([]AtomicProperty, len(r.props))
	copy(result, r.props)
	return result
}

// Objects returns the ids of all objects touched, in first-use order.
func (r *AtomicRequest) Objects() []uint32 {
	var result []uint32
	seen := make(map[uint32]bool)
	for _, prop := range r.props {
		if !seen[prop.Object] {
			seen[prop.Object] = true
			result = append(result, prop.Object)
		}
	}
	return result
}

func (r *AtomicRequest) String() string {
	parts := make([]string, len(r.props))
	for i, prop := range r.props {
		parts[i] = prop.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
