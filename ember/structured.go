package ember

import (
	"bytes"
	"encoding/json"
	"sort"
)

// NodeKind tags a Node in a structured value tree.
type NodeKind int

const (
	NodeNull NodeKind = iota
	NodeBool
	NodeNumber
	NodeString
	NodeArray
	NodeObject
)

// Node is one element of a structured (JSON-like) value tree. Trees round-trip
// losslessly through JSON text.
type Node struct {
	kind NodeKind
	b    bool
	num  float64
	str  string
	arr  []*Node
	obj  map[string]*Node
}

func NewNullNode() *Node            { return &Node{kind: NodeNull} }
func NewBoolNode(b bool) *Node      { return &Node{kind: NodeBool, b: b} }
func NewNumberNode(f float64) *Node { return &Node{kind: NodeNumber, num: f} }
func NewStringNode(s string) *Node  { return &Node{kind: NodeString, str: s} }
func NewArrayNode() *Node           { return &Node{kind: NodeArray, arr: []*Node{}} }
func NewObjectNode() *Node          { return &Node{kind: NodeObject, obj: map[string]*Node{}} }

func (n *Node) Kind() NodeKind { return n.kind }

func (n *Node) Bool() bool {
	switch n.kind {
	case NodeBool:
		return n.b
	case NodeNumber:
		return n.num != 0
	case NodeString:
		return n.str != ""
	case NodeArray:
		return len(n.arr) > 0
	case NodeObject:
		return len(n.obj) > 0
	}
	return false
}

func (n *Node) Number() float64 {
	switch n.kind {
	case NodeNumber:
		return n.num
	case NodeBool:
		if n.b {
			return 1
		}
	}
	return 0
}

func (n *Node) Text() string {
	if n.kind == NodeString {
		return n.str
	}
	return n.JSONString()
}

// Len returns the element count for arrays and objects, 0 otherwise.
func (n *Node) Len() int {
	switch n.kind {
	case NodeArray:
		return len(n.arr)
	case NodeObject:
		return len(n.obj)
	}
	return 0
}

// Index returns the i-th array element, or nil when out of range or not an
// array.
func (n *Node) Index(i int) *Node {
	if n.kind != NodeArray || i < 0 || i >= len(n.arr) {
		return nil
	}
	return n.arr[i]
}

// Member returns the named object member, or nil.
func (n *Node) Member(key string) *Node {
	if n.kind != NodeObject {
		return nil
	}
	return n.obj[key]
}

// Keys returns the object's member names in sorted order.
func (n *Node) Keys() []string {
	if n.kind != NodeObject {
		return nil
	}
	keys := make([]string, 0, len(n.obj))
	for k := range n.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetMember sets an object member, converting a null node into an object
// first so freshly declared variables can be populated member by member.
func (n *Node) SetMember(key string, child *Node) bool {
	if n.kind == NodeNull {
		n.kind = NodeObject
		n.obj = map[string]*Node{}
	}
	if n.kind != NodeObject {
		return false
	}
	n.obj[key] = child
	return true
}

// SetIndex sets an array element. Writing one past the end appends.
func (n *Node) SetIndex(i int, child *Node) bool {
	if n.kind == NodeNull {
		n.kind = NodeArray
		n.arr = []*Node{}
	}
	if n.kind != NodeArray || i < 0 || i > len(n.arr) {
		return false
	}
	if i == len(n.arr) {
		n.arr = append(n.arr, child)
	} else {
		n.arr[i] = child
	}
	return true
}

// Append adds an array element.
func (n *Node) Append(child *Node) bool {
	if n.kind != NodeArray {
		return false
	}
	n.arr = append(n.arr, child)
	return true
}

// DeepCopy clones the whole tree.
func (n *Node) DeepCopy() *Node {
	if n == nil {
		return nil
	}
	copied := &Node{kind: n.kind, b: n.b, num: n.num, str: n.str}
	if n.arr != nil {
		copied.arr = make([]*Node, len(n.arr))
		for i, child := range n.arr {
			copied.arr[i] = child.DeepCopy()
		}
	}
	if n.obj != nil {
		copied.obj = make(map[string]*Node, len(n.obj))
		for k, child := range n.obj {
			copied.obj[k] = child.DeepCopy()
		}
	}
	return copied
}

// Value converts a node into the engine value that represents it: leaves
// become numbers or text, containers stay structured.
func (n *Node) Value() Value {
	if n == nil {
		return NewNull()
	}
	switch n.kind {
	case NodeNull:
		return NewNull()
	case NodeBool:
		return NewBool(n.b)
	case NodeNumber:
		return NewNumber(n.num)
	case NodeString:
		return NewText(n.str)
	default:
		return NewStructured(n)
	}
}

// NodeFromValue converts an engine value into a node. Errors convert to their
// message text, null to a null node.
func NodeFromValue(v Value) *Node {
	switch {
	case v.flags&TypeNumeric != 0:
		return NewNumberNode(v.num)
	case v.flags&TypeText != 0:
		return NewStringNode(v.str)
	case v.flags&TypeStructured != 0:
		return v.node.DeepCopy()
	case v.flags&TypeError != 0:
		return NewStringNode(v.errv.Error())
	default:
		return NewNullNode()
	}
}

// MarshalJSON implements json.Marshaler.
func (n *Node) MarshalJSON() ([]byte, error) {
	switch n.kind {
	case NodeNull:
		return []byte("null"), nil
	case NodeBool:
		return json.Marshal(n.b)
	case NodeNumber:
		return json.Marshal(n.num)
	case NodeString:
		return json.Marshal(n.str)
	case NodeArray:
		return json.Marshal(n.arr)
	case NodeObject:
		return json.Marshal(n.obj)
	}
	return []byte("null"), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*n = *nodeFromRaw(raw)
	return nil
}

func nodeFromRaw(raw any) *Node {
	switch v := raw.(type) {
	case nil:
		return NewNullNode()
	case bool:
		return NewBoolNode(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return NewStringNode(v.String())
		}
		return NewNumberNode(f)
	case string:
		return NewStringNode(v)
	case []any:
		node := NewArrayNode()
		for _, item := range v {
			node.arr = append(node.arr, nodeFromRaw(item))
		}
		return node
	case map[string]any:
		node := NewObjectNode()
		for k, item := range v {
			node.obj[k] = nodeFromRaw(item)
		}
		return node
	}
	return NewNullNode()
}

// ParseJSON parses JSON text into a node tree.
func ParseJSON(text string) (*Node, error) {
	node := &Node{}
	if err := node.UnmarshalJSON([]byte(text)); err != nil {
		return nil, err
	}
	return node, nil
}

// JSONString renders the tree as compact JSON.
func (n *Node) JSONString() string {
	data, err := json.Marshal(n)
	if err != nil {
		return "null"
	}
	return string(data)
}
