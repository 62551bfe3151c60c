package resolver

import (
	"fmt"

	"github.com/golangasn1/goasn1/asn1"
)

// checkTagUniqueness verifies the tag rules of the model: context tags in
// a SEQUENCE are unique, and all member tags in a SET or CHOICE are
// distinct (untagged CHOICE members contribute their alternatives'
// tags recursively).
func (c *context) checkTagUniqueness() {
	for id := range c.arena {
		node := &c.arena[id]
		switch node.Kind {
		case asn1.KindSequence:
			c.checkSequenceTags(asn1.TypeID(id), node)
		case asn1.KindSet, asn1.KindChoice:
			c.checkDistinctTags(asn1.TypeID(id), node)
		}
	}
}

type tagKey struct {
	class  asn1.Class
	number int
}

func (c *context) checkSequenceTags(id asn1.TypeID, node *asn1.Type) {
	seen := make(map[tagKey]string)
	for _, m := range node.Members {
		member := c.arena[m.Type]
		tag := member.EffectiveTag()
		if tag.Class == asn1.ClassUniversal {
			continue
		}
		key := tagKey{class: tag.Class, number: tag.Number}
		if prev, dup := seen[key]; dup {
			c.reportDuplicateTag(id, prev, m.Name, tag)
			return
		}
		seen[key] = m.Name
	}
}

func (c *context) checkDistinctTags(id asn1.TypeID, node *asn1.Type) {
	seen := make(map[tagKey]string)
	for _, m := range node.Members {
		for _, tag := range c.memberTags(m.Type, make(map[asn1.TypeID]bool)) {
			key := tagKey{class: tag.Class, number: tag.Number}
			if prev, dup := seen[key]; dup {
				c.reportDuplicateTag(id, prev, m.Name, tag)
				return
			}
			seen[key] = m.Name
		}
	}
}

// memberTags returns the outer tags a member can present: its own tag, or
// for an untagged CHOICE the tags of all alternatives.
func (c *context) memberTags(id asn1.TypeID, visited map[asn1.TypeID]bool) []asn1.Tag {
	if visited[id] {
		return nil
	}
	visited[id] = true

	node := c.arena[id]
	if len(node.Tags) > 0 {
		return []asn1.Tag{node.Tags[0]}
	}
	switch node.Kind {
	case asn1.KindChoice:
		var tags []asn1.Tag
		for _, m := range node.Members {
			tags = append(tags, c.memberTags(m.Type, visited)...)
		}
		return tags
	case asn1.KindAny:
		// ANY matches any tag; uniqueness cannot be checked statically.
		return nil
	}
	return []asn1.Tag{node.EffectiveTag()}
}

func (c *context) reportDuplicateTag(id asn1.TypeID, first, second string, tag asn1.Tag) {
	key := c.nearestKey(id)
	c.errorf(asn1.ResolveDuplicateTag, key,
		"members %q and %q share tag [%s %d]", first, second, tagClassName(tag.Class), tag.Number)
}

func tagClassName(class asn1.Class) string {
	if name := class.String(); name != "" {
		return name
	}
	return "CONTEXT"
}

// nearestKey names the defined type owning an arena node, falling back to
// an anonymous label.
func (c *context) nearestKey(id asn1.TypeID) defKey {
	if key, ok := c.keyOf[id]; ok {
		return key
	}
	node := c.arena[id]
	if node.Name != "" {
		return defKey{module: node.Module, name: node.Name}
	}
	return defKey{name: fmt.Sprintf("<anonymous #%d>", id)}
}

// checkRecursion rejects types that contain themselves with no OPTIONAL
// member or SEQUENCE OF / SET OF on the cycle.
func (c *context) checkRecursion() {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(c.arena))

	type frame struct {
		id   asn1.TypeID
		safe bool // the edge entering this node could be omitted or repeated
	}
	var stack []frame

	indexOnStack := func(id asn1.TypeID) int {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i].id == id {
				return i
			}
		}
		return -1
	}

	var visit func(id asn1.TypeID, enteredSafe bool)
	visit = func(id asn1.TypeID, enteredSafe bool) {
		color[id] = grey
		stack = append(stack, frame{id: id, safe: enteredSafe})
		defer func() {
			stack = stack[:len(stack)-1]
			color[id] = black
		}()

		node := c.arena[id]
		edge := func(target asn1.TypeID, safe bool) {
			if target < 0 {
				return
			}
			switch color[target] {
			case white:
				visit(target, safe)
			case grey:
				if safe {
					return
				}
				// The cycle runs from target around to id plus this edge;
				// legal if any edge inside it is safe.
				at := indexOnStack(target)
				for i := at + 1; i < len(stack); i++ {
					if stack[i].safe {
						return
					}
				}
				c.errorf(asn1.ResolveIllegalRecursion, c.nearestKey(target),
					"type contains itself without an OPTIONAL or SEQUENCE OF escape")
			}
		}

		switch node.Kind {
		case asn1.KindSequence, asn1.KindSet, asn1.KindChoice:
			for _, m := range node.Members {
				safe := m.Optional
				edge(m.Type, safe)
			}
		case asn1.KindSequenceOf, asn1.KindSetOf:
			edge(node.Element, true)
		}
	}

	for id := range c.arena {
		if color[id] == white {
			visit(asn1.TypeID(id), true)
		}
	}
}
