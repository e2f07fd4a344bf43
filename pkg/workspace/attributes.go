package workspace

import (
	"fmt"
	"strconv"
)

// Attribute names a mutable field of a channel or role.
type Attribute string

const (
	AttrName        Attribute = "name"
	AttrParent      Attribute = "parent_id"
	AttrTopic       Attribute = "topic"
	AttrNSFW        Attribute = "nsfw"
	AttrSlowmode    Attribute = "slowmode"
	AttrColor       Attribute = "color"
	AttrMentionable Attribute = "mentionable"
	AttrHoist       Attribute = "hoist"
)

// Attributes is a set of attribute values. Values survive a JSON round trip, so numbers
// may come back as float64; use the As* helpers to read them.
type Attributes map[Attribute]any

// ChannelAttribute reads attr from c.
func ChannelAttribute(c *Channel, attr Attribute) (any, error) {
	switch attr {
	case AttrName:
		return c.Name, nil
	case AttrParent:
		return c.ParentID, nil
	case AttrTopic:
		return c.Topic, nil
	case AttrNSFW:
		return c.NSFW, nil
	case AttrSlowmode:
		return c.Slowmode, nil
	case AttrColor, AttrMentionable, AttrHoist:
	}

	return nil, fmt.Errorf("attribute %q does not apply to channels", attr)
}

// RoleAttribute reads attr from r.
func RoleAttribute(r *Role, attr Attribute) (any, error) {
	switch attr {
	case AttrName:
		return r.Name, nil
	case AttrColor:
		return r.Color, nil
	case AttrMentionable:
		return r.Mentionable, nil
	case AttrHoist:
		return r.Hoist, nil
	case AttrParent, AttrTopic, AttrNSFW, AttrSlowmode:
	}

	return nil, fmt.Errorf("attribute %q does not apply to roles", attr)
}

// ApplyChannel writes attrs onto c.
func ApplyChannel(c *Channel, attrs Attributes) error {
	for attr, value := range attrs {
		var err error

		switch attr {
		case AttrName:
			c.Name, err = AsString(value)
		case AttrParent:
			c.ParentID, err = AsString(value)
		case AttrTopic:
			c.Topic, err = AsString(value)
		case AttrNSFW:
			c.NSFW, err = AsBool(value)
		case AttrSlowmode:
			c.Slowmode, err = AsInt(value)
		case AttrColor, AttrMentionable, AttrHoist:
			err = fmt.Errorf("attribute %q does not apply to channels", attr)
		default:
			err = fmt.Errorf("unknown attribute %q", attr)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// ApplyRole writes attrs onto r.
func ApplyRole(r *Role, attrs Attributes) error {
	for attr, value := range attrs {
		var err error

		switch attr {
		case AttrName:
			r.Name, err = AsString(value)
		case AttrColor:
			r.Color, err = AsInt(value)
		case AttrMentionable:
			r.Mentionable, err = AsBool(value)
		case AttrHoist:
			r.Hoist, err = AsBool(value)
		case AttrParent, AttrTopic, AttrNSFW, AttrSlowmode:
			err = fmt.Errorf("attribute %q does not apply to roles", attr)
		default:
			err = fmt.Errorf("unknown attribute %q", attr)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// AsString converts value to a string.
func AsString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", value)
	}
}

// AsBool converts value to a bool, accepting common string spellings.
func AsBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "on", "yes", "enable", "enabled":
			return true, nil
		case "off", "no", "disable", "disabled":
			return false, nil
		}

		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("expected bool, got %T", value)
	}
}

// AsInt converts value to an int.
func AsInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("expected integer, got %T", value)
	}
}

// Equal compares two attribute values after normalizing numeric and boolean encodings.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case bool:
		bv, err := AsBool(b)

		return err == nil && av == bv
	case int, int64, float64:
		ai, errA := AsInt(a)
		bi, errB := AsInt(b)

		return errA == nil && errB == nil && ai == bi
	case string:
		bv, err := AsString(b)

		return err == nil && av == bv
	}

	return a == b
}
