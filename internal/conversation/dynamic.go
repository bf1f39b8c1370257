package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Tag is the domain prefix of a dynamic choice id: <tag>_<value>.
type Tag string

const (
	TagDay         Tag = "day"
	TagTime        Tag = "time"
	TagFAQ         Tag = "faq"
	TagService     Tag = "svc"
	TagAppointment Tag = "appt"
)

const tagSeparator = "_"

// DynamicID builds the choice id for a value under tag.
func DynamicID(tag Tag, value string) string {
	return string(tag) + tagSeparator + value
}

// DecodeFunc writes a decoded dynamic value into the session.
type DecodeFunc func(ctx context.Context, env *Env, value string) error

// TagRegistry is the single list of dynamic tags and their session writers.
type TagRegistry struct {
	decoders map[Tag]DecodeFunc
}

func NewTagRegistry() *TagRegistry {
	return &TagRegistry{decoders: make(map[Tag]DecodeFunc)}
}

// Register adds a tag. Tags may not contain the separator.
func (r *TagRegistry) Register(tag Tag, decode DecodeFunc) error {
	if tag == "" || strings.Contains(string(tag), tagSeparator) {
		return fmt.Errorf("conversation: invalid tag %q", tag)
	}
	if decode == nil {
		return fmt.Errorf("conversation: tag %q needs a decoder", tag)
	}
	if _, exists := r.decoders[tag]; exists {
		return fmt.Errorf("conversation: tag %q registered twice", tag)
	}
	r.decoders[tag] = decode
	return nil
}

// Has reports whether tag is registered.
func (r *TagRegistry) Has(tag Tag) bool {
	_, ok := r.decoders[tag]
	return ok
}

// Tags lists registered tags in sorted order.
func (r *TagRegistry) Tags() []Tag {
	tags := make([]Tag, 0, len(r.decoders))
	for t := range r.decoders {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Parse splits id into a registered tag and its value. Exactly one tag
// prefix is stripped; the value may itself contain underscores.
func (r *TagRegistry) Parse(id string) (Tag, string, bool) {
	head, value, found := strings.Cut(id, tagSeparator)
	if !found || value == "" {
		return "", "", false
	}
	tag := Tag(head)
	if !r.Has(tag) {
		return "", "", false
	}
	return tag, value, true
}

// Decode writes the value of id into env's session.
func (r *TagRegistry) Decode(ctx context.Context, env *Env, id string) (Tag, error) {
	tag, value, ok := r.Parse(id)
	if !ok {
		return "", fmt.Errorf("conversation: %q is not a dynamic id", id)
	}
	if err := r.decoders[tag](ctx, env, value); err != nil {
		return tag, err
	}
	return tag, nil
}

// Validate fails when any static choice id could be read as a dynamic id.
func (r *TagRegistry) Validate(staticIDs []string) error {
	for _, id := range staticIDs {
		if _, _, ok := r.Parse(id); ok {
			return fmt.Errorf("conversation: static choice id %q collides with a dynamic tag", id)
		}
	}
	return nil
}
