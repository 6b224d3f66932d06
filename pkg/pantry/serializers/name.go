package serializers

import "strings"

// NameUpdate is a decoded tag or ingredient payload.
type NameUpdate struct {
	Name Optional[string]
}

// DecodeName parses and validates a tag or ingredient payload.
// The name is required unless mode is ModePatch.
func DecodeName(body []byte, mode Mode) (NameUpdate, error) {
	raw, err := decodeFields(body)
	if err != nil {
		return NameUpdate{}, err
	}

	var in NameUpdate
	errs := FieldErrors{}
	decodeField(raw, "name", &in.Name, msgString, errs)
	if len(errs) > 0 {
		return in, errs
	}
	in.Name.Value = strings.TrimSpace(in.Name.Value)

	checkPresence(errs, "name", in.Name.Set, in.Name.Null, mode != ModePatch)
	if in.Name.Set && !in.Name.Null {
		validateVar(errs, "name", in.Name.Value, "required,max=255")
	}
	return in, errs.Err()
}
