package jsonpatch

import (
	"encoding/json"
	"fmt"

	jp "github.com/evanphx/json-patch/v5"
)

type PatchError struct {
	msg string
}

func (p *PatchError) Error() string {
	return p.msg
}

type Patch = jp.Patch

func Parse(bs []byte) (Patch, error) {
	return jp.DecodePatch(bs)
}

var opts = jp.ApplyOptions{
	EnsurePathExistsOnAdd:    true, // will create paths
	AllowMissingPathOnRemove: true,
}

// Apply applies a patch to a configuration document. Only add, remove and
// replace operations are supported.
func Apply(p Patch, doc json.RawMessage) (json.RawMessage, error) {
	for _, op := range p {
		switch op.Kind() {
		case "replace", "remove", "add": // OK
		default:
			return nil, &PatchError{fmt.Sprintf("unsupported patch operation %q, must be one of \"replace\", \"add\", \"remove\"", op.Kind())}
		}
	}
	return p.ApplyWithOptions(doc, &opts)
}
